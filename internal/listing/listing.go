// Package listing decodes compiler listing files: the preprocessed expansion of
// a source file with every row annotated by include source number, original
// line number and block number. A decoded File maps each preprocessed line
// back to the file and line the developer wrote.
package listing

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"profcov/internal/logging"
)

const formFeed = '\f'

// maxRowSize bounds a single listing row.
const maxRowSize = 1 << 20

// Record is one decoded listing row.
type Record struct {
	PreprocessedLine int    // 1-based position in the decoded listing
	OriginalLine     int    // line in SourceID, 0 when unmapped
	SourceNumber     int    // include nesting number, 0 for the compiled file itself
	BlockNumber      int    // block nesting number
	SourceID         string // file the row was written in
	Content          string // row text without column data, trimmed
}

// Stats counts what the decoder kept and discarded.
type Stats struct {
	Rows      int // rows surviving the preprocessing pass
	Malformed int // rows with non-numeric columns
	Includes  int // include frames pushed
	Dropped   int // records discarded as include directive continuation rows
}

// File is a decoded listing.
type File struct {
	name    string
	path    string
	records []Record
	stats   Stats
}

// Parse reads and decodes the listing at path. logicalName is the SourceID of
// rows outside any include.
func Parse(logicalName, path string) (*File, error) {
	return ParseLayout(logicalName, path, LayoutV1)
}

// ParseLayout is Parse with an explicit column layout.
func ParseLayout(logicalName, path string, layout Layout) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open listing %s: %w", path, err)
	}
	defer f.Close()

	logging.ListingDebug("reading listing file %s for %s", path, logicalName)

	lf, err := ParseReaderLayout(logicalName, f, layout)
	if err != nil {
		return nil, fmt.Errorf("failed to read listing %s: %w", path, err)
	}
	lf.path = path
	return lf, nil
}

// ParseReader decodes a listing from r using LayoutV1.
func ParseReader(logicalName string, r io.Reader) (*File, error) {
	return ParseReaderLayout(logicalName, r, LayoutV1)
}

// ParseReaderLayout decodes a listing from r using an explicit column layout.
func ParseReaderLayout(logicalName string, r io.Reader, layout Layout) (*File, error) {
	rows, err := readRows(r, layout)
	if err != nil {
		return nil, err
	}

	d := &decoder{
		layout: layout,
		file:   &File{name: logicalName},
		rows:   rows,
	}
	d.run()

	s := d.file.stats
	logging.ListingDebug("listing %s: %d rows, %d records, %d malformed, %d includes, %d dropped",
		logicalName, s.Rows, len(d.file.records), s.Malformed, s.Includes, s.Dropped)

	return d.file, nil
}

// readRows performs the preprocessing pass: it stops at the first form feed
// and keeps only space-led rows whose line column is numeric or empty.
func readRows(r io.Reader, layout Layout) ([]string, error) {
	var rows []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRowSize)
	for scanner.Scan() {
		row := strings.TrimSuffix(scanner.Text(), "\r")
		if len(row) > 0 && row[0] == formFeed {
			break
		}
		if len(row) <= 1 || row[0] != ' ' {
			continue
		}
		if _, ok := number(layout.line(row)); !ok {
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// decoder performs the structural pass over preprocessed rows.
type decoder struct {
	layout Layout
	file   *File
	rows   []string
	stack  includeStack
}

func (d *decoder) run() {
	d.file.stats.Rows = len(d.rows)
	prev := -1

	for i, row := range d.rows {
		src, ok1 := number(d.layout.source(row))
		line, ok2 := number(d.layout.line(row))
		block, ok3 := number(d.layout.block(row))
		if !ok1 || !ok2 || !ok3 {
			d.file.stats.Malformed++
			continue
		}

		if prev == -1 {
			prev = src
		}
		switch {
		case src > prev:
			d.enterInclude(i)
		case src < prev:
			if name, ok := d.stack.pop(); ok {
				logging.ListingDebug("leaving include %s at row %d", name, i+1)
			}
		}

		d.file.records = append(d.file.records, Record{
			PreprocessedLine: len(d.file.records) + 1,
			OriginalLine:     line,
			SourceNumber:     src,
			BlockNumber:      block,
			SourceID:         d.stack.top(d.file.name),
			Content:          d.layout.content(row),
		})

		prev = src
	}
}

// enterInclude scans backward from row i to recover the include directive
// that opened the new source number. Rows still inside the directive's
// unbalanced braces are continuation rows of the directive; their records
// are discarded.
func (d *decoder) enterInclude(i int) {
	balance := 0
	var scanned []string

	for j := i - 1; j >= 0; j-- {
		row := d.rows[j]
		balance += braceBalance(row)
		if balance > 0 {
			d.dropLast()
		}
		scanned = append(scanned, row)
		if balance == 0 {
			break
		}
	}

	var directive strings.Builder
	for k := len(scanned) - 1; k >= 0; k-- {
		directive.WriteString(scanned[k])
	}

	for _, name := range includeNames(directive.String(), d.layout.ContentStart) {
		d.stack.push(name)
		d.file.stats.Includes++
		logging.ListingDebug("entering include %s at row %d (depth %d)", name, i+1, d.stack.depth())
	}
}

func (d *decoder) dropLast() {
	n := len(d.file.records)
	if n == 0 {
		return
	}
	d.file.records = d.file.records[:n-1]
	d.file.stats.Dropped++
}

// Name returns the logical name rows outside includes are attributed to.
func (f *File) Name() string { return f.name }

// Path returns the file the listing was read from, empty for ParseReader.
func (f *File) Path() string { return f.path }

// Len returns the number of records.
func (f *File) Len() int { return len(f.records) }

// Stats returns decoding statistics.
func (f *File) Stats() Stats { return f.stats }

// Records returns a copy of the decoded records in preprocessed line order.
func (f *File) Records() []Record {
	out := make([]Record, len(f.records))
	copy(out, f.records)
	return out
}

// Record returns the record at 1-based preprocessed line n.
func (f *File) Record(n int) (Record, bool) {
	if n < 1 || n > len(f.records) {
		return Record{}, false
	}
	return f.records[n-1], true
}

// OriginalLine returns the original line of preprocessed line n, 0 when n is
// out of range.
func (f *File) OriginalLine(n int) int {
	r, _ := f.Record(n)
	return r.OriginalLine
}

// OriginalSource returns the file preprocessed line n was written in, empty
// when n is out of range.
func (f *File) OriginalSource(n int) string {
	r, _ := f.Record(n)
	return r.SourceID
}

// IsInclude reports whether preprocessed line n came from an include file.
func (f *File) IsInclude(n int) bool {
	r, _ := f.Record(n)
	return r.SourceNumber > 0
}

// IsLineValid reports whether preprocessed line n looks like an executable
// statement worth reporting.
func (f *File) IsLineValid(n int) bool {
	r, _ := f.Record(n)
	return ValidContent(r.Content)
}

// ValidContent applies the line validity heuristic to row content: block
// terminators (END...) and bare block openers (DO: without IF) are excluded,
// conditional openers are kept.
func ValidContent(content string) bool {
	upper := strings.ToUpper(content)
	if upper == "" || strings.HasPrefix(upper, "END") {
		return false
	}
	return strings.Contains(upper, "IF") || !strings.Contains(upper, "DO:")
}
