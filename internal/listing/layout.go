package listing

import (
	"regexp"
	"strconv"
	"strings"
)

var numericColumn = regexp.MustCompile(`^-?[0-9]+$`)

// Layout names the fixed-width columns of a listing row. Offsets are 0-based
// byte positions, end exclusive. The layout belongs to one compiler listing
// format version and is never inferred from the file.
type Layout struct {
	SourceStart, SourceEnd int
	LineStart, LineEnd     int
	BlockStart, BlockEnd   int
	ContentStart           int
}

// LayoutV1 is the listing layout produced by COMPILE ... LISTING:
//
//	{} Line Blk
//	-- ---- ---
//	      1     DEFINE VARIABLE i AS INTEGER NO-UNDO.
//	 1    3   1 MESSAGE i.
var LayoutV1 = Layout{
	SourceStart: 0, SourceEnd: 2,
	LineStart: 3, LineEnd: 7,
	BlockStart: 8, BlockEnd: 11,
	ContentStart: 12,
}

// column returns the trimmed text of row[start:end], clamped to the row.
func column(row string, start, end int) string {
	if start >= len(row) {
		return ""
	}
	if end > len(row) {
		end = len(row)
	}
	return strings.TrimSpace(row[start:end])
}

func (l Layout) source(row string) string  { return column(row, l.SourceStart, l.SourceEnd) }
func (l Layout) line(row string) string    { return column(row, l.LineStart, l.LineEnd) }
func (l Layout) block(row string) string   { return column(row, l.BlockStart, l.BlockEnd) }
func (l Layout) content(row string) string { return column(row, l.ContentStart, len(row)) }

// number parses a numeric column. An empty column is 0.
func number(col string) (int, bool) {
	if col == "" {
		return 0, true
	}
	if !numericColumn.MatchString(col) {
		return 0, false
	}
	n, err := strconv.Atoi(col)
	return n, err == nil
}
