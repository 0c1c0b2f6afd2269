// Package profiler decodes profiler coverage dumps.
//
// A dump is a sequence of blocks separated by lines holding a single ".".
// Block meaning is positional and fixed by the dump format version:
//
//	block 0   session header
//	block 1   source table: code number -> source name
//	block 2   ignored
//	block 3   line hits: code line hits time time
//	block 4   ignored
//	block 5+  one block per source: header naming the code number, then one
//	          executable line number per row
//
// Several dumps are merged into one Accumulator. Coverage is keyed by source
// name, never by code number, because code numbers are only meaningful
// inside the dump that declared them.
package profiler

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"profcov/internal/logging"
)

// Block indexes of the dump format.
const (
	BlockInfo        = 0
	BlockSources     = 1
	BlockCoverage    = 3
	BlockSourceLines = 4 // blocks after this one list executable lines
)

const blockDelimiter = "."

// coverageFields is the field count of a block 3 record.
const coverageFields = 5

const maxRecordSize = 1 << 20

// LineCoverage is the coverage state of one preprocessed line.
type LineCoverage struct {
	Line    int
	Covered bool
}

// Stats counts what was read across all dumps.
type Stats struct {
	Dumps           int
	Sources         int // source table entries registered
	CoverageLines   int // block 3 records applied
	ExecutableLines int // executable line records applied
	Malformed       int // records skipped for format errors
	UnknownCodes    int // records naming a code number missing from the source table
}

// Accumulator merges profiler dumps. Covered flags only ever go from false
// to true. It is not safe for concurrent use.
type Accumulator struct {
	coverage map[string]map[int]bool
	debug    map[int]string
	stats    Stats
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		coverage: make(map[string]map[int]bool),
		debug:    make(map[int]string),
	}
}

// ParseFile reads the dump at path into the accumulator.
func (a *Accumulator) ParseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open profiler dump %s: %w", path, err)
	}
	defer f.Close()

	if err := a.Parse(path, f); err != nil {
		return fmt.Errorf("failed to read profiler dump %s: %w", path, err)
	}
	return nil
}

// Parse reads one dump from r. name is only used for logging. The source
// table of any previous dump is discarded first.
func (a *Accumulator) Parse(name string, r io.Reader) error {
	a.debug = make(map[int]string)
	a.stats.Dumps++

	d := &dump{acc: a, name: name}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		d.handle(strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	logging.ProfilerDebug("dump %s: %d blocks, %d sources in table", name, d.block, len(a.debug))
	return nil
}

// dump is the block state of one Parse call.
type dump struct {
	acc     *Accumulator
	name    string
	block   int
	noticed bool

	// per-source line blocks
	header    bool
	active    string
	hasActive bool
}

func (d *dump) handle(line string) {
	if line == blockDelimiter {
		d.block++
		d.header = false
		d.active, d.hasActive = "", false
		return
	}
	if strings.TrimSpace(line) == "" {
		return
	}

	switch {
	case d.block == BlockInfo:
		if !d.noticed {
			d.noticed = true
			logging.Profiler("reading profiler file %s", d.name)
		}
	case d.block == BlockSources:
		d.acc.parseSource(line)
	case d.block == BlockCoverage:
		d.acc.parseCoverage(line)
	case d.block > BlockSourceLines:
		if !d.header {
			d.header = true
			d.active, d.hasActive = d.acc.linesSource(line)
			return
		}
		if d.hasActive {
			d.acc.parseLines(line, d.active)
		}
	}
}

func (a *Accumulator) malformed(kind, line string, err error) {
	a.stats.Malformed++
	logging.ProfilerDebug("skipping malformed %s record %q: %v", kind, line, err)
}

// parseSource registers a source table record:
//
//	698 "remove-all-links adm/objects/broker.p" "" 0
func (a *Accumulator) parseSource(line string) {
	fields := Tokenize(line)
	if len(fields) < 2 {
		a.malformed("source", line, fmt.Errorf("want at least 2 fields, got %d", len(fields)))
		return
	}
	code, err := fields[0].Int()
	if err != nil {
		a.malformed("source", line, err)
		return
	}
	if !fields[1].Quoted {
		a.malformed("source", line, fmt.Errorf("expected quoted source name, got %q", fields[1].Text))
		return
	}
	parts := strings.Fields(fields[1].Text)
	if len(parts) == 0 {
		a.malformed("source", line, fmt.Errorf("empty source name"))
		return
	}

	a.debug[code] = strings.ReplaceAll(parts[len(parts)-1], "\\", "/")
	a.stats.Sources++
}

// parseCoverage applies a line hit record:
//
//	32 1974 1 0.000496 0.000496
func (a *Accumulator) parseCoverage(line string) {
	fields := strings.Fields(line)
	if len(fields) != coverageFields {
		a.malformed("coverage", line, fmt.Errorf("want %d fields, got %d", coverageFields, len(fields)))
		return
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		a.malformed("coverage", line, err)
		return
	}
	lineno, err := strconv.Atoi(fields[1])
	if err != nil {
		a.malformed("coverage", line, err)
		return
	}
	if lineno <= 0 {
		return
	}

	name, ok := a.debug[code]
	if !ok {
		a.stats.UnknownCodes++
		logging.ProfilerDebug("coverage record for unknown code number %d", code)
		return
	}
	a.cover(name, lineno)
	a.stats.CoverageLines++
}

// linesSource selects the source of an executable line block from its
// header record:
//
//	319 "" 22
func (a *Accumulator) linesSource(line string) (string, bool) {
	fields := Tokenize(line)
	if len(fields) == 0 {
		return "", false
	}
	code, err := fields[0].Int()
	if err != nil {
		a.malformed("line block header", line, err)
		return "", false
	}
	name, ok := a.debug[code]
	if !ok {
		a.stats.UnknownCodes++
		logging.ProfilerDebug("line block for unknown code number %d", code)
		return "", false
	}
	a.ensure(name)
	return name, true
}

// parseLines declares one executable line of the active source.
func (a *Accumulator) parseLines(line, name string) {
	lineno, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		a.malformed("executable line", line, err)
		return
	}
	if lineno <= 0 {
		return
	}
	a.declare(name, lineno)
	a.stats.ExecutableLines++
}

func (a *Accumulator) ensure(name string) map[int]bool {
	lines, ok := a.coverage[name]
	if !ok {
		lines = make(map[int]bool)
		a.coverage[name] = lines
	}
	return lines
}

// cover marks a line covered.
func (a *Accumulator) cover(name string, line int) {
	a.ensure(name)[line] = true
}

// declare registers an executable line without touching an existing flag.
func (a *Accumulator) declare(name string, line int) {
	lines := a.ensure(name)
	if _, ok := lines[line]; !ok {
		lines[line] = false
	}
}

// Sources returns every source name with coverage data, sorted.
func (a *Accumulator) Sources() []string {
	names := make([]string, 0, len(a.coverage))
	for name := range a.coverage {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CoverageInfo returns the lines known for a source in ascending order.
func (a *Accumulator) CoverageInfo(name string) []LineCoverage {
	lines := a.coverage[name]
	out := make([]LineCoverage, 0, len(lines))
	for line, covered := range lines {
		out = append(out, LineCoverage{Line: line, Covered: covered})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// Lookup resolves a code number of the most recently parsed dump.
func (a *Accumulator) Lookup(code int) (string, bool) {
	name, ok := a.debug[code]
	return name, ok
}

// Stats returns counters accumulated over all dumps.
func (a *Accumulator) Stats() Stats {
	return a.stats
}
