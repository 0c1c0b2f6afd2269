package correlate

import (
	"sort"

	"profcov/internal/profiler"
)

// Coverage is coverage keyed by original source and original line. Merged
// flags only ever go from false to true. It is not safe for concurrent use.
type Coverage struct {
	files map[string]map[int]bool
}

// NewCoverage returns an empty Coverage.
func NewCoverage() *Coverage {
	return &Coverage{files: make(map[string]map[int]bool)}
}

// Merge records one line. Line 0 and below are ignored.
func (c *Coverage) Merge(source string, line int, covered bool) {
	if line <= 0 {
		return
	}
	lines, ok := c.files[source]
	if !ok {
		lines = make(map[int]bool)
		c.files[source] = lines
	}
	lines[line] = lines[line] || covered
}

// Sources returns every source with at least one line, sorted.
func (c *Coverage) Sources() []string {
	names := make([]string, 0, len(c.files))
	for name := range c.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lines returns the lines of source in ascending order.
func (c *Coverage) Lines(source string) []profiler.LineCoverage {
	lines := c.files[source]
	out := make([]profiler.LineCoverage, 0, len(lines))
	for line, covered := range lines {
		out = append(out, profiler.LineCoverage{Line: line, Covered: covered})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// Covered reports the flag of one line and whether the line is known.
func (c *Coverage) Covered(source string, line int) (covered, known bool) {
	covered, known = c.files[source][line]
	return covered, known
}

// Len returns the number of lines across all sources.
func (c *Coverage) Len() int {
	n := 0
	for _, lines := range c.files {
		n += len(lines)
	}
	return n
}
