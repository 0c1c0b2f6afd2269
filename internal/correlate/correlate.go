// Package correlate joins profiler coverage, which is keyed by preprocessed
// line, with compiler listings to produce coverage of the original source
// files and lines.
package correlate

import (
	"context"
	"sort"
	"strings"

	"profcov/internal/listing"
	"profcov/internal/logging"
	"profcov/internal/profiler"
	"profcov/internal/propath"
)

// Source is the query surface of merged profiler data.
type Source interface {
	Sources() []string
	CoverageInfo(name string) []profiler.LineCoverage
}

var _ Source = (*profiler.Accumulator)(nil)

// Stats counts what one correlation pass did.
type Stats struct {
	Sources  int // profiler sources seen
	Resolved int // sources with a listing
	Dropped  int // sources without a listing
	Invalid  int // lines rejected by the validity filter
	Unmapped int // lines mapping to original line 0
	Merged   int // lines merged into the result
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithSourcePrefix sets the prefix of every emitted path.
func WithSourcePrefix(prefix string) Option {
	return func(c *Correlator) { c.prefix = prefix }
}

// WithExtensions sets the source extensions a name may end in without being
// treated as a dotted class name.
func WithExtensions(exts []string) Option {
	return func(c *Correlator) {
		c.exts = nil
		for _, e := range exts {
			c.exts = append(c.exts, strings.ToLower(strings.TrimPrefix(e, ".")))
		}
	}
}

// WithLayout sets the listing column layout.
func WithLayout(layout listing.Layout) Option {
	return func(c *Correlator) { c.layout = layout }
}

// Correlator maps profiler coverage onto original sources.
type Correlator struct {
	resolver propath.Resolver
	prefix   string
	exts     []string
	layout   listing.Layout
	stats    Stats
}

// New returns a Correlator resolving listings through resolver.
func New(resolver propath.Resolver, opts ...Option) *Correlator {
	c := &Correlator{
		resolver: resolver,
		exts:     propath.DefaultExtensions,
		layout:   listing.LayoutV1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns counters of the last Correlate call.
func (c *Correlator) Stats() Stats {
	return c.stats
}

// Correlate resolves the listing of every source in src and merges the
// coverage of valid lines into a new Coverage. Sources without a listing are
// dropped.
func (c *Correlator) Correlate(ctx context.Context, src Source) (*Coverage, error) {
	c.stats = Stats{}
	cov := NewCoverage()

	names := src.Sources()
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.stats.Sources++

		path, ok, err := c.resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			c.stats.Dropped++
			logging.Correlate("no listing found for %s, skipping", name)
			continue
		}
		c.stats.Resolved++

		lf, err := listing.ParseLayout(name, path, c.layout)
		if err != nil {
			return nil, err
		}
		c.merge(cov, lf, src.CoverageInfo(name))
	}

	s := c.stats
	logging.Correlate("correlated %d sources (%d dropped), %d lines merged", s.Sources, s.Dropped, s.Merged)
	return cov, nil
}

func (c *Correlator) merge(cov *Coverage, lf *listing.File, lines []profiler.LineCoverage) {
	for _, lc := range lines {
		if !lf.IsLineValid(lc.Line) {
			c.stats.Invalid++
			continue
		}
		orig := lf.OriginalLine(lc.Line)
		if orig == 0 {
			c.stats.Unmapped++
			continue
		}
		source := lf.OriginalSource(lc.Line)
		cov.Merge(source, orig, lc.Covered)
		c.stats.Merged++
		logging.CorrelateDebug("%s:%d -> %s:%d covered=%t", lf.Name(), lc.Line, source, orig, lc.Covered)
	}
}

// resolve looks name up as is, then as a class name with dots turned into
// directory separators.
func (c *Correlator) resolve(ctx context.Context, name string) (string, bool, error) {
	path, ok, err := c.resolver.Resolve(ctx, name)
	if err != nil || ok {
		return path, ok, err
	}
	if !c.looksDotted(name) {
		return "", false, nil
	}
	return c.resolver.Resolve(ctx, strings.ReplaceAll(name, ".", "/"))
}

// looksDotted reports whether the last segment of name reads like a class
// name (com.acme.Sample) rather than a file name (main.p).
func (c *Correlator) looksDotted(name string) bool {
	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	switch strings.Count(base, ".") {
	case 0:
		return false
	case 1:
		return !c.knownExtension(propath.Extension(base))
	}
	return true
}

// knownExtension reports whether ext (with dot) is a source or include
// extension, optionally followed by digits.
func (c *Correlator) knownExtension(ext string) bool {
	if ext == "" {
		return false
	}
	if includePattern.MatchString(ext) {
		return true
	}
	ext = strings.ToLower(ext[1:])
	for _, e := range c.exts {
		rest, ok := strings.CutPrefix(ext, e)
		if ok && strings.Trim(rest, "0123456789") == "" {
			return true
		}
	}
	return false
}
