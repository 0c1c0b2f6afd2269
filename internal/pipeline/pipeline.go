// Package pipeline runs one full coverage rebuild: read every profiler dump,
// correlate it with the listings, write the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"profcov/internal/config"
	"profcov/internal/correlate"
	"profcov/internal/logging"
	"profcov/internal/profiler"
	"profcov/internal/propath"
	"profcov/internal/report"
)

// DefaultPattern selects profiler dumps in a directory.
const DefaultPattern = ".out"

// ErrProfilerNotFound is returned when the profiler path does not exist.
var ErrProfilerNotFound = errors.New("profiler path does not exist")

// Options configures a run.
type Options struct {
	ProfilerPath string // dump file or directory of dumps
	ListingRoot  string
	OutputPath   string
	SourcePrefix string   // prepended to every report path
	Format       string   // empty picks the format from OutputPath
	Extensions   []string // listing extensions, propath.DefaultExtensions when empty
	Pattern      string   // dump file name pattern, DefaultPattern when empty
	CacheSize    int      // resolver cache entries, 0 disables the cache
}

// FromConfig builds Options from a loaded configuration.
func FromConfig(cfg *config.Config) Options {
	return Options{
		ProfilerPath: cfg.Profiler.Path,
		ListingRoot:  cfg.Listing.Root,
		OutputPath:   cfg.Output.Path,
		SourcePrefix: cfg.Output.SourcePrefix,
		Format:       cfg.Output.Format,
		Extensions:   cfg.Listing.Extensions,
		Pattern:      cfg.Profiler.Pattern,
		CacheSize:    cfg.Resolver.CacheSize,
	}
}

// Result describes a finished run.
type Result struct {
	RunID       string
	Dumps       []string
	Format      report.Format
	Profiler    profiler.Stats
	Correlation correlate.Stats
	Report      *report.Report
	Duration    time.Duration
}

// Run performs one full rebuild and writes the report to opts.OutputPath.
func Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	log := logging.Get(logging.CategoryPipeline).With("run", res.RunID)

	format, err := report.FormatFor(opts.Format, opts.OutputPath)
	if err != nil {
		return nil, err
	}
	res.Format = format

	dumps, err := Dumps(opts.ProfilerPath, opts.Pattern)
	if err != nil {
		return nil, err
	}
	res.Dumps = dumps
	log.Info("reading %d profiler dumps from %s", len(dumps), opts.ProfilerPath)

	acc := profiler.NewAccumulator()
	for _, path := range dumps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := acc.ParseFile(path); err != nil {
			return nil, err
		}
	}
	res.Profiler = acc.Stats()

	resolver, err := newResolver(opts)
	if err != nil {
		return nil, err
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = propath.DefaultExtensions
	}
	c := correlate.New(resolver,
		correlate.WithSourcePrefix(opts.SourcePrefix),
		correlate.WithExtensions(exts),
	)

	cov, err := c.Correlate(ctx, acc)
	if err != nil {
		return nil, err
	}
	res.Correlation = c.Stats()

	files, err := c.Normalize(ctx, cov)
	if err != nil {
		return nil, err
	}
	res.Report = report.New(files)

	if err := report.WriteFile(opts.OutputPath, format, res.Report); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	log.Info("wrote %d files to %s in %s (%d sources dropped)",
		len(files), opts.OutputPath, res.Duration.Round(time.Millisecond), res.Correlation.Dropped)
	return res, nil
}

func newResolver(opts Options) (propath.Resolver, error) {
	var r propath.Resolver = propath.NewWalkResolver(opts.ListingRoot, opts.Extensions)
	if opts.CacheSize <= 0 {
		return r, nil
	}
	return propath.NewCached(r, opts.CacheSize)
}

// Dumps lists the profiler dumps at path. A directory is scanned without
// recursion; a file name qualifies when it contains pattern after its first
// character. The result is sorted.
func Dumps(path, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrProfilerNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat profiler path %s: %w", path, err)
	}

	if !info.IsDir() {
		if !isDump(filepath.Base(path), pattern) {
			logging.Pipeline("%s does not match %q, nothing to read", path, pattern)
			return nil, nil
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiler directory %s: %w", path, err)
	}

	var dumps []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !isDump(e.Name(), pattern) {
			continue
		}
		dumps = append(dumps, filepath.Join(path, e.Name()))
	}
	sort.Strings(dumps)
	return dumps, nil
}

func isDump(name, pattern string) bool {
	return strings.Index(name, pattern) > 0
}
