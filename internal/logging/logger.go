// Package logging provides categorized, zap-backed logging for profcov.
// Each pipeline stage logs under its own category so noisy stages (listing,
// profiler) can be silenced independently. Before Initialize is called every
// logger is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // CLI startup, config
	CategoryListing   Category = "listing"   // Listing file decoding
	CategoryProfiler  Category = "profiler"  // Profiler dump decoding
	CategoryResolve   Category = "resolve"   // Propath search
	CategoryCorrelate Category = "correlate" // Listing/profiler join
	CategoryReport    Category = "report"    // Report serialization
	CategoryPipeline  Category = "pipeline"  // Run orchestration
	CategoryWatch     Category = "watch"     // File watcher
)

// Settings mirrors config.LoggingConfig to avoid circular imports.
type Settings struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, text
	File       string          // optional extra output path
	Categories map[string]bool // per-category toggles, missing means enabled
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu       sync.RWMutex
	base     = zap.NewNop()
	settings Settings
	loggers  = make(map[Category]*Logger)
)

// Initialize builds the process logger from settings. It can be called again
// to reconfigure; previously handed out loggers keep their old core.
func Initialize(s Settings) error {
	level, err := parseLevel(s.Level)
	if err != nil {
		return err
	}

	var cfg zap.Config
	if strings.EqualFold(s.Format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	if s.File != "" {
		if err := os.MkdirAll(filepath.Dir(s.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, s.File)
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	Use(l, s)
	return nil
}

// Use installs an already built zap logger. Tests use it with an observer core.
func Use(l *zap.Logger, s Settings) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	settings = s
	loggers = make(map[Category]*Logger)
}

// Reset restores the no-op logger.
func Reset() {
	Use(zap.NewNop(), Settings{})
}

// Sync flushes buffered entries. Errors from syncing stderr are ignored.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabled(category)
}

func categoryEnabled(category Category) bool {
	if settings.Categories == nil {
		return true
	}
	enabled, exists := settings.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	z := zap.NewNop()
	if categoryEnabled(category) {
		z = base.With(zap.String("category", string(category)))
	}
	l := &Logger{category: category, sugar: z.Sugar()}
	loggers[category] = l
	return l
}

// Category returns the logger's category.
func (l *Logger) Category() Category {
	return l.category
}

// With returns a child logger carrying extra key/value fields.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// Listing logs to the listing category
func Listing(format string, args ...interface{}) {
	Get(CategoryListing).Info(format, args...)
}

// ListingDebug logs debug to the listing category
func ListingDebug(format string, args ...interface{}) {
	Get(CategoryListing).Debug(format, args...)
}

// Profiler logs to the profiler category
func Profiler(format string, args ...interface{}) {
	Get(CategoryProfiler).Info(format, args...)
}

// ProfilerDebug logs debug to the profiler category
func ProfilerDebug(format string, args ...interface{}) {
	Get(CategoryProfiler).Debug(format, args...)
}

// ResolveDebug logs debug to the resolve category
func ResolveDebug(format string, args ...interface{}) {
	Get(CategoryResolve).Debug(format, args...)
}

// Correlate logs to the correlate category
func Correlate(format string, args ...interface{}) {
	Get(CategoryCorrelate).Info(format, args...)
}

// CorrelateDebug logs debug to the correlate category
func CorrelateDebug(format string, args ...interface{}) {
	Get(CategoryCorrelate).Debug(format, args...)
}

// Report logs to the report category
func Report(format string, args ...interface{}) {
	Get(CategoryReport).Info(format, args...)
}

// Pipeline logs to the pipeline category
func Pipeline(format string, args ...interface{}) {
	Get(CategoryPipeline).Info(format, args...)
}

// PipelineDebug logs debug to the pipeline category
func PipelineDebug(format string, args ...interface{}) {
	Get(CategoryPipeline).Debug(format, args...)
}

// Watch logs to the watch category
func Watch(format string, args ...interface{}) {
	Get(CategoryWatch).Info(format, args...)
}

// WatchDebug logs debug to the watch category
func WatchDebug(format string, args ...interface{}) {
	Get(CategoryWatch).Debug(format, args...)
}
