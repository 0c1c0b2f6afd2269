package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = ".profcov.yaml"

// Config holds all profcov configuration.
type Config struct {
	Listing  ListingConfig  `yaml:"listing"`
	Profiler ProfilerConfig `yaml:"profiler"`
	Output   OutputConfig   `yaml:"output"`
	Resolver ResolverConfig `yaml:"resolver"`
	Watch    WatchConfig    `yaml:"watch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ListingConfig configures where listings are searched for.
type ListingConfig struct {
	Root string `yaml:"root"`

	// Source extensions a listing may carry; a trailing run of digits is
	// always accepted (p1, w2, ...).
	Extensions []string `yaml:"extensions"`
}

// ProfilerConfig configures profiler dump discovery.
type ProfilerConfig struct {
	// Path is a dump file or a directory of dumps.
	Path string `yaml:"path"`

	// Pattern must appear in a file name (not at its start) for the file to
	// be read when Path is a directory.
	Pattern string `yaml:"pattern"`
}

// OutputConfig configures the report.
type OutputConfig struct {
	Path         string `yaml:"path"`
	Format       string `yaml:"format"` // xml, json, yaml, sqlite; empty means by extension
	SourcePrefix string `yaml:"source_prefix"`
	Summary      bool   `yaml:"summary"`
}

// ResolverConfig configures the propath search.
type ResolverConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// DefaultExtensions are the source extensions of compiled ABL units.
var DefaultExtensions = []string{"p", "py", "w", "cls"}

// ValidFormats lists the report formats.
var ValidFormats = []string{"xml", "json", "yaml", "sqlite"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listing: ListingConfig{
			Extensions: append([]string(nil), DefaultExtensions...),
		},
		Profiler: ProfilerConfig{
			Pattern: ".out",
		},
		Resolver: ResolverConfig{
			CacheSize: 4096,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. A .env file in the working directory is loaded first so its
// variables take part in the environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if root := os.Getenv("PROFCOV_LISTING_ROOT"); root != "" {
		c.Listing.Root = root
	}
	if prefix := os.Getenv("PROFCOV_SOURCE_PREFIX"); prefix != "" {
		c.Output.SourcePrefix = prefix
	}
	if format := os.Getenv("PROFCOV_OUTPUT_FORMAT"); format != "" {
		c.Output.Format = strings.ToLower(format)
	}
	if level := os.Getenv("PROFCOV_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if exts := os.Getenv("PROFCOV_EXTENSIONS"); exts != "" {
		c.Listing.Extensions = splitList(exts)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetWatchDebounce returns the watch debounce as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Output.Format != "" {
		valid := false
		for _, f := range ValidFormats {
			if c.Output.Format == f {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid output format: %s (valid: %v)", c.Output.Format, ValidFormats)
		}
	}

	if len(c.Listing.Extensions) == 0 {
		return fmt.Errorf("at least one listing extension is required")
	}
	for _, ext := range c.Listing.Extensions {
		if ext == "" || strings.ContainsAny(ext, "./\\") {
			return fmt.Errorf("invalid listing extension %q", ext)
		}
	}

	if c.Resolver.CacheSize < 0 {
		return fmt.Errorf("resolver cache size must not be negative: %d", c.Resolver.CacheSize)
	}

	if c.Profiler.Pattern == "" {
		return fmt.Errorf("profiler pattern must not be empty")
	}

	return nil
}
