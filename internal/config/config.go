// Package config provides configuration management for dataframe execution:
// parallelism of the native backend, which optimizer rules the lazy planner
// runs, logging and the default backend name.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "EXPLORER_"

// Default configuration values
const (
	DefaultParallelThreshold  = 1000
	DefaultMaxParallelism     = 16
	DefaultMaxOptimizerPasses = 8
	DefaultBackend            = "native"
	DefaultLogLevel           = "info"
)

// Config represents the process configuration. Field tags serve koanf for
// loading and yaml.v3 for Save.
type Config struct {
	// Parallel Processing Configuration
	ParallelThreshold int `koanf:"parallel_threshold" yaml:"parallel_threshold"` // Minimum rows to evaluate columns concurrently
	WorkerPoolSize    int `koanf:"worker_pool_size" yaml:"worker_pool_size"`     // Number of worker goroutines (0 = auto-detect)
	MaxParallelism    int `koanf:"max_parallelism" yaml:"max_parallelism"`       // Upper bound on concurrent workers

	// Query Optimization Configuration
	ConstantFolding    bool `koanf:"constant_folding" yaml:"constant_folding"`
	PredicatePushdown  bool `koanf:"predicate_pushdown" yaml:"predicate_pushdown"`
	ProjectionPruning  bool `koanf:"projection_pruning" yaml:"projection_pruning"`
	FilterFusion       bool `koanf:"filter_fusion" yaml:"filter_fusion"`
	MaxOptimizerPasses int  `koanf:"max_optimizer_passes" yaml:"max_optimizer_passes"`

	// Debugging Configuration
	MetricsCollection bool   `koanf:"metrics_collection" yaml:"metrics_collection"`
	VerboseLogging    bool   `koanf:"verbose_logging" yaml:"verbose_logging"`
	LogLevel          string `koanf:"log_level" yaml:"log_level"`

	DefaultBackend string `koanf:"default_backend" yaml:"default_backend"`
}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		ParallelThreshold: DefaultParallelThreshold,
		WorkerPoolSize:    0, // Auto-detect
		MaxParallelism:    DefaultMaxParallelism,

		ConstantFolding:    true,
		PredicatePushdown:  true,
		ProjectionPruning:  true,
		FilterFusion:       true,
		MaxOptimizerPasses: DefaultMaxOptimizerPasses,

		MetricsCollection: false,
		VerboseLogging:    false,
		LogLevel:          DefaultLogLevel,

		DefaultBackend: DefaultBackend,
	}
}

func defaultsMap() map[string]interface{} {
	c := NewConfig()
	return map[string]interface{}{
		"parallel_threshold":   c.ParallelThreshold,
		"worker_pool_size":     c.WorkerPoolSize,
		"max_parallelism":      c.MaxParallelism,
		"constant_folding":     c.ConstantFolding,
		"predicate_pushdown":   c.PredicatePushdown,
		"projection_pruning":   c.ProjectionPruning,
		"filter_fusion":        c.FilterFusion,
		"max_optimizer_passes": c.MaxOptimizerPasses,
		"metrics_collection":   c.MetricsCollection,
		"verbose_logging":      c.VerboseLogging,
		"log_level":            c.LogLevel,
		"default_backend":      c.DefaultBackend,
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.ParallelThreshold <= 0 {
		result = multierror.Append(result, fmt.Errorf("ParallelThreshold must be positive, got %d", c.ParallelThreshold))
	}
	if c.WorkerPoolSize < 0 {
		result = multierror.Append(result, fmt.Errorf("WorkerPoolSize must be non-negative, got %d", c.WorkerPoolSize))
	}
	if c.MaxParallelism <= 0 {
		result = multierror.Append(result, fmt.Errorf("MaxParallelism must be positive, got %d", c.MaxParallelism))
	}
	if c.MaxOptimizerPasses <= 0 {
		result = multierror.Append(result, fmt.Errorf("MaxOptimizerPasses must be positive, got %d", c.MaxOptimizerPasses))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, err)
	}
	if c.DefaultBackend == "" {
		result = multierror.Append(result, fmt.Errorf("DefaultBackend must not be empty"))
	}

	return result.ErrorOrNil()
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	defaults := NewConfig()

	if c.ParallelThreshold == 0 {
		c.ParallelThreshold = defaults.ParallelThreshold
	}
	if c.MaxParallelism == 0 {
		c.MaxParallelism = defaults.MaxParallelism
	}
	if c.MaxOptimizerPasses == 0 {
		c.MaxOptimizerPasses = defaults.MaxOptimizerPasses
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.DefaultBackend == "" {
		c.DefaultBackend = defaults.DefaultBackend
	}

	// Boolean fields are left alone so an explicit false survives.
	return c
}

// Workers is the effective number of concurrent workers.
func (c Config) Workers() int {
	n := c.WorkerPoolSize
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if c.MaxParallelism > 0 && n > c.MaxParallelism {
		n = c.MaxParallelism
	}
	return n
}

// Level returns the slog level named by LogLevel; VerboseLogging forces debug.
func (c Config) Level() slog.Level {
	if c.VerboseLogging {
		return slog.LevelDebug
	}
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LogLevel %q is not a valid level", s)
	}
	return lvl, nil
}

// Load layers defaults, the optional YAML (or JSON) file at path and
// EXPLORER_* environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		// YAML is a superset of JSON, so one parser serves both extensions.
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv is Load without a file.
func LoadFromEnv() (Config, error) {
	return Load("")
}

// Save writes the configuration as YAML.
func (c Config) Save(w io.Writer) error {
	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	return enc.Close()
}
