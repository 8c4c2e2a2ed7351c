package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"

	"github.com/ludo-technologies/irflow/internal/dataflow/analyses"
)

// EnvPrefix prefixes environment overrides, e.g. IRFLOW_OUTPUT_FORMAT
const EnvPrefix = "IRFLOW"

// Default analysis settings
const (
	// DefaultWorkers of 0 sizes the worker pool to the CPU count
	DefaultWorkers = 0

	// DefaultTimeoutSeconds bounds one interpreter run
	DefaultTimeoutSeconds = 30

	// DefaultOutputFormat is used when neither a flag nor a file names one
	DefaultOutputFormat = "text"
)

// ConfigFileNames are searched in order in each directory
var ConfigFileNames = []string{
	".irflow.toml",
	".irflow.yaml",
	".irflow.yml",
}

// Config represents the main configuration structure
type Config struct {
	// Analysis selects the analyses and the programs they run on
	Analysis AnalysisConfig `mapstructure:"analysis" toml:"analysis" yaml:"analysis"`

	// Output holds output formatting configuration
	Output OutputConfig `mapstructure:"output" toml:"output" yaml:"output"`

	// Runtime configures the reference interpreter
	Runtime RuntimeConfig `mapstructure:"runtime" toml:"runtime" yaml:"runtime"`
}

// AnalysisConfig holds general analysis configuration
type AnalysisConfig struct {
	// Analyses lists the dataflow analyses to run; empty means all
	Analyses []string `mapstructure:"analyses" toml:"analyses" yaml:"analyses"`

	// IncludePatterns specifies program file patterns to include
	IncludePatterns []string `mapstructure:"include_patterns" toml:"include_patterns" yaml:"include_patterns"`

	// ExcludePatterns specifies program file patterns to exclude
	ExcludePatterns []string `mapstructure:"exclude_patterns" toml:"exclude_patterns" yaml:"exclude_patterns"`

	// Recursive controls whether to walk directories recursively
	Recursive bool `mapstructure:"recursive" toml:"recursive" yaml:"recursive"`

	// Workers caps concurrent scope analyses
	Workers int `mapstructure:"workers" toml:"workers" yaml:"workers"`

	// IncludeTests loads Go test packages alongside regular ones
	IncludeTests bool `mapstructure:"include_tests" toml:"include_tests" yaml:"include_tests"`
}

// OutputConfig holds configuration for output formatting
type OutputConfig struct {
	// Format specifies the output format: text, json, yaml
	Format string `mapstructure:"format" toml:"format" yaml:"format"`

	// ShowFacts prints per-block IN/OUT facts in text output
	ShowFacts bool `mapstructure:"show_facts" toml:"show_facts" yaml:"show_facts"`

	// Progress enables the progress bar on interactive terminals
	Progress bool `mapstructure:"progress" toml:"progress" yaml:"progress"`
}

// RuntimeConfig holds interpreter settings
type RuntimeConfig struct {
	// TimeoutSeconds cancels a run after this many seconds; 0 disables it
	TimeoutSeconds int `mapstructure:"timeout_seconds" toml:"timeout_seconds" yaml:"timeout_seconds"`

	// Debug enables debug logging of solver and interpreter events
	Debug bool `mapstructure:"debug" toml:"debug" yaml:"debug"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Analyses:        analyses.Names(),
			IncludePatterns: []string{"**/*.yaml", "**/*.yml"},
			ExcludePatterns: []string{"**/testdata/**", "**/.*/**"},
			Recursive:       true,
			Workers:         DefaultWorkers,
		},
		Output: OutputConfig{
			Format:   DefaultOutputFormat,
			Progress: true,
		},
		Runtime: RuntimeConfig{
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
	}
}

// LoadConfig loads configuration from configPath, or from the nearest
// config file at or above startDir when configPath is empty. Environment
// variables prefixed with IRFLOW_ override file values.
func LoadConfig(configPath, startDir string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	setDefaults(v, config)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" && startDir != "" {
		configPath = FindConfigFile(startDir)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it on Unmarshal
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("analysis.analyses", c.Analysis.Analyses)
	v.SetDefault("analysis.include_patterns", c.Analysis.IncludePatterns)
	v.SetDefault("analysis.exclude_patterns", c.Analysis.ExcludePatterns)
	v.SetDefault("analysis.recursive", c.Analysis.Recursive)
	v.SetDefault("analysis.workers", c.Analysis.Workers)
	v.SetDefault("analysis.include_tests", c.Analysis.IncludeTests)
	v.SetDefault("output.format", c.Output.Format)
	v.SetDefault("output.show_facts", c.Output.ShowFacts)
	v.SetDefault("output.progress", c.Output.Progress)
	v.SetDefault("runtime.timeout_seconds", c.Runtime.TimeoutSeconds)
	v.SetDefault("runtime.debug", c.Runtime.Debug)
}

// FindConfigFile walks up the directory tree from startDir and returns the
// first config file found, or "" when there is none.
func FindConfigFile(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			return ""
		}
		dir = parent
	}
}

// Validate validates the configuration values
func (c *Config) Validate() error {
	for _, name := range c.Analysis.Analyses {
		if !analyses.IsKnown(name) {
			return fmt.Errorf("analysis.analyses: unknown analysis %q (available: %s)",
				name, strings.Join(analyses.Names(), ", "))
		}
	}

	for _, pattern := range append(append([]string{}, c.Analysis.IncludePatterns...), c.Analysis.ExcludePatterns...) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("analysis: invalid file pattern %q", pattern)
		}
	}

	if c.Analysis.Workers < 0 {
		return fmt.Errorf("analysis.workers must be >= 0, got %d", c.Analysis.Workers)
	}

	switch c.Output.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("output.format must be one of text, json, yaml, got %q", c.Output.Format)
	}

	if c.Runtime.TimeoutSeconds < 0 {
		return fmt.Errorf("runtime.timeout_seconds must be >= 0, got %d", c.Runtime.TimeoutSeconds)
	}

	return nil
}

// EnabledAnalyses returns the configured analyses, or all of them when
// none are named
func (c *AnalysisConfig) EnabledAnalyses() []string {
	if len(c.Analyses) == 0 {
		return analyses.Names()
	}
	return c.Analyses
}
