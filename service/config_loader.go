package service

import (
	"os"

	"github.com/ludo-technologies/irflow/domain"
	"github.com/ludo-technologies/irflow/internal/config"
)

// Flag names shared by the CLI and the configuration merge
const (
	FlagAnalysis  = "analysis"
	FlagFormat    = "format"
	FlagShowFacts = "show-facts"
	FlagProgress  = "progress"
	FlagRecursive = "recursive"
	FlagInclude   = "include"
	FlagExclude   = "exclude"
	FlagTests     = "tests"
	FlagWorkers   = "workers"
	FlagTimeout   = "timeout"
	FlagDebug     = "debug"
)

// ConfigurationLoaderImpl implements the ConfigurationLoader interface
type ConfigurationLoaderImpl struct{}

// NewConfigurationLoader creates a new configuration loader service
func NewConfigurationLoader() *ConfigurationLoaderImpl {
	return &ConfigurationLoaderImpl{}
}

// LoadConfig loads path, or the nearest config file at or above startDir
func (c *ConfigurationLoaderImpl) LoadConfig(path, startDir string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path, startDir)
	if err != nil {
		return nil, domain.NewConfigError("failed to load configuration", err)
	}
	return cfg, nil
}

// MergeAnalyzeRequest fills req from the configuration file. Values of
// flags named in explicit are kept.
func (c *ConfigurationLoaderImpl) MergeAnalyzeRequest(req domain.AnalyzeRequest, explicit map[string]bool) (domain.AnalyzeRequest, error) {
	cfg, err := c.LoadConfig(req.ConfigPath, startDir(req.Paths))
	if err != nil {
		return req, err
	}
	ft := trackerOf(explicit)

	merged := req
	merged.Analyses = ft.MergeStringSlice(cfg.Analysis.EnabledAnalyses(), req.Analyses, FlagAnalysis)
	merged.IncludePatterns = ft.MergeStringSlice(cfg.Analysis.IncludePatterns, req.IncludePatterns, FlagInclude)
	merged.ExcludePatterns = ft.MergeStringSlice(cfg.Analysis.ExcludePatterns, req.ExcludePatterns, FlagExclude)
	merged.Recursive = ft.MergeBool(cfg.Analysis.Recursive, req.Recursive, FlagRecursive)
	merged.IncludeTests = ft.MergeBool(cfg.Analysis.IncludeTests, req.IncludeTests, FlagTests)
	merged.Workers = ft.MergeInt(cfg.Analysis.Workers, req.Workers, FlagWorkers)
	merged.ShowFacts = ft.MergeBool(cfg.Output.ShowFacts, req.ShowFacts, FlagShowFacts)
	merged.Progress = ft.MergeBool(cfg.Output.Progress, req.Progress, FlagProgress)
	merged.Debug = ft.MergeBool(cfg.Runtime.Debug, req.Debug, FlagDebug)

	format, err := domain.ParseOutputFormat(ft.MergeString(cfg.Output.Format, string(req.OutputFormat), FlagFormat))
	if err != nil {
		return req, err
	}
	merged.OutputFormat = format
	return merged, nil
}

// MergeRunRequest fills req from the configuration file. Values of flags
// named in explicit are kept.
func (c *ConfigurationLoaderImpl) MergeRunRequest(req domain.RunRequest, explicit map[string]bool) (domain.RunRequest, error) {
	cfg, err := c.LoadConfig(req.ConfigPath, startDir([]string{req.Path}))
	if err != nil {
		return req, err
	}
	ft := trackerOf(explicit)

	merged := req
	merged.TimeoutSeconds = ft.MergeInt(cfg.Runtime.TimeoutSeconds, req.TimeoutSeconds, FlagTimeout)
	merged.Debug = ft.MergeBool(cfg.Runtime.Debug, req.Debug, FlagDebug)

	format, err := domain.ParseOutputFormat(ft.MergeString(cfg.Output.Format, string(req.OutputFormat), FlagFormat))
	if err != nil {
		return req, err
	}
	merged.OutputFormat = format
	return merged, nil
}

func trackerOf(explicit map[string]bool) *config.FlagTracker {
	ft := config.NewFlagTracker()
	for name, set := range explicit {
		if set {
			ft.Set(name)
		}
	}
	return ft
}

// startDir picks where config discovery begins: the first existing input
// path, else the working directory
func startDir(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}
