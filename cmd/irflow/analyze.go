package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ludo-technologies/irflow/app"
	"github.com/ludo-technologies/irflow/domain"
	"github.com/ludo-technologies/irflow/internal/config"
	"github.com/ludo-technologies/irflow/internal/dataflow/analyses"
	"github.com/ludo-technologies/irflow/service"
)

// AnalyzeCommand represents the analyze command
type AnalyzeCommand struct {
	analyses        []string
	format          string
	showFacts       bool
	progress        bool
	recursive       bool
	includePatterns []string
	excludePatterns []string
	tests           bool
	workers         int
	configFile      string
}

// NewAnalyzeCommand creates a new analyze command
func NewAnalyzeCommand() *AnalyzeCommand {
	return &AnalyzeCommand{
		format:    config.DefaultOutputFormat,
		progress:  true,
		recursive: true,
		workers:   config.DefaultWorkers,
	}
}

// CreateCobraCommand creates the cobra command for dataflow analysis
func (c *AnalyzeCommand) CreateCobraCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [paths...]",
		Short: "Run dataflow analyses over IR programs",
		Long: `Solve dataflow analyses over every scope of every program found in the
given paths and report per-scope findings.

Paths may be YAML program files, directories, Go source files, or Go
package patterns ending in "...". Directories are filtered by the include
and exclude patterns; add "**/*.go" to --include to pick up Go packages.

Examples:
  # Analyze every YAML program under the current directory
  irflow analyze .

  # Only liveness, with per-block facts
  irflow analyze --analysis live --show-facts prog.yaml

  # Translate and analyze Go packages
  irflow analyze ./...`,
		Args: cobra.MinimumNArgs(1),
		RunE: c.runAnalyze,
	}

	cmd.Flags().StringSliceVarP(&c.analyses, service.FlagAnalysis, "a", nil, "Analyses to run (default: all of "+strings.Join(analyses.Names(), ", ")+")")
	cmd.Flags().StringVarP(&c.format, service.FlagFormat, "f", c.format, "Output format: text, json, yaml")
	cmd.Flags().BoolVar(&c.showFacts, service.FlagShowFacts, false, "Print per-block IN/OUT facts")
	cmd.Flags().BoolVar(&c.progress, service.FlagProgress, c.progress, "Show a progress bar on interactive terminals")
	cmd.Flags().BoolVarP(&c.recursive, service.FlagRecursive, "r", c.recursive, "Walk directories recursively")
	cmd.Flags().StringSliceVar(&c.includePatterns, service.FlagInclude, nil, "File patterns to include")
	cmd.Flags().StringSliceVar(&c.excludePatterns, service.FlagExclude, nil, "File patterns to exclude")
	cmd.Flags().BoolVar(&c.tests, service.FlagTests, false, "Include Go test files")
	cmd.Flags().IntVarP(&c.workers, service.FlagWorkers, "w", c.workers, "Concurrent scope analyses (0 = CPU count)")
	cmd.Flags().StringVarP(&c.configFile, "config", "c", "", "Configuration file path")

	return cmd
}

// runAnalyze executes the analyze command
func (c *AnalyzeCommand) runAnalyze(cmd *cobra.Command, args []string) error {
	logger, debug := commandLogger(cmd, c.configFile, args[0])

	reader := service.NewProgramReader(logger)
	svc := service.NewAnalysisService(
		reader,
		service.NewParallelExecutor(),
		service.NewProgressManagerWithWriter("Analyzing", cmd.ErrOrStderr()),
		logger,
	)

	useCase, err := app.NewAnalyzeUseCaseBuilder().
		WithService(svc).
		WithFormatter(service.NewOutputFormatter()).
		WithConfigLoader(service.NewConfigurationLoader()).
		Build()
	if err != nil {
		return err
	}

	req := domain.AnalyzeRequest{
		Paths:           args,
		Analyses:        c.analyses,
		OutputFormat:    domain.OutputFormat(c.format),
		OutputWriter:    cmd.OutOrStdout(),
		ShowFacts:       c.showFacts,
		Progress:        c.progress,
		Recursive:       c.recursive,
		IncludePatterns: c.includePatterns,
		ExcludePatterns: c.excludePatterns,
		IncludeTests:    c.tests,
		Workers:         c.workers,
		ConfigPath:      c.configFile,
		Debug:           debug,
	}

	_, err = useCase.Execute(cmd.Context(), req, explicitFlags(cmd))
	return err
}

// NewAnalyzeCmd creates and returns the analyze cobra command
func NewAnalyzeCmd() *cobra.Command {
	return NewAnalyzeCommand().CreateCobraCommand()
}
