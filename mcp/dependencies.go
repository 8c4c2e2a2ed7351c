package mcp

import (
	"github.com/rs/zerolog"

	"github.com/ludo-technologies/irflow/app"
	"github.com/ludo-technologies/irflow/service"
)

// Dependencies aggregates the shared services required by MCP handlers.
type Dependencies struct {
	logger     zerolog.Logger
	configPath string
}

// NewDependencies constructs the dependency set. An empty configPath
// discovers the configuration next to each analyzed path.
func NewDependencies(logger zerolog.Logger, configPath string) *Dependencies {
	return &Dependencies{logger: logger, configPath: configPath}
}

// ConfigPath returns the configured config file path (may be empty to trigger discovery).
func (d *Dependencies) ConfigPath() string {
	return d.configPath
}

// BuildAnalyzeUseCase assembles a fresh AnalyzeUseCase. Progress is never
// drawn; stdout belongs to the JSON-RPC stream.
func (d *Dependencies) BuildAnalyzeUseCase() (*app.AnalyzeUseCase, error) {
	svc := service.NewAnalysisService(
		service.NewProgramReader(d.logger),
		service.NewParallelExecutor(),
		service.NewNoOpProgressManager(),
		d.logger,
	)
	return app.NewAnalyzeUseCaseBuilder().
		WithService(svc).
		WithConfigLoader(service.NewConfigurationLoader()).
		Build()
}

// BuildRunUseCase assembles a fresh RunUseCase
func (d *Dependencies) BuildRunUseCase() (*app.RunUseCase, error) {
	return app.NewRunUseCaseBuilder().
		WithService(service.NewRunService(service.NewProgramReader(d.logger), d.logger)).
		WithConfigLoader(service.NewConfigurationLoader()).
		Build()
}
