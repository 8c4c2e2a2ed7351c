package app

import (
	"context"
	"fmt"

	"github.com/ludo-technologies/irflow/domain"
	"github.com/ludo-technologies/irflow/service"
)

// AnalyzeUseCase orchestrates the dataflow analysis workflow
type AnalyzeUseCase struct {
	service      domain.AnalysisService
	formatter    domain.OutputFormatter
	configLoader domain.ConfigurationLoader
}

// NewAnalyzeUseCase creates a new analyze use case
func NewAnalyzeUseCase(
	service domain.AnalysisService,
	formatter domain.OutputFormatter,
	configLoader domain.ConfigurationLoader,
) *AnalyzeUseCase {
	return &AnalyzeUseCase{
		service:      service,
		formatter:    formatter,
		configLoader: configLoader,
	}
}

// Execute analyzes req.Paths and writes the report to req.OutputWriter.
// explicit names the flags the user passed; their values win over the
// configuration file.
func (uc *AnalyzeUseCase) Execute(ctx context.Context, req domain.AnalyzeRequest, explicit map[string]bool) (*domain.AnalyzeResponse, error) {
	if req.OutputWriter == nil {
		return nil, domain.NewInvalidInputError("invalid request", fmt.Errorf("output writer is required"))
	}

	resp, finalReq, err := uc.analyze(ctx, req, explicit)
	if err != nil {
		return nil, err
	}

	if err := uc.formatter.WriteAnalysis(resp, finalReq.OutputFormat, finalReq.ShowFacts, finalReq.OutputWriter); err != nil {
		return resp, domain.NewOutputError("failed to write output", err)
	}
	return resp, nil
}

// AnalyzeAndReturn performs the analysis and returns the response without formatting
func (uc *AnalyzeUseCase) AnalyzeAndReturn(ctx context.Context, req domain.AnalyzeRequest, explicit map[string]bool) (*domain.AnalyzeResponse, error) {
	resp, _, err := uc.analyze(ctx, req, explicit)
	return resp, err
}

func (uc *AnalyzeUseCase) analyze(ctx context.Context, req domain.AnalyzeRequest, explicit map[string]bool) (*domain.AnalyzeResponse, domain.AnalyzeRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, req, err
	}

	finalReq := req
	if uc.configLoader != nil {
		merged, err := uc.configLoader.MergeAnalyzeRequest(req, explicit)
		if err != nil {
			return nil, req, err
		}
		finalReq = merged
	}

	resp, err := uc.service.Analyze(ctx, finalReq)
	if err != nil {
		return nil, finalReq, err
	}
	return resp, finalReq, nil
}

// AnalyzeUseCaseBuilder provides a builder pattern for creating AnalyzeUseCase
type AnalyzeUseCaseBuilder struct {
	service      domain.AnalysisService
	formatter    domain.OutputFormatter
	configLoader domain.ConfigurationLoader
}

// NewAnalyzeUseCaseBuilder creates a new builder
func NewAnalyzeUseCaseBuilder() *AnalyzeUseCaseBuilder {
	return &AnalyzeUseCaseBuilder{}
}

// WithService sets the analysis service
func (b *AnalyzeUseCaseBuilder) WithService(service domain.AnalysisService) *AnalyzeUseCaseBuilder {
	b.service = service
	return b
}

// WithFormatter sets the output formatter
func (b *AnalyzeUseCaseBuilder) WithFormatter(formatter domain.OutputFormatter) *AnalyzeUseCaseBuilder {
	b.formatter = formatter
	return b
}

// WithConfigLoader sets the configuration loader
func (b *AnalyzeUseCaseBuilder) WithConfigLoader(configLoader domain.ConfigurationLoader) *AnalyzeUseCaseBuilder {
	b.configLoader = configLoader
	return b
}

// Build creates the AnalyzeUseCase
func (b *AnalyzeUseCaseBuilder) Build() (*AnalyzeUseCase, error) {
	if b.service == nil {
		return nil, fmt.Errorf("analysis service is required")
	}
	if b.formatter == nil {
		b.formatter = service.NewOutputFormatter()
	}
	return NewAnalyzeUseCase(b.service, b.formatter, b.configLoader), nil
}
