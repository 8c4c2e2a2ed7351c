package app

import (
	"context"
	"fmt"

	"github.com/ludo-technologies/irflow/domain"
	"github.com/ludo-technologies/irflow/service"
)

// RunUseCase loads and interprets one program
type RunUseCase struct {
	service      domain.RunService
	formatter    domain.OutputFormatter
	configLoader domain.ConfigurationLoader
}

// NewRunUseCase creates a new run use case
func NewRunUseCase(
	service domain.RunService,
	formatter domain.OutputFormatter,
	configLoader domain.ConfigurationLoader,
) *RunUseCase {
	return &RunUseCase{
		service:      service,
		formatter:    formatter,
		configLoader: configLoader,
	}
}

// Execute runs the program and writes the outcome to req.OutputWriter,
// when one is set. A program that ends in an error is not a failure of
// Execute; callers inspect resp.Error.
func (uc *RunUseCase) Execute(ctx context.Context, req domain.RunRequest, explicit map[string]bool) (*domain.RunResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	finalReq := req
	if uc.configLoader != nil {
		merged, err := uc.configLoader.MergeRunRequest(req, explicit)
		if err != nil {
			return nil, err
		}
		finalReq = merged
	}
	// Structured output carries the program's output in the response.
	if finalReq.OutputFormat != domain.OutputFormatText && finalReq.OutputFormat != "" {
		finalReq.Stdout = nil
	}

	resp, err := uc.service.Run(ctx, finalReq)
	if err != nil {
		return nil, err
	}

	if finalReq.OutputWriter != nil {
		if err := uc.formatter.WriteRun(resp, finalReq.OutputFormat, finalReq.OutputWriter); err != nil {
			return resp, domain.NewOutputError("failed to write output", err)
		}
	}
	return resp, nil
}

// RunUseCaseBuilder provides a builder pattern for creating RunUseCase
type RunUseCaseBuilder struct {
	service      domain.RunService
	formatter    domain.OutputFormatter
	configLoader domain.ConfigurationLoader
}

// NewRunUseCaseBuilder creates a new builder
func NewRunUseCaseBuilder() *RunUseCaseBuilder {
	return &RunUseCaseBuilder{}
}

// WithService sets the run service
func (b *RunUseCaseBuilder) WithService(service domain.RunService) *RunUseCaseBuilder {
	b.service = service
	return b
}

// WithFormatter sets the output formatter
func (b *RunUseCaseBuilder) WithFormatter(formatter domain.OutputFormatter) *RunUseCaseBuilder {
	b.formatter = formatter
	return b
}

// WithConfigLoader sets the configuration loader
func (b *RunUseCaseBuilder) WithConfigLoader(configLoader domain.ConfigurationLoader) *RunUseCaseBuilder {
	b.configLoader = configLoader
	return b
}

// Build creates the RunUseCase
func (b *RunUseCaseBuilder) Build() (*RunUseCase, error) {
	if b.service == nil {
		return nil, fmt.Errorf("run service is required")
	}
	if b.formatter == nil {
		b.formatter = service.NewOutputFormatter()
	}
	return NewRunUseCase(b.service, b.formatter, b.configLoader), nil
}
