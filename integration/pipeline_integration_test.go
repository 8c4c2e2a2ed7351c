package integration

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ludo-technologies/irflow/app"
	"github.com/ludo-technologies/irflow/domain"
	"github.com/ludo-technologies/irflow/service"
)

func programsDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.Abs(filepath.Join("..", "examples", "programs"))
	require.NoError(t, err)
	return dir
}

func newAnalyzeUseCase(t *testing.T) *app.AnalyzeUseCase {
	t.Helper()
	logger := zerolog.Nop()
	svc := service.NewAnalysisService(
		service.NewProgramReader(logger),
		service.NewParallelExecutor(),
		service.NewNoOpProgressManager(),
		logger,
	)
	uc, err := app.NewAnalyzeUseCaseBuilder().
		WithService(svc).
		WithFormatter(service.NewOutputFormatter()).
		WithConfigLoader(service.NewConfigurationLoader()).
		Build()
	require.NoError(t, err)
	return uc
}

// TestAnalyzeExamplePrograms analyzes every bundled program with all analyses
func TestAnalyzeExamplePrograms(t *testing.T) {
	var out bytes.Buffer
	resp, err := newAnalyzeUseCase(t).Execute(context.Background(), domain.AnalyzeRequest{
		Paths:        []string{programsDir(t)},
		OutputFormat: domain.OutputFormatText,
		OutputWriter: &out,
		Recursive:    true,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, resp.Summary.Programs)
	assert.Zero(t, resp.Summary.FailedScopes)
	assert.Equal(t, 1, resp.Summary.FindingsByKind["unreachable_code"])
	assert.Positive(t, resp.Summary.FindingsByKind["dead_store"])
	assert.Positive(t, resp.Summary.FindingsByKind["undefined_use"])

	for _, scope := range resp.Scopes {
		assert.Len(t, scope.Results, len(resp.Analyses), "scope %s/%s", scope.Program, scope.Scope)
	}
	assert.Contains(t, out.String(), "Dataflow Analysis Report")
}

// TestAnalyzeCancellation checks that a cancelled context aborts the analysis
func TestAnalyzeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newAnalyzeUseCase(t).AnalyzeAndReturn(ctx, domain.AnalyzeRequest{
		Paths:     []string{programsDir(t)},
		Recursive: true,
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
}

// TestRunExamplePrograms runs the bundled programs through the run use case
func TestRunExamplePrograms(t *testing.T) {
	logger := zerolog.Nop()
	uc, err := app.NewRunUseCaseBuilder().
		WithService(service.NewRunService(service.NewProgramReader(logger), logger)).
		Build()
	require.NoError(t, err)

	tests := []struct {
		program string
		value   string
		kind    domain.RunErrorKind
	}{
		{program: "break_from_block.yaml", value: "7"},
		{program: "nonlocal_return.yaml", value: "5"},
		{program: "lambda_return.yaml", value: "4"},
		{program: "thread_return.yaml", kind: domain.RunErrorThread},
		{program: "dead_code.yaml", kind: domain.RunErrorRaised},
	}
	for _, tt := range tests {
		t.Run(tt.program, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			resp, err := uc.Execute(ctx, domain.RunRequest{Path: filepath.Join(programsDir(t), tt.program)}, nil)
			require.NoError(t, err)
			if tt.kind != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.kind, resp.Error.Kind)
				return
			}
			require.Nil(t, resp.Error)
			assert.Equal(t, tt.value, resp.Value)
		})
	}
}
