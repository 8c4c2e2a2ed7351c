package service

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ludo-technologies/irflow/domain"
	"github.com/ludo-technologies/irflow/internal/dataflow"
	"github.com/ludo-technologies/irflow/internal/dataflow/analyses"
	"github.com/ludo-technologies/irflow/internal/ir"
	"github.com/ludo-technologies/irflow/internal/version"
)

// AnalysisServiceImpl solves the requested analyses over every scope of
// every program, one task per scope
type AnalysisServiceImpl struct {
	reader   domain.ProgramReader
	executor domain.ParallelExecutor
	progress domain.ProgressManager
	logger   zerolog.Logger
}

// NewAnalysisService creates an analysis service. progress is drawn only
// for requests that ask for it; nil draws nothing.
func NewAnalysisService(reader domain.ProgramReader, executor domain.ParallelExecutor, progress domain.ProgressManager, logger zerolog.Logger) *AnalysisServiceImpl {
	if executor == nil {
		executor = NewParallelExecutor()
	}
	if progress == nil {
		progress = NewNoOpProgressManager()
	}
	return &AnalysisServiceImpl{
		reader:   reader,
		executor: executor,
		progress: progress,
		logger:   logger,
	}
}

type scopeUnit struct {
	program *ir.Program
	source  domain.ProgramSource
	scope   *ir.Scope
}

// Analyze runs req.Analyses over the programs found in req.Paths. A
// failing analysis is recorded on its scope report; only cancellation and
// load failures abort the whole run.
func (s *AnalysisServiceImpl) Analyze(ctx context.Context, req domain.AnalyzeRequest) (*domain.AnalyzeResponse, error) {
	start := time.Now()

	names := req.Analyses
	if len(names) == 0 {
		names = analyses.Names()
	}
	for _, name := range names {
		if !analyses.IsKnown(name) {
			return nil, domain.NewInvalidInputError(
				fmt.Sprintf("unknown analysis %q (available: %s)", name, strings.Join(analyses.Names(), ", ")), nil)
		}
	}

	sources, err := s.reader.Collect(req.Paths, domain.CollectOptions{
		Recursive:       req.Recursive,
		IncludePatterns: req.IncludePatterns,
		ExcludePatterns: req.ExcludePatterns,
		IncludeTests:    req.IncludeTests,
	})
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, domain.NewInvalidInputError("no programs found in the specified paths", nil)
	}

	var (
		units    []scopeUnit
		programs int
	)
	for _, src := range sources {
		progs, err := s.reader.Load(ctx, src)
		if err != nil {
			return nil, err
		}
		for _, prog := range progs {
			programs++
			for _, scope := range prog.AllScopes() {
				units = append(units, scopeUnit{program: prog, source: src, scope: scope})
			}
		}
	}

	progress := s.progress
	if !req.Progress {
		progress = NewNoOpProgressManager()
	}

	reports := make([]domain.ScopeReport, len(units))
	tasks := make([]domain.ExecutableTask, len(units))
	for i, u := range units {
		tasks[i] = NewSimpleTask(u.program.Name+":"+u.scope.Name, true, func(ctx context.Context) (interface{}, error) {
			report, err := s.analyzeScope(ctx, u, names)
			reports[i] = report
			progress.Increment()
			return nil, err
		})
	}

	workers := req.Workers
	if workers == 0 {
		workers = goruntime.NumCPU()
	}
	s.executor.SetMaxConcurrency(workers)

	progress.Initialize(len(units))
	defer progress.Close()

	if err := s.executor.Execute(ctx, tasks); err != nil {
		progress.Complete(false)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewTimeoutError("analysis timed out", err)
		}
		return nil, domain.NewAnalysisError("analysis failed", err)
	}
	progress.Complete(true)

	resp := &domain.AnalyzeResponse{
		Analyses:    names,
		Scopes:      reports,
		GeneratedAt: time.Now(),
		Duration:    time.Since(start).Milliseconds(),
		Version:     version.Short(),
	}
	resp.Summary.Programs = programs
	resp.Summary.FindingsByKind = make(map[string]int)
	for i := range reports {
		resp.Summary.Add(&reports[i])
	}

	s.logger.Debug().
		Int("programs", programs).
		Int("scopes", len(units)).
		Int("findings", resp.Summary.Findings).
		Dur("elapsed", time.Since(start)).
		Msg("analysis finished")
	return resp, nil
}

// analyzeScope runs every analysis on one scope. Only context errors are
// returned; other failures land in the report.
func (s *AnalysisServiceImpl) analyzeScope(ctx context.Context, u scopeUnit, names []string) (domain.ScopeReport, error) {
	report := domain.ScopeReport{
		Program:       u.program.Name,
		Source:        u.source.String(),
		Scope:         u.scope.Name,
		Kind:          u.scope.Kind.String(),
		Blocks:        u.scope.CFG.Size(),
		Edges:         u.scope.CFG.EdgeCount(),
		FreeVariables: analyses.VariableNames(u.scope.FreeVariables()),
		Results:       make([]domain.AnalysisResult, 0, len(names)),
	}

	var failures []string
	for _, name := range names {
		res, err := analyses.Run(ctx, name, u.scope, dataflow.WithLogger(s.logger))
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			s.logger.Warn().Err(err).Str("scope", u.scope.Name).Str("analysis", name).Msg("analysis failed")
			failures = append(failures, err.Error())
			continue
		}
		report.Results = append(report.Results, convertResult(res))
	}
	report.Error = strings.Join(failures, "; ")
	return report, nil
}

func convertResult(res *analyses.Result) domain.AnalysisResult {
	out := domain.AnalysisResult{
		Analysis:   res.Analysis,
		Direction:  res.Direction,
		Variables:  res.Variables,
		Blocks:     make([]domain.BlockFacts, len(res.Blocks)),
		Findings:   make([]domain.Finding, len(res.Findings)),
		DurationMs: float64(res.Duration.Microseconds()) / 1000,
	}
	for i, b := range res.Blocks {
		out.Blocks[i] = domain.BlockFacts{ID: b.ID, Label: b.Label, In: b.In, Out: b.Out}
	}
	for i, f := range res.Findings {
		out.Findings[i] = domain.Finding{
			Kind:     string(f.Kind),
			Block:    f.Block,
			Position: f.Position,
			Variable: f.Variable,
			Message:  f.Message,
		}
	}
	return out
}
