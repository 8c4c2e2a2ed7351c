package domain

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ludo-technologies/irflow/internal/ir"
)

// SourceKind identifies how a program source is loaded
type SourceKind string

const (
	// SourceYAML is an IR program written as YAML
	SourceYAML SourceKind = "yaml"

	// SourceGo is a Go package lowered through SSA
	SourceGo SourceKind = "go"
)

// ProgramSource is one loadable unit found on disk
type ProgramSource struct {
	Kind SourceKind `json:"kind" yaml:"kind"`

	// Path is a YAML file, or the directory a Go pattern resolves in
	Path string `json:"path" yaml:"path"`

	// Pattern is the go/packages pattern for Go sources
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// Tests loads the test variants of Go packages
	Tests bool `json:"tests,omitempty" yaml:"tests,omitempty"`
}

func (s ProgramSource) String() string {
	if s.Kind == SourceGo {
		return fmt.Sprintf("%s (%s)", s.Pattern, s.Path)
	}
	return s.Path
}

// CollectOptions controls program discovery
type CollectOptions struct {
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string
	IncludeTests    bool
}

// AnalyzeRequest represents a request to run dataflow analyses
type AnalyzeRequest struct {
	// Paths are YAML files, directories, or Go package patterns
	Paths []string

	// Analyses to run; empty means all registered analyses
	Analyses []string

	// Output configuration
	OutputFormat OutputFormat
	OutputWriter io.Writer
	ShowFacts    bool
	Progress     bool

	// Discovery options
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string
	IncludeTests    bool

	// Workers caps concurrent scope analyses; 0 means one per CPU
	Workers int

	ConfigPath string
	Debug      bool
}

// Validate checks the request for obvious mistakes
func (r AnalyzeRequest) Validate() error {
	if len(r.Paths) == 0 {
		return NewValidationError("no input paths specified")
	}
	if r.Workers < 0 {
		return NewValidationError(fmt.Sprintf("workers must be >= 0, got %d", r.Workers))
	}
	if r.OutputFormat != "" {
		if _, err := ParseOutputFormat(string(r.OutputFormat)); err != nil {
			return err
		}
	}
	return nil
}

// Finding is one diagnostic produced by an analysis
type Finding struct {
	Kind     string `json:"kind" yaml:"kind"`
	Block    string `json:"block" yaml:"block"`
	Position int    `json:"position" yaml:"position"`
	Variable string `json:"variable,omitempty" yaml:"variable,omitempty"`
	Message  string `json:"message" yaml:"message"`
}

// BlockFacts lists the facts computed for one block
type BlockFacts struct {
	ID    int      `json:"id" yaml:"id"`
	Label string   `json:"label" yaml:"label"`
	In    []string `json:"in" yaml:"in"`
	Out   []string `json:"out" yaml:"out"`
}

// AnalysisResult is the outcome of one analysis on one scope
type AnalysisResult struct {
	Analysis   string       `json:"analysis" yaml:"analysis"`
	Direction  string       `json:"direction" yaml:"direction"`
	Variables  int          `json:"variables" yaml:"variables"`
	Blocks     []BlockFacts `json:"blocks,omitempty" yaml:"blocks,omitempty"`
	Findings   []Finding    `json:"findings" yaml:"findings"`
	DurationMs float64      `json:"duration_ms" yaml:"duration_ms"`
}

// ScopeReport collects every analysis result for one scope
type ScopeReport struct {
	Program string `json:"program" yaml:"program"`
	Source  string `json:"source" yaml:"source"`
	Scope   string `json:"scope" yaml:"scope"`
	Kind    string `json:"kind" yaml:"kind"`

	Blocks        int      `json:"blocks" yaml:"blocks"`
	Edges         int      `json:"edges" yaml:"edges"`
	FreeVariables []string `json:"free_variables,omitempty" yaml:"free_variables,omitempty"`

	Results []AnalysisResult `json:"results" yaml:"results"`

	// Error is set when an analysis failed on this scope
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// FindingCount sums findings over all results
func (r *ScopeReport) FindingCount() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Findings)
	}
	return n
}

// AnalyzeSummary aggregates a whole analysis run
type AnalyzeSummary struct {
	Programs       int            `json:"programs" yaml:"programs"`
	Scopes         int            `json:"scopes" yaml:"scopes"`
	FailedScopes   int            `json:"failed_scopes" yaml:"failed_scopes"`
	Findings       int            `json:"findings" yaml:"findings"`
	FindingsByKind map[string]int `json:"findings_by_kind" yaml:"findings_by_kind"`
}

// Add folds one scope report into the summary
func (s *AnalyzeSummary) Add(report *ScopeReport) {
	if s.FindingsByKind == nil {
		s.FindingsByKind = make(map[string]int)
	}
	s.Scopes++
	if report.Error != "" {
		s.FailedScopes++
	}
	for _, res := range report.Results {
		for _, f := range res.Findings {
			s.Findings++
			s.FindingsByKind[f.Kind]++
		}
	}
}

// Kinds returns the finding kinds in the summary, sorted
func (s *AnalyzeSummary) Kinds() []string {
	kinds := make([]string, 0, len(s.FindingsByKind))
	for k := range s.FindingsByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// AnalyzeResponse represents the combined results of all analyses
type AnalyzeResponse struct {
	Analyses []string       `json:"analyses" yaml:"analyses"`
	Scopes   []ScopeReport  `json:"scopes" yaml:"scopes"`
	Summary  AnalyzeSummary `json:"summary" yaml:"summary"`

	// Metadata
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Duration    int64     `json:"duration_ms" yaml:"duration_ms"`
	Version     string    `json:"version" yaml:"version"`
}

// HasFindings reports whether any analysis produced a finding
func (r *AnalyzeResponse) HasFindings() bool {
	return r.Summary.Findings > 0
}

// ProgramReader discovers and loads programs
type ProgramReader interface {
	// Collect resolves paths into loadable sources
	Collect(paths []string, opts CollectOptions) ([]ProgramSource, error)

	// Load turns one source into IR programs
	Load(ctx context.Context, src ProgramSource) ([]*ir.Program, error)
}

// AnalysisService runs dataflow analyses over programs
type AnalysisService interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error)
}

// OutputFormatter renders responses
type OutputFormatter interface {
	WriteAnalysis(resp *AnalyzeResponse, format OutputFormat, showFacts bool, w io.Writer) error
	WriteRun(resp *RunResponse, format OutputFormat, w io.Writer) error
}

// ConfigurationLoader merges configuration files under explicitly passed
// flags. explicit names the flags the user set; their request values win.
type ConfigurationLoader interface {
	MergeAnalyzeRequest(req AnalyzeRequest, explicit map[string]bool) (AnalyzeRequest, error)
	MergeRunRequest(req RunRequest, explicit map[string]bool) (RunRequest, error)
}
