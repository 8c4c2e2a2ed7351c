package service

import (
	"fmt"
	"io"
	"strings"

	"github.com/ludo-technologies/irflow/domain"
)

// OutputFormatterImpl renders analysis and run responses
type OutputFormatterImpl struct {
	utils *FormatUtils
}

// NewOutputFormatter creates a new output formatter
func NewOutputFormatter() *OutputFormatterImpl {
	return &OutputFormatterImpl{utils: NewFormatUtils()}
}

// WriteAnalysis writes resp in format. showFacts adds per-block facts to
// text output; structured formats always carry them.
func (f *OutputFormatterImpl) WriteAnalysis(resp *domain.AnalyzeResponse, format domain.OutputFormat, showFacts bool, w io.Writer) error {
	switch format {
	case domain.OutputFormatJSON:
		return WriteJSON(w, resp)
	case domain.OutputFormatYAML:
		return WriteYAML(w, resp)
	case domain.OutputFormatText, "":
		if _, err := io.WriteString(w, f.formatAnalysisText(resp, showFacts)); err != nil {
			return domain.NewOutputError("failed to write output", err)
		}
		return nil
	}
	return domain.NewUnsupportedFormatError(string(format))
}

func (f *OutputFormatterImpl) formatAnalysisText(resp *domain.AnalyzeResponse, showFacts bool) string {
	var b strings.Builder
	b.WriteString(f.utils.FormatMainHeader("Dataflow Analysis Report"))

	for i := range resp.Scopes {
		f.writeScope(&b, &resp.Scopes[i], showFacts)
	}

	b.WriteString(f.utils.FormatSectionHeader("Summary"))
	b.WriteString(f.utils.FormatLabel("Programs", resp.Summary.Programs))
	b.WriteString(f.utils.FormatLabel("Scopes", resp.Summary.Scopes))
	if resp.Summary.FailedScopes > 0 {
		b.WriteString(f.utils.FormatLabel("Failed scopes", resp.Summary.FailedScopes))
	}
	b.WriteString(f.utils.FormatLabel("Findings", resp.Summary.Findings))
	for _, kind := range resp.Summary.Kinds() {
		b.WriteString(f.utils.FormatLabel(kind, resp.Summary.FindingsByKind[kind]))
	}
	b.WriteString(f.utils.FormatLabel("Analyses", strings.Join(resp.Analyses, ", ")))
	b.WriteString(f.utils.FormatLabel("Duration", fmt.Sprintf("%dms", resp.Duration)))
	return b.String()
}

func (f *OutputFormatterImpl) writeScope(b *strings.Builder, s *domain.ScopeReport, showFacts bool) {
	fmt.Fprintf(b, "%s: %s %s (%s, %s)\n", s.Program, s.Kind, s.Scope, Plural(s.Blocks, "block"), Plural(s.Edges, "edge"))
	indent := strings.Repeat(" ", ItemPadding)
	if len(s.FreeVariables) > 0 {
		fmt.Fprintf(b, "%sfree: %s\n", indent, f.utils.FormatSet(s.FreeVariables))
	}
	if s.Error != "" {
		fmt.Fprintf(b, "%serror: %s\n", indent, s.Error)
	}

	for _, res := range s.Results {
		fmt.Fprintf(b, "%s[%s] %s, %s\n", indent, res.Analysis, Plural(res.Variables, "variable"), Plural(len(res.Findings), "finding"))
		for _, fd := range res.Findings {
			fmt.Fprintf(b, "%s%s%-18s %s:%d  %s\n", indent, indent, fd.Kind, fd.Block, fd.Position, fd.Message)
		}
		if showFacts {
			for _, bf := range res.Blocks {
				fmt.Fprintf(b, "%s%s%-10s in %s  out %s\n", indent, indent, bf.Label, f.utils.FormatSet(bf.In), f.utils.FormatSet(bf.Out))
			}
		}
	}
	b.WriteString("\n")
}

// WriteRun writes resp in format. Text output leaves the program's own
// output out; it was streamed while the program ran.
func (f *OutputFormatterImpl) WriteRun(resp *domain.RunResponse, format domain.OutputFormat, w io.Writer) error {
	switch format {
	case domain.OutputFormatJSON:
		return WriteJSON(w, resp)
	case domain.OutputFormatYAML:
		return WriteYAML(w, resp)
	case domain.OutputFormatText, "":
		if _, err := io.WriteString(w, f.formatRunText(resp)); err != nil {
			return domain.NewOutputError("failed to write output", err)
		}
		return nil
	}
	return domain.NewUnsupportedFormatError(string(format))
}

func (f *OutputFormatterImpl) formatRunText(resp *domain.RunResponse) string {
	var b strings.Builder
	if e := resp.Error; e != nil {
		fmt.Fprintf(&b, "error: %s", e.Kind)
		if e.Reason != "" {
			fmt.Fprintf(&b, "(%s)", e.Reason)
		}
		fmt.Fprintf(&b, ": %s", e.Message)
		if e.Value != "" && e.Value != "nil" {
			fmt.Fprintf(&b, " [value %s]", e.Value)
		}
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "=> %s\n", resp.Value)
	}
	fmt.Fprintf(&b, "%s, %s, %dms\n", Plural(int(resp.Steps), "step"), Plural(resp.Threads, "thread"), resp.Duration)
	return b.String()
}
