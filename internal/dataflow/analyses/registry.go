package analyses

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ludo-technologies/irflow/internal/dataflow"
	"github.com/ludo-technologies/irflow/internal/ir"
)

// Analysis names accepted by Run
const (
	LiveVariablesName       = "live"
	DefinedVariablesName    = "defined"
	ReachingDefinitionsName = "reaching"
	ReachabilityName        = "reachability"
)

// FindingKind classifies a diagnostic produced by an analysis
type FindingKind string

const (
	FindingDeadStore       FindingKind = "dead_store"
	FindingUndefinedUse    FindingKind = "undefined_use"
	FindingUnusedDef       FindingKind = "unused_definition"
	FindingUnreachableCode FindingKind = "unreachable_code"
)

// Finding is one diagnostic attached to a block position
type Finding struct {
	Kind     FindingKind `json:"kind" yaml:"kind"`
	Block    string      `json:"block" yaml:"block"`
	Position int         `json:"position" yaml:"position"`
	Variable string      `json:"variable,omitempty" yaml:"variable,omitempty"`
	Message  string      `json:"message" yaml:"message"`
}

// BlockFacts lists the facts computed for one block
type BlockFacts struct {
	ID    int      `json:"id" yaml:"id"`
	Label string   `json:"label" yaml:"label"`
	In    []string `json:"in" yaml:"in"`
	Out   []string `json:"out" yaml:"out"`
}

// Result is the summary of one analysis over one scope
type Result struct {
	Analysis  string        `json:"analysis" yaml:"analysis"`
	Direction string        `json:"direction" yaml:"direction"`
	Scope     string        `json:"scope" yaml:"scope"`
	Variables int           `json:"variables" yaml:"variables"`
	Blocks    []BlockFacts  `json:"blocks" yaml:"blocks"`
	Findings  []Finding     `json:"findings" yaml:"findings"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

type runner func(ctx context.Context, scope *ir.Scope, opts []dataflow.Option) (*Result, error)

var registry = map[string]runner{
	LiveVariablesName:       runLive,
	DefinedVariablesName:    runDefined,
	ReachingDefinitionsName: runReaching,
	ReachabilityName:        runReachability,
}

// Names returns the registered analysis names, sorted
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsKnown reports whether name is a registered analysis
func IsKnown(name string) bool {
	_, ok := registry[name]
	return ok
}

// Run executes the named analysis over scope
func Run(ctx context.Context, name string, scope *ir.Scope, opts ...dataflow.Option) (*Result, error) {
	run, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown analysis %q (available: %v)", name, Names())
	}
	start := time.Now()
	result, err := run(ctx, scope, opts)
	if err != nil {
		return nil, fmt.Errorf("%s analysis of %s failed: %w", name, scope.Name, err)
	}
	result.Analysis = name
	result.Scope = scope.Name
	result.Duration = time.Since(start)
	return result, nil
}

func blockFacts(scope *ir.Scope, in, out func(*ir.BasicBlock) []*ir.Variable) []BlockFacts {
	blocks := scope.CFG.Blocks()
	facts := make([]BlockFacts, 0, len(blocks))
	for _, bb := range blocks {
		facts = append(facts, BlockFacts{
			ID:    bb.ID,
			Label: string(bb.Label),
			In:    VariableNames(in(bb)),
			Out:   VariableNames(out(bb)),
		})
	}
	return facts
}

func runLive(ctx context.Context, scope *ir.Scope, opts []dataflow.Option) (*Result, error) {
	lv := NewLiveVariables(opts...)
	if err := lv.Analyze(ctx, scope); err != nil {
		return nil, err
	}
	result := &Result{
		Direction: lv.problem.Direction().String(),
		Variables: lv.vars.size(),
		Blocks:    blockFacts(scope, lv.LiveIn, lv.LiveOut),
	}
	for _, ds := range lv.DeadStores() {
		result.Findings = append(result.Findings, Finding{
			Kind:     FindingDeadStore,
			Block:    string(ds.Block.Label),
			Position: ds.Position,
			Variable: ds.Variable.String(),
			Message:  fmt.Sprintf("value assigned to %s is never read", ds.Variable),
		})
	}
	return result, nil
}

func runDefined(ctx context.Context, scope *ir.Scope, opts []dataflow.Option) (*Result, error) {
	dv := NewDefinedVariables(opts...)
	if err := dv.Analyze(ctx, scope); err != nil {
		return nil, err
	}
	result := &Result{
		Direction: dv.problem.Direction().String(),
		Variables: dv.vars.size(),
		Blocks:    blockFacts(scope, dv.DefinedIn, dv.DefinedOut),
	}
	for _, u := range dv.UndefinedUses() {
		result.Findings = append(result.Findings, Finding{
			Kind:     FindingUndefinedUse,
			Block:    string(u.Block.Label),
			Position: u.Position,
			Variable: u.Variable.String(),
			Message:  fmt.Sprintf("%s may be read before it is assigned", u.Variable),
		})
	}
	return result, nil
}

func runReaching(ctx context.Context, scope *ir.Scope, opts []dataflow.Option) (*Result, error) {
	rd := NewReachingDefinitions(opts...)
	if err := rd.Analyze(ctx, scope); err != nil {
		return nil, err
	}
	describe := func(refs []*VarReference) []*ir.Variable {
		seen := make(map[*ir.Variable]bool)
		var vars []*ir.Variable
		for _, r := range refs {
			if !seen[r.Variable] {
				seen[r.Variable] = true
				vars = append(vars, r.Variable)
			}
		}
		sortVariables(vars)
		return vars
	}
	result := &Result{
		Direction: rd.problem.Direction().String(),
		Variables: len(rd.defs) - 1,
		Blocks: blockFacts(scope,
			func(bb *ir.BasicBlock) []*ir.Variable { return describe(rd.ReachingIn(bb)) },
			func(bb *ir.BasicBlock) []*ir.Variable { return describe(rd.ReachingOut(bb)) }),
	}
	for _, chain := range rd.DefUseChains() {
		for _, def := range chain.UnusedDefs() {
			// Outer locals may be read after the closure returns.
			if def.Kind != DefKindAssign || !def.Variable.IsLocal() || scope.Depth(def.Variable) > 0 {
				continue
			}
			result.Findings = append(result.Findings, Finding{
				Kind:     FindingUnusedDef,
				Block:    string(def.Block.Label),
				Position: def.Position,
				Variable: def.Variable.String(),
				Message:  fmt.Sprintf("definition of %s reaches no use", def.Variable),
			})
		}
	}
	return result, nil
}

func runReachability(ctx context.Context, scope *ir.Scope, opts []dataflow.Option) (*Result, error) {
	r := NewReachability(opts...)
	if err := r.Analyze(ctx, scope); err != nil {
		return nil, err
	}
	status := func(bb *ir.BasicBlock) []string {
		if r.IsReachable(bb) {
			return []string{"reachable"}
		}
		return []string{"unreachable"}
	}
	result := &Result{Direction: r.problem.Direction().String()}
	for _, bb := range scope.CFG.Blocks() {
		st := status(bb)
		result.Blocks = append(result.Blocks, BlockFacts{ID: bb.ID, Label: string(bb.Label), In: st, Out: st})
	}
	for _, bb := range r.Unreachable() {
		result.Findings = append(result.Findings, Finding{
			Kind:     FindingUnreachableCode,
			Block:    string(bb.Label),
			Position: 0,
			Message:  fmt.Sprintf("%d instruction(s) can never execute", len(bb.Instrs)),
		})
	}
	return result, nil
}
