package analyses

import (
	"context"

	"github.com/bits-and-blooms/bitset"

	"github.com/ludo-technologies/irflow/internal/dataflow"
	"github.com/ludo-technologies/irflow/internal/ir"
)

// DefinedVariables computes the variables assigned on every path reaching
// a point. Parameters are defined on entry; closures and evals also assume
// the outer locals they capture are defined.
type DefinedVariables struct {
	problem *dataflow.Problem[*definedNode]
	vars    *varTable
}

type definedNode struct {
	dataflow.NodeBase[*definedNode]
	dv *DefinedVariables

	in, out, tmp *bitset.BitSet
}

// UndefinedUse is a read of a variable that is not assigned on every path
type UndefinedUse struct {
	Block    *ir.BasicBlock
	Position int
	Instr    ir.Instr
	Variable *ir.Variable
}

// NewDefinedVariables creates an unsolved defined-variables analysis
func NewDefinedVariables(opts ...dataflow.Option) *DefinedVariables {
	dv := &DefinedVariables{vars: newVarTable()}
	dv.problem = dataflow.NewProblem("defined_variables", dataflow.Forward,
		func(p *dataflow.Problem[*definedNode], bb *ir.BasicBlock) *definedNode {
			return &definedNode{NodeBase: dataflow.NewNodeBase(p, bb), dv: dv}
		}, opts...)
	dv.problem.SetEmptyCheck(func() bool { return dv.vars.size() == 0 })
	return dv
}

// Problem exposes the underlying data flow problem
func (dv *DefinedVariables) Problem() *dataflow.Problem[*definedNode] {
	return dv.problem
}

// Analyze sets up the problem for scope and solves it
func (dv *DefinedVariables) Analyze(ctx context.Context, scope *ir.Scope) error {
	if err := dv.problem.Setup(scope); err != nil {
		return err
	}
	for _, v := range scope.Params {
		dv.vars.register(v, dv.problem.NewVar)
	}
	for _, v := range capturedLocals(scope) {
		dv.vars.register(v, dv.problem.NewVar)
	}
	return dv.problem.ComputeMOPSolution(ctx)
}

func (n *definedNode) Init() {}

func (n *definedNode) BuildDataFlowVars(instr ir.Instr) {
	for _, v := range ir.Defs(instr) {
		n.dv.vars.register(v, n.Problem().NewVar)
	}
	for _, v := range directUses(instr) {
		n.dv.vars.register(v, n.Problem().NewVar)
	}
}

// entrySeed returns the variables defined before the first instruction
func (dv *DefinedVariables) entrySeed() *bitset.BitSet {
	scope := dv.problem.Scope()
	seed := newSet(dv.problem.DFVarsCount())
	for _, v := range scope.Params {
		if id, ok := dv.vars.id(v); ok {
			seed.Set(uint(id))
		}
	}
	for _, v := range capturedLocals(scope) {
		if id, ok := dv.vars.id(v); ok {
			seed.Set(uint(id))
		}
	}
	return seed
}

func (n *definedNode) ApplyPreMeetHandler() {
	n.in = nil
	if n.Block().IsEntry {
		n.in = n.dv.entrySeed()
	}
}

func (n *definedNode) ComputeMeet(edge *ir.Edge, pred *definedNode) {
	facts := pred.out
	if edge.Type == ir.EdgeException {
		// The raise may happen before any assignment of the block.
		facts = pred.in
	}
	if facts == nil {
		return
	}
	if n.in == nil {
		n.in = facts.Clone()
		return
	}
	n.in.InPlaceIntersection(facts)
}

func (n *definedNode) InitSolution() {
	if n.in == nil {
		// Not reached yet: TOP.
		n.tmp = fullSet(n.Problem().DFVarsCount())
		return
	}
	n.tmp = n.in.Clone()
}

func (n *definedNode) ApplyTransferFunction(instr ir.Instr) {
	n.dv.transfer(n.tmp, instr)
}

func (dv *DefinedVariables) transfer(defined *bitset.BitSet, instr ir.Instr) {
	for _, v := range ir.Defs(instr) {
		if id, ok := dv.vars.id(v); ok {
			defined.Set(uint(id))
		}
	}
	if c := closureOf(instr); c != nil {
		for _, v := range capturedDefs(c) {
			if id, ok := dv.vars.id(v); ok {
				defined.Set(uint(id))
			}
		}
	}
}

func (n *definedNode) SolutionChanged() bool {
	return n.out == nil || !n.tmp.Equal(n.out)
}

func (n *definedNode) FinalizeSolution() {
	n.out = n.tmp
}

// DefinedIn returns the variables defined on entry to bb
func (dv *DefinedVariables) DefinedIn(bb *ir.BasicBlock) []*ir.Variable {
	return dv.vars.variables(dv.problem.Node(bb).in)
}

// DefinedOut returns the variables defined on exit from bb
func (dv *DefinedVariables) DefinedOut(bb *ir.BasicBlock) []*ir.Variable {
	return dv.vars.variables(dv.problem.Node(bb).out)
}

// UndefinedUses returns the reads, in reachable blocks, of variables that
// are not assigned on every path leading to them.
func (dv *DefinedVariables) UndefinedUses() []UndefinedUse {
	scope := dv.problem.Scope()
	reachable := scope.CFG.Reachable()

	var uses []UndefinedUse
	for _, bb := range scope.CFG.Blocks() {
		if !reachable[bb.ID] || bb.IsEmpty() {
			continue
		}
		in := dv.problem.Node(bb).in
		if in == nil {
			continue
		}
		defined := in.Clone()
		for i, instr := range bb.Instrs {
			for _, v := range directUses(instr) {
				if id, ok := dv.vars.id(v); ok && !defined.Test(uint(id)) {
					uses = append(uses, UndefinedUse{Block: bb, Position: i, Instr: instr, Variable: v})
				}
			}
			dv.transfer(defined, instr)
		}
	}
	return uses
}
