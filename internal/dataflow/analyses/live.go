package analyses

import (
	"context"

	"github.com/bits-and-blooms/bitset"

	"github.com/ludo-technologies/irflow/internal/dataflow"
	"github.com/ludo-technologies/irflow/internal/ir"
)

// LiveVariables computes, for every block, the variables whose current
// value may still be read. Locals read by a rescuer stay live across the
// blocks it protects, and captured locals are live when a closure exits.
type LiveVariables struct {
	problem *dataflow.Problem[*liveNode]
	vars    *varTable
}

type liveNode struct {
	dataflow.NodeBase[*liveNode]
	lv *LiveVariables

	in, out, tmp *bitset.BitSet
}

// DeadStore is an assignment whose value is never read
type DeadStore struct {
	Block    *ir.BasicBlock
	Position int
	Instr    ir.Instr
	Variable *ir.Variable
}

// NewLiveVariables creates an unsolved liveness analysis
func NewLiveVariables(opts ...dataflow.Option) *LiveVariables {
	lv := &LiveVariables{vars: newVarTable()}
	lv.problem = dataflow.NewProblem("live_variables", dataflow.Backward,
		func(p *dataflow.Problem[*liveNode], bb *ir.BasicBlock) *liveNode {
			return &liveNode{NodeBase: dataflow.NewNodeBase(p, bb), lv: lv}
		}, opts...)
	lv.problem.SetEmptyCheck(func() bool { return lv.vars.size() == 0 })
	return lv
}

// Problem exposes the underlying data flow problem
func (lv *LiveVariables) Problem() *dataflow.Problem[*liveNode] {
	return lv.problem
}

// Analyze sets up the problem for scope and solves it
func (lv *LiveVariables) Analyze(ctx context.Context, scope *ir.Scope) error {
	if err := lv.problem.Setup(scope); err != nil {
		return err
	}
	for _, v := range scope.Params {
		lv.vars.register(v, lv.problem.NewVar)
	}
	return lv.problem.ComputeMOPSolution(ctx)
}

func (n *liveNode) Init() {}

func (n *liveNode) BuildDataFlowVars(instr ir.Instr) {
	for _, v := range ir.Defs(instr) {
		n.lv.vars.register(v, n.Problem().NewVar)
	}
	for _, v := range ir.Uses(instr) {
		n.lv.vars.register(v, n.Problem().NewVar)
	}
}

func (n *liveNode) ApplyPreMeetHandler() {
	n.out = newSet(n.Problem().DFVarsCount())
	if n.Block().IsExit {
		for _, v := range capturedLocals(n.Problem().Scope()) {
			if id, ok := n.lv.vars.id(v); ok {
				n.out.Set(uint(id))
			}
		}
	}
}

func (n *liveNode) ComputeMeet(_ *ir.Edge, succ *liveNode) {
	if succ.in != nil {
		n.out.InPlaceUnion(succ.in)
	}
}

// rescuerIn returns the live set at the rescuer's entry when the block is
// protected.
func (n *liveNode) rescuerIn() *bitset.BitSet {
	if !n.HasExceptionsRescued() {
		return nil
	}
	return n.ExceptionTargetNode().in
}

func (n *liveNode) InitSolution() {
	n.tmp = n.out.Clone()
	if r := n.rescuerIn(); r != nil {
		n.tmp.InPlaceUnion(r)
	}
}

func (n *liveNode) ApplyTransferFunction(instr ir.Instr) {
	n.lv.transfer(n.tmp, instr)
	if r := n.rescuerIn(); r != nil {
		n.tmp.InPlaceUnion(r)
	}
}

func (lv *LiveVariables) transfer(live *bitset.BitSet, instr ir.Instr) {
	for _, v := range ir.Defs(instr) {
		if id, ok := lv.vars.id(v); ok {
			live.Clear(uint(id))
		}
	}
	for _, v := range ir.Uses(instr) {
		if id, ok := lv.vars.id(v); ok {
			live.Set(uint(id))
		}
	}
}

func (n *liveNode) SolutionChanged() bool {
	return n.in == nil || !n.tmp.Equal(n.in)
}

func (n *liveNode) FinalizeSolution() {
	n.in = n.tmp
}

// LiveIn returns the variables live on entry to bb
func (lv *LiveVariables) LiveIn(bb *ir.BasicBlock) []*ir.Variable {
	return lv.vars.variables(lv.problem.Node(bb).in)
}

// LiveOut returns the variables live on exit from bb
func (lv *LiveVariables) LiveOut(bb *ir.BasicBlock) []*ir.Variable {
	return lv.vars.variables(lv.problem.Node(bb).out)
}

// LiveOnExit returns the variables live when the scope exits
func (lv *LiveVariables) LiveOnExit() []*ir.Variable {
	return lv.LiveIn(lv.problem.Scope().CFG.Exit)
}

// IsLiveIn reports whether v is live on entry to bb
func (lv *LiveVariables) IsLiveIn(bb *ir.BasicBlock, v *ir.Variable) bool {
	id, ok := lv.vars.id(v)
	in := lv.problem.Node(bb).in
	return ok && in != nil && in.Test(uint(id))
}

// DeadStores returns the assignments in reachable blocks whose result is
// not live immediately afterwards.
func (lv *LiveVariables) DeadStores() []DeadStore {
	scope := lv.problem.Scope()
	reachable := scope.CFG.Reachable()

	var stores []DeadStore
	for _, bb := range scope.CFG.Blocks() {
		if !reachable[bb.ID] || bb.IsEmpty() {
			continue
		}
		n := lv.problem.Node(bb)
		if n.out == nil {
			continue
		}
		rescuer := n.rescuerIn()

		live := n.out.Clone()
		if rescuer != nil {
			live.InPlaceUnion(rescuer)
		}
		var found []DeadStore
		for i := len(bb.Instrs) - 1; i >= 0; i-- {
			instr := bb.Instrs[i]
			if dst := instr.Result(); dst != nil {
				if id, ok := lv.vars.id(dst); ok && !live.Test(uint(id)) {
					found = append(found, DeadStore{Block: bb, Position: i, Instr: instr, Variable: dst})
				}
			}
			lv.transfer(live, instr)
			if rescuer != nil {
				live.InPlaceUnion(rescuer)
			}
		}
		for i := len(found) - 1; i >= 0; i-- {
			stores = append(stores, found[i])
		}
	}
	return stores
}
