package analyses

import (
	"context"

	"github.com/bits-and-blooms/bitset"

	"github.com/ludo-technologies/irflow/internal/dataflow"
	"github.com/ludo-technologies/irflow/internal/ir"
)

// ReachingDefinitions computes which definition sites may reach each
// point. Every definition site is one data flow variable.
type ReachingDefinitions struct {
	problem *dataflow.Problem[*reachingNode]

	defs  []*VarReference                 // indexed by data flow variable ID
	byVar map[*ir.Variable]*bitset.BitSet // all sites defining a variable
	order []*ir.Variable                  // variables in first-definition order
	sites map[*ir.BasicBlock][][]dataflow.Var
}

type reachingNode struct {
	dataflow.NodeBase[*reachingNode]
	rd *ReachingDefinitions

	in, out, tmp *bitset.BitSet
	position     int
}

// NewReachingDefinitions creates an unsolved reaching-definitions analysis
func NewReachingDefinitions(opts ...dataflow.Option) *ReachingDefinitions {
	rd := &ReachingDefinitions{
		defs:  []*VarReference{nil},
		byVar: make(map[*ir.Variable]*bitset.BitSet),
		sites: make(map[*ir.BasicBlock][][]dataflow.Var),
	}
	rd.problem = dataflow.NewProblem("reaching_definitions", dataflow.Forward,
		func(p *dataflow.Problem[*reachingNode], bb *ir.BasicBlock) *reachingNode {
			return &reachingNode{NodeBase: dataflow.NewNodeBase(p, bb), rd: rd}
		}, opts...)
	rd.problem.SetEmptyCheck(func() bool { return len(rd.defs) == 1 })
	return rd
}

// Problem exposes the underlying data flow problem
func (rd *ReachingDefinitions) Problem() *dataflow.Problem[*reachingNode] {
	return rd.problem
}

// Analyze sets up the problem for scope and solves it
func (rd *ReachingDefinitions) Analyze(ctx context.Context, scope *ir.Scope) error {
	if err := rd.problem.Setup(scope); err != nil {
		return err
	}
	entry := scope.CFG.Entry
	for _, v := range scope.Params {
		rd.addDef(&VarReference{Variable: v, Kind: DefKindParameter, Block: entry, Position: -1})
	}
	for _, v := range capturedLocals(scope) {
		rd.addDef(&VarReference{Variable: v, Kind: DefKindCaptured, Block: entry, Position: -1})
	}
	return rd.problem.ComputeMOPSolution(ctx)
}

func (rd *ReachingDefinitions) addDef(ref *VarReference) dataflow.Var {
	id := rd.problem.NewVar()
	rd.defs = append(rd.defs, ref)
	set, ok := rd.byVar[ref.Variable]
	if !ok {
		set = bitset.New(0)
		rd.byVar[ref.Variable] = set
		rd.order = append(rd.order, ref.Variable)
	}
	set.Set(uint(id))
	return id
}

func (n *reachingNode) Init() {
	n.position = 0
}

// BuildDataFlowVars allocates one variable per definition site of instr.
// The instruction's own result comes first, then the outer locals a
// passed closure may assign.
func (n *reachingNode) BuildDataFlowVars(instr ir.Instr) {
	bb := n.Block()
	var ids []dataflow.Var
	for _, v := range ir.Defs(instr) {
		kind := DefKindAssign
		if instr.Op() == ir.OpReceiveException {
			kind = DefKindException
		}
		ids = append(ids, n.rd.addDef(&VarReference{Variable: v, Kind: kind, Block: bb, Instr: instr, Position: n.position}))
	}
	if c := closureOf(instr); c != nil {
		for _, v := range capturedDefs(c) {
			ids = append(ids, n.rd.addDef(&VarReference{Variable: v, Kind: DefKindClosure, Block: bb, Instr: instr, Position: n.position}))
		}
	}
	n.rd.sites[bb] = append(n.rd.sites[bb], ids)
	n.position++
}

func (n *reachingNode) ApplyPreMeetHandler() {
	n.in = newSet(n.Problem().DFVarsCount())
	if n.Block().IsEntry {
		for id := 1; id < len(n.rd.defs); id++ {
			if n.rd.defs[id].Instr == nil {
				n.in.Set(uint(id))
			}
		}
	}
}

func (n *reachingNode) ComputeMeet(edge *ir.Edge, pred *reachingNode) {
	if pred.out != nil {
		n.in.InPlaceUnion(pred.out)
	}
	if edge.Type == ir.EdgeException && pred.in != nil {
		n.in.InPlaceUnion(pred.in)
	}
}

func (n *reachingNode) InitSolution() {
	n.tmp = n.in.Clone()
	n.position = 0
}

func (n *reachingNode) ApplyTransferFunction(instr ir.Instr) {
	n.rd.transfer(n.tmp, n.Block(), n.position, instr)
	n.position++
}

func (rd *ReachingDefinitions) transfer(reaching *bitset.BitSet, bb *ir.BasicBlock, pos int, instr ir.Instr) {
	sites := rd.sites[bb]
	if pos >= len(sites) {
		return
	}
	for _, id := range sites[pos] {
		ref := rd.defs[id.ID()]
		// Only a definite assignment kills; a closure only may assign.
		if ref.Kind != DefKindClosure {
			reaching.InPlaceDifference(rd.byVar[ref.Variable])
		}
		reaching.Set(uint(id.ID()))
	}
}

func (n *reachingNode) SolutionChanged() bool {
	return n.out == nil || !n.tmp.Equal(n.out)
}

func (n *reachingNode) FinalizeSolution() {
	n.out = n.tmp
}

// Definitions returns every definition site in allocation order
func (rd *ReachingDefinitions) Definitions() []*VarReference {
	return append([]*VarReference{}, rd.defs[1:]...)
}

// ReachingIn returns the definition sites reaching the entry of bb
func (rd *ReachingDefinitions) ReachingIn(bb *ir.BasicBlock) []*VarReference {
	return rd.refs(rd.problem.Node(bb).in)
}

// ReachingOut returns the definition sites reaching the exit of bb
func (rd *ReachingDefinitions) ReachingOut(bb *ir.BasicBlock) []*VarReference {
	return rd.refs(rd.problem.Node(bb).out)
}

func (rd *ReachingDefinitions) refs(bs *bitset.BitSet) []*VarReference {
	if bs == nil {
		return nil
	}
	var out []*VarReference
	for i, ok := bs.NextSet(0); ok; i, ok = bs.NextSet(i + 1) {
		if int(i) < len(rd.defs) && rd.defs[i] != nil {
			out = append(out, rd.defs[i])
		}
	}
	return out
}

// DefUseChains links every use in a reachable block to the definitions
// that may reach it. Chains are returned in first-definition order,
// followed by variables that are used but never defined.
func (rd *ReachingDefinitions) DefUseChains() []*DefUseChain {
	scope := rd.problem.Scope()
	chains := make(map[*ir.Variable]*DefUseChain)
	var order []*ir.Variable
	chainOf := func(v *ir.Variable) *DefUseChain {
		c, ok := chains[v]
		if !ok {
			c = &DefUseChain{Variable: v}
			chains[v] = c
			order = append(order, v)
		}
		return c
	}

	for _, v := range rd.order {
		chainOf(v)
	}
	for _, ref := range rd.defs[1:] {
		c := chainOf(ref.Variable)
		c.Defs = append(c.Defs, ref)
	}

	reachable := scope.CFG.Reachable()
	for _, bb := range scope.CFG.Blocks() {
		if !reachable[bb.ID] || bb.IsEmpty() {
			continue
		}
		in := rd.problem.Node(bb).in
		if in == nil {
			continue
		}
		reaching := in.Clone()
		for pos, instr := range bb.Instrs {
			rd.linkUses(chainOf, reaching, bb, pos, instr)
			rd.transfer(reaching, bb, pos, instr)
		}
	}

	out := make([]*DefUseChain, 0, len(order))
	for _, v := range order {
		out = append(out, chains[v])
	}
	return out
}

func (rd *ReachingDefinitions) linkUses(chainOf func(*ir.Variable) *DefUseChain, reaching *bitset.BitSet, bb *ir.BasicBlock, pos int, instr ir.Instr) {
	direct := make(map[*ir.Variable]bool)
	for _, v := range directUses(instr) {
		direct[v] = true
	}
	seen := make(map[*ir.Variable]bool)
	for _, v := range ir.Uses(instr) {
		if seen[v] {
			continue
		}
		seen[v] = true
		kind := UseKindRead
		if !direct[v] {
			kind = UseKindCapture
		}
		use := &VarReference{Variable: v, Kind: kind, Block: bb, Instr: instr, Position: pos}
		c := chainOf(v)
		c.Uses = append(c.Uses, use)
		if all, ok := rd.byVar[v]; ok {
			hits := reaching.Intersection(all)
			for i, ok := hits.NextSet(0); ok; i, ok = hits.NextSet(i + 1) {
				c.Pairs = append(c.Pairs, &DefUsePair{Def: rd.defs[i], Use: use})
			}
		}
	}
}
