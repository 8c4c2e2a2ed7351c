package dataflow

import (
	"github.com/ludo-technologies/irflow/internal/ir"
)

// Node is the per-block state of one analysis. N is the concrete node type,
// so MEET receives neighbours without type assertions.
//
// For each worklist visit the engine calls ApplyPreMeetHandler, then
// ComputeMeet once per incoming (FORWARD) or outgoing (BACKWARD) edge, then
// InitSolution, then ApplyTransferFunction once per instruction, then
// SolutionChanged and finally FinalizeSolution.
type Node[N any] interface {
	// Block returns the basic block the node wraps
	Block() *ir.BasicBlock

	// Init allocates the node's initial state. Called once during setup.
	Init()

	// BuildDataFlowVars scans one instruction during setup and may allocate
	// data flow variables.
	BuildDataFlowVars(instr ir.Instr)

	// ApplyPreMeetHandler resets or seeds the transient state before MEET
	ApplyPreMeetHandler()

	// ComputeMeet folds a neighbour's facts into the running facts
	ComputeMeet(edge *ir.Edge, other N)

	// InitSolution prepares the working solution from the MEET result
	InitSolution()

	// ApplyTransferFunction updates the working solution for one instruction
	ApplyTransferFunction(instr ir.Instr)

	// SolutionChanged compares the working solution to the previous one by value
	SolutionChanged() bool

	// FinalizeSolution commits the working solution
	FinalizeSolution()
}

// NodeBase carries the back-references every node needs. Concrete nodes
// embed it and build it with NewNodeBase from their factory.
type NodeBase[N Node[N]] struct {
	problem *Problem[N]
	block   *ir.BasicBlock

	target    N
	hasTarget bool
}

// NewNodeBase creates the shared part of a node for block bb
func NewNodeBase[N Node[N]](p *Problem[N], bb *ir.BasicBlock) NodeBase[N] {
	return NodeBase[N]{problem: p, block: bb}
}

// Problem returns the problem owning the node
func (n *NodeBase[N]) Problem() *Problem[N] {
	return n.problem
}

// Block returns the basic block the node wraps
func (n *NodeBase[N]) Block() *ir.BasicBlock {
	return n.block
}

// HasExceptionsRescued reports whether the block is protected by a rescuer
func (n *NodeBase[N]) HasExceptionsRescued() bool {
	return n.problem.Scope().CFG.RescuerOf(n.block) != nil
}

// ExceptionTargetNode returns the node receiving control when an
// instruction of this block raises: the rescuer's node, or the exit's node
// when the block is unprotected. During Setup the target may not exist yet
// and the zero N is returned; the result is cached only once Setup is done.
func (n *NodeBase[N]) ExceptionTargetNode() N {
	if n.hasTarget {
		return n.target
	}
	cfg := n.problem.Scope().CFG
	target := cfg.RescuerOf(n.block)
	if target == nil {
		target = cfg.Exit
	}
	node := n.problem.Node(target)
	if n.problem.ready {
		n.target = node
		n.hasTarget = true
	}
	return node
}
