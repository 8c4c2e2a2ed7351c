package analyses

import (
	"context"
	"time"

	"github.com/ludo-technologies/irflow/internal/dataflow"
	"github.com/ludo-technologies/irflow/internal/ir"
)

// ReachabilityResult contains the results of reachability analysis
type ReachabilityResult struct {
	// ReachableBlocks contains blocks that can be reached from entry
	ReachableBlocks map[int]*ir.BasicBlock

	// UnreachableBlocks contains blocks that cannot be reached from entry
	UnreachableBlocks map[int]*ir.BasicBlock

	// TotalBlocks is the total number of blocks analyzed
	TotalBlocks int

	// ReachableCount is the number of reachable blocks
	ReachableCount int

	// UnreachableCount is the number of unreachable blocks
	UnreachableCount int

	// AnalysisTime is the time taken to perform the analysis
	AnalysisTime time.Duration
}

// Reachability is a forward boolean analysis: a block is reached when any
// predecessor is reached. Rescuers are reached through their exception
// edges.
type Reachability struct {
	problem *dataflow.Problem[*reachNode]
}

type reachNode struct {
	dataflow.NodeBase[*reachNode]

	reached, tmp bool
	visited      bool
}

// NewReachability creates an unsolved reachability analysis
func NewReachability(opts ...dataflow.Option) *Reachability {
	return &Reachability{
		problem: dataflow.NewProblem("reachability", dataflow.Forward,
			func(p *dataflow.Problem[*reachNode], bb *ir.BasicBlock) *reachNode {
				return &reachNode{NodeBase: dataflow.NewNodeBase(p, bb)}
			}, opts...),
	}
}

// Problem exposes the underlying data flow problem
func (r *Reachability) Problem() *dataflow.Problem[*reachNode] {
	return r.problem
}

// Analyze sets up the problem for scope and solves it
func (r *Reachability) Analyze(ctx context.Context, scope *ir.Scope) error {
	if err := r.problem.Setup(scope); err != nil {
		return err
	}
	return r.problem.ComputeMOPSolution(ctx)
}

func (n *reachNode) Init()                          {}
func (n *reachNode) BuildDataFlowVars(ir.Instr)     {}
func (n *reachNode) ApplyTransferFunction(ir.Instr) {}
func (n *reachNode) ApplyPreMeetHandler()           { n.tmp = n.Block().IsEntry }
func (n *reachNode) InitSolution()                  {}
func (n *reachNode) FinalizeSolution()              { n.reached, n.visited = n.tmp, true }
func (n *reachNode) SolutionChanged() bool          { return !n.visited || n.tmp != n.reached }
func (n *reachNode) ComputeMeet(_ *ir.Edge, pred *reachNode) {
	n.tmp = n.tmp || pred.reached
}

// IsReachable reports whether bb can execute
func (r *Reachability) IsReachable(bb *ir.BasicBlock) bool {
	return r.problem.Node(bb).reached
}

// Result summarizes the analysis
func (r *Reachability) Result() *ReachabilityResult {
	startTime := time.Now()

	result := &ReachabilityResult{
		ReachableBlocks:   make(map[int]*ir.BasicBlock),
		UnreachableBlocks: make(map[int]*ir.BasicBlock),
	}
	scope := r.problem.Scope()
	if scope == nil {
		result.AnalysisTime = time.Since(startTime)
		return result
	}

	for _, bb := range scope.CFG.Blocks() {
		if r.IsReachable(bb) {
			result.ReachableBlocks[bb.ID] = bb
		} else {
			result.UnreachableBlocks[bb.ID] = bb
		}
	}

	result.TotalBlocks = scope.CFG.Size()
	result.ReachableCount = len(result.ReachableBlocks)
	result.UnreachableCount = len(result.UnreachableBlocks)
	result.AnalysisTime = time.Since(startTime)
	return result
}

// Unreachable returns the unreachable blocks that contain instructions,
// in ID order.
func (r *Reachability) Unreachable() []*ir.BasicBlock {
	var out []*ir.BasicBlock
	for _, bb := range r.problem.Scope().CFG.Blocks() {
		if !r.IsReachable(bb) && !bb.IsEmpty() {
			out = append(out, bb)
		}
	}
	return out
}

// GetUnreachableBlocksWithInstrs returns unreachable blocks that contain instructions
func (result *ReachabilityResult) GetUnreachableBlocksWithInstrs() map[int]*ir.BasicBlock {
	blocks := make(map[int]*ir.BasicBlock)
	for id, block := range result.UnreachableBlocks {
		if !block.IsEmpty() {
			blocks[id] = block
		}
	}
	return blocks
}

// GetReachabilityRatio returns the ratio of reachable blocks to total blocks
func (result *ReachabilityResult) GetReachabilityRatio() float64 {
	if result.TotalBlocks == 0 {
		return 1.0
	}
	return float64(result.ReachableCount) / float64(result.TotalBlocks)
}

// HasUnreachableCode returns true if there are unreachable blocks with instructions
func (result *ReachabilityResult) HasUnreachableCode() bool {
	for _, block := range result.UnreachableBlocks {
		if !block.IsEmpty() {
			return true
		}
	}
	return false
}
