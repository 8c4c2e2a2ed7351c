// Package dataflow implements a worklist fixed-point solver over the CFG of
// one IR scope. Concrete analyses supply the per-block node type.
package dataflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/rs/zerolog"

	"github.com/ludo-technologies/irflow/internal/ir"
)

// Direction is the direction facts flow through the CFG
type Direction int

const (
	// Forward propagates facts from predecessors to successors
	Forward Direction = iota
	// Backward propagates facts from successors to predecessors
	Backward
	// Bidirectional is accepted as a declaration but cannot be solved
	Bidirectional
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Bidirectional:
		return "bidirectional"
	default:
		return "unknown"
	}
}

var (
	// ErrNotImplemented is returned when solving a bidirectional problem
	ErrNotImplemented = errors.New("bidirectional data flow is not implemented")
	// ErrAlreadySetup is returned by a second call to Setup
	ErrAlreadySetup = errors.New("data flow problem is already set up")
	// ErrNotSetup is returned when solving before Setup
	ErrNotSetup = errors.New("data flow problem is not set up")
)

// Var is a data flow variable. IDs are unique within one problem, strictly
// increasing in allocation order and start at 1.
type Var int

// ID returns the numeric identity of the variable
func (v Var) ID() int {
	return int(v)
}

// NodeFactory creates the analysis node for one basic block
type NodeFactory[N Node[N]] func(p *Problem[N], bb *ir.BasicBlock) N

// Option configures a problem
type Option func(*options)

type options struct {
	logger zerolog.Logger
}

// WithLogger enables debug tracing of the solver
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Problem owns the nodes of one analysis over one scope and drives the
// fixed-point computation. A problem is used by a single goroutine.
type Problem[N Node[N]] struct {
	name      string
	direction Direction
	newNode   NodeFactory[N]
	logger    zerolog.Logger

	scope      *ir.Scope
	nodes      []N
	nextVar    int
	emptyCheck func() bool
	ready      bool
}

// NewProblem creates an unsolved problem
func NewProblem[N Node[N]](name string, direction Direction, factory NodeFactory[N], opts ...Option) *Problem[N] {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Problem[N]{
		name:      name,
		direction: direction,
		newNode:   factory,
		logger:    o.logger.With().Str("problem", name).Logger(),
		nextVar:   1,
	}
}

// Name returns the analysis name
func (p *Problem[N]) Name() string {
	return p.name
}

// Direction returns the flow direction
func (p *Problem[N]) Direction() Direction {
	return p.direction
}

// Scope returns the scope under analysis, or nil before Setup
func (p *Problem[N]) Scope() *ir.Scope {
	return p.scope
}

// NewVar allocates the next data flow variable
func (p *Problem[N]) NewVar() Var {
	v := Var(p.nextVar)
	p.nextVar++
	return v
}

// DFVarsCount returns the highest allocated ID plus one, which is the width
// of a bitset indexed by variable ID.
func (p *Problem[N]) DFVarsCount() int {
	return p.nextVar
}

// SetEmptyCheck installs the predicate reported by IsEmpty
func (p *Problem[N]) SetEmptyCheck(fn func() bool) {
	p.emptyCheck = fn
}

// IsEmpty reports whether the problem has no facts to compute
func (p *Problem[N]) IsEmpty() bool {
	if p.emptyCheck == nil {
		return false
	}
	return p.emptyCheck()
}

// Setup creates one node per basic block, initializes it and lets it scan
// its instructions. It must be called exactly once.
func (p *Problem[N]) Setup(scope *ir.Scope) error {
	if p.ready {
		return ErrAlreadySetup
	}
	if scope == nil || scope.CFG == nil {
		return fmt.Errorf("%s: scope has no CFG", p.name)
	}
	p.scope = scope

	blocks := scope.CFG.Blocks()
	p.nodes = make([]N, len(blocks))
	for _, bb := range blocks {
		n := p.newNode(p, bb)
		n.Init()
		for _, instr := range bb.Instrs {
			n.BuildDataFlowVars(instr)
		}
		p.nodes[bb.ID] = n
	}
	p.ready = true

	p.logger.Debug().
		Str("scope", scope.Name).
		Int("nodes", len(p.nodes)).
		Int("vars", p.DFVarsCount()-1).
		Msg("setup")
	return nil
}

// Node returns the node of block bb
func (p *Problem[N]) Node(bb *ir.BasicBlock) N {
	return p.nodes[bb.ID]
}

// Nodes returns every node in block ID order
func (p *Problem[N]) Nodes() []N {
	out := make([]N, len(p.nodes))
	copy(out, p.nodes)
	return out
}

// ComputeMOPSolution iterates the nodes to a fixed point. Cancelling ctx
// stops the iteration between node visits.
func (p *Problem[N]) ComputeMOPSolution(ctx context.Context) error {
	if !p.ready {
		return ErrNotSetup
	}
	if p.direction == Bidirectional {
		return ErrNotImplemented
	}
	if p.IsEmpty() {
		p.logger.Debug().Str("scope", p.scope.Name).Msg("empty problem, skipping")
		return nil
	}

	work := p.seedWorklist()
	visits := 0
	for !work.empty() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := work.pop()
		p.computeDataFlowInfo(n, work)
		visits++
	}

	p.logger.Debug().
		Str("scope", p.scope.Name).
		Stringer("direction", p.direction).
		Int("visits", visits).
		Msg("fixed point reached")
	return nil
}

func (p *Problem[N]) seedWorklist() *worklist[N] {
	var order []*ir.BasicBlock
	if p.direction == Forward {
		order = p.scope.CFG.ReversePostOrder()
	} else {
		order = p.scope.CFG.PostOrder()
	}

	work := newWorklist[N](len(p.nodes))
	for _, bb := range order {
		work.push(bb.ID, p.nodes[bb.ID])
	}
	return work
}

// computeDataFlowInfo runs MEET over every neighbour and the transfer
// function once, then requeues the dependents if the solution changed.
func (p *Problem[N]) computeDataFlowInfo(n N, work *worklist[N]) {
	bb := n.Block()
	n.ApplyPreMeetHandler()

	if p.direction == Forward {
		for _, e := range bb.Predecessors {
			n.ComputeMeet(e, p.nodes[e.From.ID])
		}
	} else {
		for _, e := range bb.Successors {
			n.ComputeMeet(e, p.nodes[e.To.ID])
		}
	}

	n.InitSolution()
	if p.direction == Forward {
		for _, instr := range bb.Instrs {
			n.ApplyTransferFunction(instr)
		}
	} else {
		for i := len(bb.Instrs) - 1; i >= 0; i-- {
			n.ApplyTransferFunction(bb.Instrs[i])
		}
	}

	if n.SolutionChanged() {
		if p.direction == Forward {
			for _, e := range bb.Successors {
				work.push(e.To.ID, p.nodes[e.To.ID])
			}
		} else {
			for _, e := range bb.Predecessors {
				work.push(e.From.ID, p.nodes[e.From.ID])
			}
		}
	}
	n.FinalizeSolution()
}

// worklist is a FIFO queue with a membership set so a node is pending at
// most once.
type worklist[N any] struct {
	queue   []N
	ids     []int
	pending *bitset.BitSet
}

func newWorklist[N any](size int) *worklist[N] {
	return &worklist[N]{
		queue:   make([]N, 0, size),
		ids:     make([]int, 0, size),
		pending: bitset.New(uint(size)),
	}
}

func (w *worklist[N]) push(id int, n N) {
	if w.pending.Test(uint(id)) {
		return
	}
	w.pending.Set(uint(id))
	w.queue = append(w.queue, n)
	w.ids = append(w.ids, id)
}

func (w *worklist[N]) pop() N {
	n, id := w.queue[0], w.ids[0]
	w.queue, w.ids = w.queue[1:], w.ids[1:]
	w.pending.Clear(uint(id))
	return n
}

func (w *worklist[N]) empty() bool {
	return len(w.queue) == 0
}
