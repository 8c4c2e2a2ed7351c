package ir

import (
	"fmt"
	"sort"
)

// EdgeType represents the type of edge between basic blocks
type EdgeType int

const (
	// EdgeNormal represents normal sequential flow
	EdgeNormal EdgeType = iota
	// EdgeCondTrue represents conditional true branch
	EdgeCondTrue
	// EdgeCondFalse represents conditional false branch
	EdgeCondFalse
	// EdgeException represents flow into a rescuer block
	EdgeException
	// EdgeLoop represents loop back edge
	EdgeLoop
	// EdgeBreak represents break statement flow
	EdgeBreak
	// EdgeReturn represents return statement flow
	EdgeReturn
)

// String returns string representation of EdgeType
func (e EdgeType) String() string {
	switch e {
	case EdgeNormal:
		return "normal"
	case EdgeCondTrue:
		return "true"
	case EdgeCondFalse:
		return "false"
	case EdgeException:
		return "exception"
	case EdgeLoop:
		return "loop"
	case EdgeBreak:
		return "break"
	case EdgeReturn:
		return "return"
	default:
		return "unknown"
	}
}

// Edge represents a directed edge between two basic blocks
type Edge struct {
	From *BasicBlock
	To   *BasicBlock
	Type EdgeType
}

// BasicBlock represents a basic block in the control flow graph
type BasicBlock struct {
	// ID is a small dense integer, unique within the owning CFG
	ID int

	// Label names the block for jumps and diagnostics
	Label Label

	// Instrs contains the instructions of this block in execution order
	Instrs []Instr

	// Predecessors are blocks that can flow into this block
	Predecessors []*Edge

	// Successors are blocks that this block can flow to
	Successors []*Edge

	// IsEntry indicates if this is an entry block
	IsEntry bool

	// IsExit indicates if this is an exit block
	IsExit bool

	// IsRescueEntry marks a block that receives control on a raised error
	IsRescueEntry bool
}

// NewBasicBlock creates a new basic block with the given ID and label
func NewBasicBlock(id int, label Label) *BasicBlock {
	return &BasicBlock{
		ID:           id,
		Label:        label,
		Instrs:       []Instr{},
		Predecessors: []*Edge{},
		Successors:   []*Edge{},
	}
}

// AddInstr appends an instruction to this block
func (bb *BasicBlock) AddInstr(instr Instr) {
	if instr != nil {
		bb.Instrs = append(bb.Instrs, instr)
	}
}

// LastInstr returns the final instruction of the block, or nil if empty
func (bb *BasicBlock) LastInstr() Instr {
	if len(bb.Instrs) == 0 {
		return nil
	}
	return bb.Instrs[len(bb.Instrs)-1]
}

// AddSuccessor adds an outgoing edge to another block
func (bb *BasicBlock) AddSuccessor(to *BasicBlock, edgeType EdgeType) *Edge {
	edge := &Edge{
		From: bb,
		To:   to,
		Type: edgeType,
	}
	bb.Successors = append(bb.Successors, edge)
	to.Predecessors = append(to.Predecessors, edge)
	return edge
}

// HasSuccessor reports whether an edge to the given block already exists
func (bb *BasicBlock) HasSuccessor(to *BasicBlock) bool {
	for _, edge := range bb.Successors {
		if edge.To == to {
			return true
		}
	}
	return false
}

// IsEmpty returns true if the block has no instructions
func (bb *BasicBlock) IsEmpty() bool {
	return len(bb.Instrs) == 0
}

// String returns a string representation of the basic block
func (bb *BasicBlock) String() string {
	if bb.IsEntry {
		return fmt.Sprintf("[ENTRY: bb%d]", bb.ID)
	}
	if bb.IsExit {
		return fmt.Sprintf("[EXIT: bb%d]", bb.ID)
	}
	return fmt.Sprintf("[%s(bb%d): %d instrs]", bb.Label, bb.ID, len(bb.Instrs))
}

// CFG represents a control flow graph of one scope
type CFG struct {
	// Entry is the entry point of the graph
	Entry *BasicBlock

	// Exit is the exit point of the graph
	Exit *BasicBlock

	// Name is the name of the CFG (e.g., scope name)
	Name string

	// blocks is indexed by block ID
	blocks []*BasicBlock

	labels   map[Label]*BasicBlock
	rescuers map[int]*BasicBlock
}

// NewCFG creates a new control flow graph with entry (ID 0) and exit (ID 1) blocks
func NewCFG(name string) *CFG {
	cfg := &CFG{
		Name:     name,
		labels:   make(map[Label]*BasicBlock),
		rescuers: make(map[int]*BasicBlock),
	}

	cfg.Entry = cfg.CreateBlock("ENTRY")
	cfg.Entry.IsEntry = true

	cfg.Exit = cfg.CreateBlock("EXIT")
	cfg.Exit.IsExit = true

	return cfg
}

// CreateBlock creates a new basic block and adds it to the graph.
// An empty label is replaced by a generated one.
func (cfg *CFG) CreateBlock(label Label) *BasicBlock {
	id := len(cfg.blocks)
	if label == "" {
		label = Label(fmt.Sprintf("bb%d", id))
	}

	block := NewBasicBlock(id, label)
	cfg.blocks = append(cfg.blocks, block)
	cfg.labels[label] = block
	return block
}

// ConnectBlocks creates an edge between two blocks
func (cfg *CFG) ConnectBlocks(from, to *BasicBlock, edgeType EdgeType) *Edge {
	if from == nil || to == nil {
		return nil
	}
	return from.AddSuccessor(to, edgeType)
}

// SetRescuer records that errors raised inside protected are received by rescuer.
// An exception edge is added so the rescuer is part of the graph.
func (cfg *CFG) SetRescuer(protected, rescuer *BasicBlock) {
	if protected == nil || rescuer == nil {
		return
	}
	cfg.rescuers[protected.ID] = rescuer
	rescuer.IsRescueEntry = true
	if !protected.HasSuccessor(rescuer) {
		protected.AddSuccessor(rescuer, EdgeException)
	}
}

// RescuerOf returns the block protecting bb, or nil
func (cfg *CFG) RescuerOf(bb *BasicBlock) *BasicBlock {
	if bb == nil {
		return nil
	}
	return cfg.rescuers[bb.ID]
}

// ProtectedBy returns the blocks whose rescuer is the given block, in ID order
func (cfg *CFG) ProtectedBy(rescuer *BasicBlock) []*BasicBlock {
	var protected []*BasicBlock
	for id, r := range cfg.rescuers {
		if r == rescuer {
			protected = append(protected, cfg.blocks[id])
		}
	}
	sort.Slice(protected, func(i, j int) bool { return protected[i].ID < protected[j].ID })
	return protected
}

// Blocks returns all blocks in ID order
func (cfg *CFG) Blocks() []*BasicBlock {
	out := make([]*BasicBlock, len(cfg.blocks))
	copy(out, cfg.blocks)
	return out
}

// BlockByID retrieves a block by its ID
func (cfg *CFG) BlockByID(id int) *BasicBlock {
	if id < 0 || id >= len(cfg.blocks) {
		return nil
	}
	return cfg.blocks[id]
}

// BlockByLabel retrieves a block by its label
func (cfg *CFG) BlockByLabel(label Label) *BasicBlock {
	return cfg.labels[label]
}

// Size returns the number of blocks in the graph
func (cfg *CFG) Size() int {
	return len(cfg.blocks)
}

// EdgeCount returns the number of edges in the graph
func (cfg *CFG) EdgeCount() int {
	n := 0
	for _, bb := range cfg.blocks {
		n += len(bb.Successors)
	}
	return n
}

// PostOrder returns every block in depth-first postorder from the entry.
// Blocks unreachable from the entry follow in ID order.
func (cfg *CFG) PostOrder() []*BasicBlock {
	order := make([]*BasicBlock, 0, len(cfg.blocks))
	visited := make([]bool, len(cfg.blocks))

	type frame struct {
		bb   *BasicBlock
		next int
	}
	if cfg.Entry != nil {
		stack := []frame{{bb: cfg.Entry}}
		visited[cfg.Entry.ID] = true
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.bb.Successors) {
				succ := top.bb.Successors[top.next].To
				top.next++
				if !visited[succ.ID] {
					visited[succ.ID] = true
					stack = append(stack, frame{bb: succ})
				}
				continue
			}
			order = append(order, top.bb)
			stack = stack[:len(stack)-1]
		}
	}

	for _, bb := range cfg.blocks {
		if !visited[bb.ID] {
			order = append(order, bb)
		}
	}
	return order
}

// ReversePostOrder returns reachable blocks in reverse postorder followed by
// unreachable blocks in ID order.
func (cfg *CFG) ReversePostOrder() []*BasicBlock {
	post := cfg.PostOrder()
	reach := cfg.Reachable()
	reachable := 0
	for _, bb := range post {
		if reach[bb.ID] {
			reachable++
		}
	}

	order := make([]*BasicBlock, 0, len(post))
	for i := reachable - 1; i >= 0; i-- {
		order = append(order, post[i])
	}
	return append(order, post[reachable:]...)
}

// Reachable returns a slice indexed by block ID telling whether the block
// can be reached from the entry.
func (cfg *CFG) Reachable() []bool {
	seen := make([]bool, len(cfg.blocks))
	if cfg.Entry == nil {
		return seen
	}
	queue := []*BasicBlock{cfg.Entry}
	seen[cfg.Entry.ID] = true
	for len(queue) > 0 {
		bb := queue[0]
		queue = queue[1:]
		for _, e := range bb.Successors {
			if !seen[e.To.ID] {
				seen[e.To.ID] = true
				queue = append(queue, e.To)
			}
		}
	}
	return seen
}

// CFGVisitor defines the interface for visiting CFG nodes
type CFGVisitor interface {
	// VisitBlock is called for each basic block
	// Returns false to stop traversal
	VisitBlock(block *BasicBlock) bool

	// VisitEdge is called for each edge
	// Returns false to stop traversal
	VisitEdge(edge *Edge) bool
}

// Walk performs a depth-first traversal of the CFG
func (cfg *CFG) Walk(visitor CFGVisitor) {
	if cfg.Entry == nil {
		return
	}

	visited := make(map[int]bool)
	cfg.walkBlock(cfg.Entry, visitor, visited)
}

// walkBlock recursively visits blocks in depth-first order
func (cfg *CFG) walkBlock(block *BasicBlock, visitor CFGVisitor, visited map[int]bool) bool {
	if block == nil || visited[block.ID] {
		return true
	}

	visited[block.ID] = true

	if !visitor.VisitBlock(block) {
		return false
	}

	for _, edge := range block.Successors {
		if !visitor.VisitEdge(edge) {
			return false
		}
		if !cfg.walkBlock(edge.To, visitor, visited) {
			return false
		}
	}
	return true
}

// String returns a string representation of the CFG
func (cfg *CFG) String() string {
	return fmt.Sprintf("CFG(%s): %d blocks", cfg.Name, cfg.Size())
}
