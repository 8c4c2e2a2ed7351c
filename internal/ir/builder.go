package ir

import (
	"fmt"
)

// Builder assembles the blocks of a scope and derives its CFG edges
type Builder struct {
	scope   *Scope
	current *BasicBlock
	layout  []*BasicBlock
	protect []protection
	errs    []error
}

type protection struct {
	protected Label
	rescuer   Label
}

// NewBuilder creates a builder for scope
func NewBuilder(scope *Scope) *Builder {
	return &Builder{scope: scope}
}

// Scope returns the scope being built
func (b *Builder) Scope() *Scope {
	return b.scope
}

// Block starts a new block with the given label and makes it current.
// An empty label gets a generated name.
func (b *Builder) Block(label Label) *BasicBlock {
	if label != "" && b.scope.CFG.BlockByLabel(label) != nil {
		b.errs = append(b.errs, fmt.Errorf("scope %s: duplicate label %q", b.scope.Name, label))
	}
	bb := b.scope.CFG.CreateBlock(label)
	b.layout = append(b.layout, bb)
	b.current = bb
	return bb
}

// SetCurrent makes an existing block current
func (b *Builder) SetCurrent(bb *BasicBlock) {
	b.current = bb
}

// Current returns the block instructions are appended to
func (b *Builder) Current() *BasicBlock {
	return b.current
}

// Emit appends instr to the current block. Emitting after a terminator
// starts a fresh unlabeled block.
func (b *Builder) Emit(instr Instr) Instr {
	if b.current == nil || isTerminator(b.current.LastInstr()) {
		b.Block("")
	}
	b.current.AddInstr(instr)
	return instr
}

// Protect records that errors raised in the block labeled protected are
// received by the block labeled rescuer.
func (b *Builder) Protect(protected, rescuer Label) {
	b.protect = append(b.protect, protection{protected: protected, rescuer: rescuer})
}

// Finish derives CFG edges from the emitted instructions
func (b *Builder) Finish() error {
	cfg := b.scope.CFG
	b.scope.SetLayout(b.layout)

	cfg.ConnectBlocks(cfg.Entry, b.scope.FirstBlock(), EdgeNormal)

	index := make(map[*BasicBlock]int, len(b.layout))
	for i, bb := range b.layout {
		index[bb] = i
	}

	for i, bb := range b.layout {
		next := cfg.Exit
		if i+1 < len(b.layout) {
			next = b.layout[i+1]
		}

		switch last := bb.LastInstr().(type) {
		case *JumpInstr:
			target, err := b.resolve(last.Target)
			if err != nil {
				b.errs = append(b.errs, err)
				continue
			}
			edgeType := EdgeNormal
			if j, ok := index[target]; ok && j <= i {
				edgeType = EdgeLoop
			}
			cfg.ConnectBlocks(bb, target, edgeType)
		case *BranchInstr:
			target, err := b.resolve(last.Target)
			if err != nil {
				b.errs = append(b.errs, err)
				continue
			}
			taken, fall := EdgeCondTrue, EdgeCondFalse
			if !last.OnTrue {
				taken, fall = EdgeCondFalse, EdgeCondTrue
			}
			cfg.ConnectBlocks(bb, target, taken)
			if next != target {
				cfg.ConnectBlocks(bb, next, fall)
			}
		case *ReturnInstr, *NonlocalReturnInstr:
			cfg.ConnectBlocks(bb, cfg.Exit, EdgeReturn)
		case *BreakInstr:
			cfg.ConnectBlocks(bb, cfg.Exit, EdgeBreak)
		case *RaiseInstr:
			cfg.ConnectBlocks(bb, cfg.Exit, EdgeException)
		default:
			cfg.ConnectBlocks(bb, next, EdgeNormal)
		}
	}

	for _, p := range b.protect {
		protected, err := b.resolve(p.protected)
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		rescuer, err := b.resolve(p.rescuer)
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		cfg.SetRescuer(protected, rescuer)
	}

	if len(b.errs) > 0 {
		return b.errs[0]
	}
	return nil
}

func (b *Builder) resolve(label Label) (*BasicBlock, error) {
	bb := b.scope.CFG.BlockByLabel(label)
	if bb == nil || bb.IsEntry || bb.IsExit {
		return nil, fmt.Errorf("scope %s: unknown label %q", b.scope.Name, label)
	}
	return bb, nil
}

func isTerminator(instr Instr) bool {
	switch instr.(type) {
	case *JumpInstr, *BranchInstr, *ReturnInstr, *NonlocalReturnInstr, *BreakInstr, *RaiseInstr:
		return true
	}
	return false
}
