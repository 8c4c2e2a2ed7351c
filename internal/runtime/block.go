package runtime

import (
	"context"
	"fmt"
	"sync/atomic"
)

// BlockType is the variant of a block. It decides how the block allocates
// its scope and how breaks and returns are handled at its boundary.
type BlockType int

const (
	// BlockNormal is a proc: breaks return to the scope that created it
	BlockNormal BlockType = iota
	// BlockLambda behaves like an anonymous method
	BlockLambda
	// BlockThread is the body of a thread
	BlockThread
)

func (t BlockType) String() string {
	switch t {
	case BlockNormal:
		return "normal"
	case BlockLambda:
		return "lambda"
	case BlockThread:
		return "thread"
	default:
		return fmt.Sprintf("BlockType(%d)", int(t))
	}
}

// Body is the executable part of a block
type Body interface {
	StaticScope() *StaticScope
	// Yield runs the body in scope, which was allocated by blk
	Yield(ctx context.Context, tc *ThreadContext, blk *Block, scope *DynamicScope, args []Value) (Value, error)
}

// Block is a body closed over a binding. Its type never changes; ToType
// returns a different block.
type Block struct {
	typ     BlockType
	body    Body
	binding *Binding
	escaped atomic.Bool
}

// NewBlock creates a block of the given variant
func NewBlock(typ BlockType, body Body, binding *Binding) *Block {
	return &Block{typ: typ, body: body, binding: binding}
}

// Type returns the variant of the block
func (b *Block) Type() BlockType {
	return b.typ
}

// Body returns the body of the block
func (b *Block) Body() Body {
	return b.body
}

// Binding returns the captured environment
func (b *Block) Binding() *Binding {
	return b.binding
}

// Escape marks the block as having outlived the frame that created it
func (b *Block) Escape() {
	b.escaped.Store(true)
}

// IsEscaped reports whether the creating frame has returned
func (b *Block) IsEscaped() bool {
	return b.escaped.Load()
}

// ToType converts the block to another variant. Converting to the same
// variant returns b itself; otherwise the result shares body and binding.
func (b *Block) ToType(target BlockType) *Block {
	switch b.typ {
	case BlockNormal:
		switch target {
		case BlockNormal:
			return b
		case BlockLambda:
			return b.retag(BlockLambda)
		case BlockThread:
			return b.retag(BlockThread)
		}
	case BlockLambda:
		switch target {
		case BlockNormal:
			return b.retag(BlockNormal)
		case BlockLambda:
			return b
		case BlockThread:
			return b.retag(BlockThread)
		}
	case BlockThread:
		switch target {
		case BlockNormal:
			return b.retag(BlockNormal)
		case BlockLambda:
			return b.retag(BlockLambda)
		case BlockThread:
			return b
		}
	}
	panic(fmt.Sprintf("runtime: unhandled block conversion %s -> %s", b.typ, target))
}

func (b *Block) retag(typ BlockType) *Block {
	return b.copyWith(typ, b.binding)
}

func (b *Block) copyWith(typ BlockType, binding *Binding) *Block {
	c := &Block{typ: typ, body: b.body, binding: binding}
	c.escaped.Store(b.escaped.Load())
	return c
}

// AllocScope creates the dynamic scope for one invocation of the block
func (b *Block) AllocScope(parent *DynamicScope) *DynamicScope {
	scope := NewDynamicScope(b.body.StaticScope(), parent)
	switch b.typ {
	case BlockNormal, BlockLambda:
	case BlockThread:
		scope.threadCopy = true
	default:
		panic(fmt.Sprintf("runtime: unhandled block type %s", b.typ))
	}
	scope.SetLambda(b.typ == BlockLambda)
	return scope
}

// CloneBlock returns a copy of the block sharing its binding
func (b *Block) CloneBlock() *Block {
	return b.copyWith(b.typ, b.binding)
}

// CloneBlockAndBinding returns a copy of the block with its own binding
func (b *Block) CloneBlockAndBinding() *Block {
	return b.copyWith(b.typ, b.binding.Clone())
}

// CloneBlockAndFrame returns a copy of the block whose binding carries a
// duplicated frame.
func (b *Block) CloneBlockAndFrame() *Block {
	return b.copyWith(b.typ, b.binding.CloneWithFrameDup())
}

// Call invokes the block. The new scope is live on tc for the duration of
// the body. Lambdas absorb their own returns here; other variants let
// every signal through.
func (b *Block) Call(ctx context.Context, tc *ThreadContext, args ...Value) (Value, error) {
	scope := b.AllocScope(b.binding.DynamicScope)
	tc.PushScope(scope)
	v, err := b.body.Yield(ctx, tc, b, scope, args)
	tc.PopScope()

	switch b.typ {
	case BlockLambda:
		if err != nil {
			v = HandleBreakAndReturnsInLambdas(tc, scope, err, b)
		}
		return ReturnOrRethrowSavedException(tc, v)
	case BlockNormal, BlockThread:
		return v, err
	}
	panic(fmt.Sprintf("runtime: unhandled block type %s", b.typ))
}

func (b *Block) String() string {
	return fmt.Sprintf("%s block %s", b.typ, b.body.StaticScope().Name)
}
