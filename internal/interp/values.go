package interp

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ludo-technologies/irflow/internal/ir"
	"github.com/ludo-technologies/irflow/internal/runtime"
)

// truthy follows the usual rule: only nil and false are false
func truthy(v runtime.Value) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	}
	return true
}

func binop(kind ir.BinOpKind, a, b runtime.Value) (runtime.Value, error) {
	if kind == ir.BinEq {
		return equal(a, b), nil
	}
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return intOp(kind, x, y), nil
		case float64:
			return floatOp(kind, float64(x), y), nil
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return floatOp(kind, x, float64(y)), nil
		case float64:
			return floatOp(kind, x, y), nil
		}
	case string:
		if y, ok := b.(string); ok {
			switch kind {
			case ir.BinAdd:
				return x + y, nil
			case ir.BinLt:
				return x < y, nil
			}
		}
	}
	return nil, &runtime.RaiseError{
		Value: fmt.Sprintf("TypeError: unsupported operands for %s: %s and %s", kind, Inspect(a), Inspect(b)),
	}
}

func intOp(kind ir.BinOpKind, x, y int64) runtime.Value {
	switch kind {
	case ir.BinAdd:
		return x + y
	case ir.BinSub:
		return x - y
	default:
		return x < y
	}
}

func floatOp(kind ir.BinOpKind, x, y float64) runtime.Value {
	switch kind {
	case ir.BinAdd:
		return x + y
	case ir.BinSub:
		return x - y
	default:
		return x < y
	}
}

func equal(a, b runtime.Value) bool {
	switch x := a.(type) {
	case int64:
		if y, ok := b.(float64); ok {
			return float64(x) == y
		}
	case float64:
		if y, ok := b.(int64); ok {
			return x == float64(y)
		}
	}
	switch a.(type) {
	case nil, bool, int64, float64, string, *runtime.Block, *Thread:
		return a == b
	}
	return false
}

// Inspect renders a value for output
func Inspect(v runtime.Value) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case *runtime.Block:
		return fmt.Sprintf("#<Proc:%s %s>", v.Type(), v.Body().StaticScope().Name)
	case *Thread:
		return "#<Thread>"
	}
	return fmt.Sprintf("%v", v)
}

// Thread is the handle of a running thread body
type Thread struct {
	done  chan struct{}
	value runtime.Value
	err   error
}

func newThread() *Thread {
	return &Thread{done: make(chan struct{})}
}

func (t *Thread) finish(v runtime.Value, err error) {
	t.value, t.err = v, err
	close(t.done)
}

// Join waits for the thread and returns its value, or the error that
// terminated it.
func (t *Thread) Join(ctx context.Context) (runtime.Value, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
