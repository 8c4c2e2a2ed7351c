package interp

import (
	"context"
	"fmt"
	"strings"

	"github.com/ludo-technologies/irflow/internal/runtime"
)

func (in *Interpreter) registerBuiltins() {
	in.builtins["puts"] = in.puts
	in.builtins["proc"] = builtinProc
	in.builtins["lambda"] = builtinLambda
	in.builtins["times"] = builtinTimes
	in.builtins["join"] = builtinJoin
}

func (in *Interpreter) puts(_ context.Context, _ *runtime.ThreadContext, args []runtime.Value, _ *runtime.Block) (runtime.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			parts[i] = s
		} else {
			parts[i] = Inspect(a)
		}
	}
	in.outMu.Lock()
	defer in.outMu.Unlock()
	_, err := fmt.Fprintln(in.out, strings.Join(parts, " "))
	return nil, err
}

// builtinProc returns the block it was given
func builtinProc(_ context.Context, _ *runtime.ThreadContext, _ []runtime.Value, blk *runtime.Block) (runtime.Value, error) {
	if blk == nil {
		return nil, &runtime.RaiseError{Value: "ArgumentError: tried to create Proc object without a block"}
	}
	return blk, nil
}

// builtinLambda converts the block it was given into a lambda
func builtinLambda(_ context.Context, _ *runtime.ThreadContext, _ []runtime.Value, blk *runtime.Block) (runtime.Value, error) {
	if blk == nil {
		return nil, &runtime.RaiseError{Value: "ArgumentError: tried to create Proc object without a block"}
	}
	return blk.ToType(runtime.BlockLambda), nil
}

// builtinTimes yields 0 through n-1 and returns n
func builtinTimes(ctx context.Context, tc *runtime.ThreadContext, args []runtime.Value, blk *runtime.Block) (runtime.Value, error) {
	if len(args) != 1 {
		return nil, &runtime.RaiseError{Value: "ArgumentError: times expects a count"}
	}
	n, ok := args[0].(int64)
	if !ok {
		return nil, &runtime.RaiseError{Value: fmt.Sprintf("TypeError: %s is not an integer", Inspect(args[0]))}
	}
	if blk == nil {
		return nil, runtime.NewLocalJumpError(runtime.ReasonNoReason, nil)
	}
	for i := int64(0); i < n; i++ {
		if _, err := blk.Call(ctx, tc, i); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// builtinJoin waits for a thread and returns its value
func builtinJoin(ctx context.Context, _ *runtime.ThreadContext, args []runtime.Value, _ *runtime.Block) (runtime.Value, error) {
	if len(args) != 1 {
		return nil, &runtime.RaiseError{Value: "ArgumentError: join expects a thread"}
	}
	th, ok := args[0].(*Thread)
	if !ok {
		return nil, &runtime.RaiseError{Value: fmt.Sprintf("TypeError: %s is not a thread", Inspect(args[0]))}
	}
	return th.Join(ctx)
}
