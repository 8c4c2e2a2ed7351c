package interp

import (
	"context"
	"errors"
	"fmt"

	"github.com/ludo-technologies/irflow/internal/ir"
	"github.com/ludo-technologies/irflow/internal/runtime"
)

// activation is one execution of a scope body
type activation struct {
	scope *ir.Scope
	dyn   *runtime.DynamicScope
	// blk is the block whose body is running, nil in methods and scripts
	blk   *runtime.Block
	frame *runtime.Frame

	temps     map[*ir.Variable]runtime.Value
	exception runtime.Value
	created   []*runtime.Block
}

func (a *activation) get(v *ir.Variable) runtime.Value {
	if !v.IsLocal() {
		return a.temps[v]
	}
	return a.dyn.GetValue(v.Name, a.depth(v))
}

func (a *activation) set(v *ir.Variable, value runtime.Value) {
	if v == nil {
		return
	}
	if !v.IsLocal() {
		if a.temps == nil {
			a.temps = make(map[*ir.Variable]runtime.Value)
		}
		a.temps[v] = value
		return
	}
	a.dyn.SetValue(v.Name, a.depth(v), value)
}

func (a *activation) depth(v *ir.Variable) int {
	if d := a.scope.Depth(v); d > 0 {
		return d
	}
	return 0
}

func (a *activation) eval(o ir.Operand) runtime.Value {
	switch o := o.(type) {
	case *ir.Variable:
		return a.get(o)
	case ir.Const:
		return o.Value
	case nil:
		return nil
	}
	return nil
}

func (a *activation) evalAll(ops []ir.Operand) []runtime.Value {
	out := make([]runtime.Value, len(ops))
	for i, o := range ops {
		out[i] = a.eval(o)
	}
	return out
}

// outcome is how control leaves a basic block
type outcome struct {
	next  *ir.BasicBlock
	value runtime.Value
	done  bool
}

// execute runs the activation until its body returns or an error escapes.
// Jumps are resolved here; rescuable errors transfer to the rescuer of the
// failing block and everything else leaves the scope.
func (r *run) execute(ctx context.Context, tc *runtime.ThreadContext, act *activation) (runtime.Value, error) {
	defer func() {
		for _, b := range act.created {
			b.Escape()
		}
	}()

	cfg := act.scope.CFG
	bb := act.scope.FirstBlock()
	for bb != nil && !bb.IsExit {
		out, err := r.runBlock(ctx, tc, act, bb)
		if err != nil {
			var jump *runtime.Jump
			if errors.As(err, &jump) {
				target := cfg.BlockByLabel(jump.Target)
				if target == nil {
					return nil, fmt.Errorf("%s: jump to unknown label %s", act.scope.Name, jump.Target)
				}
				bb = target
				continue
			}
			if rescuer := cfg.RescuerOf(bb); rescuer != nil && runtime.IsRescuable(err) {
				tc.Logger().Debug().Err(err).Str("rescuer", string(rescuer.Label)).Msg("rescue")
				act.exception = runtime.ExceptionValue(err)
				bb = rescuer
				continue
			}
			return nil, err
		}
		if out.done {
			return out.value, nil
		}
		bb = out.next
	}
	return nil, nil
}

func (r *run) runBlock(ctx context.Context, tc *runtime.ThreadContext, act *activation, bb *ir.BasicBlock) (outcome, error) {
	for _, instr := range bb.Instrs {
		if err := ctx.Err(); err != nil {
			return outcome{}, err
		}
		r.steps.Add(1)

		switch i := instr.(type) {
		case *ir.JumpInstr:
			return outcome{}, &runtime.Jump{Target: i.Target}
		case *ir.BranchInstr:
			if truthy(act.eval(i.Cond)) == i.OnTrue {
				return outcome{}, &runtime.Jump{Target: i.Target}
			}
		case *ir.ReturnInstr:
			return outcome{value: act.eval(i.Value), done: true}, nil
		case *ir.NonlocalReturnInstr:
			v, err := r.nonlocalReturn(tc, act, act.eval(i.Value))
			if err != nil {
				return outcome{}, err
			}
			return outcome{value: v, done: true}, nil
		case *ir.BreakInstr:
			v, err := runtime.InitiateBreak(tc, act.dyn, act.blk, act.eval(i.Value))
			if err != nil {
				return outcome{}, err
			}
			return outcome{value: v, done: true}, nil
		default:
			if err := r.step(ctx, tc, act, instr); err != nil {
				return outcome{}, err
			}
		}
	}
	return outcome{next: act.scope.FallThrough(bb)}, nil
}

// nonlocalReturn returns from the enclosing method. Method and script
// bodies simply return; closures and eval bodies go through the runtime.
func (r *run) nonlocalReturn(tc *runtime.ThreadContext, act *activation, v runtime.Value) (runtime.Value, error) {
	if act.blk == nil && act.scope.Kind != ir.ScopeEval {
		return v, nil
	}
	if act.blk != nil {
		if err := runtime.CheckForLJE(tc, act.dyn, act.blk); err != nil {
			return nil, err
		}
	}
	return runtime.InitiateNonLocalReturn(tc, act.dyn, act.blk, v)
}

// step executes an instruction that does not leave the block
func (r *run) step(ctx context.Context, tc *runtime.ThreadContext, act *activation, instr ir.Instr) error {
	switch i := instr.(type) {
	case *ir.CopyInstr:
		act.set(i.Dst, act.eval(i.Src))

	case *ir.BinOpInstr:
		v, err := binop(i.Kind, act.eval(i.A), act.eval(i.B))
		if err != nil {
			return err
		}
		act.set(i.Dst, v)

	case *ir.CallInstr:
		var blk *runtime.Block
		if i.Body != nil {
			blk = r.newBlock(runtime.BlockNormal, i.Body, act)
		} else if i.BlockArg != nil {
			b, err := asBlock(act.eval(i.BlockArg), true)
			if err != nil {
				return err
			}
			blk = b
		}
		v, err := r.call(ctx, tc, act.frame.Self, i.Method, act.evalAll(i.Args), blk)
		if err != nil && blk != nil {
			v, err = runtime.HandlePropagatedBreak(tc, act.dyn, err)
		}
		if err != nil {
			return err
		}
		act.set(i.Dst, v)

	case *ir.YieldInstr:
		blk := act.frame.Block
		if blk == nil {
			return runtime.NewLocalJumpError(runtime.ReasonNoReason, nil)
		}
		v, err := blk.Call(ctx, tc, act.evalAll(i.Args)...)
		if err != nil {
			return err
		}
		act.set(i.Dst, v)

	case *ir.BuildLambdaInstr:
		act.set(i.Dst, r.newBlock(runtime.BlockLambda, i.Body, act))

	case *ir.CallBlockInstr:
		blk, err := asBlock(act.eval(i.Block), false)
		if err != nil {
			return err
		}
		v, err := blk.Call(ctx, tc, act.evalAll(i.Args)...)
		if err != nil {
			return err
		}
		act.set(i.Dst, v)

	case *ir.EvalInstr:
		v, err := r.eval(ctx, tc, act, i.Body)
		if err != nil {
			return err
		}
		act.set(i.Dst, v)

	case *ir.ThreadInstr:
		blk := r.makeBlock(runtime.BlockNormal, i.Body, act).ToType(runtime.BlockThread)
		act.set(i.Dst, r.spawn(ctx, tc, blk))

	case *ir.RaiseInstr:
		return &runtime.RaiseError{Value: act.eval(i.Value)}

	case *ir.ReceiveExceptionInstr:
		act.set(i.Dst, act.exception)

	case *ir.ForeignInstr:
		if i.Raises {
			return &runtime.RaiseError{Value: i.Name}
		}
		act.set(i.Dst, nil)

	default:
		return fmt.Errorf("%s: cannot execute %s", act.scope.Name, instr)
	}
	return nil
}

// eval runs an eval body in a child of the current scope. The body sees
// the same block and frame, and breaks raised in it are attributed to the
// scope running the eval.
func (r *run) eval(ctx context.Context, tc *runtime.ThreadContext, act *activation, body *ir.Scope) (runtime.Value, error) {
	dyn := runtime.NewDynamicScope(r.statics[body], act.dyn)
	tc.PushScope(dyn)
	v, err := r.execute(ctx, tc, &activation{scope: body, dyn: dyn, blk: act.blk, frame: act.frame})
	tc.PopScope()
	if err != nil {
		return runtime.HandlePropagatedBreak(tc, act.dyn, err)
	}
	return v, nil
}

func asBlock(v runtime.Value, allowNil bool) (*runtime.Block, error) {
	if v == nil && allowNil {
		return nil, nil
	}
	blk, ok := v.(*runtime.Block)
	if !ok {
		return nil, &runtime.RaiseError{Value: fmt.Sprintf("TypeError: %s is not a block", Inspect(v))}
	}
	return blk, nil
}
