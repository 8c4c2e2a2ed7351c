// Package interp is a reference interpreter for IR programs. It executes
// scopes block by block and routes non-local returns and breaks through
// the boundaries defined by the runtime package.
package interp

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ludo-technologies/irflow/internal/ir"
	"github.com/ludo-technologies/irflow/internal/runtime"
)

// Builtin is a method implemented in Go
type Builtin func(ctx context.Context, tc *runtime.ThreadContext, args []runtime.Value, blk *runtime.Block) (runtime.Value, error)

// Option configures an interpreter
type Option func(*Interpreter)

// WithLogger sets the logger used for call and signal tracing
func WithLogger(logger zerolog.Logger) Option {
	return func(in *Interpreter) {
		in.logger = logger
	}
}

// WithOutput sets where puts writes
func WithOutput(w io.Writer) Option {
	return func(in *Interpreter) {
		in.out = w
	}
}

// WithBuiltin registers or replaces a builtin method
func WithBuiltin(name string, fn Builtin) Option {
	return func(in *Interpreter) {
		in.builtins[name] = fn
	}
}

// Interpreter executes one IR program. Run may be called repeatedly and
// concurrently; each call gets its own threads and variables.
type Interpreter struct {
	prog     *ir.Program
	statics  map[*ir.Scope]*runtime.StaticScope
	builtins map[string]Builtin
	logger   zerolog.Logger

	outMu sync.Mutex
	out   io.Writer
}

// New creates an interpreter for prog
func New(prog *ir.Program, opts ...Option) *Interpreter {
	in := &Interpreter{
		prog:     prog,
		statics:  make(map[*ir.Scope]*runtime.StaticScope),
		builtins: make(map[string]Builtin),
		logger:   zerolog.Nop(),
		out:      io.Discard,
	}
	for _, s := range prog.AllScopes() {
		in.statics[s] = runtime.NewStaticScope(s)
	}
	in.registerBuiltins()
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Result is the outcome of a successful run
type Result struct {
	Value   runtime.Value
	Steps   int64
	Threads int
}

// run is the state of one Run call
type run struct {
	*Interpreter
	threads sync.WaitGroup
	spawned atomic.Int64
	steps   atomic.Int64
}

// Run executes the script scope on a fresh main thread. Signals that
// escape the script are reported as LocalJumpError or ThreadError.
func (in *Interpreter) Run(ctx context.Context) (*Result, error) {
	script := in.prog.Script
	if script == nil {
		return nil, fmt.Errorf("program %s has no script", in.prog.Name)
	}
	r := &run{Interpreter: in}
	tc := runtime.NewThreadContext(in.logger)

	dyn := runtime.NewDynamicScope(in.statics[script], nil)
	frame := &runtime.Frame{Self: "main", Name: script.Name, Visibility: runtime.VisibilityPrivate}

	tc.PushScope(dyn)
	v, err := r.execute(ctx, tc, &activation{scope: script, dyn: dyn, frame: frame})
	tc.PopScope()
	if err != nil {
		v, err = runtime.HandleNonlocalReturn(dyn, err)
	}
	r.threads.Wait()

	if err != nil {
		err = runtime.HandleEscapedJump(tc, err)
		in.logger.Debug().Err(err).Msg("program failed")
		return nil, err
	}
	return &Result{Value: v, Steps: r.steps.Load(), Threads: int(r.spawned.Load())}, nil
}

// invoke calls a user method. The method boundary absorbs returns aimed
// at its own scope.
func (r *run) invoke(ctx context.Context, tc *runtime.ThreadContext, m *ir.Scope, self runtime.Value, args []runtime.Value, blk *runtime.Block) (runtime.Value, error) {
	if len(args) != len(m.Params) {
		return nil, &runtime.RaiseError{
			Value: fmt.Sprintf("ArgumentError: wrong number of arguments for %s (given %d, expected %d)", m.Name, len(args), len(m.Params)),
		}
	}
	dyn := runtime.NewDynamicScope(r.statics[m], nil)
	for i, p := range m.Params {
		dyn.SetValue(p.Name, 0, args[i])
	}
	frame := &runtime.Frame{Self: self, Name: m.Name, Visibility: runtime.VisibilityPublic, Block: blk}

	r.logger.Debug().Str("method", m.Name).Int("args", len(args)).Bool("block", blk != nil).Msg("invoke")
	tc.PushScope(dyn)
	v, err := r.execute(ctx, tc, &activation{scope: m, dyn: dyn, frame: frame})
	tc.PopScope()
	if err != nil {
		return runtime.HandleNonlocalReturn(dyn, err)
	}
	return v, nil
}

// call dispatches a method call by name, user methods first
func (r *run) call(ctx context.Context, tc *runtime.ThreadContext, self runtime.Value, name string, args []runtime.Value, blk *runtime.Block) (runtime.Value, error) {
	if m := r.prog.Method(name); m != nil {
		return r.invoke(ctx, tc, m, self, args, blk)
	}
	if fn, ok := r.builtins[name]; ok {
		return fn(ctx, tc, args, blk)
	}
	return nil, &runtime.RaiseError{Value: fmt.Sprintf("NoMethodError: undefined method '%s'", name)}
}

// closureBody runs a closure scope as the body of a block
type closureBody struct {
	r      *run
	scope  *ir.Scope
	static *runtime.StaticScope
}

func (b *closureBody) StaticScope() *runtime.StaticScope {
	return b.static
}

func (b *closureBody) Yield(ctx context.Context, tc *runtime.ThreadContext, blk *runtime.Block, scope *runtime.DynamicScope, args []runtime.Value) (runtime.Value, error) {
	for i, p := range b.scope.Params {
		var v runtime.Value
		if i < len(args) {
			v = args[i]
		}
		scope.SetValue(p.Name, 0, v)
	}
	return b.r.execute(ctx, tc, &activation{
		scope: b.scope,
		dyn:   scope,
		blk:   blk,
		frame: blk.Binding().Frame,
	})
}

// makeBlock closes body over the activation's current scope and frame
func (r *run) makeBlock(typ runtime.BlockType, body *ir.Scope, act *activation) *runtime.Block {
	cb := &closureBody{r: r, scope: body, static: r.statics[body]}
	return runtime.NewBlock(typ, cb, runtime.NewBinding(act.frame, act.dyn))
}

// newBlock is makeBlock for blocks that escape when act finishes
func (r *run) newBlock(typ runtime.BlockType, body *ir.Scope, act *activation) *runtime.Block {
	blk := r.makeBlock(typ, body, act)
	act.created = append(act.created, blk)
	return blk
}

// spawn starts a thread running blk on its own goroutine and context
func (r *run) spawn(ctx context.Context, tc *runtime.ThreadContext, blk *runtime.Block) *Thread {
	th := newThread()
	child := tc.Spawn()
	r.spawned.Add(1)
	r.threads.Add(1)
	go func() {
		defer r.threads.Done()
		v, err := blk.Call(ctx, child)
		err = runtime.HandleEscapedJump(child, err)
		if err != nil {
			child.Logger().Debug().Err(err).Msg("thread terminated")
		}
		th.finish(v, err)
	}()
	return th
}
