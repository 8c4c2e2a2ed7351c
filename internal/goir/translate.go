package goir

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/tools/go/ssa"

	"github.com/ludo-technologies/irflow/internal/ir"
)

type translator struct {
	pkg    *types.Package
	logger zerolog.Logger
}

func (t *translator) funcName(fn *ssa.Function) string {
	return fn.RelString(t.pkg)
}

// lowering is the state of one function being lowered into one scope
type lowering struct {
	t     *translator
	fn    *ssa.Function
	scope *ir.Scope
	b     *ir.Builder

	// shared marks registers read by closures or goroutines; they become
	// locals so nested scopes can reach them.
	shared   map[ssa.Value]string
	free     map[*ssa.FreeVar]string
	closures map[*ssa.Function]*ir.Scope
	phis     int
	spawns   int
}

// lower translates fn into scope. free names the locals of the enclosing
// scope bound to fn's free variables.
func (t *translator) lower(fn *ssa.Function, scope *ir.Scope, free []string) error {
	l := &lowering{
		t:        t,
		fn:       fn,
		scope:    scope,
		b:        ir.NewBuilder(scope),
		shared:   make(map[ssa.Value]string),
		free:     make(map[*ssa.FreeVar]string),
		closures: make(map[*ssa.Function]*ir.Scope),
	}
	for i, fv := range fn.FreeVars {
		if i < len(free) {
			l.free[fv] = free[i]
		}
	}
	l.scanShared()

	for _, anon := range fn.AnonFuncs {
		params := make([]string, len(anon.Params))
		for i, p := range anon.Params {
			params[i] = p.Name()
		}
		l.closures[anon] = scope.NewClosure(anon.Name(), ir.ScopeClosure, params...)
	}

	for _, blk := range fn.Blocks {
		if err := l.block(blk); err != nil {
			return err
		}
	}
	if fn.Recover != nil {
		rescuer := blockLabel(fn.Recover)
		for _, bb := range scope.CFG.Blocks() {
			if !bb.IsEntry && !bb.IsExit && bb.Label != rescuer {
				l.b.Protect(bb.Label, rescuer)
			}
		}
	}
	if err := l.b.Finish(); err != nil {
		return err
	}

	for _, anon := range fn.AnonFuncs {
		if err := t.lower(anon, l.closures[anon], l.bindings(anon)); err != nil {
			return fmt.Errorf("%s: %w", anon.Name(), err)
		}
	}
	return nil
}

// scanShared finds registers captured by closures or passed to goroutines
// and declares them as locals up front.
func (l *lowering) scanShared() {
	share := func(v ssa.Value) {
		switch v.(type) {
		case *ssa.Parameter, *ssa.FreeVar, *ssa.Const, *ssa.Function, *ssa.Global, *ssa.Builtin:
			return
		}
		if v == nil || v.Name() == "" {
			return
		}
		if _, ok := l.shared[v]; !ok {
			name := "$" + v.Name()
			l.shared[v] = name
			l.scope.Var(name)
		}
	}
	for _, blk := range l.fn.Blocks {
		for _, instr := range blk.Instrs {
			switch i := instr.(type) {
			case *ssa.MakeClosure:
				for _, b := range i.Bindings {
					share(b)
				}
			case *ssa.Go:
				share(i.Call.Value)
				for _, a := range i.Call.Args {
					share(a)
				}
			}
		}
	}
}

// bindings returns the local names bound to anon's free variables
func (l *lowering) bindings(anon *ssa.Function) []string {
	for _, blk := range l.fn.Blocks {
		for _, instr := range blk.Instrs {
			mc, ok := instr.(*ssa.MakeClosure)
			if !ok || mc.Fn != anon {
				continue
			}
			names := make([]string, len(mc.Bindings))
			for i, b := range mc.Bindings {
				names[i] = l.name(b)
			}
			return names
		}
	}
	return nil
}

// name returns the IR local name of a value visible to nested scopes
func (l *lowering) name(v ssa.Value) string {
	switch v := v.(type) {
	case *ssa.Parameter:
		return v.Name()
	case *ssa.FreeVar:
		return l.free[v]
	}
	if name, ok := l.shared[v]; ok {
		return name
	}
	return "$" + v.Name()
}

func blockLabel(blk *ssa.BasicBlock) ir.Label {
	return ir.Label(fmt.Sprintf("b%d", blk.Index))
}

// operand converts an SSA value into an IR operand
func (l *lowering) operand(v ssa.Value) ir.Operand {
	switch v := v.(type) {
	case nil:
		return ir.Nil
	case *ssa.Const:
		return constOperand(v)
	case *ssa.Parameter:
		return l.scope.Var(v.Name())
	case *ssa.FreeVar:
		return l.scope.Var(l.free[v])
	case *ssa.Function:
		return ir.Str(l.t.funcName(v))
	case *ssa.Global:
		return ir.Str(v.RelString(l.t.pkg))
	case *ssa.Builtin:
		return ir.Str(v.Name())
	}
	return l.dst(v)
}

// dst returns the variable holding a register
func (l *lowering) dst(v ssa.Value) *ir.Variable {
	if name, ok := l.shared[v]; ok {
		return l.scope.Var(name)
	}
	return l.scope.Temp(v.Name())
}

func (l *lowering) operands(vs []ssa.Value) []ir.Operand {
	out := make([]ir.Operand, 0, len(vs))
	for _, v := range vs {
		out = append(out, l.operand(v))
	}
	return out
}

func constOperand(c *ssa.Const) ir.Operand {
	if c.Value == nil {
		return ir.Nil
	}
	switch c.Value.Kind() {
	case constant.Int:
		if n, ok := constant.Int64Val(c.Value); ok {
			return ir.Int(n)
		}
	case constant.String:
		return ir.Str(constant.StringVal(c.Value))
	case constant.Bool:
		return ir.Const{Value: constant.BoolVal(c.Value)}
	case constant.Float:
		f, _ := constant.Float64Val(c.Value)
		return ir.Const{Value: f}
	}
	return ir.Str(c.Value.ExactString())
}

func (l *lowering) block(blk *ssa.BasicBlock) error {
	l.b.Block(blockLabel(blk))
	for _, instr := range blk.Instrs {
		switch i := instr.(type) {
		case *ssa.Phi, *ssa.DebugRef:
			continue
		case *ssa.Jump:
			l.copyPhis(blk, blk.Succs[0])
			l.b.Emit(&ir.JumpInstr{Target: blockLabel(blk.Succs[0])})
		case *ssa.If:
			l.branch(blk, i)
		case *ssa.Return:
			l.ret(i)
		case *ssa.Panic:
			l.b.Emit(&ir.RaiseInstr{Value: l.operand(i.X)})
		default:
			if err := l.emit(instr); err != nil {
				return err
			}
		}
	}
	return nil
}

// branch lowers an if. Edges into blocks with phis get their own block
// holding the phi copies.
func (l *lowering) branch(blk *ssa.BasicBlock, i *ssa.If) {
	then, els := blk.Succs[0], blk.Succs[1]
	target := blockLabel(els)
	if hasPhis(els) {
		target = ir.Label(fmt.Sprintf("%s.%s", blockLabel(blk), blockLabel(els)))
	}
	l.b.Emit(&ir.BranchInstr{Cond: l.operand(i.Cond), OnTrue: false, Target: target})
	l.copyPhis(blk, then)
	l.b.Emit(&ir.JumpInstr{Target: blockLabel(then)})
	if hasPhis(els) {
		l.b.Block(target)
		l.copyPhis(blk, els)
		l.b.Emit(&ir.JumpInstr{Target: blockLabel(els)})
	}
}

func hasPhis(blk *ssa.BasicBlock) bool {
	if len(blk.Instrs) == 0 {
		return false
	}
	_, ok := blk.Instrs[0].(*ssa.Phi)
	return ok
}

// copyPhis assigns the phis of succ for the edge from pred. Values go
// through fresh temporaries so the copies behave as one parallel move.
func (l *lowering) copyPhis(pred, succ *ssa.BasicBlock) {
	edge := -1
	for i, p := range succ.Preds {
		if p == pred {
			edge = i
			break
		}
	}
	if edge < 0 {
		return
	}
	var phis []*ssa.Phi
	for _, instr := range succ.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		phis = append(phis, phi)
	}
	tmps := make([]*ir.Variable, len(phis))
	for i, phi := range phis {
		tmps[i] = l.scope.Temp(fmt.Sprintf("phi%d", l.phis))
		l.phis++
		l.b.Emit(&ir.CopyInstr{Dst: tmps[i], Src: l.operand(phi.Edges[edge])})
	}
	for i, phi := range phis {
		l.b.Emit(&ir.CopyInstr{Dst: l.dst(phi), Src: tmps[i]})
	}
}

func (l *lowering) ret(i *ssa.Return) {
	switch len(i.Results) {
	case 0:
		l.b.Emit(&ir.ReturnInstr{Value: ir.Nil})
	case 1:
		l.b.Emit(&ir.ReturnInstr{Value: l.operand(i.Results[0])})
	default:
		tuple := l.scope.Temp(fmt.Sprintf("ret%d", i.Block().Index))
		l.b.Emit(&ir.ForeignInstr{Name: "tuple", Dst: tuple, Args: l.operands(i.Results)})
		l.b.Emit(&ir.ReturnInstr{Value: tuple})
	}
}

var binOps = map[token.Token]ir.BinOpKind{
	token.ADD: ir.BinAdd,
	token.SUB: ir.BinSub,
	token.LSS: ir.BinLt,
	token.EQL: ir.BinEq,
}

func (l *lowering) emit(instr ssa.Instruction) error {
	switch i := instr.(type) {
	case *ssa.BinOp:
		if kind, ok := binOps[i.Op]; ok {
			l.b.Emit(&ir.BinOpInstr{Kind: kind, Dst: l.dst(i), A: l.operand(i.X), B: l.operand(i.Y)})
			return nil
		}
		if i.Op == token.GTR {
			l.b.Emit(&ir.BinOpInstr{Kind: ir.BinLt, Dst: l.dst(i), A: l.operand(i.Y), B: l.operand(i.X)})
			return nil
		}
		l.b.Emit(&ir.ForeignInstr{Name: i.Op.String(), Dst: l.dst(i), Args: l.operands([]ssa.Value{i.X, i.Y})})
	case *ssa.Call:
		l.call(i.Common(), l.dst(i))
	case *ssa.MakeClosure:
		body, ok := l.closures[i.Fn.(*ssa.Function)]
		if !ok {
			return fmt.Errorf("closure %s is not declared by %s", i.Fn.Name(), l.fn.Name())
		}
		l.b.Emit(&ir.BuildLambdaInstr{Dst: l.dst(i), Body: body})
	case *ssa.Go:
		return l.spawn(i)
	case *ssa.Defer:
		l.b.Emit(&ir.ForeignInstr{Name: "defer", Args: l.operands(append([]ssa.Value{i.Call.Value}, i.Call.Args...))})
	default:
		var args []ir.Operand
		for _, op := range instr.Operands(nil) {
			if op != nil && *op != nil {
				args = append(args, l.operand(*op))
			}
		}
		f := &ir.ForeignInstr{Name: opName(instr), Args: args}
		if v, ok := instr.(ssa.Value); ok {
			f.Dst = l.dst(v)
		}
		l.b.Emit(f)
	}
	return nil
}

func opName(instr ssa.Instruction) string {
	name := fmt.Sprintf("%T", instr)
	return strings.ToLower(strings.TrimPrefix(name, "*ssa."))
}

// call lowers a call. Static callees become method calls, builtins become
// foreign operations and dynamic callees are called as blocks.
func (l *lowering) call(c *ssa.CallCommon, dst *ir.Variable) {
	if c.IsInvoke() {
		args := l.operands(append([]ssa.Value{c.Value}, c.Args...))
		l.b.Emit(&ir.CallInstr{Dst: dst, Method: c.Method.Name(), Args: args})
		return
	}
	switch callee := c.Value.(type) {
	case *ssa.Function:
		l.b.Emit(&ir.CallInstr{Dst: dst, Method: l.t.funcName(callee), Args: l.operands(c.Args)})
	case *ssa.Builtin:
		if callee.Name() == "recover" {
			l.b.Emit(&ir.ReceiveExceptionInstr{Dst: dst})
			return
		}
		l.b.Emit(&ir.ForeignInstr{Name: callee.Name(), Dst: dst, Args: l.operands(c.Args)})
	default:
		l.b.Emit(&ir.CallBlockInstr{Dst: dst, Block: l.operand(c.Value), Args: l.operands(c.Args)})
	}
}

// spawn lowers a go statement into a thread whose body performs the call
// on locals shared with the spawning scope.
func (l *lowering) spawn(g *ssa.Go) error {
	body := l.scope.NewClosure(fmt.Sprintf("%s$go%d", l.fn.Name(), l.spawns), ir.ScopeClosure)
	l.spawns++

	inner := &lowering{
		t:      l.t,
		fn:     l.fn,
		scope:  body,
		b:      ir.NewBuilder(body),
		shared: l.shared,
		free:   l.free,
	}
	inner.b.Block("start")
	inner.call(&g.Call, nil)
	inner.b.Emit(&ir.ReturnInstr{Value: ir.Nil})
	if err := inner.b.Finish(); err != nil {
		return err
	}
	l.b.Emit(&ir.ThreadInstr{Body: body})
	return nil
}
