package ir

import (
	"fmt"
	"strings"
)

// Operation identifies an instruction kind
type Operation int

const (
	OpCopy Operation = iota
	OpBinOp
	OpJump
	OpBranch
	OpReturn
	OpNonlocalReturn
	OpBreak
	OpYield
	OpCall
	OpBuildLambda
	OpCallBlock
	OpEval
	OpThread
	OpRaise
	OpReceiveException
	OpForeign
)

var operationNames = map[Operation]string{
	OpCopy:             "copy",
	OpBinOp:            "binop",
	OpJump:             "jump",
	OpBranch:           "branch",
	OpReturn:           "return",
	OpNonlocalReturn:   "nonlocal_return",
	OpBreak:            "break",
	OpYield:            "yield",
	OpCall:             "call",
	OpBuildLambda:      "lambda",
	OpCallBlock:        "call_block",
	OpEval:             "eval",
	OpThread:           "thread",
	OpRaise:            "raise",
	OpReceiveException: "recv_exception",
	OpForeign:          "foreign",
}

// String returns the mnemonic of the operation
func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return "unknown"
}

// ParseOperation maps a mnemonic back to its operation
func ParseOperation(name string) (Operation, bool) {
	for op, n := range operationNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}

// Instr is a single IR instruction. The dataflow engine only needs to know
// which variables an instruction defines and uses.
type Instr interface {
	Op() Operation
	// Result is the variable written by the instruction, or nil
	Result() *Variable
	Operands() []Operand
	// CanRaise reports whether the instruction may raise a rescuable error
	CanRaise() bool
	String() string
}

// ClosureAccepting is implemented by instructions that reference a nested scope
type ClosureAccepting interface {
	Closure() *Scope
}

// Defs returns the variables defined by instr
func Defs(instr Instr) []*Variable {
	if r := instr.Result(); r != nil {
		return []*Variable{r}
	}
	return nil
}

// Uses returns the variables read by instr. Locals captured by a nested
// closure count as uses at the instruction that hands the closure over.
func Uses(instr Instr) []*Variable {
	var uses []*Variable
	for _, op := range instr.Operands() {
		if v, ok := op.(*Variable); ok {
			uses = append(uses, v)
		}
	}
	if ca, ok := instr.(ClosureAccepting); ok && ca.Closure() != nil {
		uses = append(uses, ca.Closure().FreeVariables()...)
	}
	return uses
}

func formatResult(dst *Variable, body string) string {
	if dst == nil {
		return body
	}
	return fmt.Sprintf("%s = %s", dst, body)
}

func formatOperands(ops []Operand) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, ", ")
}

// CopyInstr copies Src into Dst
type CopyInstr struct {
	Dst *Variable
	Src Operand
}

func (i *CopyInstr) Op() Operation       { return OpCopy }
func (i *CopyInstr) Result() *Variable   { return i.Dst }
func (i *CopyInstr) Operands() []Operand { return []Operand{i.Src} }
func (i *CopyInstr) CanRaise() bool      { return false }
func (i *CopyInstr) String() string      { return formatResult(i.Dst, "copy("+i.Src.String()+")") }

// BinOpKind selects the arithmetic or comparison performed by BinOpInstr
type BinOpKind int

const (
	BinAdd BinOpKind = iota
	BinSub
	BinLt
	BinEq
)

var binOpNames = []string{"add", "sub", "lt", "eq"}

func (k BinOpKind) String() string {
	if int(k) < len(binOpNames) {
		return binOpNames[k]
	}
	return "unknown"
}

// ParseBinOpKind maps a mnemonic to its BinOpKind
func ParseBinOpKind(name string) (BinOpKind, bool) {
	for i, n := range binOpNames {
		if n == name {
			return BinOpKind(i), true
		}
	}
	return 0, false
}

// BinOpInstr computes Dst = A <Kind> B
type BinOpInstr struct {
	Kind BinOpKind
	Dst  *Variable
	A, B Operand
}

func (i *BinOpInstr) Op() Operation       { return OpBinOp }
func (i *BinOpInstr) Result() *Variable   { return i.Dst }
func (i *BinOpInstr) Operands() []Operand { return []Operand{i.A, i.B} }
func (i *BinOpInstr) CanRaise() bool      { return true }
func (i *BinOpInstr) String() string {
	return formatResult(i.Dst, fmt.Sprintf("%s(%s, %s)", i.Kind, i.A, i.B))
}

// JumpInstr transfers control to Target within the same scope
type JumpInstr struct {
	Target Label
}

func (i *JumpInstr) Op() Operation       { return OpJump }
func (i *JumpInstr) Result() *Variable   { return nil }
func (i *JumpInstr) Operands() []Operand { return nil }
func (i *JumpInstr) CanRaise() bool      { return false }
func (i *JumpInstr) String() string      { return "jump " + string(i.Target) }

// BranchInstr jumps to Target when the truthiness of Cond equals OnTrue,
// and falls through otherwise.
type BranchInstr struct {
	Cond   Operand
	OnTrue bool
	Target Label
}

func (i *BranchInstr) Op() Operation       { return OpBranch }
func (i *BranchInstr) Result() *Variable   { return nil }
func (i *BranchInstr) Operands() []Operand { return []Operand{i.Cond} }
func (i *BranchInstr) CanRaise() bool      { return false }
func (i *BranchInstr) String() string {
	if i.OnTrue {
		return fmt.Sprintf("btrue(%s, %s)", i.Cond, i.Target)
	}
	return fmt.Sprintf("bfalse(%s, %s)", i.Cond, i.Target)
}

// ReturnInstr returns from the current scope
type ReturnInstr struct {
	Value Operand
}

func (i *ReturnInstr) Op() Operation       { return OpReturn }
func (i *ReturnInstr) Result() *Variable   { return nil }
func (i *ReturnInstr) Operands() []Operand { return []Operand{i.Value} }
func (i *ReturnInstr) CanRaise() bool      { return false }
func (i *ReturnInstr) String() string      { return "return(" + i.Value.String() + ")" }

// NonlocalReturnInstr is a `return` written inside a closure; it leaves the
// enclosing method (or the nearest lambda).
type NonlocalReturnInstr struct {
	Value Operand
}

func (i *NonlocalReturnInstr) Op() Operation       { return OpNonlocalReturn }
func (i *NonlocalReturnInstr) Result() *Variable   { return nil }
func (i *NonlocalReturnInstr) Operands() []Operand { return []Operand{i.Value} }
func (i *NonlocalReturnInstr) CanRaise() bool      { return false }
func (i *NonlocalReturnInstr) String() string {
	return "nonlocal_return(" + i.Value.String() + ")"
}

// BreakInstr breaks out of the closure to the scope that created it
type BreakInstr struct {
	Value Operand
}

func (i *BreakInstr) Op() Operation       { return OpBreak }
func (i *BreakInstr) Result() *Variable   { return nil }
func (i *BreakInstr) Operands() []Operand { return []Operand{i.Value} }
func (i *BreakInstr) CanRaise() bool      { return false }
func (i *BreakInstr) String() string      { return "break(" + i.Value.String() + ")" }

// YieldInstr calls the block passed to the current method
type YieldInstr struct {
	Dst  *Variable
	Args []Operand
}

func (i *YieldInstr) Op() Operation       { return OpYield }
func (i *YieldInstr) Result() *Variable   { return i.Dst }
func (i *YieldInstr) Operands() []Operand { return i.Args }
func (i *YieldInstr) CanRaise() bool      { return true }
func (i *YieldInstr) String() string {
	return formatResult(i.Dst, "yield("+formatOperands(i.Args)+")")
}

// CallInstr invokes a method, optionally passing a block literal (Closure)
// or an existing block value (BlockArg).
type CallInstr struct {
	Dst      *Variable
	Method   string
	Args     []Operand
	Body     *Scope
	BlockArg Operand
}

func (i *CallInstr) Op() Operation     { return OpCall }
func (i *CallInstr) Result() *Variable { return i.Dst }
func (i *CallInstr) Operands() []Operand {
	if i.BlockArg != nil {
		return append(append([]Operand{}, i.Args...), i.BlockArg)
	}
	return i.Args
}
func (i *CallInstr) CanRaise() bool  { return true }
func (i *CallInstr) Closure() *Scope { return i.Body }
func (i *CallInstr) String() string {
	s := fmt.Sprintf("call %s(%s)", i.Method, formatOperands(i.Args))
	if i.Body != nil {
		s += " &" + i.Body.Name
	} else if i.BlockArg != nil {
		s += " &" + i.BlockArg.String()
	}
	return formatResult(i.Dst, s)
}

// BuildLambdaInstr materializes a lambda from a nested closure scope
type BuildLambdaInstr struct {
	Dst  *Variable
	Body *Scope
}

func (i *BuildLambdaInstr) Op() Operation       { return OpBuildLambda }
func (i *BuildLambdaInstr) Result() *Variable   { return i.Dst }
func (i *BuildLambdaInstr) Operands() []Operand { return nil }
func (i *BuildLambdaInstr) CanRaise() bool      { return false }
func (i *BuildLambdaInstr) Closure() *Scope     { return i.Body }
func (i *BuildLambdaInstr) String() string {
	return formatResult(i.Dst, "lambda &"+i.Body.Name)
}

// CallBlockInstr invokes a block value held in a variable
type CallBlockInstr struct {
	Dst   *Variable
	Block Operand
	Args  []Operand
}

func (i *CallBlockInstr) Op() Operation     { return OpCallBlock }
func (i *CallBlockInstr) Result() *Variable { return i.Dst }
func (i *CallBlockInstr) Operands() []Operand {
	return append([]Operand{i.Block}, i.Args...)
}
func (i *CallBlockInstr) CanRaise() bool { return true }
func (i *CallBlockInstr) String() string {
	return formatResult(i.Dst, fmt.Sprintf("%s.call(%s)", i.Block, formatOperands(i.Args)))
}

// EvalInstr runs an eval body in the current binding
type EvalInstr struct {
	Dst  *Variable
	Body *Scope
}

func (i *EvalInstr) Op() Operation       { return OpEval }
func (i *EvalInstr) Result() *Variable   { return i.Dst }
func (i *EvalInstr) Operands() []Operand { return nil }
func (i *EvalInstr) CanRaise() bool      { return true }
func (i *EvalInstr) Closure() *Scope     { return i.Body }
func (i *EvalInstr) String() string      { return formatResult(i.Dst, "eval &"+i.Body.Name) }

// ThreadInstr runs a closure as a thread body and joins it
type ThreadInstr struct {
	Dst  *Variable
	Body *Scope
}

func (i *ThreadInstr) Op() Operation       { return OpThread }
func (i *ThreadInstr) Result() *Variable   { return i.Dst }
func (i *ThreadInstr) Operands() []Operand { return nil }
func (i *ThreadInstr) CanRaise() bool      { return true }
func (i *ThreadInstr) Closure() *Scope     { return i.Body }
func (i *ThreadInstr) String() string      { return formatResult(i.Dst, "thread &"+i.Body.Name) }

// RaiseInstr raises an ordinary, rescuable error
type RaiseInstr struct {
	Value Operand
}

func (i *RaiseInstr) Op() Operation       { return OpRaise }
func (i *RaiseInstr) Result() *Variable   { return nil }
func (i *RaiseInstr) Operands() []Operand { return []Operand{i.Value} }
func (i *RaiseInstr) CanRaise() bool      { return true }
func (i *RaiseInstr) String() string      { return "raise(" + i.Value.String() + ")" }

// ReceiveExceptionInstr stores the error that transferred control to a rescuer
type ReceiveExceptionInstr struct {
	Dst *Variable
}

func (i *ReceiveExceptionInstr) Op() Operation       { return OpReceiveException }
func (i *ReceiveExceptionInstr) Result() *Variable   { return i.Dst }
func (i *ReceiveExceptionInstr) Operands() []Operand { return nil }
func (i *ReceiveExceptionInstr) CanRaise() bool      { return false }
func (i *ReceiveExceptionInstr) String() string {
	return formatResult(i.Dst, "recv_exception")
}

// ForeignInstr is an opaque instruction produced by a frontend. Only its
// defs, uses and raise behaviour are known.
type ForeignInstr struct {
	Name   string
	Dst    *Variable
	Args   []Operand
	Raises bool
}

func (i *ForeignInstr) Op() Operation       { return OpForeign }
func (i *ForeignInstr) Result() *Variable   { return i.Dst }
func (i *ForeignInstr) Operands() []Operand { return i.Args }
func (i *ForeignInstr) CanRaise() bool      { return i.Raises }
func (i *ForeignInstr) String() string {
	return formatResult(i.Dst, fmt.Sprintf("%s(%s)", i.Name, formatOperands(i.Args)))
}
