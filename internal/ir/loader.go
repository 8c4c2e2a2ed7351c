package ir

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProgramSpec is the YAML description of a program
type ProgramSpec struct {
	Name    string      `yaml:"name"`
	Script  ScopeSpec   `yaml:"script"`
	Methods []ScopeSpec `yaml:"methods"`
}

// ScopeSpec describes one scope and its nested closures
type ScopeSpec struct {
	Name     string      `yaml:"name"`
	Kind     string      `yaml:"kind"`
	Params   []string    `yaml:"params"`
	Blocks   []BlockSpec `yaml:"blocks"`
	Closures []ScopeSpec `yaml:"closures"`
}

// BlockSpec describes a basic block
type BlockSpec struct {
	Label  string      `yaml:"label"`
	Rescue string      `yaml:"rescue"`
	Instrs []InstrSpec `yaml:"instrs"`
}

// InstrSpec describes one instruction. Operands follow these rules:
// "%x" is a temporary, ":text" is a string constant, any other string is a
// local, and YAML scalars are constants.
type InstrSpec struct {
	Op      string `yaml:"op"`
	Dst     string `yaml:"dst"`
	Src     any    `yaml:"src"`
	Value   any    `yaml:"value"`
	A       any    `yaml:"a"`
	B       any    `yaml:"b"`
	Cond    any    `yaml:"cond"`
	Target  string `yaml:"target"`
	Method  string `yaml:"method"`
	Args    []any  `yaml:"args"`
	Closure string `yaml:"closure"`
	Block   any    `yaml:"block"`
	Name    string `yaml:"name"`
	Raises  bool   `yaml:"raises"`
}

// LoadProgram decodes a YAML program description and builds its scopes
func LoadProgram(r io.Reader) (*Program, error) {
	var spec ProgramSpec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to decode program: %w", err)
	}
	return BuildProgram(&spec)
}

// BuildProgram builds a program from its decoded description
func BuildProgram(spec *ProgramSpec) (*Program, error) {
	name := spec.Name
	if name == "" {
		name = "main"
	}
	prog := NewProgram(name)

	seen := make(map[string]bool)
	for _, ms := range spec.Methods {
		if ms.Name == "" {
			return nil, fmt.Errorf("method without a name")
		}
		if seen[ms.Name] {
			return nil, fmt.Errorf("duplicate method %q", ms.Name)
		}
		seen[ms.Name] = true
		m := prog.AddMethod(ms.Name, ms.Params...)
		if err := buildScope(m, ms); err != nil {
			return nil, err
		}
	}

	if err := buildScope(prog.Script, spec.Script); err != nil {
		return nil, err
	}
	return prog, nil
}

// buildScope creates nested closure shells first so the body can reference
// them, then builds the body, then the closures. Parent bodies are built
// before their closures so captured locals resolve to the parent.
func buildScope(scope *Scope, spec ScopeSpec) error {
	closures := make(map[string]*Scope, len(spec.Closures))
	for i, cs := range spec.Closures {
		kind, err := ParseScopeKind(cs.Kind)
		if err != nil {
			return fmt.Errorf("scope %s: %w", scope.Name, err)
		}
		if !kind.IsClosureType() {
			return fmt.Errorf("scope %s: nested scope %q must be a closure or eval", scope.Name, cs.Name)
		}
		name := cs.Name
		if name == "" {
			name = fmt.Sprintf("%s_closure%d", scope.Name, i)
		}
		if _, dup := closures[name]; dup {
			return fmt.Errorf("scope %s: duplicate closure %q", scope.Name, name)
		}
		closures[name] = scope.NewClosure(name, kind, cs.Params...)
	}

	b := NewBuilder(scope)
	for _, bs := range spec.Blocks {
		bb := b.Block(Label(bs.Label))
		if bs.Rescue != "" {
			b.Protect(bb.Label, Label(bs.Rescue))
		}
		for _, is := range bs.Instrs {
			instr, err := buildInstr(scope, closures, is)
			if err != nil {
				return fmt.Errorf("scope %s, block %s: %w", scope.Name, bb.Label, err)
			}
			b.Emit(instr)
		}
	}
	if err := b.Finish(); err != nil {
		return err
	}

	for i, cs := range spec.Closures {
		if err := buildScope(scope.Closures[i], cs); err != nil {
			return err
		}
	}
	return nil
}

func buildInstr(scope *Scope, closures map[string]*Scope, spec InstrSpec) (Instr, error) {
	op := func(raw any) (Operand, error) { return parseOperand(scope, raw) }
	dst := func() *Variable { return parseDst(scope, spec.Dst) }
	closure := func() (*Scope, error) {
		c, ok := closures[spec.Closure]
		if !ok {
			return nil, fmt.Errorf("%s: unknown closure %q", spec.Op, spec.Closure)
		}
		return c, nil
	}
	args := func() ([]Operand, error) {
		out := make([]Operand, 0, len(spec.Args))
		for _, a := range spec.Args {
			o, err := op(a)
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		}
		return out, nil
	}

	switch spec.Op {
	case "copy":
		src, err := op(spec.Src)
		if err != nil {
			return nil, err
		}
		return &CopyInstr{Dst: dst(), Src: src}, nil
	case "add", "sub", "lt", "eq":
		kind, _ := ParseBinOpKind(spec.Op)
		a, err := op(spec.A)
		if err != nil {
			return nil, err
		}
		b, err := op(spec.B)
		if err != nil {
			return nil, err
		}
		return &BinOpInstr{Kind: kind, Dst: dst(), A: a, B: b}, nil
	case "jump":
		if spec.Target == "" {
			return nil, fmt.Errorf("jump without target")
		}
		return &JumpInstr{Target: Label(spec.Target)}, nil
	case "btrue", "bfalse":
		if spec.Target == "" {
			return nil, fmt.Errorf("%s without target", spec.Op)
		}
		cond, err := op(spec.Cond)
		if err != nil {
			return nil, err
		}
		return &BranchInstr{Cond: cond, OnTrue: spec.Op == "btrue", Target: Label(spec.Target)}, nil
	case "return", "nonlocal_return", "break", "raise":
		v, err := op(spec.Value)
		if err != nil {
			return nil, err
		}
		switch spec.Op {
		case "return":
			return &ReturnInstr{Value: v}, nil
		case "nonlocal_return":
			return &NonlocalReturnInstr{Value: v}, nil
		case "break":
			return &BreakInstr{Value: v}, nil
		default:
			return &RaiseInstr{Value: v}, nil
		}
	case "yield":
		as, err := args()
		if err != nil {
			return nil, err
		}
		return &YieldInstr{Dst: dst(), Args: as}, nil
	case "call":
		if spec.Method == "" {
			return nil, fmt.Errorf("call without method")
		}
		as, err := args()
		if err != nil {
			return nil, err
		}
		call := &CallInstr{Dst: dst(), Method: spec.Method, Args: as}
		if spec.Closure != "" {
			if call.Body, err = closure(); err != nil {
				return nil, err
			}
		}
		if spec.Block != nil {
			if call.BlockArg, err = op(spec.Block); err != nil {
				return nil, err
			}
		}
		return call, nil
	case "lambda":
		c, err := closure()
		if err != nil {
			return nil, err
		}
		return &BuildLambdaInstr{Dst: dst(), Body: c}, nil
	case "call_block":
		blk, err := op(spec.Block)
		if err != nil {
			return nil, err
		}
		as, err := args()
		if err != nil {
			return nil, err
		}
		return &CallBlockInstr{Dst: dst(), Block: blk, Args: as}, nil
	case "eval":
		c, err := closure()
		if err != nil {
			return nil, err
		}
		if c.Kind != ScopeEval {
			return nil, fmt.Errorf("eval: closure %q is not an eval scope", c.Name)
		}
		return &EvalInstr{Dst: dst(), Body: c}, nil
	case "thread":
		c, err := closure()
		if err != nil {
			return nil, err
		}
		return &ThreadInstr{Dst: dst(), Body: c}, nil
	case "recv_exception":
		return &ReceiveExceptionInstr{Dst: dst()}, nil
	case "foreign":
		as, err := args()
		if err != nil {
			return nil, err
		}
		return &ForeignInstr{Name: spec.Name, Dst: dst(), Args: as, Raises: spec.Raises}, nil
	}
	return nil, fmt.Errorf("unknown instruction %q", spec.Op)
}

func parseDst(scope *Scope, name string) *Variable {
	if name == "" {
		return nil
	}
	if strings.HasPrefix(name, "%") {
		return scope.Temp(name[1:])
	}
	return scope.Var(name)
}

func parseOperand(scope *Scope, raw any) (Operand, error) {
	switch v := raw.(type) {
	case nil:
		return Nil, nil
	case string:
		switch {
		case strings.HasPrefix(v, "%"):
			if len(v) == 1 {
				return nil, fmt.Errorf("empty temporary name")
			}
			return scope.Temp(v[1:]), nil
		case strings.HasPrefix(v, ":"):
			return Str(v[1:]), nil
		case v == "":
			return nil, fmt.Errorf("empty operand")
		default:
			return scope.Var(v), nil
		}
	case int:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint64:
		return Int(int64(v)), nil
	case float64, bool:
		return Const{Value: v}, nil
	}
	return nil, fmt.Errorf("unsupported operand %v (%T)", raw, raw)
}
