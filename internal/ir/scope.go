package ir

import (
	"fmt"
	"sort"
)

// ScopeKind classifies an IR scope
type ScopeKind int

const (
	// ScopeMethod is a method body; it is the target of returns
	ScopeMethod ScopeKind = iota
	// ScopeClosure is a block literal body
	ScopeClosure
	// ScopeEval is the body of an eval executed in its caller's binding
	ScopeEval
	// ScopeScript is the top-level program body
	ScopeScript
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeMethod:
		return "method"
	case ScopeClosure:
		return "closure"
	case ScopeEval:
		return "eval"
	case ScopeScript:
		return "script"
	default:
		return "unknown"
	}
}

// ParseScopeKind maps a kind name to its ScopeKind
func ParseScopeKind(name string) (ScopeKind, error) {
	switch name {
	case "method":
		return ScopeMethod, nil
	case "closure", "block", "":
		return ScopeClosure, nil
	case "eval":
		return ScopeEval, nil
	case "script":
		return ScopeScript, nil
	}
	return 0, fmt.Errorf("unknown scope kind %q", name)
}

// IsClosureType reports whether scopes of this kind share locals with their parent
func (k ScopeKind) IsClosureType() bool {
	return k == ScopeClosure || k == ScopeEval
}

// Scope is one unit of IR: a method, closure, eval body or script
type Scope struct {
	Name   string
	Kind   ScopeKind
	Params []*Variable
	CFG    *CFG

	Parent   *Scope
	Closures []*Scope

	vars   map[string]*Variable
	owners map[*Variable]*Scope
	temps  map[string]*Variable
	layout []*BasicBlock
}

// NewScope creates an empty scope with its own CFG
func NewScope(name string, kind ScopeKind) *Scope {
	return &Scope{
		Name:   name,
		Kind:   kind,
		CFG:    NewCFG(name),
		vars:   make(map[string]*Variable),
		owners: make(map[*Variable]*Scope),
		temps:  make(map[string]*Variable),
	}
}

// NewClosure creates a nested closure-type scope. Its parameters are always
// owned by the closure and shadow outer locals of the same name.
func (s *Scope) NewClosure(name string, kind ScopeKind, params ...string) *Scope {
	c := NewScope(name, kind)
	c.Parent = s
	c.owners = s.owners
	for _, p := range params {
		c.Params = append(c.Params, c.declare(p))
	}
	s.Closures = append(s.Closures, c)
	return c
}

// AddParam declares a parameter owned by the scope
func (s *Scope) AddParam(name string) *Variable {
	v := s.declare(name)
	s.Params = append(s.Params, v)
	return v
}

func (s *Scope) declare(name string) *Variable {
	v := &Variable{Name: name, Kind: LocalVar}
	s.vars[name] = v
	s.owners[v] = s
	return v
}

// Var returns the local named name. Closure-type scopes resolve the name
// through their parents first so captured locals share one *Variable.
func (s *Scope) Var(name string) *Variable {
	if v, ok := s.vars[name]; ok {
		return v
	}
	if s.Kind.IsClosureType() {
		for p := s.Parent; p != nil; p = p.Parent {
			if v, ok := p.vars[name]; ok {
				return v
			}
			if !p.Kind.IsClosureType() {
				break
			}
		}
	}
	return s.declare(name)
}

// Temp returns the scope-private temporary named name
func (s *Scope) Temp(name string) *Variable {
	if v, ok := s.temps[name]; ok {
		return v
	}
	v := &Variable{Name: name, Kind: TempVar}
	s.temps[name] = v
	s.owners[v] = s
	return v
}

// NewTemp allocates a fresh temporary
func (s *Scope) NewTemp() *Variable {
	return s.Temp(fmt.Sprintf("t%d", len(s.temps)))
}

// Owner returns the scope that declared v, or nil if v is foreign to this
// scope tree.
func (s *Scope) Owner(v *Variable) *Scope {
	return s.owners[v]
}

// Depth returns how many parent hops separate s from the scope owning v.
// It returns -1 when v is not visible from s.
func (s *Scope) Depth(v *Variable) int {
	owner := s.Owner(v)
	depth := 0
	for cur := s; cur != nil; cur = cur.Parent {
		if cur == owner {
			return depth
		}
		depth++
	}
	return -1
}

// LocalNames returns the names of locals owned by the scope, sorted
func (s *Scope) LocalNames() []string {
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Variables returns every variable referenced by the scope's instructions,
// in first-appearance order.
func (s *Scope) Variables() []*Variable {
	seen := make(map[*Variable]bool)
	var out []*Variable
	add := func(v *Variable) {
		if v != nil && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, p := range s.Params {
		add(p)
	}
	for _, bb := range s.CFG.Blocks() {
		for _, instr := range bb.Instrs {
			for _, v := range Defs(instr) {
				add(v)
			}
			for _, v := range Uses(instr) {
				add(v)
			}
		}
	}
	return out
}

// FreeVariables returns the locals referenced by the scope or its nested
// closures that are owned by an enclosing scope.
func (s *Scope) FreeVariables() []*Variable {
	seen := make(map[*Variable]bool)
	var out []*Variable
	var collect func(*Scope)
	collect = func(cur *Scope) {
		for _, bb := range cur.CFG.Blocks() {
			for _, instr := range bb.Instrs {
				vars := append(Defs(instr), operandVars(instr)...)
				for _, v := range vars {
					if v.Kind != LocalVar || seen[v] {
						continue
					}
					if s.Depth(v) > 0 {
						seen[v] = true
						out = append(out, v)
					}
				}
			}
		}
		for _, c := range cur.Closures {
			collect(c)
		}
	}
	collect(s)
	return out
}

func operandVars(instr Instr) []*Variable {
	var vars []*Variable
	for _, op := range instr.Operands() {
		if v, ok := op.(*Variable); ok {
			vars = append(vars, v)
		}
	}
	return vars
}

// SetLayout records the block order used for fall-through
func (s *Scope) SetLayout(blocks []*BasicBlock) {
	s.layout = blocks
}

// Layout returns the blocks in emission order, excluding entry and exit
func (s *Scope) Layout() []*BasicBlock {
	return s.layout
}

// FirstBlock returns the first block executed after the entry
func (s *Scope) FirstBlock() *BasicBlock {
	if len(s.layout) == 0 {
		return s.CFG.Exit
	}
	return s.layout[0]
}

// FallThrough returns the block executed after bb when bb does not jump
func (s *Scope) FallThrough(bb *BasicBlock) *BasicBlock {
	for i, b := range s.layout {
		if b == bb && i+1 < len(s.layout) {
			return s.layout[i+1]
		}
	}
	return s.CFG.Exit
}

// IsReturnTarget reports whether a non-local return can land in this scope
func (s *Scope) IsReturnTarget() bool {
	return s.Kind == ScopeMethod || s.Kind == ScopeScript
}

// AllScopes returns s and every nested closure in pre-order
func (s *Scope) AllScopes() []*Scope {
	out := []*Scope{s}
	for _, c := range s.Closures {
		out = append(out, c.AllScopes()...)
	}
	return out
}

func (s *Scope) String() string {
	return fmt.Sprintf("%s %s", s.Kind, s.Name)
}

// Program is a script plus the methods it may call
type Program struct {
	Name    string
	Script  *Scope
	Methods []*Scope
}

// NewProgram creates a program with an empty script scope
func NewProgram(name string) *Program {
	return &Program{
		Name:   name,
		Script: NewScope(name, ScopeScript),
	}
}

// AddMethod creates and registers a method scope
func (p *Program) AddMethod(name string, params ...string) *Scope {
	m := NewScope(name, ScopeMethod)
	for _, param := range params {
		m.AddParam(param)
	}
	p.Methods = append(p.Methods, m)
	return m
}

// Method looks up a method by name
func (p *Program) Method(name string) *Scope {
	for _, m := range p.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// AllScopes returns every scope of the program: the script tree first,
// then each method tree.
func (p *Program) AllScopes() []*Scope {
	var out []*Scope
	if p.Script != nil {
		out = append(out, p.Script.AllScopes()...)
	}
	for _, m := range p.Methods {
		out = append(out, m.AllScopes()...)
	}
	return out
}
