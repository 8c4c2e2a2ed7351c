package ir

import "fmt"

// Operand is anything an instruction can read
type Operand interface {
	operand()
	String() string
}

// VariableKind distinguishes source-level locals from compiler temporaries
type VariableKind int

const (
	// LocalVar is a named local visible to nested closures
	LocalVar VariableKind = iota
	// TempVar is a scope-private temporary
	TempVar
)

// Variable is a named storage slot of a scope
type Variable struct {
	Name string
	Kind VariableKind
}

func (*Variable) operand() {}

// IsLocal reports whether the variable is a source-level local
func (v *Variable) IsLocal() bool {
	return v.Kind == LocalVar
}

func (v *Variable) String() string {
	if v.Kind == TempVar {
		return "%" + v.Name
	}
	return v.Name
}

// Const is an immediate value
type Const struct {
	Value any
}

func (Const) operand() {}

func (c Const) String() string {
	if s, ok := c.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	if c.Value == nil {
		return "nil"
	}
	return fmt.Sprintf("%v", c.Value)
}

// Label names a basic block within a scope
type Label string

func (Label) operand() {}

func (l Label) String() string {
	return string(l)
}

// Nil is the constant nil operand
var Nil = Const{Value: nil}

// Int returns an integer constant operand
func Int(v int64) Const {
	return Const{Value: v}
}

// Str returns a string constant operand
func Str(v string) Const {
	return Const{Value: v}
}
