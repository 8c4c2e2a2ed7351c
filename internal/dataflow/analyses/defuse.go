package analyses

import (
	"github.com/ludo-technologies/irflow/internal/ir"
)

// DefUseKind classifies how a variable is referenced
type DefUseKind int

const (
	// Definition kinds
	DefKindAssign    DefUseKind = iota // x = ...
	DefKindParameter                   // method or block parameter
	DefKindCaptured                    // outer local seen on closure entry
	DefKindClosure                     // a closure passed here may assign the outer local
	DefKindException                   // recv_exception target

	// Use kinds
	UseKindRead    // plain operand
	UseKindCapture // read by a closure handed over at this instruction
)

// String returns the string representation of DefUseKind
func (k DefUseKind) String() string {
	switch k {
	case DefKindAssign:
		return "assign"
	case DefKindParameter:
		return "parameter"
	case DefKindCaptured:
		return "captured"
	case DefKindClosure:
		return "closure"
	case DefKindException:
		return "exception"
	case UseKindRead:
		return "read"
	case UseKindCapture:
		return "capture"
	default:
		return "unknown"
	}
}

// IsDef returns true if this kind represents a definition
func (k DefUseKind) IsDef() bool {
	return k <= DefKindException
}

// IsUse returns true if this kind represents a use
func (k DefUseKind) IsUse() bool {
	return k >= UseKindRead
}

// VarReference is a single definition or use of a variable. Entry
// definitions have a nil Instr and Position -1.
type VarReference struct {
	Variable *ir.Variable
	Kind     DefUseKind
	Block    *ir.BasicBlock
	Instr    ir.Instr
	Position int
}

// DefUsePair links a definition to a use it reaches
type DefUsePair struct {
	Def *VarReference
	Use *VarReference
}

// IsCrossBlock returns true if the def and use are in different blocks
func (p *DefUsePair) IsCrossBlock() bool {
	if p.Def == nil || p.Use == nil || p.Def.Block == nil || p.Use.Block == nil {
		return false
	}
	return p.Def.Block.ID != p.Use.Block.ID
}

// DefUseChain gathers every def-use relationship of one variable
type DefUseChain struct {
	Variable *ir.Variable
	Defs     []*VarReference
	Uses     []*VarReference
	Pairs    []*DefUsePair
}

// UnusedDefs returns the definitions that reach no use
func (c *DefUseChain) UnusedDefs() []*VarReference {
	used := make(map[*VarReference]bool)
	for _, p := range c.Pairs {
		used[p.Def] = true
	}
	var out []*VarReference
	for _, d := range c.Defs {
		if !used[d] {
			out = append(out, d)
		}
	}
	return out
}

// DefsReaching returns the definitions paired with use
func (c *DefUseChain) DefsReaching(use *VarReference) []*VarReference {
	var out []*VarReference
	for _, p := range c.Pairs {
		if p.Use == use {
			out = append(out, p.Def)
		}
	}
	return out
}
