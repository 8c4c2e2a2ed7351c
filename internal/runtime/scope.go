// Package runtime models the dynamic side of IR execution: dynamic scopes,
// blocks and their variants, and the non-local control transfers that
// unwind between them.
package runtime

import (
	"fmt"
	"sync"

	"github.com/ludo-technologies/irflow/internal/ir"
)

// Value is any runtime value
type Value = any

// StaticScope describes the compile-time shape of a scope
type StaticScope struct {
	Name string
	Type ir.ScopeKind
	// ArgumentScope is set for scopes that only hold block arguments
	ArgumentScope bool
	// IR is the scope body, nil for synthetic scopes
	IR *ir.Scope
}

// NewStaticScope creates the static descriptor of an IR scope
func NewStaticScope(s *ir.Scope) *StaticScope {
	return &StaticScope{Name: s.Name, Type: s.Kind, IR: s}
}

// IsBlockScope reports whether the scope belongs to a closure
func (s *StaticScope) IsBlockScope() bool {
	return s.Type == ir.ScopeClosure
}

func (s *StaticScope) String() string {
	return fmt.Sprintf("%s(%s)", s.Name, s.Type)
}

// DynamicScope holds the variables of one activation of a scope. Variables
// of enclosing closures are reached by depth through the parent chain.
type DynamicScope struct {
	static *StaticScope
	parent *DynamicScope

	mu   sync.RWMutex
	vars map[string]Value

	lambda     bool
	threadCopy bool
}

// NewDynamicScope allocates an empty activation of static under parent
func NewDynamicScope(static *StaticScope, parent *DynamicScope) *DynamicScope {
	return &DynamicScope{
		static: static,
		parent: parent,
		vars:   make(map[string]Value),
	}
}

// Static returns the static descriptor of the scope
func (d *DynamicScope) Static() *StaticScope {
	return d.static
}

// Parent returns the lexically enclosing activation
func (d *DynamicScope) Parent() *DynamicScope {
	return d.parent
}

// IsLambda reports whether the scope was allocated for a lambda
func (d *DynamicScope) IsLambda() bool {
	return d.lambda
}

// SetLambda marks the scope as a lambda activation
func (d *DynamicScope) SetLambda(lambda bool) {
	d.lambda = lambda
}

// IsThreadCopy reports whether the scope was allocated for a thread body
func (d *DynamicScope) IsThreadCopy() bool {
	return d.threadCopy
}

// IsReturnTarget reports whether a return may land in this scope
func (d *DynamicScope) IsReturnTarget() bool {
	return d.static.Type == ir.ScopeMethod || d.static.Type == ir.ScopeScript
}

// ancestor walks depth parents up, nil when the chain is too short
func (d *DynamicScope) ancestor(depth int) *DynamicScope {
	s := d
	for i := 0; i < depth && s != nil; i++ {
		s = s.parent
	}
	return s
}

// GetValue reads name from the scope depth levels up. Unset variables
// read as nil.
func (d *DynamicScope) GetValue(name string, depth int) Value {
	s := d.ancestor(depth)
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vars[name]
}

// SetValue writes name in the scope depth levels up
func (d *DynamicScope) SetValue(name string, depth int, value Value) {
	s := d.ancestor(depth)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.vars[name] = value
	s.mu.Unlock()
}

// IsDefined reports whether name has been assigned depth levels up
func (d *DynamicScope) IsDefined(name string, depth int) bool {
	s := d.ancestor(depth)
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vars[name]
	return ok
}

func (d *DynamicScope) String() string {
	return fmt.Sprintf("dyn:%s@%p", d.static.Name, d)
}
