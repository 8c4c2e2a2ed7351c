package runtime

import (
	"errors"
	"fmt"

	"github.com/ludo-technologies/irflow/internal/ir"
)

// Signal is a control transfer that unwinds the interpreter stack like an
// error but is never caught by a rescue block.
type Signal interface {
	error
	signal()
}

// Jump transfers control to a label inside the current scope. The
// interpreter consumes it in its dispatch loop.
type Jump struct {
	Target ir.Label
}

func (j *Jump) Error() string {
	return fmt.Sprintf("jump to %s", j.Target)
}

func (*Jump) signal() {}

// ReturnJump is raised by a return executed inside a closure. It unwinds
// until the scope it returns to absorbs it.
type ReturnJump struct {
	// MethodToReturnFrom is the static scope the return was executed in
	MethodToReturnFrom *StaticScope
	// ReturnToScope is the dynamic scope that absorbs the jump
	ReturnToScope *DynamicScope
	Value         Value
}

func (r *ReturnJump) Error() string {
	return "return"
}

func (*ReturnJump) signal() {}

// IsReturnToScope reports whether scope is the target of the jump
func (r *ReturnJump) IsReturnToScope(scope *DynamicScope) bool {
	return r.ReturnToScope == scope
}

// BreakJump is raised by a break executed inside a proc or thread body.
// It unwinds until the scope that created the block absorbs it.
type BreakJump struct {
	ScopeToReturnTo *DynamicScope
	Value           Value
	// CaughtByLambda is kept for compatibility and never set: lambdas
	// absorb their breaks before any signal is raised.
	CaughtByLambda bool
	// BreakInEval marks a break executed directly in an eval body
	BreakInEval bool
}

func (b *BreakJump) Error() string {
	return "break"
}

func (*BreakJump) signal() {}

// LambdaReturn carries a break or return executed in an eval body that
// runs inside a lambda. It unwinds to the lambda, which returns Value.
type LambdaReturn struct {
	Lambda *DynamicScope
	Value  Value
}

func (l *LambdaReturn) Error() string {
	return "lambda return"
}

func (*LambdaReturn) signal() {}

// IsSignal reports whether err is, or wraps, a control transfer signal
func IsSignal(err error) bool {
	var s Signal
	return errors.As(err, &s)
}

// AsReturnJump extracts a ReturnJump from err
func AsReturnJump(err error) (*ReturnJump, bool) {
	var rj *ReturnJump
	if errors.As(err, &rj) {
		return rj, true
	}
	return nil, false
}

// AsBreakJump extracts a BreakJump from err
func AsBreakJump(err error) (*BreakJump, bool) {
	var bj *BreakJump
	if errors.As(err, &bj) {
		return bj, true
	}
	return nil, false
}

// AsLambdaReturn extracts a LambdaReturn from err
func AsLambdaReturn(err error) (*LambdaReturn, bool) {
	var lr *LambdaReturn
	if errors.As(err, &lr) {
		return lr, true
	}
	return nil, false
}
