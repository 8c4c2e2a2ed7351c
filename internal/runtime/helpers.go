package runtime

import (
	"github.com/ludo-technologies/irflow/internal/ir"
)

// InLambda reports whether blk is a lambda
func InLambda(blk *Block) bool {
	return blk != nil && blk.Type() == BlockLambda
}

// InMethod reports whether code runs outside of any block
func InMethod(blk *Block) bool {
	return blk == nil
}

// containingLambda returns the innermost lambda scope reachable without
// leaving block scopes.
func containingLambda(scope *DynamicScope) *DynamicScope {
	for s := scope; s != nil && s.Static().IsBlockScope(); s = s.Parent() {
		if s.IsLambda() && !s.Static().ArgumentScope {
			return s
		}
	}
	return nil
}

// containingReturnToScope returns the innermost method or script scope
func containingReturnToScope(scope *DynamicScope) *DynamicScope {
	for s := scope; s != nil; s = s.Parent() {
		if s.IsReturnTarget() {
			return s
		}
	}
	return nil
}

// lambdaExit leaves a lambda body with value. Code running in an eval body
// cannot return directly, so the value is wrapped in a LambdaReturn aimed
// at the lambda scope running the eval.
func lambdaExit(scope *DynamicScope, value Value) (Value, error) {
	if scope.Static().Type != ir.ScopeEval {
		return value, nil
	}
	lambda := scope
	for lambda.Parent() != nil && lambda.Static().Type == ir.ScopeEval {
		lambda = lambda.Parent()
	}
	return nil, &LambdaReturn{Lambda: lambda, Value: value}
}

// CheckForLJE verifies that a return executed in scope still has a live
// target. Lambdas are always valid return targets. On a thread other than
// the main one a missing target is reported as a ThreadError.
func CheckForLJE(tc *ThreadContext, scope *DynamicScope, blk *Block) error {
	if InLambda(blk) {
		return nil
	}
	target := containingLambda(scope)
	if target == nil {
		target = containingReturnToScope(scope)
	}
	if target != nil && tc.ScopeExistsOnCallStack(target) {
		return nil
	}
	// The main-thread test mirrors how threads report escaping returns,
	// though the thread that created the closure may be the better check.
	if !tc.IsMain() {
		return &ThreadError{}
	}
	return NewLocalJumpError(ReasonReturn, nil)
}

// InitiateNonLocalReturn starts a return from a closure. In a lambda the
// value is returned directly and the caller must leave the body with it,
// except from an eval body where a LambdaReturn is returned. Otherwise a
// ReturnJump targeting the enclosing lambda or method is returned as the
// error.
func InitiateNonLocalReturn(tc *ThreadContext, scope *DynamicScope, blk *Block, value Value) (Value, error) {
	if InLambda(blk) {
		return lambdaExit(scope, value)
	}
	target := containingLambda(scope)
	if target == nil {
		target = containingReturnToScope(scope)
	}
	if target == nil {
		return nil, NewLocalJumpError(ReasonReturn, value)
	}
	tc.Logger().Debug().
		Str("from", scope.Static().Name).
		Str("to", target.Static().Name).
		Msg("initiate return jump")
	return nil, &ReturnJump{
		MethodToReturnFrom: scope.Static(),
		ReturnToScope:      target,
		Value:              value,
	}
}

// HandleNonlocalReturn absorbs a ReturnJump aimed at scope. Any other
// error is passed back unchanged.
func HandleNonlocalReturn(scope *DynamicScope, err error) (Value, error) {
	rj, ok := AsReturnJump(err)
	if !ok || !rj.IsReturnToScope(scope) {
		return nil, err
	}
	return rj.Value, nil
}

// ensureScopeIsClosure fails with a break LocalJumpError outside closures
func ensureScopeIsClosure(scope *DynamicScope) (ir.ScopeKind, error) {
	kind := scope.Static().Type
	if !kind.IsClosureType() {
		return kind, NewLocalJumpError(ReasonBreak, nil)
	}
	return kind, nil
}

// InitiateBreak starts a break from a block. A lambda leaves its body with
// the value, through a LambdaReturn when the break runs in eval. Procs and
// thread bodies return a BreakJump aimed at the scope that created the
// block.
func InitiateBreak(tc *ThreadContext, scope *DynamicScope, blk *Block, value Value) (Value, error) {
	if InLambda(blk) {
		return lambdaExit(scope, value)
	}
	kind, err := ensureScopeIsClosure(scope)
	if err != nil {
		return nil, err
	}
	if blk != nil && blk.IsEscaped() {
		return nil, NewLocalJumpError(ReasonBreak, value)
	}
	tc.Logger().Debug().
		Str("from", scope.Static().Name).
		Bool("eval", kind == ir.ScopeEval).
		Msg("initiate break jump")
	return nil, &BreakJump{
		ScopeToReturnTo: scope.Parent(),
		Value:           value,
		BreakInEval:     kind == ir.ScopeEval,
	}
}

// HandlePropagatedBreak is consulted by a scope that a BreakJump unwinds
// through. A break from an eval body is retargeted as if it had been
// executed by the scope running the eval. A break aimed at scope is
// absorbed. A break whose target is no longer live becomes a
// LocalJumpError.
func HandlePropagatedBreak(tc *ThreadContext, scope *DynamicScope, err error) (Value, error) {
	bj, ok := AsBreakJump(err)
	if !ok {
		return nil, err
	}
	if bj.BreakInEval {
		if _, err := ensureScopeIsClosure(scope); err != nil {
			return nil, err
		}
		bj.BreakInEval = false
		bj.ScopeToReturnTo = scope.Parent()
		return nil, bj
	}
	if bj.ScopeToReturnTo == scope {
		return bj.Value, nil
	}
	if !tc.ScopeExistsOnCallStack(bj.ScopeToReturnTo) {
		return nil, NewLocalJumpError(ReasonBreak, bj.Value)
	}
	return nil, bj
}

// inReturnToScope reports whether a lambda or method boundary owns rj
func inReturnToScope(blk *Block, rj *ReturnJump, scope *DynamicScope) bool {
	return (InMethod(blk) || InLambda(blk)) && rj.IsReturnToScope(scope)
}

// HandleBreakAndReturnsInLambdas resolves an error leaving a lambda body.
// A LambdaReturn or ReturnJump aimed at the lambda is absorbed. A lambda
// never raises its own breaks, so any BreakJump reaching it is saved as a
// break LocalJumpError. Anything else is saved as is. Saved errors
// are rethrown by ReturnOrRethrowSavedException.
func HandleBreakAndReturnsInLambdas(tc *ThreadContext, scope *DynamicScope, err error, blk *Block) Value {
	if lr, ok := AsLambdaReturn(err); ok && lr.Lambda == scope {
		return lr.Value
	}
	if rj, ok := AsReturnJump(err); ok && inReturnToScope(blk, rj, scope) {
		return rj.Value
	}
	if bj, ok := AsBreakJump(err); ok && InLambda(blk) {
		tc.SetSavedExceptionInLambda(NewLocalJumpError(ReasonBreak, bj.Value))
		return nil
	}
	tc.SetSavedExceptionInLambda(err)
	return nil
}

// ReturnOrRethrowSavedException returns value unless a lambda boundary
// saved an error on tc, which is cleared and returned instead.
func ReturnOrRethrowSavedException(tc *ThreadContext, value Value) (Value, error) {
	if err := tc.SavedExceptionInLambda(); err != nil {
		tc.SetSavedExceptionInLambda(nil)
		return nil, err
	}
	return value, nil
}

// HandleEscapedJump converts a signal that reached the top of a thread into
// the user-visible error it stands for.
func HandleEscapedJump(tc *ThreadContext, err error) error {
	if err == nil {
		return nil
	}
	if rj, ok := AsReturnJump(err); ok {
		if !tc.IsMain() {
			return &ThreadError{}
		}
		return NewLocalJumpError(ReasonReturn, rj.Value)
	}
	if bj, ok := AsBreakJump(err); ok {
		return NewLocalJumpError(ReasonBreak, bj.Value)
	}
	if IsSignal(err) {
		return NewLocalJumpError(ReasonNoReason, nil)
	}
	return err
}
