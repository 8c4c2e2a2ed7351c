package runtime

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

var threadIDs atomic.Int64

// ThreadContext is the per-goroutine execution state: the stack of live
// dynamic scopes and the slot holding an error saved at a lambda boundary.
// A ThreadContext must only be used by the goroutine that owns it.
type ThreadContext struct {
	id     int64
	main   bool
	stack  []*DynamicScope
	saved  error
	logger zerolog.Logger
}

// NewThreadContext creates the context of the main thread
func NewThreadContext(logger zerolog.Logger) *ThreadContext {
	return newThreadContext(true, logger)
}

func newThreadContext(main bool, logger zerolog.Logger) *ThreadContext {
	id := threadIDs.Add(1)
	return &ThreadContext{
		id:     id,
		main:   main,
		logger: logger.With().Int64("thread", id).Logger(),
	}
}

// Spawn creates the context of a new non-main thread with an empty stack
func (tc *ThreadContext) Spawn() *ThreadContext {
	return newThreadContext(false, tc.logger)
}

// ID returns the thread number
func (tc *ThreadContext) ID() int64 {
	return tc.id
}

// IsMain reports whether this is the main thread
func (tc *ThreadContext) IsMain() bool {
	return tc.main
}

// Logger returns the thread's logger
func (tc *ThreadContext) Logger() *zerolog.Logger {
	return &tc.logger
}

// PushScope records scope as live on this thread
func (tc *ThreadContext) PushScope(scope *DynamicScope) {
	tc.stack = append(tc.stack, scope)
}

// PopScope removes the most recently pushed scope
func (tc *ThreadContext) PopScope() *DynamicScope {
	n := len(tc.stack)
	if n == 0 {
		return nil
	}
	s := tc.stack[n-1]
	tc.stack[n-1] = nil
	tc.stack = tc.stack[:n-1]
	return s
}

// CurrentScope returns the innermost live scope
func (tc *ThreadContext) CurrentScope() *DynamicScope {
	if len(tc.stack) == 0 {
		return nil
	}
	return tc.stack[len(tc.stack)-1]
}

// Depth returns the number of live scopes
func (tc *ThreadContext) Depth() int {
	return len(tc.stack)
}

// ScopeExistsOnCallStack reports whether scope is still live on this thread
func (tc *ThreadContext) ScopeExistsOnCallStack(scope *DynamicScope) bool {
	for i := len(tc.stack) - 1; i >= 0; i-- {
		if tc.stack[i] == scope {
			return true
		}
	}
	return false
}

// SetSavedExceptionInLambda stores an error that must be rethrown once the
// lambda boundary has finished its cleanup.
func (tc *ThreadContext) SetSavedExceptionInLambda(err error) {
	tc.saved = err
}

// SavedExceptionInLambda returns the pending lambda error
func (tc *ThreadContext) SavedExceptionInLambda() error {
	return tc.saved
}
