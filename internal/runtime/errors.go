package runtime

import (
	"context"
	"errors"
	"fmt"
)

// JumpReason classifies a LocalJumpError
type JumpReason string

const (
	ReasonBreak    JumpReason = "break"
	ReasonNext     JumpReason = "next"
	ReasonRedo     JumpReason = "redo"
	ReasonRetry    JumpReason = "retry"
	ReasonReturn   JumpReason = "return"
	ReasonNoReason JumpReason = "noreason"
)

// LocalJumpError is the user-visible error for a return or break that no
// enclosing scope could absorb.
type LocalJumpError struct {
	Reason JumpReason
	Value  Value
}

// NewLocalJumpError creates a local jump error carrying the exit value
func NewLocalJumpError(reason JumpReason, value Value) *LocalJumpError {
	return &LocalJumpError{Reason: reason, Value: value}
}

func (e *LocalJumpError) Error() string {
	switch e.Reason {
	case ReasonBreak:
		return "break from proc-closure"
	case ReasonReturn:
		return "unexpected return"
	case ReasonRetry:
		return "retry outside of rescue clause"
	case ReasonNext, ReasonRedo:
		return fmt.Sprintf("unexpected %s", e.Reason)
	default:
		return "local jump error"
	}
}

// ThreadError is raised when a return escapes the body of a thread other
// than the main one.
type ThreadError struct {
	Message string
}

func (e *ThreadError) Error() string {
	if e.Message == "" {
		return "return can't jump across threads"
	}
	return e.Message
}

// RaiseError is an ordinary user-raised error
type RaiseError struct {
	Value Value
}

func (e *RaiseError) Error() string {
	return fmt.Sprintf("raised %v", e.Value)
}

// ExceptionValue returns the value seen by a rescue block for err
func ExceptionValue(err error) Value {
	var re *RaiseError
	if errors.As(err, &re) {
		return re.Value
	}
	return err.Error()
}

// IsRescuable reports whether a rescue block may handle err. Signals and
// cancellation always pass through rescuers.
func IsRescuable(err error) bool {
	if err == nil || IsSignal(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var (
		re  *RaiseError
		lje *LocalJumpError
		te  *ThreadError
	)
	return errors.As(err, &re) || errors.As(err, &lje) || errors.As(err, &te)
}
