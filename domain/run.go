package domain

import (
	"context"
	"io"
)

// RunErrorKind classifies how a program run ended abnormally
type RunErrorKind string

const (
	RunErrorLocalJump RunErrorKind = "local_jump_error"
	RunErrorThread    RunErrorKind = "thread_error"
	RunErrorRaised    RunErrorKind = "raised"
	RunErrorTimeout   RunErrorKind = "timeout"
	RunErrorCancelled RunErrorKind = "cancelled"
	RunErrorInternal  RunErrorKind = "internal"
)

// RunRequest represents a request to interpret one program
type RunRequest struct {
	// Path is a YAML program file or a Go package directory
	Path string

	// Program selects a program by name when the source yields several
	Program string

	// Stdout receives what the program prints
	Stdout io.Writer

	OutputFormat OutputFormat
	OutputWriter io.Writer

	// TimeoutSeconds cancels the run; 0 disables the deadline
	TimeoutSeconds int

	ConfigPath string
	Debug      bool
}

// Validate checks the request for obvious mistakes
func (r RunRequest) Validate() error {
	if r.Path == "" {
		return NewValidationError("no program path specified")
	}
	if r.TimeoutSeconds < 0 {
		return NewValidationError("timeout must be >= 0")
	}
	if r.OutputFormat != "" {
		if _, err := ParseOutputFormat(string(r.OutputFormat)); err != nil {
			return err
		}
	}
	return nil
}

// RunError describes the error that ended a run
type RunError struct {
	Kind    RunErrorKind `json:"kind" yaml:"kind"`
	Reason  string       `json:"reason,omitempty" yaml:"reason,omitempty"`
	Message string       `json:"message" yaml:"message"`
	Value   string       `json:"value,omitempty" yaml:"value,omitempty"`
}

// RunResponse is the outcome of interpreting a program
type RunResponse struct {
	Program  string    `json:"program" yaml:"program"`
	Value    string    `json:"value" yaml:"value"`
	Output   string    `json:"output" yaml:"output"`
	Steps    int64     `json:"steps" yaml:"steps"`
	Threads  int       `json:"threads" yaml:"threads"`
	Duration int64     `json:"duration_ms" yaml:"duration_ms"`
	Error    *RunError `json:"error,omitempty" yaml:"error,omitempty"`
}

// Succeeded reports whether the program returned normally
func (r *RunResponse) Succeeded() bool {
	return r.Error == nil
}

// RunService interprets programs
type RunService interface {
	Run(ctx context.Context, req RunRequest) (*RunResponse, error)
}
