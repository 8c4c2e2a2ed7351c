package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ludo-technologies/irflow/domain"
	"github.com/ludo-technologies/irflow/internal/interp"
	"github.com/ludo-technologies/irflow/internal/ir"
	"github.com/ludo-technologies/irflow/internal/runtime"
)

// RunServiceImpl interprets one program per request
type RunServiceImpl struct {
	reader  domain.ProgramReader
	logger  zerolog.Logger
	options []interp.Option
}

// NewRunService creates a run service. opts are applied to every
// interpreter it creates, after the output and logger options.
func NewRunService(reader domain.ProgramReader, logger zerolog.Logger, opts ...interp.Option) *RunServiceImpl {
	return &RunServiceImpl{reader: reader, logger: logger, options: opts}
}

// Run loads req.Path and interprets its script. Errors raised by the
// program are reported in the response; the returned error is reserved
// for failures to load or start it.
func (s *RunServiceImpl) Run(ctx context.Context, req domain.RunRequest) (*domain.RunResponse, error) {
	src, err := s.resolveSource(req.Path)
	if err != nil {
		return nil, err
	}
	progs, err := s.reader.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	prog, err := selectProgram(progs, req.Program)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	var w io.Writer = &out
	if req.Stdout != nil {
		w = io.MultiWriter(&out, req.Stdout)
	}

	if req.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	opts := append([]interp.Option{interp.WithOutput(w), interp.WithLogger(s.logger)}, s.options...)
	start := time.Now()
	result, err := interp.New(prog, opts...).Run(ctx)

	resp := &domain.RunResponse{
		Program:  prog.Name,
		Output:   out.String(),
		Duration: time.Since(start).Milliseconds(),
	}
	if err != nil {
		runErr := classifyRunError(err)
		if runErr == nil {
			return nil, domain.NewRuntimeError(fmt.Sprintf("failed to run %s", prog.Name), err)
		}
		resp.Error = runErr
		s.logger.Debug().Str("program", prog.Name).Str("kind", string(runErr.Kind)).Msg(runErr.Message)
		return resp, nil
	}

	resp.Value = interp.Inspect(result.Value)
	resp.Steps = result.Steps
	resp.Threads = result.Threads
	return resp, nil
}

// resolveSource maps a run path onto one source. Directories and Go
// files name the Go package in that directory.
func (s *RunServiceImpl) resolveSource(path string) (domain.ProgramSource, error) {
	if strings.HasSuffix(path, "...") {
		return domain.ProgramSource{}, domain.NewInvalidInputError("run takes a single program, not a package pattern", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.ProgramSource{}, domain.NewFileNotFoundError(path, err)
	}
	switch {
	case info.IsDir():
		return domain.ProgramSource{Kind: domain.SourceGo, Path: path, Pattern: "."}, nil
	case IsProgramFile(path):
		return domain.ProgramSource{Kind: domain.SourceYAML, Path: path}, nil
	case IsGoFile(path):
		return domain.ProgramSource{Kind: domain.SourceGo, Path: filepath.Dir(path), Pattern: "."}, nil
	}
	return domain.ProgramSource{}, domain.NewInvalidInputError(fmt.Sprintf("not a program file: %s", path), nil)
}

func selectProgram(progs []*ir.Program, name string) (*ir.Program, error) {
	if name != "" {
		for _, p := range progs {
			if p.Name == name {
				return p, nil
			}
		}
		return nil, domain.NewInvalidInputError(fmt.Sprintf("program %q not found", name), nil)
	}
	switch len(progs) {
	case 0:
		return nil, domain.NewInvalidInputError("no program to run", nil)
	case 1:
		return progs[0], nil
	}
	names := make([]string, len(progs))
	for i, p := range progs {
		names[i] = p.Name
	}
	return nil, domain.NewInvalidInputError(
		fmt.Sprintf("source holds %d programs, select one of: %s", len(progs), strings.Join(names, ", ")), nil)
}

// classifyRunError maps errors a program can end with onto a RunError.
// It returns nil for interpreter failures.
func classifyRunError(err error) *domain.RunError {
	var (
		lje *runtime.LocalJumpError
		te  *runtime.ThreadError
		re  *runtime.RaiseError
	)
	switch {
	case errors.As(err, &lje):
		return &domain.RunError{
			Kind:    domain.RunErrorLocalJump,
			Reason:  string(lje.Reason),
			Message: lje.Error(),
			Value:   interp.Inspect(lje.Value),
		}
	case errors.As(err, &te):
		return &domain.RunError{Kind: domain.RunErrorThread, Message: te.Error()}
	case errors.As(err, &re):
		return &domain.RunError{Kind: domain.RunErrorRaised, Message: re.Error(), Value: interp.Inspect(re.Value)}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.RunError{Kind: domain.RunErrorTimeout, Message: "run timed out"}
	case errors.Is(err, context.Canceled):
		return &domain.RunError{Kind: domain.RunErrorCancelled, Message: "run cancelled"}
	}
	return nil
}
