package service

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ludo-technologies/irflow/domain"
	"github.com/ludo-technologies/irflow/internal/ir"
)

func TestRunService_Run(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"hello.yaml":  helloProgram,
		"break.yaml":  breakProgram,
		"thread.yaml": threadReturnProgram,
		"spin.yaml":   spinProgram,
		"notes.txt":   "",
	})
	svc := NewRunService(NewProgramReader(zerolog.Nop()), zerolog.Nop())
	ctx := context.Background()

	t.Run("Value", func(t *testing.T) {
		var stdout bytes.Buffer
		resp, err := svc.Run(ctx, domain.RunRequest{Path: filepath.Join(dir, "hello.yaml"), Stdout: &stdout})
		require.NoError(t, err)
		assert.True(t, resp.Succeeded())
		assert.Equal(t, "hello", resp.Program)
		assert.Equal(t, "42", resp.Value)
		assert.Equal(t, "hello\n", resp.Output)
		assert.Equal(t, "hello\n", stdout.String())
		assert.Positive(t, resp.Steps)
	})

	t.Run("LocalJumpError", func(t *testing.T) {
		resp, err := svc.Run(ctx, domain.RunRequest{Path: filepath.Join(dir, "break.yaml")})
		require.NoError(t, err)
		require.NotNil(t, resp.Error)
		assert.False(t, resp.Succeeded())
		assert.Equal(t, domain.RunErrorLocalJump, resp.Error.Kind)
		assert.Equal(t, "break", resp.Error.Reason)
		assert.Equal(t, "7", resp.Error.Value)
	})

	t.Run("ThreadError", func(t *testing.T) {
		resp, err := svc.Run(ctx, domain.RunRequest{Path: filepath.Join(dir, "thread.yaml")})
		require.NoError(t, err)
		require.NotNil(t, resp.Error)
		assert.Equal(t, domain.RunErrorThread, resp.Error.Kind)
	})

	t.Run("Timeout", func(t *testing.T) {
		resp, err := svc.Run(ctx, domain.RunRequest{Path: filepath.Join(dir, "spin.yaml"), TimeoutSeconds: 1})
		require.NoError(t, err)
		require.NotNil(t, resp.Error)
		assert.Equal(t, domain.RunErrorTimeout, resp.Error.Kind)
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		resp, err := svc.Run(cctx, domain.RunRequest{Path: filepath.Join(dir, "spin.yaml")})
		require.NoError(t, err)
		require.NotNil(t, resp.Error)
		assert.Equal(t, domain.RunErrorCancelled, resp.Error.Kind)
	})

	t.Run("PackagePatternRejected", func(t *testing.T) {
		_, err := svc.Run(ctx, domain.RunRequest{Path: "./..."})
		assert.Equal(t, domain.ErrCodeInvalidInput, domain.ErrorCode(err))
	})

	t.Run("NotAProgram", func(t *testing.T) {
		_, err := svc.Run(ctx, domain.RunRequest{Path: filepath.Join(dir, "notes.txt")})
		assert.Equal(t, domain.ErrCodeInvalidInput, domain.ErrorCode(err))
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := svc.Run(ctx, domain.RunRequest{Path: filepath.Join(dir, "gone.yaml")})
		assert.Equal(t, domain.ErrCodeFileNotFound, domain.ErrorCode(err))
	})
}

func TestSelectProgram(t *testing.T) {
	a := &ir.Program{Name: "a"}
	b := &ir.Program{Name: "b"}

	got, err := selectProgram([]*ir.Program{a}, "")
	require.NoError(t, err)
	assert.Same(t, a, got)

	got, err = selectProgram([]*ir.Program{a, b}, "b")
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = selectProgram([]*ir.Program{a, b}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select one of: a, b")

	_, err = selectProgram([]*ir.Program{a}, "c")
	assert.Contains(t, err.Error(), `program "c" not found`)

	_, err = selectProgram(nil, "")
	assert.Error(t, err)
}
