package interp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ludo-technologies/irflow/internal/ir"
	"github.com/ludo-technologies/irflow/internal/runtime"
)

func load(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := ir.LoadProgram(strings.NewReader(src))
	require.NoError(t, err)
	return prog
}

func runProgram(t *testing.T, src string, opts ...Option) (*Result, error) {
	t.Helper()
	return New(load(t, src), opts...).Run(context.Background())
}

func TestRun_Values(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want runtime.Value
	}{
		{
			name: "BreakInLambdaReturnsFromLambda",
			src: `
script:
  blocks:
    - instrs:
        - {op: lambda, dst: l, closure: body}
        - {op: call_block, dst: r, block: l}
        - {op: return, value: r}
  closures:
    - name: body
      blocks:
        - instrs:
            - {op: break, value: 42}
`,
			want: int64(42),
		},
		{
			name: "BreakFromBlockReturnsFromCall",
			src: `
methods:
  - name: m
    blocks:
      - instrs:
          - {op: yield}
          - {op: return, value: 99}
script:
  blocks:
    - instrs:
        - {op: call, dst: r, method: m, closure: blk}
        - {op: return, value: r}
  closures:
    - name: blk
      blocks:
        - instrs:
            - {op: break, value: 7}
`,
			want: int64(7),
		},
		{
			name: "BlockWithoutBreakFallsThrough",
			src: `
methods:
  - name: m
    blocks:
      - instrs:
          - {op: yield, dst: "%y"}
          - {op: add, dst: "%r", a: "%y", b: 1}
          - {op: return, value: "%r"}
script:
  blocks:
    - instrs:
        - {op: call, dst: r, method: m, closure: blk}
        - {op: return, value: r}
  closures:
    - name: blk
      blocks:
        - instrs:
            - {op: return, value: 41}
`,
			want: int64(42),
		},
		{
			name: "BreakInEvalIsAttributedToBlock",
			src: `
methods:
  - name: m
    blocks:
      - instrs:
          - {op: yield}
          - {op: return, value: 99}
script:
  blocks:
    - instrs:
        - {op: call, dst: r, method: m, closure: blk}
        - {op: return, value: r}
  closures:
    - name: blk
      blocks:
        - instrs:
            - {op: eval, dst: "%e", closure: code}
            - {op: return, value: "%e"}
      closures:
        - name: code
          kind: eval
          blocks:
            - instrs:
                - {op: break, value: 5}
`,
			want: int64(5),
		},
		{
			name: "ReturnFromBlockReturnsFromMethod",
			src: `
methods:
  - name: m
    blocks:
      - instrs:
          - {op: call, method: times, args: [3], closure: blk}
          - {op: return, value: 99}
    closures:
      - name: blk
        params: [i]
        blocks:
          - instrs:
              - {op: nonlocal_return, value: 5}
script:
  blocks:
    - instrs:
        - {op: call, dst: r, method: m}
        - {op: return, value: r}
`,
			want: int64(5),
		},
		{
			name: "ReturnInEvalReturnsFromMethod",
			src: `
methods:
  - name: m
    blocks:
      - instrs:
          - {op: eval, closure: code}
          - {op: return, value: 6}
    closures:
      - name: code
        kind: eval
        blocks:
          - instrs:
              - {op: nonlocal_return, value: 5}
script:
  blocks:
    - instrs:
        - {op: call, dst: r, method: m}
        - {op: return, value: r}
`,
			want: int64(5),
		},
		{
			name: "LambdaAbsorbsItsReturn",
			src: `
script:
  blocks:
    - instrs:
        - {op: lambda, dst: l, closure: body}
        - {op: call_block, dst: r, block: l}
        - {op: add, dst: r, a: r, b: 1}
        - {op: return, value: r}
  closures:
    - name: body
      blocks:
        - instrs:
            - {op: nonlocal_return, value: 3}
`,
			want: int64(4),
		},
		{
			name: "ClosureSharesLocals",
			src: `
script:
  blocks:
    - instrs:
        - {op: copy, dst: acc, src: 0}
        - {op: call, method: times, args: [4], closure: blk}
        - {op: return, value: acc}
  closures:
    - name: blk
      params: [i]
      blocks:
        - instrs:
            - {op: add, dst: acc, a: acc, b: i}
`,
			want: int64(6),
		},
		{
			name: "LoopWithBranch",
			src: `
script:
  blocks:
    - label: init
      instrs:
        - {op: copy, dst: i, src: 0}
    - label: head
      instrs:
        - {op: lt, dst: "%c", a: i, b: 10}
        - {op: bfalse, cond: "%c", target: done}
    - label: body
      instrs:
        - {op: add, dst: i, a: i, b: 1}
        - {op: jump, target: head}
    - label: done
      instrs:
        - {op: return, value: i}
`,
			want: int64(10),
		},
		{
			name: "RescueCatchesRaise",
			src: `
script:
  blocks:
    - label: body
      rescue: handler
      instrs:
        - {op: call, method: each_item, closure: blk}
        - {op: return, value: 0}
    - label: handler
      instrs:
        - {op: recv_exception, dst: e}
        - {op: return, value: e}
  closures:
    - name: blk
      blocks:
        - instrs:
            - {op: raise, value: ":boom"}
methods:
  - name: each_item
    blocks:
      - instrs:
          - {op: yield}
          - {op: return}
`,
			want: "boom",
		},
		{
			name: "RescueDoesNotCatchBreak",
			src: `
methods:
  - name: m
    blocks:
      - label: body
        rescue: handler
        instrs:
          - {op: yield}
          - {op: return, value: 99}
      - label: handler
        instrs:
          - {op: return, value: -1}
script:
  blocks:
    - instrs:
        - {op: call, dst: r, method: m, closure: blk}
        - {op: return, value: r}
  closures:
    - name: blk
      blocks:
        - instrs:
            - {op: break, value: 7}
`,
			want: int64(7),
		},
		{
			name: "ThreadValueIsJoined",
			src: `
script:
  blocks:
    - instrs:
        - {op: copy, dst: x, src: 20}
        - {op: thread, dst: t, closure: body}
        - {op: call, dst: r, method: join, args: [t]}
        - {op: return, value: r}
  closures:
    - name: body
      blocks:
        - instrs:
            - {op: add, dst: "%v", a: x, b: 22}
            - {op: return, value: "%v"}
`,
			want: int64(42),
		},
		{
			name: "BreakInEvalLeavesLambda",
			src: `
script:
  blocks:
    - instrs:
        - {op: lambda, dst: l, closure: body}
        - {op: call_block, dst: r, block: l}
        - {op: return, value: r}
  closures:
    - name: body
      blocks:
        - instrs:
            - {op: eval, closure: code}
            - {op: return, value: 99}
      closures:
        - name: code
          kind: eval
          blocks:
            - instrs:
                - {op: break, value: 5}
`,
			want: int64(5),
		},
		{
			name: "ReturnInEvalLeavesLambda",
			src: `
script:
  blocks:
    - instrs:
        - {op: lambda, dst: l, closure: body}
        - {op: call_block, dst: r, block: l}
        - {op: add, dst: r, a: r, b: 1}
        - {op: return, value: r}
  closures:
    - name: body
      blocks:
        - instrs:
            - {op: eval, closure: code}
            - {op: return, value: 99}
      closures:
        - name: code
          kind: eval
          blocks:
            - instrs:
                - {op: nonlocal_return, value: 5}
`,
			want: int64(6),
		},
		{
			name: "ProcBreakThroughLambdaIsRescued",
			src: `
script:
  blocks:
    - instrs:
        - {op: call, dst: p, method: proc, closure: brk}
        - {op: lambda, dst: l, closure: body}
    - label: guarded
      rescue: handler
      instrs:
        - {op: call_block, dst: r, block: l}
        - {op: return, value: r}
    - label: handler
      instrs:
        - {op: recv_exception, dst: e}
        - {op: return, value: e}
  closures:
    - name: brk
      blocks:
        - instrs:
            - {op: break, value: 5}
    - name: body
      blocks:
        - instrs:
            - {op: call_block, block: p}
            - {op: return, value: 1}
`,
			want: "break from proc-closure",
		},
		{
			name: "LambdaBuiltinConvertsBlock",
			src: `
script:
  blocks:
    - instrs:
        - {op: call, dst: l, method: lambda, closure: body}
        - {op: call_block, dst: r, block: l}
        - {op: return, value: r}
  closures:
    - name: body
      blocks:
        - instrs:
            - {op: break, value: 8}
`,
			want: int64(8),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := runProgram(t, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Value)
			assert.Positive(t, result.Steps)
		})
	}
}

func TestRun_Errors(t *testing.T) {
	t.Run("BreakAtTopLevel", func(t *testing.T) {
		_, err := runProgram(t, "script: {blocks: [{instrs: [{op: break, value: 1}]}]}")
		var lje *runtime.LocalJumpError
		require.ErrorAs(t, err, &lje)
		assert.Equal(t, runtime.ReasonBreak, lje.Reason)
	})

	t.Run("BreakInMethodBody", func(t *testing.T) {
		_, err := runProgram(t, `
methods:
  - name: m
    blocks: [{instrs: [{op: break, value: 1}]}]
script:
  blocks: [{instrs: [{op: call, method: m}]}]
`)
		var lje *runtime.LocalJumpError
		require.ErrorAs(t, err, &lje)
		assert.Equal(t, runtime.ReasonBreak, lje.Reason)
	})

	t.Run("ReturnInThreadBody", func(t *testing.T) {
		result, err := runProgram(t, `
script:
  blocks:
    - instrs:
        - {op: thread, dst: t, closure: body}
        - {op: call, dst: r, method: join, args: [t]}
        - {op: return, value: r}
  closures:
    - name: body
      blocks:
        - instrs:
            - {op: nonlocal_return, value: 1}
`)
		assert.Nil(t, result)
		var te *runtime.ThreadError
		require.ErrorAs(t, err, &te)
	})

	t.Run("BreakFromProcCalledDirectly", func(t *testing.T) {
		_, err := runProgram(t, `
script:
  blocks:
    - instrs:
        - {op: call, dst: p, method: proc, closure: body}
        - {op: call_block, block: p}
        - {op: return, value: 0}
  closures:
    - name: body
      blocks:
        - instrs:
            - {op: break, value: 1}
`)
		var lje *runtime.LocalJumpError
		require.ErrorAs(t, err, &lje)
		assert.Equal(t, runtime.ReasonBreak, lje.Reason)
		assert.Equal(t, int64(1), lje.Value)
	})

	t.Run("BreakFromEscapedProc", func(t *testing.T) {
		_, err := runProgram(t, `
methods:
  - name: mk
    blocks:
      - instrs:
          - {op: call, dst: p, method: proc, closure: b}
          - {op: return, value: p}
    closures:
      - name: b
        blocks: [{instrs: [{op: break, value: 1}]}]
script:
  blocks:
    - instrs:
        - {op: call, dst: p, method: mk}
        - {op: call_block, dst: r, block: p}
        - {op: return, value: r}
`)
		var lje *runtime.LocalJumpError
		require.ErrorAs(t, err, &lje)
		assert.Equal(t, runtime.ReasonBreak, lje.Reason)
	})

	t.Run("ReturnFromEscapedProc", func(t *testing.T) {
		_, err := runProgram(t, `
methods:
  - name: mk
    blocks:
      - instrs:
          - {op: call, dst: p, method: proc, closure: b}
          - {op: return, value: p}
    closures:
      - name: b
        blocks: [{instrs: [{op: nonlocal_return, value: 1}]}]
script:
  blocks:
    - instrs:
        - {op: call, dst: p, method: mk}
        - {op: call_block, dst: r, block: p}
        - {op: return, value: r}
`)
		var lje *runtime.LocalJumpError
		require.ErrorAs(t, err, &lje)
		assert.Equal(t, runtime.ReasonReturn, lje.Reason)
	})

	t.Run("ProcBreakThroughLambda", func(t *testing.T) {
		_, err := runProgram(t, `
script:
  blocks:
    - instrs:
        - {op: call, dst: p, method: proc, closure: brk}
        - {op: lambda, dst: l, closure: body}
        - {op: call_block, dst: r, block: l}
        - {op: return, value: r}
  closures:
    - name: brk
      blocks: [{instrs: [{op: break, value: 5}]}]
    - name: body
      blocks:
        - instrs:
            - {op: call_block, block: p}
            - {op: return, value: 1}
`)
		var lje *runtime.LocalJumpError
		require.ErrorAs(t, err, &lje)
		assert.Equal(t, runtime.ReasonBreak, lje.Reason)
		assert.Equal(t, int64(5), lje.Value)
	})

	t.Run("YieldWithoutBlock", func(t *testing.T) {
		_, err := runProgram(t, `
methods:
  - name: m
    blocks: [{instrs: [{op: yield}]}]
script:
  blocks: [{instrs: [{op: call, method: m}]}]
`)
		var lje *runtime.LocalJumpError
		require.ErrorAs(t, err, &lje)
	})

	t.Run("UnhandledRaise", func(t *testing.T) {
		_, err := runProgram(t, "script: {blocks: [{instrs: [{op: raise, value: ':oops'}]}]}")
		var re *runtime.RaiseError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "oops", re.Value)
	})

	t.Run("UnknownMethod", func(t *testing.T) {
		_, err := runProgram(t, "script: {blocks: [{instrs: [{op: call, method: nope}]}]}")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "undefined method 'nope'")
	})

	t.Run("TypeError", func(t *testing.T) {
		_, err := runProgram(t, "script: {blocks: [{instrs: [{op: add, dst: x, a: 1, b: ':s'}]}]}")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TypeError")
	})
}

// Each template holds a closure body whose first instruction either exits
// directly or runs the eval body "code", which holds the exit.
const lambdaExitTemplate = `
script:
  blocks:
    - instrs:
        - {op: lambda, dst: l, closure: body}
        - {op: call_block, dst: r, block: l}
        - {op: return, value: r}
  closures:
    - name: body
      blocks:
        - instrs:
            - %s
            - {op: return, value: 99}
      closures:
        - name: code
          kind: eval
          blocks:
            - instrs:
                - %s
`

const procExitTemplate = `
methods:
  - name: m
    blocks:
      - instrs:
          - {op: yield}
          - {op: return, value: 99}
  - name: outer
    blocks:
      - instrs:
          - {op: call, dst: r, method: m, closure: body}
          - {op: return, value: r}
    closures:
      - name: body
        blocks:
          - instrs:
              - %s
              - {op: return, value: 97}
        closures:
          - name: code
            kind: eval
            blocks:
              - instrs:
                  - %s
script:
  blocks:
    - instrs:
        - {op: call, dst: r, method: outer}
        - {op: return, value: r}
`

func TestRun_EvalMatchesDirect(t *testing.T) {
	const runEval = "{op: eval, closure: code}"
	tests := []struct {
		name     string
		template string
		exit     string
	}{
		{"BreakInLambda", lambdaExitTemplate, "{op: break, value: 5}"},
		{"ReturnInLambda", lambdaExitTemplate, "{op: nonlocal_return, value: 5}"},
		{"BreakInProc", procExitTemplate, "{op: break, value: 5}"},
		{"ReturnInProc", procExitTemplate, "{op: nonlocal_return, value: 5}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direct, err := runProgram(t, fmt.Sprintf(tt.template, tt.exit, "{op: return}"))
			require.NoError(t, err)
			viaEval, err := runProgram(t, fmt.Sprintf(tt.template, runEval, tt.exit))
			require.NoError(t, err)

			assert.Equal(t, int64(5), direct.Value)
			assert.Equal(t, direct.Value, viaEval.Value)
		})
	}
}

func TestRun_Cancellation(t *testing.T) {
	prog := load(t, `
script:
  blocks:
    - label: spin
      instrs:
        - {op: jump, target: spin}
`)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(prog).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRun_Output(t *testing.T) {
	var buf bytes.Buffer
	result, err := runProgram(t, `
script:
  blocks:
    - instrs:
        - {op: call, method: puts, args: [":hello", 1, null]}
        - {op: return}
`, WithOutput(&buf))
	require.NoError(t, err)
	assert.Nil(t, result.Value)
	assert.Equal(t, "hello 1 nil\n", buf.String())
}

func TestRun_CustomBuiltin(t *testing.T) {
	double := func(_ context.Context, _ *runtime.ThreadContext, args []runtime.Value, _ *runtime.Block) (runtime.Value, error) {
		return args[0].(int64) * 2, nil
	}
	result, err := runProgram(t, `
script:
  blocks:
    - instrs:
        - {op: call, dst: r, method: double, args: [21]}
        - {op: return, value: r}
`, WithBuiltin("double", double))
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Value)
}

func TestRun_Threads(t *testing.T) {
	result, err := runProgram(t, `
script:
  blocks:
    - instrs:
        - {op: thread, dst: a, closure: body}
        - {op: thread, dst: b, closure: body}
        - {op: call, dst: x, method: join, args: [a]}
        - {op: call, dst: y, method: join, args: [b]}
        - {op: add, dst: r, a: x, b: y}
        - {op: return, value: r}
  closures:
    - name: body
      blocks:
        - instrs:
            - {op: return, value: 1}
`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Value)
	assert.Equal(t, 2, result.Threads)
}

func TestInspect(t *testing.T) {
	assert.Equal(t, "nil", Inspect(nil))
	assert.Equal(t, `"a"`, Inspect("a"))
	assert.Equal(t, "3", Inspect(int64(3)))
	assert.Equal(t, "1.5", Inspect(1.5))
	assert.Equal(t, "true", Inspect(true))
}
