package e2e

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the irflow binary")
	}
	binary := buildIrflowBinary(t)

	t.Run("Text", func(t *testing.T) {
		stdout, stderr, code := runBinary(t, binary, "analyze", "--progress=false", programPath(t, "dead_code.yaml"))
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "Dataflow Analysis Report")
		assert.Contains(t, stdout, "dead_store")
		assert.Contains(t, stdout, "undefined_use")
		assert.Contains(t, stdout, "unreachable_code")
	})

	t.Run("JSON", func(t *testing.T) {
		stdout, stderr, code := runBinary(t, binary, "analyze", "-f", "json", "-a", "reachability", programPath(t, "dead_code.yaml"))
		require.Equal(t, 0, code, stderr)

		var resp struct {
			Summary struct {
				FindingsByKind map[string]int `json:"findings_by_kind"`
			} `json:"summary"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
		assert.Equal(t, 1, resp.Summary.FindingsByKind["unreachable_code"])
	})

	t.Run("Directory", func(t *testing.T) {
		dir := t.TempDir()
		createTestProgram(t, dir, "a.yaml", "name: a\nscript: {blocks: [{instrs: [{op: return, value: 1}]}]}\n")
		createTestProgram(t, dir, "b.yml", "name: b\nscript: {blocks: [{instrs: [{op: return, value: 2}]}]}\n")

		stdout, stderr, code := runBinary(t, binary, "analyze", "-f", "yaml", dir)
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "programs: 2")
	})

	t.Run("InvalidProgram", func(t *testing.T) {
		path := createTestProgram(t, t.TempDir(), "bad.yaml", "script: {blocks: [{instrs: [{op: frobnicate}]}]}\n")
		_, stderr, code := runBinary(t, binary, "analyze", path)
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "unknown instruction")
	})
}

func TestRunE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the irflow binary")
	}
	binary := buildIrflowBinary(t)

	tests := []struct {
		program string
		code    int
		stdout  string
	}{
		{"break_from_block.yaml", 0, "=> 7"},
		{"nonlocal_return.yaml", 0, "m returned 5\n=> 5"},
		{"lambda_return.yaml", 0, "=> 4"},
		{"thread_return.yaml", 1, "error: thread_error"},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSuffix(tt.program, ".yaml"), func(t *testing.T) {
			stdout, stderr, code := runBinary(t, binary, "run", programPath(t, tt.program))
			assert.Equal(t, tt.code, code, stderr)
			assert.Contains(t, stdout, tt.stdout)
		})
	}
}
