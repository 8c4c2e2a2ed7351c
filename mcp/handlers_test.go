package mcp_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ludo-technologies/irflow/domain"
	"github.com/ludo-technologies/irflow/mcp"
)

const deadStoreProgram = `
name: dead_store
script:
  blocks:
    - label: entry
      instrs:
        - {op: copy, dst: x, src: 1}
        - {op: copy, dst: x, src: 2}
        - {op: call, method: puts, args: [x]}
        - {op: return, value: x}
`

const breakProgram = `
name: top_break
script:
  blocks: [{instrs: [{op: break, value: 5}]}]
`

func setupProgram(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func callTool(
	t *testing.T,
	arguments interface{},
	handler func(*mcp.HandlerSet, context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error),
) *mcplib.CallToolResult {
	t.Helper()
	h := mcp.NewHandlerSet(mcp.NewDependencies(zerolog.Nop(), ""))
	req := mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Arguments: arguments},
	}
	res, err := handler(h, context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func resultText(t *testing.T, res *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcplib.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestHandleAnalyzeProgram(t *testing.T) {
	path := setupProgram(t, "dead.yaml", deadStoreProgram)

	tests := map[string]struct {
		arguments    interface{}
		isError      bool
		expectPrefix string
		check        func(t *testing.T, resp domain.AnalyzeResponse)
	}{
		"invalid_arguments_format": {
			arguments:    "not-a-map",
			isError:      true,
			expectPrefix: "invalid arguments format",
		},
		"path_missing": {
			arguments:    map[string]interface{}{},
			isError:      true,
			expectPrefix: "path parameter is required",
		},
		"path_not_exist": {
			arguments:    map[string]interface{}{"path": "/non/existing/path.yaml"},
			isError:      true,
			expectPrefix: "path does not exist",
		},
		"unknown_analysis": {
			arguments:    map[string]interface{}{"path": path, "analyses": []interface{}{"taint"}},
			isError:      true,
			expectPrefix: "analysis failed",
		},
		"selected_analyses": {
			arguments: map[string]interface{}{"path": path, "analyses": []interface{}{"live"}},
			check: func(t *testing.T, resp domain.AnalyzeResponse) {
				assert.Equal(t, []string{"live"}, resp.Analyses)
				assert.Equal(t, 1, resp.Summary.FindingsByKind["dead_store"])
				require.Len(t, resp.Scopes, 1)
				assert.Empty(t, resp.Scopes[0].Results[0].Blocks)
			},
		},
		"with_facts": {
			arguments: map[string]interface{}{"path": path, "analyses": []interface{}{"reaching"}, "show_facts": true},
			check: func(t *testing.T, resp domain.AnalyzeResponse) {
				require.Len(t, resp.Scopes, 1)
				assert.NotEmpty(t, resp.Scopes[0].Results[0].Blocks)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			res := callTool(t, tt.arguments, (*mcp.HandlerSet).HandleAnalyzeProgram)
			assert.Equal(t, tt.isError, res.IsError)
			text := resultText(t, res)
			if tt.expectPrefix != "" {
				assert.True(t, strings.HasPrefix(text, tt.expectPrefix), text)
			}
			if tt.check != nil {
				var resp domain.AnalyzeResponse
				require.NoError(t, json.Unmarshal([]byte(text), &resp))
				tt.check(t, resp)
			}
		})
	}
}

func TestHandleRunProgram(t *testing.T) {
	t.Run("Value", func(t *testing.T) {
		res := callTool(t, map[string]interface{}{"path": setupProgram(t, "dead.yaml", deadStoreProgram)}, (*mcp.HandlerSet).HandleRunProgram)
		require.False(t, res.IsError)
		var resp domain.RunResponse
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
		assert.Equal(t, "2", resp.Value)
		assert.Equal(t, "2\n", resp.Output)
		assert.Nil(t, resp.Error)
	})

	t.Run("LocalJumpError", func(t *testing.T) {
		res := callTool(t, map[string]interface{}{
			"path":            setupProgram(t, "break.yaml", breakProgram),
			"timeout_seconds": float64(5),
		}, (*mcp.HandlerSet).HandleRunProgram)
		require.False(t, res.IsError)
		var resp domain.RunResponse
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, domain.RunErrorLocalJump, resp.Error.Kind)
		assert.Equal(t, "break", resp.Error.Reason)
		assert.Equal(t, "5", resp.Error.Value)
	})

	t.Run("NegativeTimeout", func(t *testing.T) {
		res := callTool(t, map[string]interface{}{
			"path":            setupProgram(t, "dead.yaml", deadStoreProgram),
			"timeout_seconds": float64(-1),
		}, (*mcp.HandlerSet).HandleRunProgram)
		assert.True(t, res.IsError)
	})

	t.Run("UnknownProgram", func(t *testing.T) {
		res := callTool(t, map[string]interface{}{
			"path":    setupProgram(t, "dead.yaml", deadStoreProgram),
			"program": "other",
		}, (*mcp.HandlerSet).HandleRunProgram)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), `program "other" not found`)
	})
}

func TestRegisterTools(t *testing.T) {
	s := server.NewMCPServer("irflow", "test", server.WithToolCapabilities(true))
	assert.NotPanics(t, func() {
		mcp.RegisterTools(s, mcp.NewHandlerSet(nil))
	})
}
