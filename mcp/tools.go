package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ludo-technologies/irflow/internal/dataflow/analyses"
)

// RegisterTools registers the irflow tools with the server
func RegisterTools(s *server.MCPServer, h *HandlerSet) {
	s.AddTool(mcp.NewTool("analyze_program",
		mcp.WithDescription("Run dataflow analyses (liveness, definedness, reaching definitions, reachability) over IR programs and report per-scope findings"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("YAML program, directory, Go file or Go package pattern ending in ...")),
		mcp.WithArray("analyses",
			mcp.WithStringEnumItems(analyses.Names()),
			mcp.Description("Analyses to run. Default: all analyses")),
		mcp.WithBoolean("recursive",
			mcp.Description("Recursively analyze directories (default: true)")),
		mcp.WithBoolean("show_facts",
			mcp.Description("Include per-block IN/OUT facts (default: false)")),
	), h.HandleAnalyzeProgram)

	s.AddTool(mcp.NewTool("run_program",
		mcp.WithDescription("Interpret an IR program and return its value, output and any uncaught LocalJumpError, ThreadError or raised value"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("YAML program, Go file or directory holding a Go package")),
		mcp.WithString("program",
			mcp.Description("Program to run when the source holds several")),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Cancel the run after this many seconds, 0 = never (default: from configuration)")),
	), h.HandleRunProgram)
}
