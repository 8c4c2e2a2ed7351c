package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/ludo-technologies/irflow/domain"
	"github.com/ludo-technologies/irflow/service"
)

// HandlerSet exposes MCP tool handlers with shared dependencies.
type HandlerSet struct {
	deps *Dependencies
}

// NewHandlerSet constructs a handler set.
func NewHandlerSet(deps *Dependencies) *HandlerSet {
	if deps == nil {
		deps = NewDependencies(zerolog.Nop(), "")
	}
	return &HandlerSet{deps: deps}
}

// HandleAnalyzeProgram handles the analyze_program tool
func (h *HandlerSet) HandleAnalyzeProgram(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, path, errResult := pathArgument(request)
	if errResult != nil {
		return errResult, nil
	}

	req := domain.AnalyzeRequest{
		Paths:        []string{path},
		OutputFormat: domain.OutputFormatJSON,
		Recursive:    true,
		ConfigPath:   h.deps.ConfigPath(),
	}
	explicit := make(map[string]bool)

	if rawAnalyses, ok := args["analyses"].([]interface{}); ok {
		for _, a := range rawAnalyses {
			if str, ok := a.(string); ok {
				req.Analyses = append(req.Analyses, str)
			}
		}
		explicit[service.FlagAnalysis] = len(req.Analyses) > 0
	}
	if recursive, ok := args["recursive"].(bool); ok {
		req.Recursive = recursive
		explicit[service.FlagRecursive] = true
	}
	showFacts := false
	if sf, ok := args["show_facts"].(bool); ok {
		showFacts = sf
	}

	useCase, err := h.deps.BuildAnalyzeUseCase()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create analyzer: %v", err)), nil
	}

	resp, err := useCase.AnalyzeAndReturn(ctx, req, explicit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
	}
	if !showFacts {
		stripFacts(resp)
	}
	return jsonResult(resp)
}

// HandleRunProgram handles the run_program tool
func (h *HandlerSet) HandleRunProgram(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, path, errResult := pathArgument(request)
	if errResult != nil {
		return errResult, nil
	}

	req := domain.RunRequest{
		Path:         path,
		OutputFormat: domain.OutputFormatJSON,
		ConfigPath:   h.deps.ConfigPath(),
	}
	explicit := make(map[string]bool)

	if program, ok := args["program"].(string); ok {
		req.Program = program
	}
	if timeout, ok := args["timeout_seconds"].(float64); ok {
		if timeout < 0 {
			return mcp.NewToolResultError("timeout_seconds must be >= 0"), nil
		}
		req.TimeoutSeconds = int(timeout)
		explicit[service.FlagTimeout] = true
	}

	useCase, err := h.deps.BuildRunUseCase()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create interpreter: %v", err)), nil
	}

	resp, err := useCase.Execute(ctx, req, explicit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}
	return jsonResult(resp)
}

// pathArgument extracts the arguments map and the existing path it names
func pathArgument(request mcp.CallToolRequest) (map[string]interface{}, string, *mcp.CallToolResult) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, "", mcp.NewToolResultError("invalid arguments format")
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, "", mcp.NewToolResultError("path parameter is required and must be a string")
	}

	statPath := path
	if dir, ok := strings.CutSuffix(path, "..."); ok {
		statPath = strings.TrimSuffix(dir, "/")
		if statPath == "" {
			statPath = "."
		}
	}
	if _, err := os.Stat(statPath); os.IsNotExist(err) {
		return nil, "", mcp.NewToolResultError(fmt.Sprintf("path does not exist: %s", path))
	}
	return args, path, nil
}

// stripFacts drops per-block facts, which dominate the response size
func stripFacts(resp *domain.AnalyzeResponse) {
	for i := range resp.Scopes {
		for j := range resp.Scopes[i].Results {
			resp.Scopes[i].Results[j].Blocks = nil
		}
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
