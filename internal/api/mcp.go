package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates an MCP server exposing the command surface as
// tools. It shares the same Deps as the HTTP layer.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"mcpd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("mcpd — per-tenant context store, tool dispatcher, and similarity search."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("store_context",
			mcp.WithDescription("Store a value under a key in a tenant's context namespace. Overwrites any previous value."),
			mcp.WithString("tenant", mcp.Description("Tenant namespace"), mcp.Required()),
			mcp.WithString("key", mcp.Description("Key to store under"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value to store"), mcp.Required()),
		),
		mcpStoreContext(deps),
	)

	s.AddTool(
		mcp.NewTool("retrieve_context",
			mcp.WithDescription("Retrieve the value stored under a key in a tenant's context namespace."),
			mcp.WithString("tenant", mcp.Description("Tenant namespace"), mcp.Required()),
			mcp.WithString("key", mcp.Description("Key to look up"), mcp.Required()),
		),
		mcpRetrieveContext(deps),
	)

	s.AddTool(
		mcp.NewTool("clear_context",
			mcp.WithDescription("Remove every context entry under a tenant."),
			mcp.WithString("tenant", mcp.Description("Tenant namespace"), mcp.Required()),
		),
		mcpClearContext(deps),
	)

	s.AddTool(
		mcp.NewTool("list_tools",
			mcp.WithDescription("List the enabled tools in the registry, optionally filtered by category."),
			mcp.WithString("category", mcp.Description("Category filter")),
		),
		mcpListTools(deps),
	)

	s.AddTool(
		mcp.NewTool("execute_tool",
			mcp.WithDescription("Execute a registered tool by name with JSON arguments."),
			mcp.WithString("name", mcp.Description("Tool name"), mcp.Required()),
			mcp.WithString("parameters", mcp.Description("JSON object of tool arguments")),
		),
		mcpExecuteTool(deps),
	)

	s.AddTool(
		mcp.NewTool("find_similar",
			mcp.WithDescription("Semantically search a tenant's indexed documents."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("tenant", mcp.Description("Tenant namespace"), mcp.Required()),
			mcp.WithString("type", mcp.Description("Optional document type filter")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpFindSimilar(deps),
	)

	s.AddTool(
		mcp.NewTool("process_command",
			mcp.WithDescription("Classify and run a free-text command for a tenant, returning a uniform result."),
			mcp.WithString("command", mcp.Description("The command text"), mcp.Required()),
			mcp.WithString("tenant", mcp.Description("Tenant namespace"), mcp.Required()),
		),
		mcpProcessCommand(deps),
	)

	return s
}

func mcpStoreContext(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenant, err := req.RequireString("tenant")
		if err != nil {
			return mcpError("tenant is required"), nil
		}
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		if err := deps.Store.Set(tenant, key, value); err != nil {
			return mcpError(fmt.Sprintf("failed to store: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Stored %q for tenant %s", key, tenant)), nil
	}
}

func mcpRetrieveContext(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenant, err := req.RequireString("tenant")
		if err != nil {
			return mcpError("tenant is required"), nil
		}
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}

		value, found := deps.Store.Get(tenant, key)
		b, err := json.Marshal(map[string]any{"key": key, "value": value, "found": found})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpClearContext(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenant, err := req.RequireString("tenant")
		if err != nil {
			return mcpError("tenant is required"), nil
		}
		cleared := deps.Store.Clear(tenant)
		return mcpText(fmt.Sprintf("Cleared %d entries for tenant %s", cleared, tenant)), nil
	}
}

func mcpListTools(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tools := deps.Registry.List(req.GetString("category", ""))
		b, err := json.Marshal(tools)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal tools: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpExecuteTool(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}

		args := map[string]any{}
		if raw := req.GetString("parameters", ""); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return mcpError(fmt.Sprintf("parameters is not a valid JSON object: %v", err)), nil
			}
		}

		result, err := deps.Registry.Execute(ctx, name, args)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpFindSimilar(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		tenant, err := req.RequireString("tenant")
		if err != nil {
			return mcpError("tenant is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		hits, err := deps.Searcher.Search(ctx, tenant, query, req.GetString("type", ""), limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		type hitResult struct {
			ID      string  `json:"id"`
			Content string  `json:"content"`
			Score   float32 `json:"score"`
		}
		results := make([]hitResult, len(hits))
		for i, h := range hits {
			results[i] = hitResult{ID: h.ID, Content: h.Content, Score: h.Score}
		}
		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpProcessCommand(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		command, err := req.RequireString("command")
		if err != nil {
			return mcpError("command is required"), nil
		}
		tenant, err := req.RequireString("tenant")
		if err != nil {
			return mcpError("tenant is required"), nil
		}

		res := deps.Processor.Process(ctx, command, tenant)
		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		if !res.Success {
			return mcpError(string(b)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
