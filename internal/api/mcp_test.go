package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/mcpd/internal/contextstore"
	"github.com/kalambet/mcpd/internal/intent"
	"github.com/kalambet/mcpd/internal/processor"
	"github.com/kalambet/mcpd/internal/retrieval"
	"github.com/kalambet/mcpd/internal/tool"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) Deps {
	t.Helper()
	store := contextstore.New()
	registry := tool.NewRegistry()
	if err := tool.RegisterBuiltins(registry); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	searcher := &mockSearcher{}
	return Deps{
		Store:     store,
		Registry:  registry,
		Searcher:  searcher,
		Processor: processor.New(store, registry, searcher, intent.NewRouter(nil, "")),
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestMCPTool_StoreAndRetrieveContext(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpStoreContext(deps)(context.Background(), makeCallToolRequest("store_context", map[string]any{
		"tenant": "acme",
		"key":    "theme",
		"value":  "dark",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	result, err = mcpRetrieveContext(deps)(context.Background(), makeCallToolRequest("retrieve_context", map[string]any{
		"tenant": "acme",
		"key":    "theme",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
		Found bool   `json:"found"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if got.Value != "dark" || !got.Found {
		t.Errorf("unexpected retrieve result: %+v", got)
	}
}

func TestMCPTool_StoreContext_MissingArgs(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpStoreContext(deps)(context.Background(), makeCallToolRequest("store_context", map[string]any{
		"tenant": "acme",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError for missing key")
	}
}

func TestMCPTool_ClearContext(t *testing.T) {
	deps := newTestMCPDeps(t)
	deps.Store.Set("acme", "a", 1)
	deps.Store.Set("acme", "b", 2)

	result, err := mcpClearContext(deps)(context.Background(), makeCallToolRequest("clear_context", map[string]any{
		"tenant": "acme",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(toolText(t, result), "2") {
		t.Errorf("expected cleared count in response, got %s", toolText(t, result))
	}
	if deps.Store.Len("acme") != 0 {
		t.Error("expected tenant to be empty")
	}
}

func TestMCPTool_ListTools(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpListTools(deps)(context.Background(), makeCallToolRequest("list_tools", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var tools []tool.Tool
	if err := json.Unmarshal([]byte(toolText(t, result)), &tools); err != nil {
		t.Fatalf("parsing tools: %v", err)
	}
	if len(tools) != deps.Registry.Len() {
		t.Errorf("expected %d tools, got %d", deps.Registry.Len(), len(tools))
	}
}

func TestMCPTool_ExecuteTool(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpExecuteTool(deps)(context.Background(), makeCallToolRequest("execute_tool", map[string]any{
		"name":       "calculator",
		"parameters": `{"expression":"3 ^ 4"}`,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if toolText(t, result) != "81" {
		t.Errorf("expected 81, got %s", toolText(t, result))
	}
}

func TestMCPTool_ExecuteTool_Unknown(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpExecuteTool(deps)(context.Background(), makeCallToolRequest("execute_tool", map[string]any{
		"name": "nonexistent_tool",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError for unknown tool")
	}
}

func TestMCPTool_FindSimilar(t *testing.T) {
	deps := newTestMCPDeps(t)
	deps.Searcher = &mockSearcher{hits: []retrieval.ScoredDocument{
		{Document: retrieval.Document{ID: "doc-1", Content: "Go is great"}, Score: 0.95},
	}}

	result, err := mcpFindSimilar(deps)(context.Background(), makeCallToolRequest("find_similar", map[string]any{
		"query":  "golang",
		"tenant": "acme",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var hits []struct {
		ID    string  `json:"id"`
		Score float32 `json:"score"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &hits); err != nil {
		t.Fatalf("parsing hits: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "doc-1" {
		t.Errorf("unexpected hits: %+v", hits)
	}
}

func TestMCPTool_ProcessCommand(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpProcessCommand(deps)(context.Background(), makeCallToolRequest("process_command", map[string]any{
		"command": "calculate 10 / 4",
		"tenant":  "acme",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	var res processor.CommandResult
	if err := json.Unmarshal([]byte(toolText(t, result)), &res); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if res.Action != "execute_tool" || !res.Success {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestMCPTool_ProcessCommand_FailureIsToolError(t *testing.T) {
	deps := newTestMCPDeps(t)

	result, err := mcpProcessCommand(deps)(context.Background(), makeCallToolRequest("process_command", map[string]any{
		"command": "tell me a joke",
		"tenant":  "acme",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError when the processor reports failure")
	}
}
