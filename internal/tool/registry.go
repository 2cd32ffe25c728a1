package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry is the catalog of registered tools. It is safe for concurrent
// use; List order is registration order (stable).
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*registered
	order    []string
	logger   *slog.Logger
}

type registered struct {
	tool   Tool
	schema *jsonschema.Schema // nil when the tool declares no input schema
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*registered),
		logger: slog.Default(),
	}
}

// Register adds a tool to the catalog. It fails with *DuplicateNameError
// when the name is taken, or a plain error when the input schema does not
// compile; in both cases the registry is left unchanged.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}

	var compiled *jsonschema.Schema
	if t.InputSchema != nil {
		var err error
		compiled, err = compileSchema(t.Name, t.InputSchema)
		if err != nil {
			return fmt.Errorf("compiling schema for tool %q: %w", t.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[t.Name]; exists {
		return &DuplicateNameError{Name: t.Name}
	}
	r.byName[t.Name] = &registered{tool: t, schema: compiled}
	r.order = append(r.order, t.Name)
	return nil
}

// compileSchema round-trips the schema map through JSON so the compiler
// sees canonical decoded values, then compiles it.
func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("mem://tools/%s.schema.json", name)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// List returns all enabled tools in registration order, optionally
// filtered by category.
func (r *Registry) List(category string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.byName[name].tool
		if !t.Enabled {
			continue
		}
		if category != "" && t.Category != category {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Get returns the tool by name regardless of enabled state.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	if !ok {
		return Tool{}, false
	}
	return reg.tool, true
}

// Len returns the number of registered tools, enabled or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Execute looks up a tool by name, validates args against its input
// schema, and runs it. Failure modes are typed: *NotFoundError for
// unknown/disabled tools, *ValidationError for schema mismatches, and
// *ExecutionError when the tool itself reports a failure.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	reg, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok || !reg.tool.Enabled {
		return nil, &NotFoundError{Name: name}
	}

	if args == nil {
		args = map[string]any{}
	}

	if reg.schema != nil {
		if err := validateArgs(reg.schema, args); err != nil {
			r.logger.Warn("tool argument validation failed", "tool", name, "error", err)
			return nil, &ValidationError{Tool: name, Detail: err.Error()}
		}
	}

	start := time.Now()
	result, err := reg.tool.Handler.Run(ctx, args)
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", name, "error", err)
		if execErr, ok := err.(*ExecutionError); ok {
			return nil, execErr
		}
		return nil, &ExecutionError{Tool: name, Message: err.Error()}
	}

	r.logger.Debug("tool executed", "tool", name, "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// validateArgs round-trips args through JSON for canonical types, then
// validates against the compiled schema.
func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}
