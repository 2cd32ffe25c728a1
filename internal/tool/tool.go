// Package tool implements the named-tool registry and dispatcher: a catalog
// of schema-described operations executed by name with validated arguments.
package tool

import (
	"context"
	"fmt"
)

// Handler is the single capability interface every tool implements.
// Per-tool behavior is selected by the registry lookup table, not by
// inheritance or name comparison chains.
type Handler interface {
	Run(ctx context.Context, args map[string]any) (any, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

func (f HandlerFunc) Run(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Tool is a named, schema-described unit of executable behavior.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	InputSchema map[string]any `json:"input_schema"`
	Popularity  int            `json:"popularity"`
	Enabled     bool           `json:"enabled"`
	Handler     Handler        `json:"-"`
}

// DuplicateNameError is returned by Register when the name is taken.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// NotFoundError is returned by Execute for unknown or disabled tools.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

// ValidationError is returned by Execute when the arguments do not
// satisfy the tool's input schema.
type ValidationError struct {
	Tool   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, e.Detail)
}

// ExecutionError means the tool was dispatched and ran, but reported a
// failure. Distinct from NotFoundError/ValidationError so callers can
// tell "tool failed" apart from "dispatch failed".
type ExecutionError struct {
	Tool    string
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Message)
}
