package tool

import (
	"context"
	"errors"
	"math"
	"testing"
)

func builtinRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	return r
}

func TestCalculator(t *testing.T) {
	r := builtinRegistry(t)

	tests := []struct {
		expr string
		want float64
	}{
		{"2 + 3", 5},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 / 4", 2.5},
		{"-3 + 5", 2},
		{"2 ^ 10", 1024},
		{"2 ^ 3 ^ 2", 512},
		{"1.5 * 2", 3},
		{"-(2 + 3)", -5},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := r.Execute(context.Background(), "calculator", map[string]any{"expression": tc.expr})
			if err != nil {
				t.Fatalf("Execute(%q): %v", tc.expr, err)
			}
			f, ok := got.(float64)
			if !ok {
				t.Fatalf("result type %T, want float64", got)
			}
			if math.Abs(f-tc.want) > 1e-9 {
				t.Errorf("%q = %v, want %v", tc.expr, f, tc.want)
			}
		})
	}
}

func TestCalculator_Malformed(t *testing.T) {
	r := builtinRegistry(t)

	for _, expr := range []string{"", "2 +", "(2 + 3", "2 & 3", "1 / 0", "hello"} {
		t.Run(expr, func(t *testing.T) {
			_, err := r.Execute(context.Background(), "calculator", map[string]any{"expression": expr})
			var ee *ExecutionError
			if !errors.As(err, &ee) {
				t.Errorf("Execute(%q) err = %v, want ExecutionError", expr, err)
			}
		})
	}
}

func TestAnalyzeCode(t *testing.T) {
	r := builtinRegistry(t)

	code := "// a comment\n\nfunc main() {\n}\n"
	got, err := r.Execute(context.Background(), "analyze_code", map[string]any{"code": code})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	report, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("result type %T, want map", got)
	}
	if report["comment_lines"] != 1 {
		t.Errorf("comment_lines = %v, want 1", report["comment_lines"])
	}
	if report["functions"] != 1 {
		t.Errorf("functions = %v, want 1", report["functions"])
	}
	if report["blank_lines"] != 1 {
		t.Errorf("blank_lines = %v, want 1", report["blank_lines"])
	}
}

func TestTransformData(t *testing.T) {
	r := builtinRegistry(t)

	tests := []struct {
		op    string
		input string
		want  string
	}{
		{"upper", "abc", "ABC"},
		{"lower", "ABC", "abc"},
		{"trim", "  x  ", "x"},
		{"reverse", "abc", "cba"},
	}
	for _, tc := range tests {
		t.Run(tc.op, func(t *testing.T) {
			got, err := r.Execute(context.Background(), "transform_data", map[string]any{
				"input":     tc.input,
				"operation": tc.op,
			})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if got != tc.want {
				t.Errorf("%s(%q) = %v, want %q", tc.op, tc.input, got, tc.want)
			}
		})
	}
}

func TestTransformData_UnknownOperation(t *testing.T) {
	r := builtinRegistry(t)

	_, err := r.Execute(context.Background(), "transform_data", map[string]any{
		"input":     "x",
		"operation": "rot13",
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("err = %v, want ValidationError (enum violation)", err)
	}
}

func TestTransformData_BadJSON(t *testing.T) {
	r := builtinRegistry(t)

	_, err := r.Execute(context.Background(), "transform_data", map[string]any{
		"input":     "{not json",
		"operation": "json_pretty",
	})
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		t.Errorf("err = %v, want ExecutionError", err)
	}
}

func TestWorkflow_ChainsSteps(t *testing.T) {
	r := builtinRegistry(t)

	got, err := r.Execute(context.Background(), "workflow", map[string]any{
		"steps": []any{
			map[string]any{
				"tool":      "transform_data",
				"arguments": map[string]any{"input": "  hello  ", "operation": "trim"},
			},
			map[string]any{
				"tool":      "transform_data",
				"arguments": map[string]any{"operation": "upper"},
			},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("result type %T, want map", got)
	}
	if out["result"] != "HELLO" {
		t.Errorf("result = %v, want %q", out["result"], "HELLO")
	}
}

func TestWorkflow_FailingStep(t *testing.T) {
	r := builtinRegistry(t)

	_, err := r.Execute(context.Background(), "workflow", map[string]any{
		"steps": []any{
			map[string]any{"tool": "no_such_tool"},
		},
	})
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		t.Errorf("err = %v, want ExecutionError", err)
	}
}
