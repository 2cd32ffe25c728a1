package tool

import (
	"context"
	"fmt"
)

// Workflow returns the built-in multi-step tool. Each step names a
// registered tool; the previous step's result is injected into the next
// step's arguments under "input" unless the step sets it explicitly.
func Workflow(r *Registry) Tool {
	return Tool{
		Name:        "workflow",
		Description: "Run a sequence of tool steps, feeding each result into the next",
		Category:    "workflow",
		Popularity:  25,
		Enabled:     true,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"steps": map[string]any{
					"type":        "array",
					"description": "Ordered tool steps",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"tool":      map[string]any{"type": "string"},
							"arguments": map[string]any{"type": "object"},
						},
						"required": []string{"tool"},
					},
					"minItems": 1,
				},
			},
			"required": []string{"steps"},
		},
		Handler: &workflowHandler{registry: r},
	}
}

type workflowHandler struct {
	registry *Registry
}

func (h *workflowHandler) Run(ctx context.Context, args map[string]any) (any, error) {
	rawSteps, _ := args["steps"].([]any)
	if len(rawSteps) == 0 {
		return nil, fmt.Errorf("steps must not be empty")
	}

	var prev any
	results := make([]map[string]any, 0, len(rawSteps))
	for i, raw := range rawSteps {
		step, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("step %d is not an object", i)
		}
		name, _ := step["tool"].(string)

		stepArgs := map[string]any{}
		if m, ok := step["arguments"].(map[string]any); ok {
			for k, v := range m {
				stepArgs[k] = v
			}
		}
		if i > 0 {
			if _, set := stepArgs["input"]; !set {
				stepArgs["input"] = prev
			}
		}

		result, err := h.registry.Execute(ctx, name, stepArgs)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %v", i, name, err)
		}
		prev = result
		results = append(results, map[string]any{"tool": name, "result": result})
	}

	return map[string]any{
		"steps":  results,
		"result": prev,
	}, nil
}

// RegisterBuiltins registers the built-in tool set on the registry.
func RegisterBuiltins(r *Registry) error {
	for _, t := range []Tool{Calculator(), AnalyzeCode(), TransformData(), Workflow(r)} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
