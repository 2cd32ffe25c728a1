package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TransformData returns the built-in text transformation tool.
func TransformData() Tool {
	return Tool{
		Name:        "transform_data",
		Description: "Apply a text transformation: upper, lower, trim, reverse, json_pretty",
		Category:    "data_transform",
		Popularity:  40,
		Enabled:     true,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"input": map[string]any{
					"type":        "string",
					"description": "Text to transform",
				},
				"operation": map[string]any{
					"type": "string",
					"enum": []string{"upper", "lower", "trim", "reverse", "json_pretty"},
				},
			},
			"required": []string{"input", "operation"},
		},
		Handler: HandlerFunc(runTransformData),
	}
}

func runTransformData(_ context.Context, args map[string]any) (any, error) {
	input, _ := args["input"].(string)
	op, _ := args["operation"].(string)

	switch op {
	case "upper":
		return strings.ToUpper(input), nil
	case "lower":
		return strings.ToLower(input), nil
	case "trim":
		return strings.TrimSpace(input), nil
	case "reverse":
		runes := []rune(input)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes), nil
	case "json_pretty":
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(input), "", "  "); err != nil {
			return nil, fmt.Errorf("input is not valid JSON: %v", err)
		}
		return buf.String(), nil
	default:
		// Unreachable when the schema's enum is enforced; kept for direct calls.
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}
