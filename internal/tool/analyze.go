package tool

import (
	"context"
	"strings"
)

// AnalyzeCode returns the built-in source analysis tool. It reports line,
// comment and function counts for a code snippet.
func AnalyzeCode() Tool {
	return Tool{
		Name:        "analyze_code",
		Description: "Report line, comment and function counts for a source snippet",
		Category:    "code_analysis",
		Popularity:  60,
		Enabled:     true,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Source code to analyze",
				},
			},
			"required": []string{"code"},
		},
		Handler: HandlerFunc(runAnalyzeCode),
	}
}

var functionMarkers = []string{"func ", "def ", "function ", "fn "}

var commentMarkers = []string{"//", "#", "--", "/*", "*"}

func runAnalyzeCode(_ context.Context, args map[string]any) (any, error) {
	code, _ := args["code"].(string)
	lines := strings.Split(code, "\n")

	var blank, comments, functions int
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blank++
			continue
		}
		if hasAnyPrefix(trimmed, commentMarkers) {
			comments++
			continue
		}
		if hasAnyPrefix(trimmed, functionMarkers) || strings.Contains(trimmed, " func ") {
			functions++
		}
	}

	return map[string]any{
		"total_lines":   len(lines),
		"blank_lines":   blank,
		"comment_lines": comments,
		"functions":     functions,
		"characters":    len(code),
	}, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
