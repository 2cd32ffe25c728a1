package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kalambet/mcpd/internal/intent"
	"github.com/kalambet/mcpd/internal/model"
)

const extractSystemPrompt = `You extract parameters from a context command. Output ONLY a single valid JSON object conforming to the provided schema. The key is the short identifier the value should be stored under or retrieved from; the value is the content to store (empty string for retrieval commands).`

// keyValue resolves the key (and, when needValue, the value) for a
// context operation. Heuristic classifications carry only the raw
// command, so missing fields are extracted from free text by the model.
func (p *Processor) keyValue(ctx context.Context, in intent.Intent, rawCommand string, needValue bool) (string, any, error) {
	key, _ := in.Parameters["key"].(string)
	value, hasValue := in.Parameters["value"]
	if key != "" && (!needValue || hasValue) {
		return key, value, nil
	}

	if p.generator == nil {
		return "", nil, errors.New("command names no key and no model backend is configured to extract one")
	}

	raw, err := p.generator.Chat(ctx, p.genModel, []model.Message{
		{Role: "system", Content: extractSystemPrompt},
		{Role: "user", Content: rawCommand},
	}, extractSchema())
	if err != nil {
		return "", nil, fmt.Errorf("extracting parameters: %w", err)
	}

	var extracted struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
		return "", nil, fmt.Errorf("parsing extracted parameters: %w", err)
	}
	if key == "" {
		key = extracted.Key
	}
	if key == "" {
		return "", nil, errors.New("could not determine a key for the command")
	}
	if needValue && !hasValue {
		value = extracted.Value
	}
	return key, value, nil
}

func extractSchema() *model.Schema {
	return &model.Schema{
		Type: "object",
		Properties: map[string]model.SchemaProperty{
			"key":   {Type: "string", Description: "Identifier to store under or retrieve from"},
			"value": {Type: "string", Description: "Content to store; empty for retrieval"},
		},
		Required: []string{"key", "value"},
	}
}
