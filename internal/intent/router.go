// Package intent classifies free-text commands into actions. Cheap ordered
// keyword heuristics cover the common phrasings; anything they miss is
// delegated to a model-backed fallback classifier.
package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/mcpd/internal/model"
)

const classifyTimeout = 3 * time.Second

// Actions a command can classify into.
const (
	ActionStoreContext    = "store_context"
	ActionRetrieveContext = "retrieve_context"
	ActionListTools       = "list_tools"
	ActionExecuteTool     = "execute_tool"
	ActionSearch          = "search"
	ActionWorkflow        = "workflow"
	ActionOther           = "other"
)

// Intent is the classified action for a command, with any parameters the
// classifier extracted and its confidence in the guess.
type Intent struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Confidence float64        `json:"confidence"`
}

// ModelChatter is the slice of the model client the fallback needs.
type ModelChatter interface {
	Chat(ctx context.Context, modelName string, messages []model.Message, jsonSchema *model.Schema) (string, error)
}

// Router classifies commands. The heuristic rules are ordered and the
// order is part of the contract: the first matching rule wins, so a
// command containing both "store ... context" and "search" classifies
// as store_context.
type Router struct {
	client    ModelChatter
	modelName string
	logger    *slog.Logger
}

// NewRouter creates a Router. client may be nil, in which case commands
// no heuristic covers classify as "other" with confidence 0.
func NewRouter(client ModelChatter, modelName string) *Router {
	return &Router{client: client, modelName: modelName, logger: slog.Default()}
}

type rule struct {
	action string
	params map[string]any
	match  func(cmd string) bool
}

func containsAll(terms ...string) func(string) bool {
	return func(cmd string) bool {
		for _, t := range terms {
			if !strings.Contains(cmd, t) {
				return false
			}
		}
		return true
	}
}

func containsAny(terms ...string) func(string) bool {
	return func(cmd string) bool {
		for _, t := range terms {
			if strings.Contains(cmd, t) {
				return true
			}
		}
		return false
	}
}

// Rule order is a policy choice, not an implementation detail.
var rules = []rule{
	{action: ActionStoreContext, match: containsAll("store", "context")},
	{action: ActionRetrieveContext, match: containsAny("retrieve", "get")},
	{action: ActionListTools, match: containsAny("tool", "available")},
	{action: ActionExecuteTool, params: map[string]any{"tool": "calculator"}, match: containsAny("calculate", "compute")},
	{action: ActionSearch, match: containsAny("find similar", "search")},
}

// Classify routes a raw command through the heuristics, falling back to
// the model classifier when none fire. Classify never returns an error:
// when the fallback is unreachable the action defaults to "other" with
// confidence 0.
func (r *Router) Classify(ctx context.Context, rawCommand string) Intent {
	cmd := strings.ToLower(rawCommand)
	for _, rule := range rules {
		if rule.match(cmd) {
			params := map[string]any{"command": rawCommand}
			for k, v := range rule.params {
				params[k] = v
			}
			return Intent{Action: rule.action, Parameters: params, Confidence: 1.0}
		}
	}
	return r.fallback(ctx, rawCommand)
}

// fallback asks the model for a structured {action, parameters,
// confidence} guess.
func (r *Router) fallback(ctx context.Context, rawCommand string) Intent {
	unknown := Intent{Action: ActionOther, Parameters: map[string]any{"command": rawCommand}, Confidence: 0}
	if r.client == nil {
		return unknown
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	raw, err := r.client.Chat(ctx, r.modelName, classifyPrompt(rawCommand), classifySchema())
	if err != nil {
		r.logger.Warn("intent fallback classification failed", "error", err)
		return unknown
	}

	var result Intent
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		r.logger.Warn("failed to unmarshal intent from model response", "error", err, "response", raw)
		return unknown
	}
	if !validAction(result.Action) {
		r.logger.Warn("model returned unknown action", "action", result.Action)
		return unknown
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	if result.Parameters == nil {
		result.Parameters = map[string]any{}
	}
	result.Parameters["command"] = rawCommand
	return result
}

func validAction(action string) bool {
	switch action {
	case ActionStoreContext, ActionRetrieveContext, ActionListTools,
		ActionExecuteTool, ActionSearch, ActionWorkflow, ActionOther:
		return true
	}
	return false
}
