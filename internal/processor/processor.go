// Package processor orchestrates command handling: it classifies a raw
// command, dispatches to the context store, tool registry, similarity
// index, or model backend, and assembles a uniform result. The processor
// is a failure boundary: no lower-layer error or panic escapes Process.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/mcpd/internal/contextstore"
	"github.com/kalambet/mcpd/internal/intent"
	"github.com/kalambet/mcpd/internal/model"
	"github.com/kalambet/mcpd/internal/retrieval"
	"github.com/kalambet/mcpd/internal/tool"
)

// Error kinds tagged onto failed results.
const (
	KindNotFound          = "not_found"
	KindValidation        = "validation"
	KindExecution         = "execution"
	KindDimensionMismatch = "dimension_mismatch"
	KindExternalService   = "external_service"
	KindInternal          = "internal"
)

const defaultProcessTimeout = 30 * time.Second

// CommandResult is the uniform response for every processed command.
type CommandResult struct {
	Action    string `json:"action"`
	Success   bool   `json:"success"`
	Payload   any    `json:"payload,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// Classifier routes a raw command to an intent.
type Classifier interface {
	Classify(ctx context.Context, rawCommand string) intent.Intent
}

// Generator is the slice of the model client the processor needs.
type Generator interface {
	Generate(ctx context.Context, modelName, prompt string) (string, error)
	Chat(ctx context.Context, modelName string, messages []model.Message, jsonSchema *model.Schema) (string, error)
}

// Searcher answers similarity queries over raw text.
type Searcher interface {
	Search(ctx context.Context, tenant, query, docType string, limit int) ([]retrieval.ScoredDocument, error)
}

// Processor wires the command surface together. All collaborators are
// shared across concurrent Process calls.
type Processor struct {
	store     *contextstore.Store
	registry  *tool.Registry
	searcher  Searcher
	router    Classifier
	generator Generator
	genModel  string
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithTimeout bounds each Process call.
func WithTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithGenerator sets the model collaborator used for the "other" action
// and free-text parameter extraction. Without one those paths degrade
// to explicit errors.
func WithGenerator(g Generator, modelName string) Option {
	return func(p *Processor) {
		p.generator = g
		p.genModel = modelName
	}
}

// New creates a Processor over the given shared components.
func New(store *contextstore.Store, registry *tool.Registry, searcher Searcher, router Classifier, opts ...Option) *Processor {
	p := &Processor{
		store:    store,
		registry: registry,
		searcher: searcher,
		router:   router,
		timeout:  defaultProcessTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process classifies the command and dispatches it. It always returns a
// CommandResult: failures, including panics in tool handlers, come back
// as success=false with a tagged error.
func (p *Processor) Process(ctx context.Context, rawCommand, tenant string) (result CommandResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing command", "panic", r, "command", rawCommand)
			result = failure(result.Action, KindInternal, fmt.Errorf("internal error: %v", r))
		}
	}()

	if strings.TrimSpace(rawCommand) == "" {
		return failure("", KindValidation, errors.New("command must not be empty"))
	}
	if tenant == "" {
		return failure("", KindValidation, errors.New("tenant must not be empty"))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	in := p.router.Classify(ctx, rawCommand)
	p.logger.Debug("classified command", "action", in.Action, "confidence", in.Confidence, "tenant", tenant)

	switch in.Action {
	case intent.ActionStoreContext:
		return p.storeContext(ctx, in, tenant, rawCommand)
	case intent.ActionRetrieveContext:
		return p.retrieveContext(ctx, in, tenant, rawCommand)
	case intent.ActionListTools:
		return p.listTools(in)
	case intent.ActionExecuteTool:
		return p.executeTool(ctx, in, rawCommand)
	case intent.ActionSearch:
		return p.search(ctx, in, tenant, rawCommand)
	case intent.ActionWorkflow:
		return p.workflow(ctx, in)
	default:
		return p.other(ctx, rawCommand)
	}
}

func (p *Processor) storeContext(ctx context.Context, in intent.Intent, tenant, rawCommand string) CommandResult {
	key, value, err := p.keyValue(ctx, in, rawCommand, true)
	if err != nil {
		return failure(in.Action, extractionKind(err), err)
	}
	if err := p.store.Set(tenant, key, value); err != nil {
		return failure(in.Action, KindValidation, err)
	}
	return success(in.Action, map[string]any{"tenant": tenant, "key": key})
}

func (p *Processor) retrieveContext(ctx context.Context, in intent.Intent, tenant, rawCommand string) CommandResult {
	key, _, err := p.keyValue(ctx, in, rawCommand, false)
	if err != nil {
		return failure(in.Action, extractionKind(err), err)
	}
	value, found := p.store.Get(tenant, key)
	return success(in.Action, map[string]any{
		"tenant": tenant,
		"key":    key,
		"value":  value,
		"found":  found,
	})
}

func (p *Processor) listTools(in intent.Intent) CommandResult {
	category, _ := in.Parameters["category"].(string)
	tools := p.registry.List(category)
	return success(in.Action, map[string]any{"tools": tools, "count": len(tools)})
}

func (p *Processor) executeTool(ctx context.Context, in intent.Intent, rawCommand string) CommandResult {
	name, _ := in.Parameters["tool"].(string)
	if name == "" {
		return failure(in.Action, KindValidation, errors.New("no tool named in command"))
	}
	args, _ := in.Parameters["arguments"].(map[string]any)
	if args == nil && name == "calculator" {
		args = map[string]any{"expression": extractExpression(rawCommand)}
	}
	result, err := p.registry.Execute(ctx, name, args)
	if err != nil {
		return failure(in.Action, kindOf(err), err)
	}
	return success(in.Action, map[string]any{"tool": name, "result": result})
}

func (p *Processor) search(ctx context.Context, in intent.Intent, tenant, rawCommand string) CommandResult {
	query, _ := in.Parameters["query"].(string)
	if query == "" {
		query = rawCommand
	}
	docType, _ := in.Parameters["type"].(string)
	hits, err := p.searcher.Search(ctx, tenant, query, docType, 0)
	if err != nil {
		return failure(in.Action, kindOf(err), err)
	}
	results := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		results = append(results, map[string]any{
			"id":      h.ID,
			"content": h.Content,
			"score":   h.Score,
		})
	}
	return success(in.Action, map[string]any{"query": query, "results": results, "count": len(results)})
}

func (p *Processor) workflow(ctx context.Context, in intent.Intent) CommandResult {
	steps, ok := in.Parameters["steps"]
	if !ok {
		return failure(in.Action, KindValidation, errors.New("workflow command carries no steps"))
	}
	result, err := p.registry.Execute(ctx, "workflow", map[string]any{"steps": steps})
	if err != nil {
		return failure(in.Action, kindOf(err), err)
	}
	return success(in.Action, map[string]any{"tool": "workflow", "result": result})
}

func (p *Processor) other(ctx context.Context, rawCommand string) CommandResult {
	if p.generator == nil {
		return failure(intent.ActionOther, KindExternalService, errors.New("no model backend configured"))
	}
	text, err := p.generator.Generate(ctx, p.genModel, rawCommand)
	if err != nil {
		return failure(intent.ActionOther, kindOf(err), err)
	}
	return success(intent.ActionOther, map[string]any{"response": text})
}

// extractExpression strips the triggering verb so "calculate 2 + 3"
// dispatches with expression "2 + 3".
func extractExpression(rawCommand string) string {
	lower := strings.ToLower(rawCommand)
	for _, verb := range []string{"calculate", "compute"} {
		if idx := strings.Index(lower, verb); idx >= 0 {
			return strings.TrimSpace(rawCommand[idx+len(verb):])
		}
	}
	return strings.TrimSpace(rawCommand)
}

func success(action string, payload any) CommandResult {
	return CommandResult{Action: action, Success: true, Payload: payload}
}

func failure(action, kind string, err error) CommandResult {
	return CommandResult{Action: action, Success: false, Error: err.Error(), ErrorKind: kind}
}

// extractionKind tags parameter-extraction failures: model failures keep
// their external tag, everything else is a validation problem with the
// command itself.
func extractionKind(err error) string {
	if kind := kindOf(err); kind == KindExternalService {
		return kind
	}
	return KindValidation
}

// kindOf maps a lower-layer error to its result tag.
func kindOf(err error) string {
	var (
		notFound   *tool.NotFoundError
		validation *tool.ValidationError
		execution  *tool.ExecutionError
		dimension  *retrieval.DimensionMismatchError
		auth       *model.AuthError
		quota      *model.QuotaError
		network    *model.NetworkError
		empty      *model.EmptyResponseError
	)
	switch {
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &execution):
		return KindExecution
	case errors.As(err, &dimension):
		return KindDimensionMismatch
	case errors.As(err, &auth), errors.As(err, &quota), errors.As(err, &network), errors.As(err, &empty):
		return KindExternalService
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindExternalService
	}
	return KindInternal
}
