// Package api exposes the command surface over two transports: a chi
// HTTP router and an MCP server. Both are thin shells over the same
// shared components.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/mcpd/internal/contextstore"
	"github.com/kalambet/mcpd/internal/ingest"
	"github.com/kalambet/mcpd/internal/processor"
	"github.com/kalambet/mcpd/internal/retrieval"
	"github.com/kalambet/mcpd/internal/tool"
)

const maxBodySize = 10 << 20 // 10MB

// Searcher answers similarity queries over raw text.
type Searcher interface {
	Search(ctx context.Context, tenant, query, docType string, limit int) ([]retrieval.ScoredDocument, error)
}

// CommandProcessor runs a free-text command for a tenant.
type CommandProcessor interface {
	Process(ctx context.Context, rawCommand, tenant string) processor.CommandResult
}

// Submitter queues an async ingest job.
type Submitter interface {
	Submit(job ingest.Job) (string, error)
}

// Deps holds the shared components the HTTP layer serves.
type Deps struct {
	Store     *contextstore.Store
	Registry  *tool.Registry
	Searcher  Searcher
	Processor CommandProcessor
	Ingest    Submitter // optional; if nil, /ingest returns an error
	Token     string
}

// NewHandler builds the HTTP router. Everything except /health requires
// bearer auth.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/context", handleStoreContext(deps))
		r.Get("/context/{tenant}/{key}", handleRetrieveContext(deps))
		r.Delete("/context/{tenant}", handleClearContext(deps))
		r.Get("/tools", handleListTools(deps))
		r.Post("/tools/{name}/execute", handleExecuteTool(deps))
		r.Post("/search", handleSearch(deps))
		r.Post("/command", handleCommand(deps))
		r.Post("/ingest", handleIngest(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type storeContextRequest struct {
	Tenant string `json:"tenant"`
	Key    string `json:"key"`
	Value  any    `json:"value"`
}

func handleStoreContext(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req storeContextRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Store.Set(req.Tenant, req.Key, req.Value); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"tenant":  req.Tenant,
			"key":     req.Key,
		})
	}
}

func handleRetrieveContext(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := chi.URLParam(r, "tenant")
		key := chi.URLParam(r, "key")
		value, found := deps.Store.Get(tenant, key)
		if !found {
			value = nil
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"tenant":  tenant,
			"key":     key,
			"value":   value,
			"found":   found,
		})
	}
}

func handleClearContext(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := chi.URLParam(r, "tenant")
		cleared := deps.Store.Clear(tenant)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"tenant":  tenant,
			"cleared": cleared,
		})
	}
}

func handleListTools(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tools := deps.Registry.List(r.URL.Query().Get("category"))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"tools":   tools,
			"count":   len(tools),
		})
	}
}

func handleExecuteTool(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var req struct {
			Parameters map[string]any `json:"parameters"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		result, err := deps.Registry.Execute(r.Context(), name, req.Parameters)
		if err != nil {
			writeJSON(w, toolErrorStatus(err), map[string]any{
				"success": false,
				"tool":    name,
				"error":   err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"tool":    name,
			"result":  result,
		})
	}
}

type searchRequest struct {
	Query  string `json:"query"`
	Type   string `json:"type"`
	Tenant string `json:"tenant"`
	Limit  int    `json:"limit"`
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Query == "" || req.Tenant == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query and tenant are required")
			return
		}

		hits, err := deps.Searcher.Search(r.Context(), req.Tenant, req.Query, req.Type, req.Limit)
		if err != nil {
			var dimErr *retrieval.DimensionMismatchError
			if errors.As(err, &dimErr) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			httpError(w, http.StatusBadGateway, "api_error", "search failed: %v", err)
			return
		}

		results := make([]map[string]any, 0, len(hits))
		for _, h := range hits {
			results = append(results, map[string]any{"id": h.ID, "score": h.Score})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"query":   req.Query,
			"type":    req.Type,
			"results": results,
			"count":   len(results),
		})
	}
}

type commandRequest struct {
	Command string `json:"command"`
	Tenant  string `json:"tenant"`
}

func handleCommand(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commandRequest
		if !decodeBody(w, r, &req) {
			return
		}

		res := deps.Processor.Process(r.Context(), req.Command, req.Tenant)
		body := map[string]any{
			"success": res.Success,
			"command": req.Command,
			"action":  res.Action,
		}
		if res.Success {
			body["result"] = res.Payload
		} else {
			body["error"] = res.Error
			body["error_kind"] = res.ErrorKind
		}
		// Processed commands answer 200 even on failure: the processor is
		// the failure boundary and its result is the response.
		writeJSON(w, http.StatusOK, body)
	}
}

type ingestRequest struct {
	Tenant   string            `json:"tenant"`
	Type     string            `json:"type"`
	Format   string            `json:"format"`
	Content  string            `json:"content"`
	Encoding string            `json:"encoding"`
	Metadata map[string]string `json:"metadata"`
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Ingest == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "ingest is not configured")
			return
		}
		var req ingestRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		data := []byte(req.Content)
		if req.Encoding == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content: %v", err)
				return
			}
			data = decoded
		}

		jobID, err := deps.Ingest.Submit(ingest.Job{
			Tenant:   req.Tenant,
			DocType:  req.Type,
			Format:   req.Format,
			Data:     data,
			Metadata: req.Metadata,
		})
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"success": true,
			"job_id":  jobID,
		})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func toolErrorStatus(err error) int {
	var (
		notFound   *tool.NotFoundError
		validation *tool.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	}
	return http.StatusUnprocessableEntity
}
