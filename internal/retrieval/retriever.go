package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLimit    = 5
	defaultMinScore = 0.0
)

// Retriever composes an Embedder with a VectorStore: it embeds raw text
// on the way in (Index) and on the way out (Search).
type Retriever struct {
	embedder *Embedder
	store    VectorStore
	limit    int
	minScore float32
}

// RetrieverOption customizes a Retriever.
type RetrieverOption func(*Retriever)

// WithLimit sets the default result count for Search.
func WithLimit(n int) RetrieverOption {
	return func(r *Retriever) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithMinScore drops hits scoring below the threshold.
func WithMinScore(s float32) RetrieverOption {
	return func(r *Retriever) { r.minScore = s }
}

// NewRetriever creates a Retriever over the given embedder and store.
func NewRetriever(embedder *Embedder, store VectorStore, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder: embedder,
		store:    store,
		limit:    defaultLimit,
		minScore: defaultMinScore,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Index embeds content and stores it under the tenant. A generated UUID
// is used when id is empty; the assigned ID is returned.
func (r *Retriever) Index(ctx context.Context, tenant, id, content, docType string, metadata map[string]string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("content must not be empty")
	}
	vector, err := r.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embedding content: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	doc := Document{
		ID:         id,
		Content:    content,
		Embedding:  vector,
		Metadata:   metadata,
		DocType:    docType,
		Tenant:     tenant,
		InsertedAt: time.Now().UTC(),
	}
	if err := r.store.Insert(doc); err != nil {
		return "", err
	}
	return id, nil
}

// Search embeds the query and returns the tenant's ranked matches,
// filtered by the retriever's minimum score. A limit of 0 uses the
// retriever's default.
func (r *Retriever) Search(ctx context.Context, tenant, query, docType string, limit int) ([]ScoredDocument, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if limit <= 0 {
		limit = r.limit
	}
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	hits, err := r.store.Search(ctx, tenant, vector, docType, limit)
	if err != nil {
		return nil, err
	}
	if r.minScore > 0 {
		filtered := hits[:0]
		for _, h := range hits {
			if h.Score >= r.minScore {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}
	return hits, nil
}
