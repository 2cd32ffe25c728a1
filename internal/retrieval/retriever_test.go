package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

// stubEmbedClient maps texts to fixed vectors; unknown text is an error.
type stubEmbedClient struct {
	vectors map[string][]float32
	calls   atomic.Int64
}

func (c *stubEmbedClient) Embed(_ context.Context, _ string, text string) ([]float32, error) {
	c.calls.Add(1)
	v, ok := c.vectors[text]
	if !ok {
		return nil, errors.New("no vector for text")
	}
	return v, nil
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	client := &stubEmbedClient{vectors: map[string][]float32{
		"alpha": {1, 0},
		"beta":  {0, 1},
		"gamma": {1, 1},
	}}
	e := NewEmbedder(client, "test-embed")

	vectors, err := e.EmbedBatch(context.Background(), []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	// Order matches input order regardless of completion order.
	if vectors[0][0] != 1 || vectors[0][1] != 0 {
		t.Errorf("vector 0 out of order: %v", vectors[0])
	}
	if vectors[1][0] != 0 || vectors[1][1] != 1 {
		t.Errorf("vector 1 out of order: %v", vectors[1])
	}
}

func TestEmbedder_EmbedBatchFailure(t *testing.T) {
	client := &stubEmbedClient{vectors: map[string][]float32{"alpha": {1, 0}}}
	e := NewEmbedder(client, "test-embed")

	_, err := e.EmbedBatch(context.Background(), []string{"alpha", "unknown"})
	if err == nil {
		t.Fatal("expected batch to fail when one text fails")
	}
	if !strings.Contains(err.Error(), "embedding text 1") {
		t.Errorf("expected error to name the failed index, got %v", err)
	}
}

func TestEmbedder_EmptyText(t *testing.T) {
	e := NewEmbedder(&stubEmbedClient{}, "test-embed")
	if _, err := e.Embed(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestRetriever_IndexAndSearch(t *testing.T) {
	client := &stubEmbedClient{vectors: map[string][]float32{
		"the sky is blue":   {1, 0},
		"grass is green":    {0, 1},
		"what color is sky": {0.9, 0.1},
	}}
	r := NewRetriever(NewEmbedder(client, "test-embed"), NewMemoryStore())

	id, err := r.Index(context.Background(), "acme", "", "the sky is blue", "", nil)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated document ID")
	}
	if _, err := r.Index(context.Background(), "acme", "grass", "grass is green", "", nil); err != nil {
		t.Fatalf("Index: %v", err)
	}

	hits, err := r.Search(context.Background(), "acme", "what color is sky", "", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Content != "the sky is blue" {
		t.Errorf("expected sky document first, got %q", hits[0].Content)
	}
}

func TestRetriever_MinScore(t *testing.T) {
	client := &stubEmbedClient{vectors: map[string][]float32{
		"near":  {1, 0},
		"far":   {0, 1},
		"query": {1, 0},
	}}
	r := NewRetriever(NewEmbedder(client, "test-embed"), NewMemoryStore(), WithMinScore(0.5))

	for _, content := range []string{"near", "far"} {
		if _, err := r.Index(context.Background(), "acme", content, content, "", nil); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}

	hits, err := r.Search(context.Background(), "acme", "query", "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "near" {
		t.Fatalf("expected only the near document, got %v", hits)
	}
}

func TestRetriever_EmptyQuery(t *testing.T) {
	r := NewRetriever(NewEmbedder(&stubEmbedClient{}, "test-embed"), NewMemoryStore())
	if _, err := r.Search(context.Background(), "acme", "", "", 0); err == nil {
		t.Fatal("expected error for empty query")
	}
}
