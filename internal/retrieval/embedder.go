package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// embedConcurrency bounds parallel embedding calls in EmbedBatch.
const embedConcurrency = 4

// EmbedClient is the slice of the model client the embedder needs.
type EmbedClient interface {
	Embed(ctx context.Context, modelName, text string) ([]float32, error)
}

// Embedder turns text into embedding vectors using a fixed model.
type Embedder struct {
	client    EmbedClient
	modelName string
}

// NewEmbedder creates an Embedder bound to the given model.
func NewEmbedder(client EmbedClient, modelName string) *Embedder {
	return &Embedder{client: client, modelName: modelName}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text must not be empty")
	}
	return e.client.Embed(ctx, e.modelName, text)
}

// EmbedBatch embeds texts concurrently, preserving input order. A single
// failure cancels the remaining calls and fails the batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, text := range texts {
		g.Go(func() error {
			v, err := e.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
