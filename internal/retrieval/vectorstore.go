// Package retrieval implements the embedding similarity index: per-tenant
// vector storage with brute-force cosine search, and the embedder/retriever
// pair that turns raw text queries into ranked document matches.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Document is an embedded document stored in the similarity index.
type Document struct {
	ID         string
	Content    string
	Embedding  []float32
	Metadata   map[string]string
	DocType    string
	Tenant     string
	InsertedAt time.Time
}

// ScoredDocument is a search hit with its cosine similarity score.
type ScoredDocument struct {
	Document
	Score float32
}

// VectorStore is the storage interface for the similarity index. The
// bundled implementations are brute-force (O(n·d) per query) which is
// fine for bounded per-tenant corpora; an ANN-backed implementation can
// be swapped in without changing callers.
//
// All implementations must enforce per-tenant isolation and the
// per-tenant embedding dimensionality rule: the first inserted document
// establishes the dimension, later mismatches are rejected.
type VectorStore interface {
	// Insert stores a document, rejecting dimension mismatches with
	// *DimensionMismatchError.
	Insert(doc Document) error

	// Search returns up to limit documents from the tenant's partition,
	// optionally filtered by docType, sorted by descending cosine
	// similarity with ties broken by ascending document ID.
	Search(ctx context.Context, tenant string, vector []float32, docType string, limit int) ([]ScoredDocument, error)

	// Delete removes a document by ID from the tenant's partition.
	Delete(tenant, id string) error

	// Clear removes every document under the tenant.
	Clear(tenant string) error

	// Count returns the number of documents stored for the tenant.
	Count(tenant string) (int, error)
}

// DimensionMismatchError reports an embedding whose length differs from
// the tenant's established dimensionality.
type DimensionMismatchError struct {
	Tenant string
	Want   int
	Got    int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension %d does not match tenant %q dimension %d", e.Got, e.Tenant, e.Want)
}

// cosine computes cosine similarity between two equal-length vectors.
// Zero-norm vectors score 0.
func cosine(a, b []float32) float32 {
	var dot, aNormSq, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aNormSq += float64(a[i]) * float64(a[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(aNormSq) * math.Sqrt(bNormSq)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// rankAndTruncate orders hits by descending score, ascending ID on ties,
// and truncates to limit.
func rankAndTruncate(hits []ScoredDocument, limit int) []ScoredDocument {
	// Insertion sort; result sets are small (bounded by per-tenant corpus).
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && lessRanked(hits[j], hits[j-1]); j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func lessRanked(a, b ScoredDocument) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}
