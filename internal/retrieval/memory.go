package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements VectorStore.
var _ VectorStore = (*MemoryStore)(nil)

// MemoryStore is the default process-local VectorStore. Tenants map to
// isolated partitions with their own locks, so searches and inserts on
// different tenants never contend.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*memPartition
}

type memPartition struct {
	mu   sync.RWMutex
	dim  int
	docs map[string]Document
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]*memPartition)}
}

func (s *MemoryStore) partitionFor(tenant string, create bool) *memPartition {
	s.mu.RLock()
	p, ok := s.tenants[tenant]
	s.mu.RUnlock()
	if ok || !create {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.tenants[tenant]; ok {
		return p
	}
	p = &memPartition{docs: make(map[string]Document)}
	s.tenants[tenant] = p
	return p
}

// Insert stores a document. The first document for a tenant establishes
// the partition's embedding dimensionality; later inserts with a
// different length fail with *DimensionMismatchError.
func (s *MemoryStore) Insert(doc Document) error {
	if doc.Tenant == "" {
		return fmt.Errorf("document tenant must not be empty")
	}
	if doc.ID == "" {
		return fmt.Errorf("document id must not be empty")
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document embedding must not be empty")
	}
	if doc.InsertedAt.IsZero() {
		doc.InsertedAt = time.Now().UTC()
	}

	p := s.partitionFor(doc.Tenant, true)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dim == 0 {
		p.dim = len(doc.Embedding)
	} else if len(doc.Embedding) != p.dim {
		return &DimensionMismatchError{Tenant: doc.Tenant, Want: p.dim, Got: len(doc.Embedding)}
	}
	p.docs[doc.ID] = doc
	return nil
}

// Search scans the tenant's partition computing cosine similarity against
// every stored embedding matching docType, returning the ranked top hits.
func (s *MemoryStore) Search(_ context.Context, tenant string, vector []float32, docType string, limit int) ([]ScoredDocument, error) {
	p := s.partitionFor(tenant, false)
	if p == nil {
		return nil, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.docs) == 0 {
		return nil, nil
	}
	if len(vector) != p.dim {
		return nil, &DimensionMismatchError{Tenant: tenant, Want: p.dim, Got: len(vector)}
	}

	hits := make([]ScoredDocument, 0, len(p.docs))
	for _, doc := range p.docs {
		if docType != "" && doc.DocType != docType {
			continue
		}
		hits = append(hits, ScoredDocument{Document: doc, Score: cosine(vector, doc.Embedding)})
	}
	return rankAndTruncate(hits, limit), nil
}

// Delete removes a document by ID.
func (s *MemoryStore) Delete(tenant, id string) error {
	p := s.partitionFor(tenant, false)
	if p == nil {
		return fmt.Errorf("document %s not found", id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.docs[id]; !ok {
		return fmt.Errorf("document %s not found", id)
	}
	delete(p.docs, id)
	return nil
}

// Clear removes every document under the tenant. The partition's
// dimensionality resets with its contents.
func (s *MemoryStore) Clear(tenant string) error {
	p := s.partitionFor(tenant, false)
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs = make(map[string]Document)
	p.dim = 0
	return nil
}

// Count returns the number of documents stored for the tenant.
func (s *MemoryStore) Count(tenant string) (int, error) {
	p := s.partitionFor(tenant, false)
	if p == nil {
		return 0, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.docs), nil
}
