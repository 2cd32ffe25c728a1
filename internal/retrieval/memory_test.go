package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func doc(tenant, id string, embedding []float32) Document {
	return Document{
		ID:        id,
		Content:   "content of " + id,
		Embedding: embedding,
		Tenant:    tenant,
	}
}

func TestMemoryStore_InsertAndSearch(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Insert(doc("acme", "a", []float32{1, 0, 0})); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(doc("acme", "b", []float32{0, 1, 0})); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	hits, err := s.Search(context.Background(), "acme", []float32{1, 0, 0}, "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "a" {
		t.Errorf("expected best hit a, got %s", hits[0].ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("expected descending scores, got %f then %f", hits[0].Score, hits[1].Score)
	}
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Insert(doc("acme", "a", []float32{1, 0, 0})); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	err := s.Insert(doc("acme", "b", []float32{1, 0}))
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if dimErr.Want != 3 || dimErr.Got != 2 {
		t.Errorf("expected want=3 got=2, got want=%d got=%d", dimErr.Want, dimErr.Got)
	}

	if _, err := s.Search(context.Background(), "acme", []float32{1, 0}, "", 10); !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionMismatchError from search, got %v", err)
	}
}

func TestMemoryStore_DimensionPerTenant(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Insert(doc("acme", "a", []float32{1, 0, 0})); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// A different tenant establishes its own dimensionality.
	if err := s.Insert(doc("globex", "a", []float32{1, 0})); err != nil {
		t.Fatalf("Insert for second tenant: %v", err)
	}
}

func TestMemoryStore_TenantIsolation(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Insert(doc("acme", "a", []float32{1, 0})); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	hits, err := s.Search(context.Background(), "globex", []float32{1, 0}, "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits for empty tenant, got %d", len(hits))
	}
}

func TestMemoryStore_DocTypeFilter(t *testing.T) {
	s := NewMemoryStore()
	d := doc("acme", "note-1", []float32{1, 0})
	d.DocType = "note"
	if err := s.Insert(d); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	d = doc("acme", "page-1", []float32{1, 0})
	d.DocType = "page"
	if err := s.Insert(d); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	hits, err := s.Search(context.Background(), "acme", []float32{1, 0}, "note", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "note-1" {
		t.Fatalf("expected only note-1, got %v", hits)
	}
}

func TestMemoryStore_TieBreakByID(t *testing.T) {
	s := NewMemoryStore()
	// Identical embeddings produce identical scores.
	for _, id := range []string{"c", "a", "b"} {
		if err := s.Insert(doc("acme", id, []float32{1, 1})); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	hits, err := s.Search(context.Background(), "acme", []float32{1, 1}, "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if hits[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, hits[i].ID)
		}
	}
}

func TestMemoryStore_SearchLimit(t *testing.T) {
	s := NewMemoryStore()
	for i := range 10 {
		if err := s.Insert(doc("acme", fmt.Sprintf("doc-%02d", i), []float32{1, float32(i)})); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	hits, err := s.Search(context.Background(), "acme", []float32{1, 0}, "", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 3 {
		t.Errorf("expected 3 hits, got %d", len(hits))
	}
}

func TestMemoryStore_DeleteAndClear(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Insert(doc("acme", "a", []float32{1, 0})); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Delete("acme", "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("acme", "a"); err == nil {
		t.Fatal("expected error deleting absent document")
	}

	if err := s.Insert(doc("acme", "b", []float32{1, 0, 0})); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Clear("acme"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	count, err := s.Count("acme")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty tenant after clear, got %d", count)
	}
	// Clearing resets dimensionality.
	if err := s.Insert(doc("acme", "c", []float32{1, 0})); err != nil {
		t.Fatalf("Insert after clear: %v", err)
	}
}

func TestMemoryStore_UpsertSameID(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Insert(doc("acme", "a", []float32{1, 0})); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	updated := doc("acme", "a", []float32{0, 1})
	updated.Content = "updated"
	if err := s.Insert(updated); err != nil {
		t.Fatalf("Insert upsert: %v", err)
	}

	count, err := s.Count("acme")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 document after upsert, got %d", count)
	}
	hits, err := s.Search(context.Background(), "acme", []float32{0, 1}, "", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits[0].Content != "updated" {
		t.Errorf("expected updated content, got %q", hits[0].Content)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tenant := fmt.Sprintf("tenant-%d", g%4)
			for i := range 50 {
				id := fmt.Sprintf("g%d-doc%d", g, i)
				if err := s.Insert(doc(tenant, id, []float32{float32(i), 1})); err != nil {
					t.Errorf("Insert: %v", err)
					return
				}
				if _, err := s.Search(context.Background(), tenant, []float32{1, 1}, "", 5); err != nil {
					t.Errorf("Search: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
