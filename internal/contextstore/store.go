package contextstore

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Entry is one stored context value scoped to a tenant.
type Entry struct {
	Tenant    string
	Key       string
	Value     any
	UpdatedAt time.Time
}

// Store is an in-memory, per-tenant key/value context store. Values are
// opaque JSON-shaped payloads (string, number, bool, list, mapping).
//
// Each tenant owns an isolated partition with its own lock, so operations
// on different tenants never contend. Within a tenant, Set/Get/Clear are
// linearizable: a Get that starts after a Set returned observes the new
// value. A later Set for the same (tenant, key) supersedes the earlier
// value; no history is retained.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]*partition
}

type partition struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty Store.
func New() *Store {
	return &Store{tenants: make(map[string]*partition)}
}

// partitionFor returns the partition for a tenant, creating it if needed.
func (s *Store) partitionFor(tenant string, create bool) *partition {
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
	p = &partition{entries: make(map[string]Entry)}
	s.tenants[tenant] = p
	return p
}

// Set inserts or overwrites the entry for (tenant, key). Last write wins.
func (s *Store) Set(tenant, key string, value any) error {
	if tenant == "" {
		return fmt.Errorf("tenant must not be empty")
	}
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}

	p := s.partitionFor(tenant, true)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[key] = Entry{
		Tenant:    tenant,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// Get returns the current value for (tenant, key). Absence is reported
// through the second return value, never as an error.
func (s *Store) Get(tenant, key string) (any, bool) {
	p := s.partitionFor(tenant, false)
	if p == nil {
		return nil, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[key]
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Clear removes every entry under tenant. Other tenants are untouched.
// It returns the number of entries removed.
func (s *Store) Clear(tenant string) int {
	p := s.partitionFor(tenant, false)
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.entries)
	p.entries = make(map[string]Entry)
	return n
}

// Keys returns the keys stored under tenant in ascending order.
func (s *Store) Keys(tenant string) []string {
	p := s.partitionFor(tenant, false)
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries stored under tenant.
func (s *Store) Len(tenant string) int {
	p := s.partitionFor(tenant, false)
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
