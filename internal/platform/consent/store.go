package consent

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no grant exists for a patient and
// organization pair.
var ErrNotFound = errors.New("consent: grant not found")

// Store retrieves consent grants. Implementations must return copies;
// callers own the returned grant.
type Store interface {
	GetGrant(ctx context.Context, patientID, organizationID string) (*Grant, error)
}

// MemoryStore is an in-memory grant store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[string]Grant
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: map[string]Grant{}}
}

func memoryKey(patientID, organizationID string) string {
	return patientID + "\x00" + organizationID
}

// Put inserts or replaces a grant.
func (s *MemoryStore) Put(g *Grant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *g
	copied.AllowedCategories = append([]Category(nil), g.AllowedCategories...)
	s.grants[memoryKey(g.PatientID, g.OrganizationID)] = copied
}

// GetGrant returns a copy of the stored grant, or ErrNotFound.
func (s *MemoryStore) GetGrant(_ context.Context, patientID, organizationID string) (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[memoryKey(patientID, organizationID)]
	if !ok {
		return nil, ErrNotFound
	}
	out := g
	out.AllowedCategories = append([]Category(nil), g.AllowedCategories...)
	return &out, nil
}
