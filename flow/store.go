package flow

import (
	"context"
	"errors"
	"sync"
)

// ErrUnknownFlow is returned for an id no flow was saved under.
var ErrUnknownFlow = errors.New("flow: unknown flow")

// Store keeps pending flows between Start and Finish, keyed by their id.
type Store interface {
	Save(ctx context.Context, p *Pending) error
	Load(ctx context.Context, id string) (*Pending, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process Store. Flows are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	flows map[string]*Pending
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flows: make(map[string]*Pending)}
}

// Save stores a copy of p under p.ID, replacing any earlier value.
func (s *MemoryStore) Save(_ context.Context, p *Pending) error {
	if p == nil || p.ID == "" {
		return errors.New("flow: pending flow has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[p.ID] = p.clone()
	return nil
}

// Load returns a copy of the flow saved under id.
func (s *MemoryStore) Load(_ context.Context, id string) (*Pending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.flows[id]
	if !ok {
		return nil, ErrUnknownFlow
	}
	return p.clone(), nil
}

// Delete removes the flow saved under id. Deleting an unknown id is not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, id)
	return nil
}

// Len returns the number of stored flows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flows)
}
