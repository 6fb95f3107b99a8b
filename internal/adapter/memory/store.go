// Package memory keeps incident state in process memory. State is lost on
// restart; use it for local runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
)

// Store implements pipeline.StateStore.
type Store struct {
	mu    sync.RWMutex
	state domain.State
}

func NewStore() *Store {
	return &Store{}
}

// Load returns a copy of the saved state.
func (s *Store) Load(_ context.Context) (domain.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

// Save replaces the saved state with a copy of state.
func (s *Store) Save(_ context.Context, state domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
	return nil
}
