// Package memory keeps page state in process memory. Nothing survives a
// restart.
package memory

import (
	"context"
	"errors"
	"sync"

	"crmapp/internal/app"
)

// Store is a map of states guarded by a mutex.
type Store struct {
	mu     sync.RWMutex
	states map[int64]app.State
	saves  int
}

// New returns an empty Store.
func New() *Store {
	return &Store{states: make(map[int64]app.State)}
}

func (s *Store) Load(_ context.Context, userID int64) (app.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[userID]
	return st, ok, nil
}

func (s *Store) Save(_ context.Context, st app.State) error {
	if st.UserID == 0 {
		return errors.New("save state: missing user id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.UserID] = st
	s.saves++
	return nil
}

func (s *Store) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

// Saves counts successful Save calls.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *Store) Close() error { return nil }
