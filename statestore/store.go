// Package statestore enforces one-time consumption of login state values.
// A state is already signed and expiry-bounded by the codec that minted it;
// the store only remembers which ids have been presented so a captured
// callback URL cannot be replayed inside the validity window.
package statestore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrAlreadyUsed is returned when a state id is consumed twice.
	ErrAlreadyUsed = errors.New("statestore: state already used")
	// ErrEmptyID is returned for a blank state id.
	ErrEmptyID = errors.New("statestore: empty state id")
)

// Store records state ids as consumed. Implementations must be safe for
// concurrent use and may forget ids once expiresAt has passed.
type Store interface {
	Consume(ctx context.Context, id string, expiresAt time.Time) error
}

// MemoryStore keeps consumed ids in-process. Suitable for single-instance
// deployments; multi-instance ones want the Postgres store.
type MemoryStore struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		used: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Consume marks id as used. The expiry sweep rides along on each call, so
// the map never outgrows the set of states still inside their window.
func (s *MemoryStore) Consume(_ context.Context, id string, expiresAt time.Time) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyID
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, exp := range s.used {
		if now.After(exp) {
			delete(s.used, key)
		}
	}

	if exp, ok := s.used[id]; ok && now.Before(exp) {
		return ErrAlreadyUsed
	}
	s.used[id] = expiresAt
	return nil
}

// Len reports how many unexpired ids are currently tracked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used)
}
