// Package memstore keeps policies in memory. It backs dry runs and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/google/uuid"
)

// Store is an in-memory PolicyCreator. Policy numbers are unique.
type Store struct {
	mu       sync.RWMutex
	policies map[string]core.Policy // by id
	byNumber map[string]string      // policy number -> id
}

var _ core.PolicyCreator = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		policies: make(map[string]core.Policy),
		byNumber: make(map[string]string),
	}
}

// CreatePolicy stores p under a new UUID.
func (s *Store) CreatePolicy(ctx context.Context, p core.Policy) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byNumber[p.PolicyNumber]; taken {
		return "", fmt.Errorf("insert policy %s: %w", p.PolicyNumber, core.ErrDuplicatePolicy)
	}

	if p.Status == "" {
		p.Status = core.PolicyStatusDraft
	}
	id := uuid.NewString()
	s.policies[id] = p
	s.byNumber[p.PolicyNumber] = id
	return id, nil
}

// Get returns the policy with id.
func (s *Store) Get(id string) (core.Policy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	return p, ok
}

// Len returns the number of stored policies.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.policies)
}

// List returns all policies ordered by source row.
func (s *Store) List() []core.Policy {
	s.mu.RLock()
	out := make([]core.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SourceRow < out[j].SourceRow })
	return out
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
