// SPDX-License-Identifier: Apache-2.0
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a map-backed Store for tests and ephemeral runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	memories []Memory

	// FailStore and FailSearch force errors for degradation tests.
	FailStore  error
	FailSearch error
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

// Store implements Store.
func (s *InMemoryStore) Store(ctx context.Context, content, category string, importance float64) (string, error) {
	if s.FailStore != nil {
		return "", s.FailStore
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Memory{
		ID:         uuid.New().String(),
		Content:    content,
		Category:   category,
		Importance: importance,
		CreatedAt:  time.Now(),
	}
	s.memories = append(s.memories, m)
	return m.ID, nil
}

// Search implements Store with substring matching.
func (s *InMemoryStore) Search(ctx context.Context, query string, limit int) ([]Memory, error) {
	if s.FailSearch != nil {
		return nil, s.FailSearch
	}
	if limit <= 0 {
		limit = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var out []Memory
	for _, m := range s.memories {
		if strings.Contains(strings.ToLower(m.Content), q) ||
			strings.Contains(strings.ToLower(m.Category), q) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored memories.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memories)
}

// All returns a copy of every stored memory, newest last.
func (s *InMemoryStore) All() []Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Memory, len(s.memories))
	copy(out, s.memories)
	return out
}
