// SPDX-License-Identifier: Apache-2.0
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VectorStore defines the interface for a vector database.
type VectorStore interface {
	// Upsert adds or updates points in the vector store.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search searches for the nearest vectors to the given vector.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
	// CreateCollection creates a new collection if it doesn't exist.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
}

// Point represents a data point in the vector store.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// SearchResult represents a result from a vector search.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder defines the interface for converting text to vectors.
type Embedder interface {
	// Embed converts a text string into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorMemory implements Store on top of a vector store and an embedder,
// for semantic retrieval instead of substring matching.
type VectorMemory struct {
	store      VectorStore
	embedder   Embedder
	collection string
	threshold  float32
}

// NewVectorMemory creates a VectorMemory over the given collection.
func NewVectorMemory(store VectorStore, embedder Embedder, collection string) *VectorMemory {
	return &VectorMemory{
		store:      store,
		embedder:   embedder,
		collection: collection,
		threshold:  0.6,
	}
}

// Initialize ensures the collection exists, probing the embedder once to
// learn the vector dimension. A creation failure is tolerated when the
// collection is already searchable.
func (vm *VectorMemory) Initialize(ctx context.Context) error {
	vec, err := vm.embedder.Embed(ctx, "hello")
	if err != nil {
		return fmt.Errorf("probe embedding dimension: %w", err)
	}

	if err := vm.store.CreateCollection(ctx, vm.collection, uint64(len(vec))); err != nil {
		if _, searchErr := vm.store.Search(ctx, vm.collection, vec, 1, 0.0); searchErr == nil {
			return nil
		}
		return err
	}
	return nil
}

// Store implements Store.
func (vm *VectorMemory) Store(ctx context.Context, content, category string, importance float64) (string, error) {
	vector, err := vm.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embed content: %w", err)
	}

	id := uuid.New().String()
	point := Point{
		ID:     id,
		Vector: vector,
		Payload: map[string]interface{}{
			"content":    content,
			"category":   category,
			"importance": importance,
			"created_at": time.Now().Unix(),
		},
	}

	if err := vm.store.Upsert(ctx, vm.collection, []Point{point}); err != nil {
		return "", fmt.Errorf("store point: %w", err)
	}
	return id, nil
}

// Search implements Store.
func (vm *VectorMemory) Search(ctx context.Context, query string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 5
	}
	vector, err := vm.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := vm.store.Search(ctx, vm.collection, vector, limit, vm.threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]Memory, 0, len(results))
	for _, r := range results {
		m := Memory{ID: r.ID}
		if v, ok := r.Point.Payload["content"].(string); ok {
			m.Content = v
		}
		if v, ok := r.Point.Payload["category"].(string); ok {
			m.Category = v
		}
		switch v := r.Point.Payload["importance"].(type) {
		case float64:
			m.Importance = v
		case float32:
			m.Importance = float64(v)
		}
		switch v := r.Point.Payload["created_at"].(type) {
		case int64:
			m.CreatedAt = time.Unix(v, 0)
		case float64:
			m.CreatedAt = time.Unix(int64(v), 0)
		}
		out = append(out, m)
	}
	return out, nil
}
