// SPDX-License-Identifier: Apache-2.0
// Package memory provides the persistence collaborator consumed by the
// gateway's internal handlers. The gateway only depends on the Store
// contract; the persistence format behind it is an implementation detail.
package memory

import (
	"context"
	"time"
)

// Memory is one stored item.
type Memory struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Category   string    `json:"category"`
	Importance float64   `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is the persistence contract the gateway requires.
type Store interface {
	// Store persists content under a category and returns the created id.
	Store(ctx context.Context, content, category string, importance float64) (string, error)

	// Search returns up to limit memories related to query, most relevant
	// first. An empty result is not an error.
	Search(ctx context.Context, query string, limit int) ([]Memory, error)
}
