// SPDX-License-Identifier: Apache-2.0
package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jllopis/bastion/pkg/locator"
	"github.com/jllopis/bastion/pkg/resilience"
	"github.com/jllopis/bastion/pkg/timeout"
)

// HandleName is the locator name for the persistence collaborator.
const HandleName = "memory"

// SearchRequest asks the memory collaborator for related memories.
type SearchRequest struct {
	Query string
	Limit int
}

// StoreRequest persists one memory.
type StoreRequest struct {
	Content    string
	Category   string
	Importance float64
}

// NewHandle adapts a Store to a locator handle. Synchronous calls run under
// the caller's context; casts are detached onto the pool with failures
// discarded after a debug log, never surfaced and never written to the
// protocol stream.
func NewHandle(store Store, pool *resilience.Pool) *locator.FuncHandle {
	call := func(ctx context.Context, msg any) (any, error) {
		switch req := msg.(type) {
		case SearchRequest:
			return store.Search(ctx, req.Query, req.Limit)
		case StoreRequest:
			return store.Store(ctx, req.Content, req.Category, req.Importance)
		default:
			return nil, fmt.Errorf("memory handle: unsupported message %T", msg)
		}
	}

	cast := func(msg any) error {
		req, ok := msg.(StoreRequest)
		if !ok {
			return fmt.Errorf("memory handle: unsupported cast message %T", msg)
		}
		pool.Submit(func(ctx context.Context) {
			cctx, cancel := context.WithTimeout(ctx, timeout.Lookup(timeout.ClassDatabase))
			defer cancel()
			if _, err := store.Store(cctx, req.Content, req.Category, req.Importance); err != nil {
				slog.Debug("best-effort memory write failed", "category", req.Category, "err", err)
			}
		})
		return nil
	}

	return locator.NewHandle(HandleName, call, locator.WithCast(cast))
}
