// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Pool runs detached best-effort jobs on a bounded set of workers. Jobs are
// fire-and-forget side effects (e.g. the post-consultation memory write):
// when the queue is full the job is discarded, counted, and logged, never
// blocked on. A panicking job is swallowed and logged at debug level; jobs
// must not write to the protocol stream.
type Pool struct {
	jobs      chan func(context.Context)
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	discarded atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines draining a queue of the given depth.
func NewPool(workers, depth int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:   make(chan func(context.Context), depth),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *Pool) run(job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("background job panicked", "panic", r)
		}
	}()
	job(p.ctx)
}

// Submit enqueues a job without blocking. Returns false when the job was
// discarded because the queue is full or the pool is shut down.
func (p *Pool) Submit(job func(context.Context)) bool {
	if job == nil {
		return false
	}
	// The read lock spans the send so Shutdown cannot close the channel
	// between the closed check and the enqueue. The send never blocks, so
	// holding the lock across it is safe.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		p.discarded.Add(1)
		slog.Debug("background job discarded, queue full")
		return false
	}
}

// Discarded returns how many jobs were dropped by the discard policy.
func (p *Pool) Discarded() int64 {
	return p.discarded.Load()
}

// Shutdown stops accepting jobs and waits for in-flight work, or returns the
// context's error if it expires first. Queued jobs still run; their shared
// context is canceled only if the wait is abandoned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
