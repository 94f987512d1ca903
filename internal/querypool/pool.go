// Package querypool bounds how many Queries run concurrently across the
// whole gateway, handing each accepted Query off to its own goroutine and
// draining in-flight work on shutdown.
package querypool

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chatmesh/gateway/internal/perrors"
)

// Handler processes one query. The pool does not interpret the argument; it
// is whatever the caller's Submit closure closes over (typically a
// *model.Query plus the pipeline controller to run it through).
type Handler func(ctx context.Context)

// Dispatcher is a bounded worker pool: Submit blocks until a slot is free or
// ctx is done, then runs handler on its own goroutine. Close stops accepting
// new work and waits for in-flight handlers to finish.
type Dispatcher struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a Dispatcher that allows at most maxConcurrent handlers to run
// at once (at least 1). logger may be nil.
func New(maxConcurrent int, logger *slog.Logger) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sem:    make(chan struct{}, maxConcurrent),
		logger: logger.With("component", "querypool"),
	}
}

// Submit blocks until a worker slot is available, then runs handler on a new
// goroutine. It returns perrors.ErrShuttingDown if the pool has been closed,
// or ctx.Err() if ctx is done first.
func (d *Dispatcher) Submit(ctx context.Context, handler Handler) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return perrors.ErrShuttingDown
	}
	d.mu.Unlock()

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("query handler panicked", "panic", r)
			}
			<-d.sem
			d.wg.Done()
		}()
		handler(ctx)
	}()
	return nil
}

// Close stops accepting new submissions. It does not itself wait for
// in-flight handlers; call Wait for that.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Wait blocks until every accepted handler has returned, or ctx is done
// first.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports how many handlers are currently running, for metrics.
func (d *Dispatcher) InFlight() int {
	return len(d.sem)
}

// Capacity reports the configured maximum concurrency.
func (d *Dispatcher) Capacity() int {
	return cap(d.sem)
}
