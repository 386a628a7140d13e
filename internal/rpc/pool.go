// SPDX-License-Identifier: Unlicense OR MIT

// Package rpc implements the worker-pool RPC of §4.6: a bounded pool of
// single-consumer worker channels dispatching tagged method calls, plus
// tryExclusive for serializing LOD-tree mutation. Grounded on the teacher's
// cmd/gio build tooling, which fans work out across an errgroup.Group and
// waits on it (cmd/gio/gio.go's `var builds errgroup.Group` pattern),
// adapted here from parallel OS-process builds to parallel method calls
// against in-process workers.
package rpc

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Tag is a monotonic message id (§4.6).
type Tag uint64

// Request is one tagged call dispatched to a worker.
type Request struct {
	Tag    Tag
	Method string
	Args   any
}

// Response carries a method's result or error, tagged to match its Request.
type Response struct {
	Tag    Tag
	Result any
	Err    error
}

// StatusUpdate streams progress for a long-running call; optional per §4.6.
type StatusUpdate struct {
	Tag      Tag
	Progress string
}

// Handler executes one method body on a worker goroutine.
type Handler func(ctx context.Context, args any) (any, error)

// ConfigError reports an invalid pool configuration.
type ConfigError struct{ Reason string }

func (e *ConfigError) Error() string { return "rpc: config error: " + e.Reason }

// DefaultWorkers is the pool size when the caller doesn't specify one
// (§4.6: "≤ N worker threads (default 4)").
const DefaultWorkers = 4

// worker is a single-consumer message channel: exactly one goroutine drains
// inbox, matching §4.6's "each worker is internally single-threaded" rule.
type worker struct {
	inbox  chan Request
	outbox chan Response
}

func newWorker(handlers map[string]Handler, queue int) *worker {
	w := &worker{inbox: make(chan Request, queue), outbox: make(chan Response, queue)}
	go w.run(handlers)
	return w
}

func (w *worker) run(handlers map[string]Handler) {
	for req := range w.inbox {
		h, ok := handlers[req.Method]
		if !ok {
			w.outbox <- Response{Tag: req.Tag, Err: fmt.Errorf("rpc: unknown method %q", req.Method)}
			continue
		}
		result, err := h(context.Background(), req.Args)
		w.outbox <- Response{Tag: req.Tag, Result: result, Err: err}
	}
}

// Pool is a bounded pool of ≤N worker threads (§4.6), dispatching calls to
// handlers by method name, round-robin by tag.
type Pool struct {
	workers []*worker
	nextTag uint64

	// exclusive enforces "at most one LOD-tree mutation in flight"
	// (tryExclusive, §4.6 / §5's locking discipline).
	exclusive *semaphore.Weighted
}

// NewPool starts n workers (DefaultWorkers if n <= 0), each dispatching
// calls to handlers by method name. handlers is shared read-only across
// workers; callers must not mutate it after NewPool returns.
func NewPool(n int, handlers map[string]Handler) (*Pool, error) {
	if n < 0 {
		return nil, &ConfigError{Reason: "worker count must be non-negative"}
	}
	if n == 0 {
		n = DefaultWorkers
	}
	p := &Pool{exclusive: semaphore.NewWeighted(1)}
	for i := 0; i < n; i++ {
		p.workers = append(p.workers, newWorker(handlers, 16))
	}
	return p, nil
}

// NextTag returns the next monotonic message id.
func (p *Pool) NextTag() Tag {
	return Tag(atomic.AddUint64(&p.nextTag, 1))
}

// Call dispatches method to a worker chosen by tag (keeping repeat calls
// for the same logical caller spread evenly) and blocks for its response.
func (p *Pool) Call(ctx context.Context, method string, args any) (any, error) {
	tag := p.NextTag()
	w := p.workers[int(tag)%len(p.workers)]
	select {
	case w.inbox <- Request{Tag: tag, Method: method, Args: args}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp := <-w.outbox:
		return resp.Result, resp.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FanOut dispatches method against every element of args concurrently
// across the pool and waits for all responses, short-circuiting on the
// first error.
func (p *Pool) FanOut(ctx context.Context, method string, args []any) ([]any, error) {
	results := make([]any, len(args))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range args {
		i, a := i, a
		g.Go(func() error {
			r, err := p.Call(gctx, method, a)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// TryExclusive runs f with exclusive access if no other exclusive call is
// in flight, else returns ran=false immediately (§4.6's tryExclusive,
// serializing LOD-tree create/update/dispose).
func (p *Pool) TryExclusive(f func() error) (ran bool, err error) {
	if !p.exclusive.TryAcquire(1) {
		return false, nil
	}
	defer p.exclusive.Release(1)
	return true, f()
}

// Close stops accepting new calls on every worker. In-flight calls already
// queued still drain; their workers exit once their inbox closes and
// empties.
func (p *Pool) Close() {
	for _, w := range p.workers {
		close(w.inbox)
	}
}
