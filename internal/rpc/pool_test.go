// SPDX-License-Identifier: Unlicense OR MIT

package rpc

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func echoHandlers() map[string]Handler {
	return map[string]Handler{
		"echo": func(ctx context.Context, args any) (any, error) {
			return args, nil
		},
		"fail": func(ctx context.Context, args any) (any, error) {
			return nil, fmt.Errorf("boom")
		},
	}
}

func TestPoolCallRoundTrip(t *testing.T) {
	p, err := NewPool(2, echoHandlers())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	got, err := p.Call(context.Background(), "echo", 42)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got.(int) != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
}

func TestPoolCallUnknownMethod(t *testing.T) {
	p, err := NewPool(1, echoHandlers())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	if _, err := p.Call(context.Background(), "nope", nil); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}

func TestPoolFanOutCollectsAllResults(t *testing.T) {
	p, err := NewPool(4, echoHandlers())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	args := []any{1, 2, 3, 4, 5}
	results, err := p.FanOut(context.Background(), "echo", args)
	if err != nil {
		t.Fatalf("FanOut: %v", err)
	}
	for i, r := range results {
		if r.(int) != args[i] {
			t.Fatalf("result %d: expected %v, got %v", i, args[i], r)
		}
	}
}

func TestPoolFanOutPropagatesError(t *testing.T) {
	p, err := NewPool(2, echoHandlers())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	if _, err := p.FanOut(context.Background(), "fail", []any{1, 2, 3}); err == nil {
		t.Fatalf("expected FanOut to propagate a handler error")
	}
}

// TestTryExclusiveDeniesConcurrentCall covers §4.6's tryExclusive: a second
// caller is denied while the first is still running f.
func TestTryExclusiveDeniesConcurrentCall(t *testing.T) {
	p, err := NewPool(1, echoHandlers())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ran, err := p.TryExclusive(func() error {
			close(started)
			<-release
			return nil
		})
		if !ran || err != nil {
			t.Errorf("first TryExclusive: ran=%v err=%v", ran, err)
		}
	}()

	<-started
	ran, err := p.TryExclusive(func() error { return nil })
	if ran {
		t.Fatalf("second TryExclusive should have been denied while the first is in flight")
	}
	if err != nil {
		t.Fatalf("denied TryExclusive should not return an error, got %v", err)
	}
	close(release)
	wg.Wait()

	// Once released, exclusive access is available again.
	ran, err = p.TryExclusive(func() error { return nil })
	if !ran || err != nil {
		t.Fatalf("expected TryExclusive to succeed after release, ran=%v err=%v", ran, err)
	}
}

func TestNewPoolDefaultsWorkerCount(t *testing.T) {
	p, err := NewPool(0, echoHandlers())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()
	if len(p.workers) != DefaultWorkers {
		t.Fatalf("expected %d workers, got %d", DefaultWorkers, len(p.workers))
	}
}

func TestNewPoolRejectsNegativeCount(t *testing.T) {
	if _, err := NewPool(-1, echoHandlers()); err == nil {
		t.Fatalf("expected ConfigError for negative worker count")
	}
}

// TestPoolCallContextCancellation covers a caller giving up before a worker
// replies; Call must return promptly rather than block forever.
func TestPoolCallContextCancellation(t *testing.T) {
	blocking := map[string]Handler{
		"block": func(ctx context.Context, args any) (any, error) {
			time.Sleep(50 * time.Millisecond)
			return nil, nil
		},
	}
	p, err := NewPool(1, blocking)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	// Saturate the single worker so a second call has to wait on ctx.Done.
	go p.Call(context.Background(), "block", nil)
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Call(ctx, "block", nil); err == nil {
		t.Fatalf("expected context deadline error")
	}
}
