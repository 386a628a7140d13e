// SPDX-License-Identifier: Unlicense OR MIT

package lod

import (
	"context"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"splat.dev/core/driver"
	"splat.dev/core/internal/rpc"
)

func smallTreeInstance() Instance {
	tree := &Tree{
		Nodes: []Node{
			{Center: mgl32.Vec3{0, 0, -10}, Radius: 10, ChunkID: 0, Primitives: []uint32{1, 2}, Children: []NodeID{1}},
			{Center: mgl32.Vec3{0, 0, -10}, Radius: 1, ChunkID: 1, Primitives: []uint32{10, 11, 12}},
		},
		Root: 0,
	}
	return Instance{LODID: 1, Tree: tree, ViewToObject: mgl32.Ident4(), LODScale: 1, OutsideFoveate: 1, BehindFoveate: 1}
}

func TestDriverTickRunsWhenDirty(t *testing.T) {
	pool, err := rpc.NewPool(1, nil)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	d := NewDriver(pool)
	d.MarkDirty()
	surf := driver.NewMemSurface()
	instances := []Instance{smallTreeInstance()}
	caps := Caps{MaxPrimitives: 1000, PixelScaleLimit: 0, FovX: 90, FovY: 60}

	if err := d.Tick(context.Background(), instances, caps, surf); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if d.Dirty() {
		t.Fatalf("expected dirty to clear after a successful traversal")
	}
	if d.Metrics.TraversalsRun != 1 {
		t.Fatalf("expected 1 traversal run, got %d", d.Metrics.TraversalsRun)
	}
	if len(d.LastResult().Instances) != 1 {
		t.Fatalf("expected 1 instance result")
	}
}

func TestDriverTickNoOpWhenNotDirty(t *testing.T) {
	pool, err := rpc.NewPool(1, nil)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	d := NewDriver(pool)
	surf := driver.NewMemSurface()
	if err := d.Tick(context.Background(), []Instance{smallTreeInstance()}, Caps{MaxPrimitives: 1000, FovX: 90, FovY: 60}, surf); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if d.Metrics.TraversalsRun != 0 {
		t.Fatalf("expected no traversal when not dirty, got %d", d.Metrics.TraversalsRun)
	}
}

// TestDriverDirtySurvivesDeniedExclusive covers the Open Question decision:
// dirty must survive a denied tryExclusive, not just a failed traversal.
func TestDriverDirtySurvivesDeniedExclusive(t *testing.T) {
	pool, err := rpc.NewPool(1, nil)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	d := NewDriver(pool)
	d.MarkDirty()
	surf := driver.NewMemSurface()
	instances := []Instance{smallTreeInstance()}
	caps := Caps{MaxPrimitives: 1000, FovX: 90, FovY: 60}

	held := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.TryExclusive(func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	if err := d.Tick(context.Background(), instances, caps, surf); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !d.Dirty() {
		t.Fatalf("dirty should survive a denied tryExclusive")
	}
	if d.Metrics.DirtyFramesSkipped != 1 {
		t.Fatalf("expected 1 skipped dirty frame, got %d", d.Metrics.DirtyFramesSkipped)
	}
	close(release)
	wg.Wait()

	if err := d.Tick(context.Background(), instances, caps, surf); err != nil {
		t.Fatalf("Tick (retry): %v", err)
	}
	if d.Dirty() {
		t.Fatalf("expected dirty to clear once tryExclusive succeeds")
	}
}
