// SPDX-License-Identifier: Unlicense OR MIT

package lod

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"splat.dev/core/splatmath"
)

func indexRange(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}

// bigInstance builds a root with a small coarse representation and two leaf
// children whose combined primitive count exceeds budget, standing in for
// the spec's "10M primitives" scenario without allocating that much memory.
func bigInstance(lodID uint64, origin splatmath.Vec3) Instance {
	tree := &Tree{
		Nodes: []Node{
			{Center: splatmath.Vec3{0, 0, -10}, Radius: 10, ChunkID: 0, Primitives: indexRange(64), Children: []NodeID{1, 2}},
			{Center: splatmath.Vec3{-3, 0, -10}, Radius: 3, ChunkID: 1, Primitives: indexRange(300000)},
			{Center: splatmath.Vec3{3, 0, -10}, Radius: 3, ChunkID: 2, Primitives: indexRange(300000)},
		},
		Root: 0,
	}
	return Instance{
		LODID:          lodID,
		Tree:           tree,
		ViewToObject:   mgl32.Translate3D(origin.X(), origin.Y(), origin.Z()),
		LODScale:       1,
		OutsideFoveate: 1,
		BehindFoveate:  1,
	}
}

func testCaps() Caps {
	return Caps{MaxPrimitives: 500000, PixelScaleLimit: 0.0001, FovX: 90, FovY: 60}
}

// TestTraverseCapEnforced covers S4: two large instances, a global cap of
// 500,000 must never be exceeded, and each instance's returned count rounds
// up to a multiple of 16384.
func TestTraverseCapEnforced(t *testing.T) {
	instances := []Instance{
		bigInstance(1, splatmath.Vec3{0, 0, 0}),
		bigInstance(2, splatmath.Vec3{0, 0, 0}),
	}
	result, err := Traverse(instances, testCaps())
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if len(result.Instances) != 2 {
		t.Fatalf("expected 2 instance results, got %d", len(result.Instances))
	}
	realTotal := 0
	for _, ir := range result.Instances {
		if len(ir.Indices)%16384 != 0 {
			t.Fatalf("instance %d: length %d not a multiple of 16384", ir.LODID, len(ir.Indices))
		}
		for _, idx := range ir.Indices {
			if idx != Sentinel {
				realTotal++
			}
		}
	}
	if realTotal > testCaps().MaxPrimitives {
		t.Fatalf("real accepted total %d exceeds max_primitives %d", realTotal, testCaps().MaxPrimitives)
	}
}

// TestTraverseIdempotent covers P5: identical inputs produce identical
// index arrays on repeated calls.
func TestTraverseIdempotent(t *testing.T) {
	instances := []Instance{bigInstance(1, splatmath.Vec3{1, 0, 0})}
	caps := testCaps()

	r1, err := Traverse(instances, caps)
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	r2, err := Traverse(instances, caps)
	if err != nil {
		t.Fatalf("Traverse (2nd): %v", err)
	}
	if len(r1.Instances) != len(r2.Instances) {
		t.Fatalf("instance count differs across runs")
	}
	for i := range r1.Instances {
		a, b := r1.Instances[i].Indices, r2.Instances[i].Indices
		if len(a) != len(b) {
			t.Fatalf("instance %d: length differs across runs: %d vs %d", i, len(a), len(b))
		}
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("instance %d index %d differs across runs: %d vs %d", i, j, a[j], b[j])
			}
		}
	}
}

// TestTraverseSmallTreeFullyExpands checks that a tree small enough to fit
// comfortably under budget is fully refined down to its leaves.
func TestTraverseSmallTreeFullyExpands(t *testing.T) {
	tree := &Tree{
		Nodes: []Node{
			{Center: splatmath.Vec3{0, 0, -10}, Radius: 10, ChunkID: 0, Primitives: indexRange(4), Children: []NodeID{1, 2}},
			{Center: splatmath.Vec3{-1, 0, -10}, Radius: 1, ChunkID: 1, Primitives: []uint32{100, 101}},
			{Center: splatmath.Vec3{1, 0, -10}, Radius: 1, ChunkID: 2, Primitives: []uint32{200, 201}},
		},
		Root: 0,
	}
	inst := Instance{
		LODID: 7, Tree: tree, ViewToObject: mgl32.Ident4(),
		LODScale: 1, OutsideFoveate: 1, BehindFoveate: 1,
	}
	result, err := Traverse([]Instance{inst}, Caps{MaxPrimitives: 1000, PixelScaleLimit: 0, FovX: 90, FovY: 60})
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	ir := result.Instances[0]
	want := map[uint32]bool{100: true, 101: true, 200: true, 201: true}
	realCount := 0
	for _, idx := range ir.Indices {
		if idx == Sentinel {
			continue
		}
		realCount++
		if !want[idx] {
			t.Fatalf("unexpected index %d in result", idx)
		}
	}
	if realCount != 4 {
		t.Fatalf("expected 4 real indices, got %d", realCount)
	}
	if len(result.ChunksReferenced) == 0 {
		t.Fatalf("expected at least one chunk reference")
	}
}
