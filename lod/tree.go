// SPDX-License-Identifier: Unlicense OR MIT

// Package lod implements the hierarchical LOD traversal engine (§4.4): a
// global best-first descent over per-instance trees that selects a bounded
// set of primitives under foveation weighting. Adapted from the teacher's
// `container/heap`-free but conceptually similar compute dispatch ordering
// in gpu/compute.go (deterministic work ordering driven from a single
// priority signal); the priority-queue structure itself is grounded on
// stdlib container/heap, since no pack repo ships a third-party priority
// queue.
package lod

import "splat.dev/core/splatmath"

// NodeID indexes a Node within a Tree.
type NodeID int32

// Node is one node of a flattened hierarchical subdivision. Primitives
// holds the indices this node contributes to the render at its own
// resolution: for a leaf this is the chunk's actual primitive indices; for
// an interior node it is a smaller representative set, so refining into
// children always increases the total accepted primitive count (coarser
// levels cost less, §4.4's design note).
type Node struct {
	Center     splatmath.Vec3 // object-space center
	Radius     float32        // object-space bounding radius
	ChunkID    uint64
	Primitives []uint32
	Children   []NodeID
}

func (n *Node) isLeaf() bool { return len(n.Children) == 0 }

// Tree is a flat array describing one collection's hierarchical
// subdivision (§3's "LOD tree").
type Tree struct {
	Nodes []Node
	Root  NodeID
}

func (t *Tree) node(id NodeID) *Node { return &t.Nodes[id] }

// Instance is one LOD-traversal input: a tree bound to a view transform and
// foveation parameters (§4.4).
type Instance struct {
	LODID        uint64
	Tree         *Tree
	ViewToObject splatmath.Mat4
	LODScale     float32

	OutsideFoveate float32
	BehindFoveate  float32
	ConeFov0       float32 // degrees; 0 disables the perfect-zone cone
	ConeFov        float32 // degrees; 0 disables the cone entirely
	ConeFoveate    float32
}

// Caps holds the traversal's global budget and culling thresholds.
type Caps struct {
	MaxPrimitives   int
	PixelScaleLimit float32
	FovX, FovY      float32 // degrees
}

// ConfigError reports an invalid Caps or Instance configuration.
type ConfigError struct{ Reason string }

func (e *ConfigError) Error() string { return "lod: config error: " + e.Reason }

// InstanceResult is one instance's accepted primitive indices, padded with
// Sentinel up to a multiple of 16384 (§4.4 step 5).
type InstanceResult struct {
	LODID   uint64
	Indices []uint32
}

// ChunkRef identifies one (instance, chunk) pair of a node whose primitives
// the traversal accepted, listed in acceptance order. Chunks of interior
// nodes that were refined into their children are not listed.
type ChunkRef struct {
	LODID   uint64
	ChunkID uint64
}

// Result is the output of one Traverse call.
type Result struct {
	Instances        []InstanceResult
	ChunksReferenced []ChunkRef
}

// Sentinel marks a padding slot past an instance's real accepted count,
// matching the ordering buffer's "no primitive" convention (§3).
const Sentinel = 0xFFFFFFFF

const indexGranule = 16384

func roundUpIndices(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + indexGranule - 1) / indexGranule * indexGranule
}
