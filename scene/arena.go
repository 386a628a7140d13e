// SPDX-License-Identifier: Unlicense OR MIT

// Package scene holds the generator registry: a flat arena of scene nodes
// (per DESIGN NOTES §9, replacing a pointer-linked scene tree with index-
// based parent/child/sibling links) plus the PrimitiveSource and Generator
// capability interfaces the accumulator iterates every frame.
package scene

// NodeID indexes into an Arena. The zero value is the arena's implicit
// root's parent (no node).
type NodeID uint32

const NoNode NodeID = 0

type node struct {
	generator                       Generator
	parent, firstChild, nextSibling NodeID
}

// Arena is an index-based scene graph: generators register as
// (node_id, capabilities) pairs, per DESIGN NOTES §9, instead of living in
// a tree of heap-allocated objects.
type Arena struct {
	nodes []node // nodes[0] is an unused sentinel so NoNode == 0 is invalid
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{nodes: []node{{}}}
}

// Register adds gen as a child of parent (NoNode for a root-level
// generator) and returns its stable NodeID.
func (a *Arena) Register(gen Generator, parent NodeID) NodeID {
	id := NodeID(len(a.nodes))
	a.nodes = append(a.nodes, node{generator: gen, parent: parent})
	if parent != NoNode {
		p := &a.nodes[parent]
		if p.firstChild == NoNode {
			p.firstChild = id
		} else {
			sib := p.firstChild
			for a.nodes[sib].nextSibling != NoNode {
				sib = a.nodes[sib].nextSibling
			}
			a.nodes[sib].nextSibling = id
		}
	}
	return id
}

// Generator returns the generator registered at id, or nil if id is stale
// or out of range.
func (a *Arena) Generator(id NodeID) Generator {
	if int(id) <= 0 || int(id) >= len(a.nodes) {
		return nil
	}
	return a.nodes[id].generator
}

// Generators returns every registered generator in registration order —
// the order the accumulator iterates generators in, per §4.2.
func (a *Arena) Generators() []Generator {
	out := make([]Generator, 0, len(a.nodes)-1)
	for i := 1; i < len(a.nodes); i++ {
		if g := a.nodes[i].generator; g != nil {
			out = append(out, g)
		}
	}
	return out
}
