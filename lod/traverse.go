// SPDX-License-Identifier: Unlicense OR MIT

package lod

import (
	"container/heap"
	"sort"

	"splat.dev/core/splatmath"
)

// queueItem is one entry in the global best-first frontier: a candidate
// node from some instance's tree, with the cost it was queued at.
type queueItem struct {
	instIdx int
	nodeID  NodeID
	cost    float32
	seq     int
}

// priorityQueue is a max-heap on cost, ties broken by insertion order
// (§4.4's stability rule).
type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost > pq[j].cost
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)   { *pq = append(*pq, x.(*queueItem)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// Traverse runs §4.4's traversal: a global priority queue over
// (instance, node), expanding the highest-cost node into its children
// until the budget is exhausted, the cost floor is reached, or the queue
// empties. It is a pure function of instances and caps (and the trees they
// reference): calling it twice with identical arguments yields identical
// results (P5).
func Traverse(instances []Instance, caps Caps) (Result, error) {
	if caps.MaxPrimitives < 0 {
		return Result{}, &ConfigError{Reason: "max primitives must be non-negative"}
	}

	pq := &priorityQueue{}
	heap.Init(pq)
	seq := 0
	objectToView := make([]splatmath.Mat4, len(instances))
	terminal := make([][]NodeID, len(instances))
	totalAccepted := 0

	for i, inst := range instances {
		objectToView[i] = inst.ViewToObject.Inv()
		root := inst.Tree.node(inst.Tree.Root)
		totalAccepted += len(root.Primitives)
		heap.Push(pq, &queueItem{instIdx: i, nodeID: inst.Tree.Root, cost: cost(root, objectToView[i], inst, caps), seq: seq})
		seq++
	}

	chunkSeen := make(map[ChunkRef]bool)
	var chunkOrder []ChunkRef
	accept := func(instIdx int, id NodeID) {
		terminal[instIdx] = append(terminal[instIdx], id)
		inst := instances[instIdx]
		node := inst.Tree.node(id)
		ref := ChunkRef{LODID: inst.LODID, ChunkID: node.ChunkID}
		if !chunkSeen[ref] {
			chunkSeen[ref] = true
			chunkOrder = append(chunkOrder, ref)
		}
	}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*queueItem)
		inst := instances[item.instIdx]
		node := inst.Tree.node(item.nodeID)

		if item.cost < caps.PixelScaleLimit || node.isLeaf() {
			accept(item.instIdx, item.nodeID)
			continue
		}

		childSum := 0
		for _, c := range node.Children {
			childSum += len(inst.Tree.node(c).Primitives)
		}
		delta := childSum - len(node.Primitives)
		if totalAccepted+delta > caps.MaxPrimitives {
			accept(item.instIdx, item.nodeID)
			break
		}
		totalAccepted += delta
		for _, c := range node.Children {
			child := inst.Tree.node(c)
			heap.Push(pq, &queueItem{instIdx: item.instIdx, nodeID: c, cost: cost(child, objectToView[item.instIdx], inst, caps), seq: seq})
			seq++
		}
	}

	// Traversal stopped early (budget exhausted): whatever remains in the
	// frontier stays at its current resolution.
	for pq.Len() > 0 {
		item := heap.Pop(pq).(*queueItem)
		accept(item.instIdx, item.nodeID)
	}

	result := Result{ChunksReferenced: chunkOrder}
	for i, inst := range instances {
		var indices []uint32
		for _, id := range terminal[i] {
			indices = append(indices, inst.Tree.node(id).Primitives...)
		}
		sort.Slice(indices, func(a, b int) bool { return indices[a] < indices[b] })
		padded := roundUpIndices(len(indices))
		for len(indices) < padded {
			indices = append(indices, Sentinel)
		}
		result.Instances = append(result.Instances, InstanceResult{LODID: inst.LODID, Indices: indices})
	}
	return result, nil
}
