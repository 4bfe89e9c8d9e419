package knn

// This file defines the min-heap and max-heap used during HNSW graph
// traversal and construction. They hold candidates by value and expose
// typed Push/Pop/Peek so the hot loop avoids interface boxing; the
// container/heap methods are kept so the types still satisfy heap.Interface.

import (
	"github.com/sanonone/rfield/pkg/core/types"
)

// minHeap keeps the nearest candidate on top. It holds nodes still to visit.
type minHeap []types.Candidate

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].Distance < h[j].Distance }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

// Push and Pop satisfy container/heap.
func (h *minHeap) Push(x any) { *h = append(*h, x.(types.Candidate)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h *minHeap) push(c types.Candidate) {
	*h = append(*h, c)
	up(*h, len(*h)-1, h.Less)
}

func (h *minHeap) pop() types.Candidate {
	old := *h
	n := len(old) - 1
	old[0], old[n] = old[n], old[0]
	down(old[:n], 0, minHeap(old[:n]).Less)
	x := old[n]
	*h = old[:n]
	return x
}

// maxHeap keeps the farthest candidate on top: the worst of the best k found
// so far, which is the one replaced when a closer neighbor turns up.
type maxHeap []types.Candidate

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return h[i].Distance > h[j].Distance }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *maxHeap) Push(x any) { *h = append(*h, x.(types.Candidate)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h *maxHeap) push(c types.Candidate) {
	*h = append(*h, c)
	up(*h, len(*h)-1, h.Less)
}

func (h *maxHeap) pop() types.Candidate {
	old := *h
	n := len(old) - 1
	old[0], old[n] = old[n], old[0]
	down(old[:n], 0, maxHeap(old[:n]).Less)
	x := old[n]
	*h = old[:n]
	return x
}

func (h maxHeap) peek() types.Candidate { return h[0] }

func up(h []types.Candidate, j int, less func(i, j int) bool) {
	for {
		i := (j - 1) / 2
		if i == j || !less(j, i) {
			break
		}
		h[i], h[j] = h[j], h[i]
		j = i
	}
}

func down(h []types.Candidate, i int, less func(i, j int) bool) {
	n := len(h)
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && less(j2, j1) {
			j = j2
		}
		if !less(j, i) {
			break
		}
		h[i], h[j] = h[j], h[i]
		i = j
	}
}
