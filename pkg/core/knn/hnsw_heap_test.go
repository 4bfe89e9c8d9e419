package knn

import (
	"container/heap"
	"testing"

	"github.com/sanonone/rfield/pkg/core/types"
)

func TestMinHeapCorrectness(t *testing.T) {
	candidates := []types.Candidate{
		{Id: 1, Distance: 5.0},
		{Id: 2, Distance: 2.0},
		{Id: 3, Distance: 8.0},
		{Id: 4, Distance: 2.0},
	}

	h := new(minHeap)
	for _, c := range candidates {
		h.push(c)
	}

	expectedOrder := []float64{2.0, 2.0, 5.0, 8.0}
	for i, want := range expectedOrder {
		c := h.pop()
		if c.Distance != want {
			t.Errorf("minHeap pop %d: got distance %f, want %f", i, c.Distance, want)
		}
	}
	if h.Len() != 0 {
		t.Errorf("heap should be empty, has %d items", h.Len())
	}
}

func TestMaxHeapCorrectness(t *testing.T) {
	candidates := []types.Candidate{
		{Id: 1, Distance: 5.0},
		{Id: 2, Distance: 8.0},
		{Id: 3, Distance: 2.0},
		{Id: 4, Distance: 8.0},
	}

	h := new(maxHeap)
	for _, c := range candidates {
		h.push(c)
	}
	if got := h.peek().Distance; got != 8.0 {
		t.Fatalf("peek: got %f, want 8", got)
	}

	expectedOrder := []float64{8.0, 8.0, 5.0, 2.0}
	for i, want := range expectedOrder {
		c := h.pop()
		if c.Distance != want {
			t.Errorf("maxHeap pop %d: got distance %f, want %f", i, c.Distance, want)
		}
	}
}

func TestHeapsSatisfyContainerHeap(t *testing.T) {
	h := &minHeap{}
	heap.Push(h, types.Candidate{Id: 1, Distance: 3})
	heap.Push(h, types.Candidate{Id: 2, Distance: 1})
	if c := heap.Pop(h).(types.Candidate); c.Id != 2 {
		t.Errorf("got id %d, want 2", c.Id)
	}

	m := &maxHeap{}
	heap.Push(m, types.Candidate{Id: 1, Distance: 3})
	heap.Push(m, types.Candidate{Id: 2, Distance: 1})
	if c := heap.Pop(m).(types.Candidate); c.Id != 1 {
		t.Errorf("got id %d, want 1", c.Id)
	}
}

func TestBitSet(t *testing.T) {
	bs := NewBitSet(10)
	for _, n := range []uint32{0, 63, 64, 1000} {
		bs.Add(n)
	}
	for _, n := range []uint32{0, 63, 64, 1000} {
		if !bs.Has(n) {
			t.Errorf("expected %d to be set", n)
		}
	}
	if bs.Has(1) || bs.Has(5000) {
		t.Error("unexpected bit set")
	}
	bs.Clear()
	if bs.Has(1000) {
		t.Error("Clear did not reset bits")
	}
}
