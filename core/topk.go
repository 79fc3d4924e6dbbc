package core

import (
	"container/heap"
	"sort"
)

// neighborMaxHeap keeps the worst neighbor on top. Ties are broken by id so
// results are deterministic.
type neighborMaxHeap []Neighbor

func (h neighborMaxHeap) Len() int { return len(h) }
func (h neighborMaxHeap) Less(i, j int) bool {
	if h[i].Distance == h[j].Distance {
		return h[i].ID > h[j].ID
	}
	return h[i].Distance > h[j].Distance
}
func (h neighborMaxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *neighborMaxHeap) Push(x interface{}) { *h = append(*h, x.(Neighbor)) }
func (h *neighborMaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopK collects the k closest neighbors pushed into it.
type TopK struct {
	k int
	h neighborMaxHeap
}

// NewTopK returns an empty collector for k neighbors.
func NewTopK(k int) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, h: make(neighborMaxHeap, 0, k)}
}

// Push offers a neighbor. It is kept when fewer than k neighbors are held or
// when it is closer than the current worst one.
func (t *TopK) Push(id int, dist float64) {
	if t.k == 0 {
		return
	}
	if len(t.h) < t.k {
		heap.Push(&t.h, Neighbor{ID: id, Distance: dist})
		return
	}
	worst := t.h[0]
	if dist < worst.Distance || (dist == worst.Distance && id < worst.ID) {
		t.h[0] = Neighbor{ID: id, Distance: dist}
		heap.Fix(&t.h, 0)
	}
}

// Len returns the number of neighbors held.
func (t *TopK) Len() int {
	return len(t.h)
}

// Sorted returns the held neighbors from closest to farthest.
func (t *TopK) Sorted() []Neighbor {
	out := make([]Neighbor, len(t.h))
	copy(out, t.h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance == out[j].Distance {
			return out[i].ID < out[j].ID
		}
		return out[i].Distance < out[j].Distance
	})
	return out
}
