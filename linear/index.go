// Package linear is an exhaustive flat-scan index. It is exact, so the
// harness uses it to produce ground truth.
package linear

import (
	"fmt"

	"github.com/patrikhermansson/dynbench/core"
	"github.com/rs/zerolog/log"
)

// Index scans every stored vector on each query. Ids are assigned in
// insertion order, which matches row positions when rows are added in order.
type Index struct {
	core.ProcessMemory
	dimension int
	vectors   [][]float32
	distance  core.DistanceFunc
}

// New returns an uninitialized flat index.
func New() *Index {
	return &Index{}
}

// Init sets the dimension and distance. The build parameter "metric" names
// an entry of core.Distances and defaults to squared_euclidean.
func (x *Index) Init(dimension, maxCapacity int, build core.Params) error {
	name := build.Str("metric", "squared_euclidean")
	dist, ok := core.Distances[name]
	if !ok {
		return fmt.Errorf("linear: unknown metric %q", name)
	}
	if dimension <= 0 {
		return fmt.Errorf("linear: invalid dimension %d", dimension)
	}
	x.dimension = dimension
	x.distance = dist
	x.vectors = make([][]float32, 0, max(maxCapacity, 0))
	log.Debug().Msgf("Flat index ready: dimension=%d capacity=%d metric=%s", dimension, maxCapacity, name)
	return nil
}

// HasTrain returns false.
func (x *Index) HasTrain() bool { return false }

// Train is a no-op.
func (x *Index) Train([][]float32) error { return nil }

// RawAdd appends copies of vecs[start:start+count].
func (x *Index) RawAdd(vecs [][]float32, start, count int) error {
	if x.distance == nil {
		return core.ErrNotInitialized
	}
	s, e := core.Span(len(vecs), start, count)
	for i := s; i < e; i++ {
		if len(vecs[i]) != x.dimension {
			return fmt.Errorf("row %d has dimension %d, index has %d: %w",
				i, len(vecs[i]), x.dimension, core.ErrDimensionMismatch)
		}
		v := make([]float32, x.dimension)
		copy(v, vecs[i])
		x.vectors = append(x.vectors, v)
	}
	return nil
}

// RawUpdate discards the stored vectors and re-adds all of vecs.
func (x *Index) RawUpdate(vecs [][]float32, _, _ int) error {
	x.vectors = x.vectors[:0]
	return x.RawAdd(vecs, 0, len(vecs))
}

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	return len(x.vectors)
}

// Query returns the exact topk neighbors of every row. Rows are shorter than
// topk when fewer vectors are stored.
func (x *Index) Query(vecs [][]float32, topk int, _ core.Params) core.QueryResult {
	if x.distance == nil {
		return core.QueryResult{Err: core.ErrNotInitialized}
	}
	ids := make([][]int, len(vecs))
	for i, q := range vecs {
		if len(q) != x.dimension {
			return core.QueryResult{Err: fmt.Errorf("query %d has dimension %d, index has %d: %w",
				i, len(q), x.dimension, core.ErrDimensionMismatch)}
		}
		top := core.NewTopK(topk)
		for id, v := range x.vectors {
			top.Push(id, x.distance(q, v))
		}
		ids[i] = core.NeighborIDs(top.Sorted())
	}
	return core.QueryResult{IDs: ids}
}

var _ core.Algorithm = (*Index)(nil)
