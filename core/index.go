package core

import "errors"

// Sentinel marks an empty cell in a result or ground-truth row.
const Sentinel = -1

// ErrNotInitialized is returned by adapters that receive vectors before Init.
var ErrNotInitialized = errors.New("index is not initialized")

// Algorithm is the capability set every benchmarked ANN index exposes.
// The harness drives it exclusively through these methods and never looks at
// the index state directly. Throttling is not part of the contract; see the
// throttle package for the decorator that adds it.
type Algorithm interface {

	// Init allocates index state for up to maxCapacity vectors of the given dimension.
	Init(dimension, maxCapacity int, build Params) error

	// HasTrain reports whether Train must run before any vector is added.
	HasTrain() bool

	// Train fits global quantization or partition parameters.
	Train(vecs [][]float32) error

	// RawAdd inserts vecs[start:start+count] immediately, using positions as ids.
	RawAdd(vecs [][]float32, start, count int) error

	// RawUpdate applies vecs[start:start+count] as new values for existing ids.
	RawUpdate(vecs [][]float32, start, count int) error

	// Query returns up to topk neighbor ids for each row of vecs.
	Query(vecs [][]float32, topk int, query Params) QueryResult

	// MemoryUsage samples the requested memory metric in bytes.
	MemoryUsage(kind MemoryMetric) (int64, bool)
}

// Neighbor holds a neighbor's id and its computed distance.
type Neighbor struct {
	ID       int
	Distance float64
}

// QueryResult is either a matrix of ids or a failure.
type QueryResult struct {
	IDs [][]int
	Err error
}

// Failed reports whether the index could not answer the batch.
func (r QueryResult) Failed() bool {
	return r.Err != nil
}

// Collapse turns the result into a rows x topk matrix. Short rows are padded
// with Sentinel, long rows are truncated and a failed result becomes an
// all-sentinel matrix.
func (r QueryResult) Collapse(rows, topk int) [][]int {
	out := NewResultMatrix(rows, topk)
	if r.Failed() {
		return out
	}
	for i := 0; i < rows && i < len(r.IDs); i++ {
		copy(out[i], r.IDs[i])
	}
	return out
}

// NewResultMatrix allocates a rows x cols matrix filled with Sentinel.
func NewResultMatrix(rows, cols int) [][]int {
	data := make([]int, rows*cols)
	for i := range data {
		data[i] = Sentinel
	}
	m := make([][]int, rows)
	for i := range m {
		m[i] = data[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return m
}

// NeighborIDs extracts the ids of a sorted neighbor list.
func NeighborIDs(neighbors []Neighbor) []int {
	ids := make([]int, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}
	return ids
}

// ProcessMemory implements Algorithm.MemoryUsage for adapters that live in
// this process. Embed it to satisfy the contract.
type ProcessMemory struct{}

// MemoryUsage samples the process-wide memory metric.
func (ProcessMemory) MemoryUsage(kind MemoryMetric) (int64, bool) {
	return MemoryUsage(kind)
}
