package throttle

import (
	"fmt"

	"github.com/patrikhermansson/dynbench/core"
	"github.com/rs/zerolog/log"
)

// Index wraps an algorithm with the mutation throttle. It is the only view of
// an index the evaluator gets.
type Index struct {
	name  string
	algo  core.Algorithm
	state State
}

// Wrap returns a throttled view of algo. The name only appears in log lines.
func Wrap(name string, algo core.Algorithm) *Index {
	return &Index{name: name, algo: algo}
}

// Name returns the algorithm name given to Wrap.
func (x *Index) Name() string {
	return x.name
}

// State returns the current throttle state.
func (x *Index) State() State {
	return x.state
}

// Init initializes the wrapped algorithm and resets the throttle. The build
// parameter "skips" sets the threshold as a fraction of maxCapacity.
func (x *Index) Init(dimension, maxCapacity int, build core.Params) error {
	if err := x.algo.Init(dimension, maxCapacity, build); err != nil {
		return fmt.Errorf("%s: init: %w", x.name, err)
	}
	x.state = NewState(maxCapacity, build.Float("skips", 0))
	log.Debug().Msgf("%s initialized: dimension=%d capacity=%d threshold=%d",
		x.name, dimension, maxCapacity, x.state.Threshold)
	return nil
}

// HasTrain reports whether the wrapped algorithm needs training.
func (x *Index) HasTrain() bool {
	return x.algo.HasTrain()
}

// Train trains the wrapped algorithm.
func (x *Index) Train(vecs [][]float32) error {
	if err := x.algo.Train(vecs); err != nil {
		return fmt.Errorf("%s: train: %w", x.name, err)
	}
	return nil
}

// Add registers vecs[start:start+count] as new rows and flushes them to the
// index once the threshold is exceeded.
func (x *Index) Add(vecs [][]float32, start, count int) error {
	var (
		f  Flush
		ok bool
	)
	x.state, f, ok = Add(x.state, len(vecs), start, count)
	if !ok {
		return nil
	}
	if err := x.algo.RawAdd(vecs, f.Start, f.Count); err != nil {
		return fmt.Errorf("%s: add [%d,+%d): %w", x.name, f.Start, f.Count, err)
	}
	return nil
}

// Update registers vecs[start:start+count] as changed rows and flushes them
// to the index once UpdateFactor times the threshold is exceeded.
func (x *Index) Update(vecs [][]float32, start, count int) error {
	var (
		f  Flush
		ok bool
	)
	x.state, f, ok = Update(x.state, len(vecs), start, count)
	if !ok {
		return nil
	}
	if err := x.algo.RawUpdate(vecs, f.Start, f.Count); err != nil {
		return fmt.Errorf("%s: update [%d,+%d): %w", x.name, f.Start, f.Count, err)
	}
	return nil
}

// Drain adds every deferred row of vecs to the index regardless of the
// threshold.
func (x *Index) Drain(vecs [][]float32) error {
	var (
		f  Flush
		ok bool
	)
	x.state, f, ok = Drain(x.state, len(vecs))
	if !ok {
		return nil
	}
	if err := x.algo.RawAdd(vecs, f.Start, f.Count); err != nil {
		return fmt.Errorf("%s: drain [%d,+%d): %w", x.name, f.Start, f.Count, err)
	}
	return nil
}

// Query searches the index and always returns a len(vecs) x topk matrix. A
// failed search is logged and becomes a row of sentinels per query.
func (x *Index) Query(vecs [][]float32, topk int, query core.Params) [][]int {
	res := x.algo.Query(vecs, topk, query)
	if res.Failed() {
		log.Warn().Err(res.Err).Msgf("%s query failed, returning %d sentinel rows", x.name, len(vecs))
	}
	return res.Collapse(len(vecs), topk)
}

// MemoryUsage samples memory through the wrapped algorithm. Unavailable
// metrics are reported as -1.
func (x *Index) MemoryUsage(kind core.MemoryMetric) int64 {
	v, ok := x.algo.MemoryUsage(kind)
	if !ok {
		return -1
	}
	return v
}
