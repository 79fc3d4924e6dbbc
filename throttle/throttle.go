// Package throttle defers index mutations until enough of them have piled up.
//
// Incremental builds are expensive for some indexes, so the harness lets a
// configurable fraction of the capacity accumulate before handing a single
// combined range to the index. The policy is kept as pure functions over an
// explicit State so it can be tested without an index.
package throttle

// UpdateFactor scales the threshold for update events relative to adds.
const UpdateFactor = 20

// State is the pending-mutation counter of one index.
type State struct {
	Pending   int // mutations received since the last flush
	Threshold int // pending adds tolerated before a flush
}

// NewState returns an empty state for an index with the given capacity and
// skip fraction. The threshold is int(maxCapacity * skips).
func NewState(maxCapacity int, skips float64) State {
	if skips < 0 {
		skips = 0
	}
	return State{Threshold: int(float64(maxCapacity) * skips)}
}

// Flush is the half-open row range an index must apply right now.
type Flush struct {
	Start int
	Count int
}

// Add records count new rows ending at start+count in a set of n rows. When
// the pending count exceeds the threshold it returns the range covering every
// deferred row and a reset state.
func Add(s State, n, start, count int) (State, Flush, bool) {
	return apply(s, s.Threshold, n, start, count)
}

// Update is Add for in-place updates, which tolerate UpdateFactor times more
// pending rows before flushing.
func Update(s State, n, start, count int) (State, Flush, bool) {
	return apply(s, UpdateFactor*s.Threshold, n, start, count)
}

func apply(s State, limit, n, start, count int) (State, Flush, bool) {
	s.Pending += count
	if s.Pending <= limit {
		return s, Flush{}, false
	}
	f := Flush{
		Start: max(start+count-s.Pending, 0),
		Count: min(s.Pending, n),
	}
	s.Pending = 0
	return s, f, true
}

// Drain flushes whatever is pending, treating the deferred rows as the last
// ones of a set of n rows.
func Drain(s State, n int) (State, Flush, bool) {
	if s.Pending == 0 {
		return s, Flush{}, false
	}
	f := Flush{
		Start: max(n-s.Pending, 0),
		Count: min(s.Pending, n),
	}
	s.Pending = 0
	return s, f, true
}
