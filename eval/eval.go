// Package eval replays a streaming workload against an index: queries are
// interleaved with insertions or updates, every phase is timed and the
// neighbor rows needed for scoring are captured.
package eval

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/patrikhermansson/dynbench/core"
	"github.com/rs/zerolog/log"
)

// ErrWorkload is returned for workload settings that cannot be replayed.
var ErrWorkload = errors.New("invalid workload")

// Index is the view of an index the evaluator drives. *throttle.Index
// implements it.
type Index interface {
	Add(vecs [][]float32, start, count int) error
	Update(vecs [][]float32, start, count int) error
	Query(vecs [][]float32, topk int, query core.Params) [][]int
	MemoryUsage(kind core.MemoryMetric) int64
}

// Timing holds the per-query cost of one measurement window.
type Timing struct {
	Search float64 // seconds spent in queries
	Mutate float64 // seconds spent in inserts or updates
	Memory int64   // bytes, -1 when unavailable
}

// Runtime is the sum of search and mutation time.
func (t Timing) Runtime() float64 {
	return t.Search + t.Mutate
}

// Request carries everything except the workload shape.
type Request struct {
	Queries         [][]float32 // the full stream, not modified
	GroundTruthRows int         // number of result rows to capture
	TopK            int
	Memory          core.MemoryMetric
	Params          core.Params // query parameters handed to the index
}

// Workload is either FixedRate or Epoch.
type Workload interface {
	windows() int
	run(r *runner) error
}

// Evaluate replays w over req.Queries. It returns one Timing per window and
// a GroundTruthRows x TopK matrix of captured neighbor ids; rows that were
// never captured hold core.Sentinel.
func Evaluate(idx Index, w Workload, req Request) ([]Timing, [][]int, error) {
	return evaluate(idx, w, req, time.Now)
}

func evaluate(idx Index, w Workload, req Request, now func() time.Time) ([]Timing, [][]int, error) {
	if req.TopK <= 0 {
		return nil, nil, fmt.Errorf("topk %d: %w", req.TopK, ErrWorkload)
	}
	if len(req.Queries) < 2 {
		return nil, nil, fmt.Errorf("%d query vectors, need at least 2: %w", len(req.Queries), ErrWorkload)
	}
	r := &runner{
		idx:     idx,
		req:     req,
		now:     now,
		nq:      len(req.Queries) / 2,
		live:    make([][]float32, len(req.Queries)),
		ids:     core.NewResultMatrix(max(req.GroundTruthRows, 0), req.TopK),
		timings: make([]Timing, w.windows()),
	}
	for i, v := range req.Queries {
		r.live[i] = append([]float32(nil), v...)
	}
	log.Debug().Msgf("Evaluating %T %+v over %d queries", w, w, r.nq)
	if err := w.run(r); err != nil {
		return nil, nil, err
	}
	if r.captured < len(r.ids) {
		log.Debug().Msgf("Captured %d of %d result rows", r.captured, len(r.ids))
	}
	return r.timings, r.ids, nil
}

// runner is the mutable state of one evaluation.
type runner struct {
	idx      Index
	req      Request
	now      func() time.Time
	nq       int
	live     [][]float32
	ids      [][]int
	captured int
	timings  []Timing
	window   int
}

// current returns the open window. Time spent after the last window closed
// is discarded.
func (r *runner) current() *Timing {
	if r.window >= len(r.timings) {
		return &Timing{}
	}
	return &r.timings[r.window]
}

func (r *runner) query(vecs [][]float32) [][]int {
	t0 := r.now()
	res := r.idx.Query(vecs, r.req.TopK, r.req.Params)
	r.current().Search += r.since(t0)
	return res
}

func (r *runner) since(t0 time.Time) float64 {
	return r.now().Sub(t0).Seconds()
}

func (r *runner) capture(row []int) {
	if r.captured >= len(r.ids) {
		return
	}
	copy(r.ids[r.captured], row)
	r.captured++
}

// close scales the open window, samples memory and opens the next one.
func (r *runner) close(scale float64) {
	if r.window >= len(r.timings) {
		return
	}
	t := &r.timings[r.window]
	t.Search *= scale
	t.Mutate *= scale
	t.Memory = r.idx.MemoryUsage(r.req.Memory)
	r.window++
}

// pyMod is the floored modulo: the result has the sign of b.
func pyMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

// crossed reports whether advancing from pos-step to pos passed a multiple
// of stride.
func crossed(pos, step int, stride float64) bool {
	return pyMod(float64(pos), stride) <= pyMod(float64(pos-step), stride)
}
