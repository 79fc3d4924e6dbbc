package eval

import (
	"fmt"

	"github.com/patrikhermansson/dynbench/core"
)

// FixedRate simulates online data collection. The second half of the
// stream arrives Freq vectors at a time; before each arrival the index is
// queried with the newest vector.
type FixedRate struct {
	Freq    int     // vectors inserted per step
	Lerp    float64 // pull of each arrival toward its predecessor, 0 disables
	Timings int     // number of measurement windows
	Batched bool    // query with all Freq arriving vectors instead of one
}

func (w FixedRate) windows() int { return max(w.Timings, 0) }

func (w FixedRate) run(r *runner) error {
	if w.Freq <= 0 || w.Timings <= 0 {
		return fmt.Errorf("fixed rate freq=%d timings=%d: %w", w.Freq, w.Timings, ErrWorkload)
	}
	nq := r.nq
	gtStride := float64(nq) / float64(max(len(r.ids), 1))
	winStride := float64(nq) / float64(w.Timings)

	for query := nq; query < 2*nq; query += w.Freq {
		if w.Lerp > 0 {
			row, err := core.LerpVector(r.live[query], r.live[query-1], w.Lerp)
			if err != nil {
				return fmt.Errorf("query %d: %w", query, err)
			}
			r.live[query] = row
		}

		batch := r.live[query : query+1]
		if w.Batched {
			batch = r.live[query:min(query+w.Freq, len(r.live))]
		}
		res := r.query(batch)
		if crossed(query, w.Freq, gtStride) {
			r.capture(res[0])
		}

		t0 := r.now()
		err := r.idx.Add(r.live[:min(query+w.Freq, len(r.live))], query, w.Freq)
		r.current().Mutate += r.since(t0)
		if err != nil {
			return fmt.Errorf("query %d: %w", query, err)
		}

		if crossed(query-nq+w.Freq, w.Freq, winStride) {
			r.close(float64(w.Timings) / float64(nq))
		}
	}
	// Rounding in the modulo can leave the final window open.
	if r.window < len(r.timings) {
		r.close(float64(w.Timings) / float64(nq))
	}
	return nil
}

// Epoch simulates online feature learning. Each epoch walks the first half
// of the stream in batches, moves every batch toward the second half,
// queries with the moved vectors and writes them back as updates.
type Epoch struct {
	Epochs int     // passes over the first half, one window each
	Batch  int     // vectors moved per step
	Freq   int     // vectors per update call
	Lerp   float64 // fraction of the move toward the target rows
	Drift  bool    // target rows advance with the batch instead of staying at the midpoint
}

func (w Epoch) windows() int { return max(w.Epochs, 0) }

func (w Epoch) run(r *runner) error {
	if w.Epochs <= 0 || w.Batch <= 0 || w.Freq <= 0 {
		return fmt.Errorf("epoch epochs=%d batch=%d freq=%d: %w", w.Epochs, w.Batch, w.Freq, ErrWorkload)
	}
	nq := r.nq
	perEpoch := float64(len(r.ids)) / float64(w.Epochs)

	for epoch := 0; epoch < w.Epochs; epoch++ {
		for b, batch := 0, 0; batch < nq; b, batch = b+1, batch+w.Batch {
			target := nq
			if w.Drift {
				target += batch
			}
			src := r.live[batch:min(batch+w.Batch, len(r.live))]
			dst := r.live[target:min(target+len(src), len(r.live))]
			src = src[:len(dst)]
			update, err := core.Lerp(src, dst, w.Lerp)
			if err != nil {
				return fmt.Errorf("epoch %d batch %d: %w", epoch, batch, err)
			}

			res := r.query(update)
			if float64(b) < perEpoch {
				r.capture(res[0])
			}
			copy(r.live[batch:], update)

			t0 := r.now()
			for f := batch; f < batch+w.Batch; f += w.Freq {
				if err := r.idx.Update(r.live[:nq], f, w.Freq); err != nil {
					return fmt.Errorf("epoch %d update %d: %w", epoch, f, err)
				}
			}
			r.current().Mutate += r.since(t0)
		}
		r.close(1 / float64(nq))
	}
	return nil
}
