// Package groundtruth computes the exact results a dataset is scored
// against and stores them next to the data.
package groundtruth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/patrikhermansson/dynbench/core"
	"github.com/patrikhermansson/dynbench/dataset"
	"github.com/patrikhermansson/dynbench/eval"
	"github.com/patrikhermansson/dynbench/linear"
	"github.com/patrikhermansson/dynbench/throttle"
	"github.com/patrikhermansson/dynbench/vecs"
	"github.com/rs/zerolog/log"
)

// Options configures the exact search.
type Options struct {
	TopK  int
	Build core.Params // build parameters of the flat scan, "metric" and "skips"
}

// Ensure returns the ground-truth path of ds, generating the table first if
// it does not exist yet.
func Ensure(ds *dataset.Dataset, opts Options) (path string, generated bool, err error) {
	path = ds.GroundTruthPath()
	if _, err := os.Stat(path); err == nil {
		log.Debug().Msgf("Ground truth present: %s", path)
		return path, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", false, err
	}
	if err := ds.Check(); err != nil {
		return "", false, err
	}

	start := time.Now()
	log.Info().Msgf("Generating ground truth %s", path)
	rows, err := Generate(ds, opts)
	if err != nil {
		return "", false, fmt.Errorf("ground truth for %s: %w", path, err)
	}
	if err := vecs.WriteIvecs(path, rows); err != nil {
		return "", false, err
	}
	log.Info().Msgf("Wrote %s ground-truth rows to %s in %s",
		humanize.Comma(int64(len(rows))), path, time.Since(start).Round(time.Millisecond))
	return path, true, nil
}

// Generate replays the workload of ds against a flat scan seeded with the
// base set and returns the captured rows.
func Generate(ds *dataset.Dataset, opts Options) ([][]int, error) {
	dim, err := ds.VectorDimension()
	if err != nil {
		return nil, err
	}
	base, stream, err := ds.Split()
	if err != nil {
		return nil, err
	}

	idx := throttle.Wrap("linear", linear.New())
	if err := idx.Init(dim, ds.StreamSize(), opts.Build); err != nil {
		return nil, err
	}
	if err := idx.Add(base, 0, len(base)); err != nil {
		return nil, err
	}
	if err := idx.Drain(base); err != nil {
		return nil, err
	}
	_, rows, err := eval.Evaluate(idx, ds.Workload(), eval.Request{
		Queries:         stream,
		GroundTruthRows: ds.GroundTruthRows(),
		TopK:            opts.TopK,
		Memory:          core.MemPsuRSS,
	})
	return rows, err
}
