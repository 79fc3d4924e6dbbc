// Package bench runs a benchmark sweep: every configured algorithm over
// every dataset and scale, for every build and query parameter set.
package bench

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/patrikhermansson/dynbench/algo"
	"github.com/patrikhermansson/dynbench/config"
	"github.com/patrikhermansson/dynbench/core"
	"github.com/patrikhermansson/dynbench/dataset"
	"github.com/patrikhermansson/dynbench/eval"
	"github.com/patrikhermansson/dynbench/groundtruth"
	"github.com/patrikhermansson/dynbench/recall"
	"github.com/patrikhermansson/dynbench/throttle"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// Runner executes sweeps described by a configuration directory.
type Runner struct {
	Dir      config.Dir
	Run      *config.Run
	Progress bool             // draw a progress bar per sweep entry
	Now      func() time.Time // result file timestamps
}

// NewRunner returns a runner for run loaded from dir.
func NewRunner(dir config.Dir, run *config.Run) *Runner {
	return &Runner{Dir: dir, Run: run, Progress: true, Now: time.Now}
}

// Sweep benchmarks every algorithm on every dataset. Entries with missing
// configuration or data are skipped with a warning. It returns the paths of
// the result files written.
func (r *Runner) Sweep() ([]string, error) {
	var written []string
	for _, algoName := range r.Run.Algo {
		ac, err := r.Dir.Algo(algoName)
		if err != nil {
			log.Warn().Err(err).Msgf("Skipping algorithm %s", algoName)
			continue
		}
		if _, err := algo.New(algoName); err != nil {
			log.Warn().Err(err).Msgf("Skipping algorithm %s", algoName)
			continue
		}
		for _, dataName := range r.Run.Data {
			dc, err := r.Dir.Data(dataName)
			if err != nil {
				log.Warn().Err(err).Msgf("Skipping dataset %s", dataName)
				continue
			}
			for _, scale := range dc.Scales {
				path, err := r.entry(ac, dataName, dc.At(scale))
				if err != nil {
					log.Warn().Err(err).Msgf("Skipping %s on %s at scale %d", algoName, dataName, scale)
					continue
				}
				written = append(written, path)
			}
		}
	}
	return written, nil
}

// Pregen generates the ground truth of every configured dataset and scale.
func (r *Runner) Pregen() error {
	var errs []error
	for _, dataName := range r.Run.Data {
		dc, err := r.Dir.Data(dataName)
		if err != nil {
			log.Warn().Err(err).Msgf("Skipping dataset %s", dataName)
			continue
		}
		for _, scale := range dc.Scales {
			ds, err := dataset.New(dc.At(scale))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if _, _, err := groundtruth.Ensure(ds, r.groundTruthOptions()); err != nil {
				if errors.Is(err, dataset.ErrMissing) {
					log.Warn().Err(err).Msgf("Skipping dataset %s at scale %d", dataName, scale)
					continue
				}
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// groundTruthOptions uses the first linear build parameter set when one is
// configured.
func (r *Runner) groundTruthOptions() groundtruth.Options {
	opts := groundtruth.Options{TopK: r.Run.TopK}
	if lc, err := r.Dir.Algo("linear"); err == nil {
		opts.Build = lc.Build[0]
	}
	return opts
}

// entry runs all parameter combinations of one algorithm on one dataset at
// one scale and writes them to a result file.
func (r *Runner) entry(ac *config.Algo, dataName string, s dataset.Settings) (string, error) {
	ds, err := dataset.New(s)
	if err != nil {
		return "", err
	}
	if err := ds.Check(); err != nil {
		return "", err
	}
	if _, _, err := groundtruth.Ensure(ds, r.groundTruthOptions()); err != nil {
		return "", err
	}
	in, err := load(ds)
	if err != nil {
		return "", err
	}
	started := r.Now()

	var bar *progressbar.ProgressBar
	total := int64(len(ac.Build) * len(ac.Query))
	desc := fmt.Sprintf("%s/%s@%d", ac.Name, dataName, s.Scale)
	if r.Progress {
		bar = progressbar.Default(total, desc)
	} else {
		bar = progressbar.DefaultSilent(total, desc)
	}

	results := make([][]Record, 0, len(ac.Build))
	for _, build := range ac.Build {
		var records []Record
		for _, query := range ac.Query {
			rec, err := r.measure(ac.Name, ds, in, build, query)
			_ = bar.Add(1)
			if err != nil {
				log.Error().Err(err).Msgf("Run of %s failed with build {%s} query {%s}", ac.Name, build, query)
				continue
			}
			records = append(records, rec)
		}
		results = append(results, records)
	}
	_ = bar.Finish()

	path := ResultPath(r.Run.Output, dataName, ac.Name, started)
	if err := WriteResults(path, results); err != nil {
		return "", err
	}
	log.Info().Msgf("Results written to %s", path)
	return path, nil
}

// inputs are the vectors and ground truth of a dataset, loaded once per
// sweep entry.
type inputs struct {
	dimension   int
	train       [][]float32
	base        [][]float32
	stream      [][]float32
	groundTruth [][]int
}

func load(ds *dataset.Dataset) (*inputs, error) {
	in := &inputs{}
	var err error
	if in.base, in.stream, err = ds.Split(); err != nil {
		return nil, err
	}
	if in.dimension, err = ds.VectorDimension(); err != nil {
		return nil, err
	}
	if in.groundTruth, err = ds.GroundTruth(); err != nil {
		return nil, err
	}
	return in, nil
}

// measure builds a fresh index from the base set, replays the workload and
// scores the captured results.
func (r *Runner) measure(name string, ds *dataset.Dataset, in *inputs, build, query core.Params) (Record, error) {
	a, err := algo.New(name)
	if err != nil {
		return Record{}, err
	}
	idx := throttle.Wrap(name, a)
	mem := r.Run.MemType
	base := in.base

	log.Info().Msgf("Start to build %s with {%s}", name, build)
	if mem.Traced() {
		core.StartTrace()
	}
	m0 := idx.MemoryUsage(mem)
	t0 := time.Now()
	if err := idx.Init(in.dimension, len(in.stream), build); err != nil {
		return Record{}, err
	}
	if idx.HasTrain() {
		if in.train == nil {
			if in.train, err = ds.Train(); err != nil {
				return Record{}, err
			}
		}
		log.Info().Msgf("Start to train on %s vectors", humanize.Comma(int64(len(in.train))))
		if err := idx.Train(in.train); err != nil {
			return Record{}, err
		}
	}
	if err := idx.Add(base, 0, len(base)); err != nil {
		return Record{}, err
	}
	if err := idx.Drain(base); err != nil {
		return Record{}, err
	}
	buildTime := time.Since(t0)
	m1 := idx.MemoryUsage(mem)

	rec := Record{
		RunID:            uuid.NewString(),
		ParamBuild:       build,
		BuildtimePerBase: buildTime.Seconds() / float64(max(len(base), 1)),
		MemoryPerBase:    -1,
		ParamQuery:       query,
	}
	if m0 >= 0 && m1 >= 0 {
		rec.MemoryPerBase = float64(m1-m0) / float64(max(len(base), 1))
		log.Info().Msgf("Built in %s, %s %s", buildTime.Round(time.Millisecond), mem, humanize.IBytes(uint64(max(m1-m0, 0))))
	} else {
		log.Info().Msgf("Built in %s, %s unavailable", buildTime.Round(time.Millisecond), mem)
	}

	log.Info().Msgf("Start to search with {%s}", query)
	timings, ids, err := eval.Evaluate(idx, ds.Workload(), eval.Request{
		Queries:         in.stream,
		GroundTruthRows: ds.GroundTruthRows(),
		TopK:            r.Run.TopK,
		Memory:          mem,
		Params:          query,
	})
	if err != nil {
		return Record{}, err
	}
	curve, err := recall.Curve(ids, in.groundTruth, r.Run.TopK)
	if err != nil {
		return Record{}, err
	}
	rec.setTimings(timings)
	rec.setRecall(curve)
	log.Info().Msgf("Finished %s: recall@%d %.3f over %d of %d rows",
		rec.RunID, curve[0].R, curve[0].Mean(), curve[0].Scored, len(curve[0].Counts))
	return rec, nil
}
