// Package dataset resolves a data configuration at one scale into the
// vectors, workload and ground-truth location of a benchmark run.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/patrikhermansson/dynbench/eval"
	"github.com/patrikhermansson/dynbench/vecs"
	"github.com/rs/zerolog/log"
)

// Kind selects how vectors are obtained and which workload replays them.
type Kind string

const (
	DataCollection  Kind = "datacol"   // SIFT vectors arriving at a fixed rate
	FeatureLearning Kind = "featlearn" // Deep1M embeddings drifting over epochs
	Synthetic       Kind = "synthetic" // seeded Gaussian vectors, fixed rate
	CSV             Kind = "csv"       // base.csv and learn.csv, fixed rate
)

// Modes understood by every kind. Any other mode runs the plain workload.
const (
	ModeLerp   = "lerp"   // interpolate arrivals
	ModeEFreq  = "efreq"  // scale sets the event frequency, trunc the size
	ModeESFreq = "esfreq" // efreq with batched queries
)

var (
	// ErrUnknownKind is returned for data names that are not a Kind.
	ErrUnknownKind = errors.New("unknown dataset")
	// ErrMissing is returned when a required data file does not exist.
	ErrMissing = errors.New("dataset file missing")
)

// Settings is one data configuration at a single scale.
type Settings struct {
	Name      string  `yaml:"name"`
	Path      string  `yaml:"path"`
	Mode      string  `yaml:"mode"`
	Scale     int     `yaml:"-"` // one entry of the configured sweep
	Trunc     int     `yaml:"trunc"`
	Timings   int     `yaml:"timings"`
	Lerp      float64 `yaml:"lerp"`
	Epochs    int     `yaml:"epochs"`
	Batch     int     `yaml:"batch"`
	Dimension int     `yaml:"dimension"` // synthetic only
	Seed      int64   `yaml:"seed"`      // synthetic only
}

// Dataset is a resolved Settings.
type Dataset struct {
	Settings
	kind  Kind
	trunc int // thousands of base vectors
	freq  int
	batch int
	lerp  float64

	synth *generated
}

// New resolves s. The mode decides whether Scale is the data size or the
// event frequency.
func New(s Settings) (*Dataset, error) {
	d := &Dataset{Settings: s, kind: Kind(s.Name), trunc: s.Scale}
	efreq := s.Mode == ModeEFreq || s.Mode == ModeESFreq
	switch d.kind {
	case DataCollection, Synthetic, CSV:
		d.freq = 1
		if efreq {
			d.freq, d.trunc = s.Scale, s.Trunc
		}
	case FeatureLearning:
		d.freq, d.batch = s.Batch, s.Batch
		if efreq {
			d.freq, d.trunc = s.Scale, s.Trunc
		}
		if s.Mode == ModeESFreq {
			d.batch = s.Scale
		}
		if d.batch <= 0 {
			return nil, fmt.Errorf("%s: batch must be positive, got %d", s.Name, d.batch)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, s.Name)
	}
	if s.Mode == ModeLerp {
		d.lerp = s.Lerp
	}
	if d.trunc <= 0 || d.freq <= 0 {
		return nil, fmt.Errorf("%s: trunc=%d and freq=%d must be positive", s.Name, d.trunc, d.freq)
	}
	if d.kind == Synthetic {
		if d.Dimension <= 0 {
			d.Dimension = 32
		}
		if d.Seed == 0 {
			d.Seed = 1
		}
	}
	return d, nil
}

// Kind returns the dataset kind.
func (d *Dataset) Kind() Kind { return d.kind }

// Trunc returns the size in thousands of base vectors.
func (d *Dataset) Trunc() int { return d.trunc }

// Freq returns the number of vectors per mutation event.
func (d *Dataset) Freq() int { return d.freq }

// BaseSize is the number of vectors the index is built from.
func (d *Dataset) BaseSize() int { return 1000 * d.trunc }

// StreamSize is the number of vectors replayed by the workload; the first
// BaseSize of them are the base set.
func (d *Dataset) StreamSize() int { return 2000 * d.trunc }

// GroundTruthRows is the number of queries whose results are scored.
func (d *Dataset) GroundTruthRows() int {
	switch {
	case d.trunc < 10:
		return 100
	case d.trunc < 100:
		return 1000
	default:
		return 10000
	}
}

// Workload returns the evaluation schedule for this dataset.
func (d *Dataset) Workload() eval.Workload {
	if d.kind == FeatureLearning {
		return eval.Epoch{
			Epochs: d.Epochs,
			Batch:  d.batch,
			Freq:   d.freq,
			Lerp:   d.lerp,
			Drift:  d.Mode == ModeLerp,
		}
	}
	return eval.FixedRate{
		Freq:    d.freq,
		Lerp:    d.lerp,
		Timings: d.Timings,
		Batched: d.Mode == ModeESFreq,
	}
}

// dir is the directory holding the vector and ground-truth files.
func (d *Dataset) dir() string {
	switch d.kind {
	case DataCollection:
		return filepath.Join(d.Path, "sift")
	case FeatureLearning:
		return filepath.Join(d.Path, "deep1b")
	case Synthetic:
		return filepath.Join(d.Path, fmt.Sprintf("synthetic-d%d-s%d", d.Dimension, d.Seed))
	default:
		return d.Path
	}
}

func (d *Dataset) basePath() string {
	switch d.kind {
	case DataCollection:
		return filepath.Join(d.dir(), "sift_base.fvecs")
	case FeatureLearning:
		return filepath.Join(d.dir(), "deep1M_base.fvecs")
	default:
		return filepath.Join(d.dir(), "base.csv")
	}
}

func (d *Dataset) learnPath() string {
	switch d.kind {
	case DataCollection:
		return filepath.Join(d.dir(), "sift_learn.fvecs")
	case FeatureLearning:
		return filepath.Join(d.dir(), "deep1M_learn.fvecs")
	default:
		return filepath.Join(d.dir(), "learn.csv")
	}
}

// GroundTruthPath is where the captured exact results of this dataset,
// mode, size and frequency are stored.
func (d *Dataset) GroundTruthPath() string {
	return filepath.Join(d.dir(), fmt.Sprintf("%s_%s%d_%d_gt.ivecs", d.Name, d.Mode, d.trunc, d.freq))
}

// Check reports ErrMissing when a vector file is absent. Synthetic data
// never is.
func (d *Dataset) Check() error {
	if d.kind == Synthetic {
		return nil
	}
	for _, p := range []string{d.basePath(), d.learnPath()} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%w: %s", ErrMissing, p)
		}
	}
	return nil
}

// Train loads the training vectors.
func (d *Dataset) Train() ([][]float32, error) {
	return d.load(d.learnPath(), 0, true)
}

// Base loads the vectors the index is built from: the first half of the
// stream, at most BaseSize rows.
func (d *Dataset) Base() ([][]float32, error) {
	base, _, err := d.Split()
	return base, err
}

// Split loads the stream once and returns it together with its base prefix.
func (d *Dataset) Split() (base, stream [][]float32, err error) {
	stream, err = d.Stream()
	if err != nil {
		return nil, nil, err
	}
	return stream[:min(d.BaseSize(), len(stream)/2)], stream, nil
}

// Stream loads the vectors replayed by the workload.
func (d *Dataset) Stream() ([][]float32, error) {
	return d.load(d.basePath(), d.StreamSize(), false)
}

// GroundTruth loads the stored exact results.
func (d *Dataset) GroundTruth() ([][]int, error) {
	return vecs.ReadIvecs(d.GroundTruthPath(), 0)
}

// VectorDimension returns the vector width, reading the training set if needed.
func (d *Dataset) VectorDimension() (int, error) {
	if d.kind == Synthetic {
		return d.Dimension, nil
	}
	train, err := d.Train()
	if err != nil {
		return 0, err
	}
	if len(train) == 0 {
		return 0, fmt.Errorf("%w: %s is empty", ErrMissing, d.learnPath())
	}
	return len(train[0]), nil
}

func (d *Dataset) load(path string, limit int, train bool) ([][]float32, error) {
	var (
		rows [][]float32
		err  error
	)
	switch d.kind {
	case Synthetic:
		rows = d.generate(train)
		if limit > 0 && limit < len(rows) {
			rows = rows[:limit]
		}
	case CSV:
		rows, err = readCSV[float32](path, limit)
	default:
		rows, err = vecs.ReadFvecs(path, limit)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, err
	}
	log.Debug().Msgf("Loaded %s vectors of %s", humanize.Comma(int64(len(rows))), path)
	return rows, nil
}
