package bench

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/patrikhermansson/dynbench/core"
	"github.com/patrikhermansson/dynbench/eval"
	"github.com/patrikhermansson/dynbench/recall"
	"gopkg.in/yaml.v3"
)

// Record is the outcome of one build and query parameter combination.
// Per-query series hold one value per measurement window.
type Record struct {
	RunID              string      `yaml:"run_id"`
	ParamBuild         core.Params `yaml:"param_build"`
	BuildtimePerBase   float64     `yaml:"buildtime_per_base"`
	MemoryPerBase      float64     `yaml:"memory_per_base"`
	ParamQuery         core.Params `yaml:"param_query"`
	RuntimePerQuery    []float64   `yaml:"runtime_per_query"`
	SearchtimePerQuery []float64   `yaml:"searchtime_per_query"`
	BuildtimePerQuery  []float64   `yaml:"buildtime_per_query"`
	MemoryQuery        []float64   `yaml:"memory_query"`
	Recall             [][]int     `yaml:"recall"` // one row of counts per cutoff, largest cutoff first
	ScoredRows         int         `yaml:"scored_rows"`
}

// setTimings fills the per-query series.
func (r *Record) setTimings(timings []eval.Timing) {
	r.RuntimePerQuery = make([]float64, len(timings))
	r.SearchtimePerQuery = make([]float64, len(timings))
	r.BuildtimePerQuery = make([]float64, len(timings))
	r.MemoryQuery = make([]float64, len(timings))
	for i, t := range timings {
		r.RuntimePerQuery[i] = t.Runtime()
		r.SearchtimePerQuery[i] = t.Search
		r.BuildtimePerQuery[i] = t.Mutate
		r.MemoryQuery[i] = float64(t.Memory)
	}
}

func (r *Record) setRecall(curve []recall.Point) {
	r.Recall = make([][]int, len(curve))
	for i, p := range curve {
		r.Recall[i] = p.Counts
		r.ScoredRows = p.Scored
	}
}

// ResultPath is the file a sweep entry started at t is written to.
func ResultPath(output, data, algo string, t time.Time) string {
	return filepath.Join(output, data, algo, "result-"+t.Format("06-01-02-15-04-05")+".yaml")
}

// WriteResults stores one list of records per build parameter set.
func WriteResults(path string, results [][]Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := yaml.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, out, 0o644)
}

// ReadResults loads a file written by WriteResults.
func ReadResults(path string) ([][]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var results [][]Record
	if err := yaml.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return results, nil
}
