package bench

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/patrikhermansson/dynbench/config"
	"github.com/patrikhermansson/dynbench/core"
	"github.com/patrikhermansson/dynbench/dataset"
	"github.com/patrikhermansson/dynbench/groundtruth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// sweepDir lays out a configuration with one synthetic dataset, two real
// algorithms and entries that must be skipped.
func sweepDir(t *testing.T) (config.Dir, string) {
	root := t.TempDir()
	out := filepath.Join(root, "out")
	write(t, root, "run.yaml", `
algo: [linear, hnsw, scann]
data: [synth, absent]
topk: 10
mem_type: trc_mem
output: `+out+"\n")
	write(t, root, "algo/linear_build.yaml", "algo:\n  name: linear\n  build:\n    - {skips: 0}\n")
	write(t, root, "algo/linear_search.yaml", "algo:\n  query:\n    - {}\n")
	write(t, root, "algo/hnsw_build.yaml", "algo:\n  name: hnsw\n  build:\n    - {M: 8, ef_construction: 40, skips: 0.01}\n")
	write(t, root, "algo/hnsw_search.yaml", "algo:\n  query:\n    - {ef: 20}\n    - {ef: 40}\n")
	write(t, root, "data/synth.yaml", `
data:
  name: synthetic
  path: `+filepath.Join(root, "data")+`
  mode: base
  scale: [1]
  timings: 2
  dimension: 4
  seed: 5
`)
	t.Setenv("DYNBENCH_SEED", "11")
	return config.Dir(root), out
}

func TestSweep(t *testing.T) {
	dir, out := sweepDir(t)
	run, err := dir.Run()
	require.NoError(t, err)

	r := NewRunner(dir, run)
	r.Progress = false
	r.Now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	paths, err := r.Sweep()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, "synth", "linear", "result-26-03-04-05-06-07.yaml"),
		filepath.Join(out, "synth", "hnsw", "result-26-03-04-05-06-07.yaml"),
	}, paths)

	linear, err := ReadResults(paths[0])
	require.NoError(t, err)
	require.Len(t, linear, 1)
	require.Len(t, linear[0], 1)
	rec := linear[0][0]
	_, err = uuid.Parse(rec.RunID)
	assert.NoError(t, err)
	assert.Len(t, rec.RuntimePerQuery, 2)
	assert.Len(t, rec.SearchtimePerQuery, 2)
	assert.Len(t, rec.BuildtimePerQuery, 2)
	assert.Len(t, rec.MemoryQuery, 2)
	assert.Greater(t, rec.BuildtimePerBase, 0.0)
	assert.GreaterOrEqual(t, rec.MemoryPerBase, 0.0)

	// The flat scan reproduces the ground truth exactly.
	assert.Equal(t, 100, rec.ScoredRows)
	require.Len(t, rec.Recall, 10)
	for i, counts := range rec.Recall {
		r := 10 - i
		require.Len(t, counts, 100)
		for _, c := range counts {
			assert.Equal(t, r, c)
		}
	}

	hnsw, err := ReadResults(paths[1])
	require.NoError(t, err)
	require.Len(t, hnsw, 1)
	require.Len(t, hnsw[0], 2)
	assert.Equal(t, 40, hnsw[0][1].ParamQuery.Int("ef", 0))
	assert.NotEqual(t, hnsw[0][0].RunID, hnsw[0][1].RunID)
}

func TestMeasureOddStream(t *testing.T) {
	// Seven rows: three base vectors, and with two arrivals per step the last
	// insert reaches id 6.
	root := t.TempDir()
	write(t, root, "base.csv", "0,0\n1,0\n2,0\n3,0\n4,0\n5,0\n6,0\n")
	write(t, root, "learn.csv", "0,1\n")
	t.Setenv("DYNBENCH_SEED", "3")

	ds, err := dataset.New(dataset.Settings{Name: "csv", Path: root, Mode: dataset.ModeEFreq, Scale: 2, Trunc: 1, Timings: 1})
	require.NoError(t, err)
	_, _, err = groundtruth.Ensure(ds, groundtruth.Options{TopK: 2})
	require.NoError(t, err)
	in, err := load(ds)
	require.NoError(t, err)
	require.Len(t, in.stream, 7)
	require.Len(t, in.base, 3)

	r := &Runner{Dir: config.Dir(root), Run: &config.Run{TopK: 2, MemType: core.MemPsuRSS}, Now: time.Now}
	rec, err := r.measure("hnsw", ds, in, core.Params{"M": 4, "ef_construction": 16}, core.Params{})
	require.NoError(t, err)
	assert.Len(t, rec.RuntimePerQuery, 1)
	assert.Len(t, rec.Recall, 2)
}

func TestPregen(t *testing.T) {
	dir, _ := sweepDir(t)
	run, err := dir.Run()
	require.NoError(t, err)
	r := NewRunner(dir, run)
	require.NoError(t, r.Pregen())

	matches, err := filepath.Glob(filepath.Join(string(dir), "data", "*", "synthetic_base1_1_gt.ivecs"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestResultPath(t *testing.T) {
	at := time.Date(2024, 12, 31, 23, 59, 58, 0, time.UTC)
	assert.Equal(t, filepath.Join("out", "sift", "hnsw", "result-24-12-31-23-59-58.yaml"),
		ResultPath("out", "sift", "hnsw", at))
}

func TestWriteResultsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "result.yaml")
	want := [][]Record{{{RunID: "x", MemoryPerBase: -1, Recall: [][]int{{3, 2}, {1, 1}}}}, {}}
	require.NoError(t, WriteResults(path, want))
	got, err := ReadResults(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0][0].RunID)
	assert.Equal(t, -1.0, got[0][0].MemoryPerBase)
	assert.Equal(t, [][]int{{3, 2}, {1, 1}}, got[0][0].Recall)
}
