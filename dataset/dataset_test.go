package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/patrikhermansson/dynbench/eval"
	"github.com/patrikhermansson/dynbench/vecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolvesModes(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		trunc    int
		freq     int
		workload eval.Workload
	}{
		{
			name:     "datacol plain",
			settings: Settings{Name: "datacol", Mode: "base", Scale: 5, Timings: 10, Lerp: 0.5},
			trunc:    5, freq: 1,
			workload: eval.FixedRate{Freq: 1, Timings: 10},
		},
		{
			name:     "datacol lerp",
			settings: Settings{Name: "datacol", Mode: ModeLerp, Scale: 2, Timings: 4, Lerp: 0.5},
			trunc:    2, freq: 1,
			workload: eval.FixedRate{Freq: 1, Timings: 4, Lerp: 0.5},
		},
		{
			name:     "datacol esfreq",
			settings: Settings{Name: "datacol", Mode: ModeESFreq, Scale: 8, Trunc: 3, Timings: 4},
			trunc:    3, freq: 8,
			workload: eval.FixedRate{Freq: 8, Timings: 4, Batched: true},
		},
		{
			name:     "featlearn lerp",
			settings: Settings{Name: "featlearn", Mode: ModeLerp, Scale: 1, Epochs: 3, Batch: 50, Lerp: 0.1},
			trunc:    1, freq: 50,
			workload: eval.Epoch{Epochs: 3, Batch: 50, Freq: 50, Lerp: 0.1, Drift: true},
		},
		{
			name:     "featlearn efreq",
			settings: Settings{Name: "featlearn", Mode: ModeEFreq, Scale: 10, Trunc: 2, Epochs: 1, Batch: 100},
			trunc:    2, freq: 10,
			workload: eval.Epoch{Epochs: 1, Batch: 100, Freq: 10},
		},
		{
			name:     "featlearn esfreq",
			settings: Settings{Name: "featlearn", Mode: ModeESFreq, Scale: 10, Trunc: 2, Epochs: 1, Batch: 100},
			trunc:    2, freq: 10,
			workload: eval.Epoch{Epochs: 1, Batch: 10, Freq: 10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.settings)
			require.NoError(t, err)
			assert.Equal(t, tt.trunc, d.Trunc())
			assert.Equal(t, tt.freq, d.Freq())
			assert.Equal(t, tt.workload, d.Workload())
			assert.Equal(t, 1000*tt.trunc, d.BaseSize())
			assert.Equal(t, 2000*tt.trunc, d.StreamSize())
		})
	}
}

func TestNewRejects(t *testing.T) {
	_, err := New(Settings{Name: "sift1m", Scale: 1})
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = New(Settings{Name: "datacol", Scale: 0})
	assert.Error(t, err)
	_, err = New(Settings{Name: "featlearn", Scale: 1})
	assert.Error(t, err, "featlearn needs a batch size")
}

func TestGroundTruthRows(t *testing.T) {
	for trunc, want := range map[int]int{1: 100, 9: 100, 10: 1000, 99: 1000, 100: 10000, 500: 10000} {
		d, err := New(Settings{Name: "datacol", Scale: trunc})
		require.NoError(t, err)
		assert.Equal(t, want, d.GroundTruthRows(), "trunc %d", trunc)
	}
}

func TestGroundTruthPath(t *testing.T) {
	d, err := New(Settings{Name: "datacol", Path: "data/sift", Mode: ModeEFreq, Scale: 4, Trunc: 2})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("data/sift", "sift", "datacol_efreq2_4_gt.ivecs"), d.GroundTruthPath())

	d, err = New(Settings{Name: "featlearn", Path: "data/deep", Mode: "base", Scale: 1, Batch: 10})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("data/deep", "deep1b", "featlearn_base1_10_gt.ivecs"), d.GroundTruthPath())
}

func TestFvecsLayout(t *testing.T) {
	root := t.TempDir()
	d, err := New(Settings{Name: "datacol", Path: root, Mode: "base", Scale: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, d.Check(), ErrMissing)
	_, err = d.Base()
	assert.ErrorIs(t, err, ErrMissing)

	rows := make([][]float32, 2500)
	for i := range rows {
		rows[i] = []float32{float32(i), 1, 2, 3}
	}
	require.NoError(t, vecs.WriteFvecs(filepath.Join(root, "sift", "sift_base.fvecs"), rows))
	require.NoError(t, vecs.WriteFvecs(filepath.Join(root, "sift", "sift_learn.fvecs"), rows[:10]))
	require.NoError(t, d.Check())

	base, err := d.Base()
	require.NoError(t, err)
	assert.Len(t, base, 1000)
	stream, err := d.Stream()
	require.NoError(t, err)
	assert.Len(t, stream, 2000)
	assert.Equal(t, float32(1999), stream[1999][0])
	dim, err := d.VectorDimension()
	require.NoError(t, err)
	assert.Equal(t, 4, dim)

	require.NoError(t, vecs.WriteIvecs(d.GroundTruthPath(), [][]int{{1, -1}}))
	gt, err := d.GroundTruth()
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, -1}}, gt)
}

func TestCSVLayout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "base.csv"), []byte("1,2\n3, 4\n5,6\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "learn.csv"), []byte("0.5,0.25\n"), 0o644))
	d, err := New(Settings{Name: "csv", Path: root, Scale: 1})
	require.NoError(t, err)
	require.NoError(t, d.Check())

	base, err := d.Base()
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}}, base)
	stream, err := d.Stream()
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}, {5, 6}}, stream)
	train, err := d.Train()
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.25}}, train)

	require.NoError(t, os.WriteFile(filepath.Join(root, "learn.csv"), []byte("x,1\n"), 0o644))
	_, err = d.Train()
	assert.Error(t, err)
}

func TestReadCSVLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,2\n3,4\n5,6\n"), 0o644))
	rows, err := readCSV[int](path, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}}, rows)
}

func TestSyntheticIsDeterministic(t *testing.T) {
	s := Settings{Name: "synthetic", Path: t.TempDir(), Scale: 1, Dimension: 8, Seed: 3}
	a, err := New(s)
	require.NoError(t, err)
	b, err := New(s)
	require.NoError(t, err)
	require.NoError(t, a.Check())

	sa, err := a.Stream()
	require.NoError(t, err)
	sb, err := b.Stream()
	require.NoError(t, err)
	assert.Len(t, sa, 2000)
	assert.Equal(t, sa, sb)

	base, err := a.Base()
	require.NoError(t, err)
	assert.Len(t, base, 1000)
	assert.Equal(t, sa[:1000], base)

	train, err := a.Train()
	require.NoError(t, err)
	assert.Len(t, train, 1000)
	assert.NotEqual(t, sa[0], train[0])

	dim, err := a.VectorDimension()
	require.NoError(t, err)
	assert.Equal(t, 8, dim)
	assert.Contains(t, a.GroundTruthPath(), "synthetic-d8-s3")
}
