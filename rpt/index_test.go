package rpt_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/patrikhermansson/dynbench/core"
	"github.com/patrikhermansson/dynbench/rpt"
)

const (
	defaultLeafSize = 10
	defaultTrees    = 8
)

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = make([]float32, dim)
		for j := range vecs[i] {
			vecs[i][j] = rng.Float32()
		}
	}
	return vecs
}

func newForest(t *testing.T, idx *rpt.Index) *rpt.Index {
	t.Helper()
	t.Setenv("DYNBENCH_SEED", "3")
	if err := idx.Init(6, 1000, core.Params{"n_trees": defaultTrees, "leaf_size": defaultLeafSize}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return idx
}

func TestRPTIndex_BasicOperations(t *testing.T) {
	idx := newForest(t, rpt.New())

	vecs := randomVectors(3, 6, 1)
	if err := idx.RawAdd(vecs, 0, 3); err != nil {
		t.Fatalf("RawAdd failed: %v", err)
	}
	if idx.Len() != 3 {
		t.Errorf("expected count 3, got %d", idx.Len())
	}

	// Re-adding an id replaces it.
	vecs[1] = []float32{6, 5, 4, 3, 2, 1}
	if err := idx.RawUpdate(vecs, 1, 1); err != nil {
		t.Fatalf("RawUpdate failed: %v", err)
	}
	if idx.Len() != 3 {
		t.Errorf("expected count 3 after update, got %d", idx.Len())
	}
	res := idx.Query([][]float32{{6, 5, 4, 3, 2, 1}}, 1, nil)
	if res.Failed() || res.IDs[0][0] != 1 {
		t.Errorf("expected id 1 nearest to its updated vector, got %v (%v)", res.IDs, res.Err)
	}

	// Wrong dimension.
	if err := idx.RawAdd([][]float32{{1, 2, 3}}, 0, 1); !errors.Is(err, core.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestRPTIndex_SelfQuery(t *testing.T) {
	for name, ctor := range map[string]func() *rpt.Index{"forest": rpt.New, "tree": rpt.NewTree} {
		t.Run(name, func(t *testing.T) {
			idx := newForest(t, ctor())
			vecs := randomVectors(300, 6, 2)
			if err := idx.RawAdd(vecs, 0, len(vecs)); err != nil {
				t.Fatalf("RawAdd failed: %v", err)
			}
			// A point always lands in its own leaf, so it is its own nearest neighbor.
			for i := 0; i < len(vecs); i += 37 {
				res := idx.Query([][]float32{vecs[i]}, 1, nil)
				if res.Failed() {
					t.Fatalf("Query failed: %v", res.Err)
				}
				if res.IDs[0][0] != i {
					t.Errorf("expected id %d for its own vector, got %v", i, res.IDs[0])
				}
			}
		})
	}
}

func TestRPTIndex_SearchKBoundsCandidates(t *testing.T) {
	idx := newForest(t, rpt.New())
	vecs := randomVectors(200, 6, 4)
	if err := idx.RawAdd(vecs, 0, len(vecs)); err != nil {
		t.Fatalf("RawAdd failed: %v", err)
	}
	// With search_k covering every point the forest is exact.
	query := randomVectors(1, 6, 5)
	got := idx.Query(query, 5, core.Params{"search_k": 1000})
	if got.Failed() {
		t.Fatalf("Query failed: %v", got.Err)
	}
	top := core.NewTopK(5)
	for id, v := range vecs {
		top.Push(id, core.SquaredEuclidean(query[0], v))
	}
	want := core.NeighborIDs(top.Sorted())
	for i := range want {
		if got.IDs[0][i] != want[i] {
			t.Fatalf("expected exact neighbors %v, got %v", want, got.IDs[0])
		}
	}
}

func TestRPTIndex_FewerPointsThanTopK(t *testing.T) {
	idx := newForest(t, rpt.NewTree())
	if err := idx.RawAdd([][]float32{{1, 1, 1, 1, 1, 1}}, 0, 1); err != nil {
		t.Fatalf("RawAdd failed: %v", err)
	}
	res := idx.Query([][]float32{{1, 1, 1, 1, 1, 1}}, 5, nil)
	row := res.Collapse(1, 5)[0]
	if row[0] != 0 || row[1] != core.Sentinel || row[4] != core.Sentinel {
		t.Errorf("expected [0 -1 -1 -1 -1], got %v", row)
	}
}

func TestRPTIndex_ErrorOnInvalidParams(t *testing.T) {
	if err := rpt.New().Init(6, 10, core.Params{"n_trees": 0}); err == nil {
		t.Error("expected error for zero trees")
	}
	if err := rpt.NewTree().Init(6, 10, core.Params{"n_trees": 0}); err != nil {
		t.Errorf("single tree ignores n_trees, got %v", err)
	}
	if err := rpt.New().RawAdd(randomVectors(1, 6, 6), 0, 1); !errors.Is(err, core.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}
