// Package rpt indexes vectors with random projection trees. A single tree
// answers queries by descending to one region, a forest searches many trees
// best-first the way Annoy does.
package rpt

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/patrikhermansson/dynbench/core"
	"github.com/rs/zerolog/log"
	"github.com/viterin/vek/vek32"
)

const (
	defaultTrees       = 10
	defaultLeafSize    = 32
	defaultProjections = 3
)

// treeNode represents a node in the random projection tree.
// It holds the projection, threshold, and pointers to left/right children.
// If isLeaf is true, the node holds a list of point ids.
type treeNode struct {
	isLeaf     bool      // true if this node is a leaf
	points     []int     // ids of points in the leaf
	projection []float32 // projection vector used for splitting at this node
	threshold  float64   // split threshold (median value)
	left       *treeNode // left child node
	right      *treeNode // right child node
}

// Index is a forest of random projection trees over positional ids. Every
// mutation rebuilds the forest from scratch.
type Index struct {
	core.ProcessMemory
	single      bool
	dimension   int
	points      [][]float32 // by id, nil where nothing was added
	count       int
	trees       []*treeNode
	numTrees    int
	leafSize    int
	projections int
	distance    core.DistanceFunc
	rng         *rand.Rand
}

// New returns a forest. The number of trees comes from the "n_trees" build
// parameter.
func New() *Index {
	return &Index{}
}

// NewTree returns a single-tree index; "n_trees" is ignored.
func NewTree() *Index {
	return &Index{single: true}
}

// Init prepares an empty forest. Build parameters: "n_trees", "leaf_size",
// "projections" (candidate splits tried per node) and "metric".
func (r *Index) Init(dimension, maxCapacity int, build core.Params) error {
	trees := build.Int("n_trees", defaultTrees)
	if r.single {
		trees = 1
	}
	leaf := build.Int("leaf_size", defaultLeafSize)
	projections := build.Int("projections", defaultProjections)
	if trees < 1 || leaf < 1 || projections < 1 {
		return fmt.Errorf("rpt: n_trees=%d, leaf_size=%d and projections=%d must be positive", trees, leaf, projections)
	}
	name := build.Str("metric", "squared_euclidean")
	dist, ok := core.Distances[name]
	if !ok {
		return fmt.Errorf("rpt: unknown metric %q", name)
	}
	*r = Index{
		single:      r.single,
		dimension:   dimension,
		points:      make([][]float32, 0, max(maxCapacity, 0)),
		numTrees:    trees,
		leafSize:    leaf,
		projections: projections,
		distance:    dist,
		rng:         rand.New(rand.NewSource(core.GetSeed())),
	}
	log.Debug().Msgf("RPT forest ready: dimension=%d trees=%d leaf_size=%d", dimension, trees, leaf)
	return nil
}

// HasTrain returns false.
func (r *Index) HasTrain() bool { return false }

// Train is a no-op.
func (r *Index) Train([][]float32) error { return nil }

// Len returns the number of indexed points.
func (r *Index) Len() int {
	return r.count
}

// RawAdd stores vecs[start:start+count] under their positions and rebuilds
// the forest.
func (r *Index) RawAdd(vecs [][]float32, start, count int) error {
	if r.rng == nil {
		return core.ErrNotInitialized
	}
	s, e := core.Span(len(vecs), start, count)
	for id := s; id < e; id++ {
		if len(vecs[id]) != r.dimension {
			return fmt.Errorf("vector dimension %d does not match index dimension %d: %w",
				len(vecs[id]), r.dimension, core.ErrDimensionMismatch)
		}
		if id >= len(r.points) {
			r.points = append(r.points, make([][]float32, id+1-len(r.points))...)
		}
		if r.points[id] == nil {
			r.count++
		}
		r.points[id] = append([]float32(nil), vecs[id]...)
	}
	r.build()
	return nil
}

// RawUpdate replaces the changed rows and rebuilds the forest.
func (r *Index) RawUpdate(vecs [][]float32, start, count int) error {
	return r.RawAdd(vecs, start, count)
}

// build constructs every tree from all stored points.
func (r *Index) build() {
	ids := make([]int, 0, r.count)
	for id, p := range r.points {
		if p != nil {
			ids = append(ids, id)
		}
	}
	r.trees = r.trees[:0]
	for t := 0; t < r.numTrees; t++ {
		r.trees = append(r.trees, r.buildTree(append([]int(nil), ids...)))
	}
}

// buildTree splits ids recursively along the best of several random projections.
func (r *Index) buildTree(ids []int) *treeNode {
	// If the number of points is small enough, create a leaf node.
	if len(ids) <= r.leafSize {
		return &treeNode{isLeaf: true, points: ids}
	}

	type split struct {
		proj      []float32 // random projection vector
		threshold float64   // median threshold along projection
		leftIDs   []int     // point ids going to left child
		rightIDs  []int     // point ids going to right child
		imbalance int       // difference in count between left and right sets
	}
	var best *split

	// Try multiple random projections to find a good split.
	for c := 0; c < r.projections; c++ {
		proj := r.randomDirection()

		type pair struct {
			id  int
			dot float64
		}
		pairs := make([]pair, len(ids))
		for i, id := range ids {
			pairs[i] = pair{id, dot(r.points[id], proj)}
		}
		sort.Slice(pairs, func(i, j int) bool {
			return pairs[i].dot < pairs[j].dot
		})
		mid := len(pairs) / 2

		// Jitter the median by a fraction of the spread around a random point.
		x := r.points[ids[r.rng.Intn(len(ids))]]
		var maxDist float64
		for _, id := range ids {
			if d := core.SquaredEuclidean(x, r.points[id]); d > maxDist {
				maxDist = d
			}
		}
		maxDist = math.Sqrt(maxDist)
		jitter := (r.rng.Float64()*2 - 1) * 6 * maxDist / math.Sqrt(float64(r.dimension))
		threshold := pairs[mid].dot + jitter

		var leftIDs, rightIDs []int
		for _, p := range pairs {
			if p.dot < threshold {
				leftIDs = append(leftIDs, p.id)
			} else {
				rightIDs = append(rightIDs, p.id)
			}
		}
		// Fallback: if one side is empty, split at the median.
		if len(leftIDs) == 0 || len(rightIDs) == 0 {
			leftIDs, rightIDs = leftIDs[:0], rightIDs[:0]
			for i, p := range pairs {
				if i < mid {
					leftIDs = append(leftIDs, p.id)
				} else {
					rightIDs = append(rightIDs, p.id)
				}
			}
			threshold = (pairs[mid-1].dot + pairs[mid].dot) / 2
		}
		cand := split{
			proj:      proj,
			threshold: threshold,
			leftIDs:   leftIDs,
			rightIDs:  rightIDs,
			imbalance: abs(len(leftIDs) - len(rightIDs)),
		}
		if best == nil || cand.imbalance < best.imbalance {
			best = &cand
		}
	}

	return &treeNode{
		projection: best.proj,
		threshold:  best.threshold,
		left:       r.buildTree(best.leftIDs),
		right:      r.buildTree(best.rightIDs),
	}
}

// randomDirection returns a random unit vector.
func (r *Index) randomDirection() []float32 {
	proj := make([]float32, r.dimension)
	for i := range proj {
		proj[i] = r.rng.Float32()*2 - 1
	}
	core.NormalizeVector(proj)
	return proj
}

func dot(a, b []float32) float64 {
	return float64(vek32.Dot(a, b))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// probe is a subtree waiting in the best-first queue. Its priority is the
// smallest signed margin on the path from the root: negative once the path
// crossed to the far side of a split.
type probe struct {
	node     *treeNode
	priority float64
}

type probeQueue []probe

func (q probeQueue) Len() int            { return len(q) }
func (q probeQueue) Less(i, j int) bool  { return q[i].priority > q[j].priority }
func (q probeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *probeQueue) Push(x interface{}) { *q = append(*q, x.(probe)) }
func (q *probeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// candidates collects at least searchK point ids, visiting leaves of all
// trees in order of decreasing margin.
func (r *Index) candidates(query []float32, searchK int) []int {
	q := make(probeQueue, 0, len(r.trees))
	for _, t := range r.trees {
		q = append(q, probe{node: t, priority: math.Inf(1)})
	}
	heap.Init(&q)
	seen := make(map[int]struct{}, searchK)
	var ids []int
	for q.Len() > 0 && len(ids) < searchK {
		p := heap.Pop(&q).(probe)
		if p.node.isLeaf {
			for _, id := range p.node.points {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
			continue
		}
		margin := dot(query, p.node.projection) - p.node.threshold
		heap.Push(&q, probe{node: p.node.right, priority: math.Min(p.priority, margin)})
		heap.Push(&q, probe{node: p.node.left, priority: math.Min(p.priority, -margin)})
	}
	return ids
}

// Query searches every row. The query parameter "search_k" bounds the
// number of candidates inspected and defaults to n_trees * topk; rows are
// shorter than topk when fewer candidates are found.
func (r *Index) Query(vecs [][]float32, topk int, query core.Params) core.QueryResult {
	if r.rng == nil {
		return core.QueryResult{Err: core.ErrNotInitialized}
	}
	searchK := query.Int("search_k", -1)
	if searchK <= 0 {
		searchK = r.numTrees * topk
	}
	ids := make([][]int, len(vecs))
	for i, q := range vecs {
		if len(q) != r.dimension {
			return core.QueryResult{Err: fmt.Errorf("query dimension %d does not match index dimension %d: %w",
				len(q), r.dimension, core.ErrDimensionMismatch)}
		}
		top := core.NewTopK(topk)
		for _, id := range r.candidates(q, searchK) {
			top.Push(id, r.distance(q, r.points[id]))
		}
		ids[i] = core.NeighborIDs(top.Sorted())
	}
	return core.QueryResult{IDs: ids}
}

var _ core.Algorithm = (*Index)(nil)
