// Package hnsw is a hierarchical navigable small world graph index whose ids
// are row positions of the streamed vector set.
package hnsw

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/patrikhermansson/dynbench/core"
	"github.com/rs/zerolog/log"
)

const (
	defaultM              = 16
	defaultEfConstruction = 200
	defaultEf             = 10
	// maxLevelCap is the upper bound for a node's level.
	maxLevelCap = 32
)

var (
	// ErrCapacity is returned when an id does not fit the capacity given to Init.
	ErrCapacity = errors.New("hnsw: capacity exceeded")
	// ErrTooFewResults is returned by queries that reach fewer than topk nodes.
	ErrTooFewResults = errors.New("hnsw: too few results, ef or M may be too small")
)

// candidate represents a potential neighbor with its distance.
type candidate struct {
	node *node   // reference to the candidate node
	dist float64 // distance to the query vector
}

// candidateMinHeap implements a min-heap for candidates based on their distance.
type candidateMinHeap []candidate

func (h candidateMinHeap) Len() int { return len(h) }
func (h candidateMinHeap) Less(i, j int) bool {
	if h[i].dist == h[j].dist {
		return h[i].node.id < h[j].node.id
	}
	return h[i].dist < h[j].dist
}
func (h candidateMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateMinHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateMinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// candidateMaxHeap implements a max-heap for candidates based on their distance.
type candidateMaxHeap []candidate

func (h candidateMaxHeap) Len() int { return len(h) }
func (h candidateMaxHeap) Less(i, j int) bool {
	if h[i].dist == h[j].dist {
		return h[i].node.id > h[j].node.id
	}
	return h[i].dist > h[j].dist
}
func (h candidateMaxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateMaxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateMaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// node is a vector in the graph with its outgoing and incoming links per level.
type node struct {
	id      int
	vector  []float32
	level   int
	links   [][]*node // links[L] are the neighbors at level L
	reverse [][]*node // reverse[L] are the nodes linking here at level L
}

func newNode(id int, vector []float32, level int) *node {
	return &node{
		id:      id,
		vector:  vector,
		level:   level,
		links:   make([][]*node, level+1),
		reverse: make([][]*node, level+1),
	}
}

func (n *node) linksAt(level int) []*node {
	if level < len(n.links) {
		return n.links[level]
	}
	return nil
}

// Index is the HNSW graph.
type Index struct {
	core.ProcessMemory
	dimension      int
	capacity       int
	m              int
	efConstruction int
	distance       core.DistanceFunc
	nodes          []*node // by id, nil where nothing was added
	count          int
	entry          *node
	maxLevel       int
	rng            *rand.Rand
}

// New returns an uninitialized graph.
func New() *Index {
	return &Index{maxLevel: -1}
}

// Init prepares an empty graph. Build parameters: "M" (links per node,
// doubled on level 0), "ef_construction" and "metric".
func (h *Index) Init(dimension, maxCapacity int, build core.Params) error {
	m := build.Int("M", defaultM)
	if m < 2 {
		return fmt.Errorf("hnsw: M must be at least 2, got %d", m)
	}
	efc := build.Int("ef_construction", defaultEfConstruction)
	if efc < 1 {
		return fmt.Errorf("hnsw: ef_construction must be positive, got %d", efc)
	}
	name := build.Str("metric", "squared_euclidean")
	dist, ok := core.Distances[name]
	if !ok {
		return fmt.Errorf("hnsw: unknown metric %q", name)
	}
	log.Debug().Msgf("Creating HNSW graph with dimension=%d, capacity=%d, M=%d, ef_construction=%d, distance=%s",
		dimension, maxCapacity, m, efc, name)
	*h = Index{
		dimension:      dimension,
		capacity:       maxCapacity,
		m:              m,
		efConstruction: efc,
		distance:       dist,
		maxLevel:       -1,
		rng:            rand.New(rand.NewSource(core.GetSeed())),
	}
	return nil
}

// HasTrain returns false.
func (h *Index) HasTrain() bool { return false }

// Train is a no-op.
func (h *Index) Train([][]float32) error { return nil }

// Len returns the number of nodes in the graph.
func (h *Index) Len() int {
	return h.count
}

// randomLevel computes a random level for a new node based on an exponential distribution.
func (h *Index) randomLevel() int {
	r := 1 - h.rng.Float64() // (0, 1]
	level := int(-math.Log(r) / math.Log(float64(h.m)))
	if level > maxLevelCap {
		level = maxLevelCap
	}
	return level
}

// maxLinks returns the link budget at a level.
func (h *Index) maxLinks(level int) int {
	if level == 0 {
		return 2 * h.m
	}
	return h.m
}

// RawAdd inserts vecs[start:start+count] with their positions as ids. Ids
// that are already present are re-inserted with the new vector.
func (h *Index) RawAdd(vecs [][]float32, start, count int) error {
	if h.rng == nil {
		return core.ErrNotInitialized
	}
	s, e := core.Span(len(vecs), start, count)
	for id := s; id < e; id++ {
		if len(vecs[id]) != h.dimension {
			return fmt.Errorf("vector dimension %d does not match index dimension %d: %w",
				len(vecs[id]), h.dimension, core.ErrDimensionMismatch)
		}
		if id >= h.capacity {
			return fmt.Errorf("id %d, capacity %d: %w", id, h.capacity, ErrCapacity)
		}
		vector := make([]float32, h.dimension)
		copy(vector, vecs[id])
		if id < len(h.nodes) && h.nodes[id] != nil {
			h.reinsert(h.nodes[id], vector)
			continue
		}
		if id >= len(h.nodes) {
			h.nodes = append(h.nodes, make([]*node, id+1-len(h.nodes))...)
		}
		n := newNode(id, vector, h.randomLevel())
		h.nodes[id] = n
		h.count++
		h.insertNode(n)
	}
	return nil
}

// RawUpdate re-inserts the changed rows.
func (h *Index) RawUpdate(vecs [][]float32, start, count int) error {
	return h.RawAdd(vecs, start, count)
}

// reinsert unlinks n, replaces its vector and links it again at its old level.
func (h *Index) reinsert(n *node, vector []float32) {
	h.removeNodeLinks(n)
	n.vector = vector
	if h.entry == n {
		// Pick the highest remaining node as the entry point.
		h.entry, h.maxLevel = nil, -1
		for _, other := range h.nodes {
			if other != nil && other != n && other.level > h.maxLevel {
				h.entry, h.maxLevel = other, other.level
			}
		}
	}
	h.insertNode(n)
}

// greedy walks one level towards the query until no neighbor is closer.
func (h *Index) greedy(query []float32, current *node, level int) *node {
	best := h.distance(query, current.vector)
	for changed := true; changed; {
		changed = false
		for _, neighbor := range current.linksAt(level) {
			if d := h.distance(query, neighbor.vector); d < best {
				best = d
				current = neighbor
				changed = true
			}
		}
	}
	return current
}

// insertNode links n into the graph.
func (h *Index) insertNode(n *node) {
	if h.entry == nil {
		h.entry = n
		h.maxLevel = n.level
		return
	}
	current := h.entry
	// Navigate the graph from the top level down to the node's level.
	for L := h.maxLevel; L > n.level; L-- {
		current = h.greedy(n.vector, current, L)
	}
	for L := min(n.level, h.maxLevel); L >= 0; L-- {
		candList := h.searchLayer(n.vector, current, L, h.efConstruction)
		for _, cand := range selectM(candList, h.m) {
			link(n, cand.node, L)
			link(cand.node, n, L)
			if len(cand.node.links[L]) > h.maxLinks(L) {
				h.trimNeighborLinks(cand.node, L)
			}
		}
		if len(candList) > 0 {
			current = candList[0].node
		}
	}
	if n.level > h.maxLevel {
		h.entry = n
		h.maxLevel = n.level
	}
}

// link adds a directed edge from a to b at a level.
func link(a, b *node, level int) {
	a.links[level] = append(a.links[level], b)
	b.reverse[level] = append(b.reverse[level], a)
}

// selectM chooses the top M candidates based on distance.
func selectM(candidates []candidate, M int) []candidate {
	if len(candidates) > M {
		return candidates[:M]
	}
	return candidates
}

// trimNeighborLinks reduces a node's neighbors at a level to the closest ones.
func (h *Index) trimNeighborLinks(n *node, level int) {
	current := n.links[level]
	sort.Slice(current, func(i, j int) bool {
		di := h.distance(n.vector, current[i].vector)
		dj := h.distance(n.vector, current[j].vector)
		if di == dj {
			return current[i].id < current[j].id
		}
		return di < dj
	})
	keep := h.maxLinks(level)
	for _, r := range current[keep:] {
		r.reverse[level] = removeFromSlice(r.reverse[level], n)
	}
	n.links[level] = current[:keep:keep]
}

// removeFromSlice removes a target node from a slice of nodes.
func removeFromSlice(slice []*node, target *node) []*node {
	newSlice := slice[:0]
	for _, n := range slice {
		if n != target {
			newSlice = append(newSlice, n)
		}
	}
	return newSlice
}

// removeNodeLinks removes all links of a node from the graph. Every node that
// pointed at n gets a replacement link found from n's former neighbors.
func (h *Index) removeNodeLinks(n *node) {
	sources, seeds := n.reverse, n.links
	n.reverse = make([][]*node, len(sources))
	n.links = make([][]*node, len(seeds))
	for level, targets := range seeds {
		for _, dst := range targets {
			dst.reverse[level] = removeFromSlice(dst.reverse[level], n)
		}
	}
	for level, srcs := range sources {
		for _, src := range srcs {
			src.links[level] = removeFromSlice(src.links[level], n)
		}
	}
	for level, srcs := range sources {
		for _, src := range srcs {
			h.repair(src, level, seeds[level], n)
		}
	}
}

// repair refills src's links at a level after removed was unlinked. The
// search starts at one of removed's former neighbors, or at src itself.
func (h *Index) repair(src *node, level int, seeds []*node, removed *node) {
	room := h.maxLinks(level) - len(src.links[level])
	if room <= 0 {
		return
	}
	entry := src
	for _, s := range seeds {
		if s != src && s != removed {
			entry = s
			break
		}
	}
	var fresh []candidate
	for _, c := range h.searchLayer(src.vector, entry, level, h.efConstruction) {
		if c.node != src && c.node != removed && !linked(src, c.node, level) {
			fresh = append(fresh, c)
		}
	}
	for _, c := range selectM(fresh, room) {
		link(src, c.node, level)
	}
}

// linked reports whether a has an edge to b at a level.
func linked(a, b *node, level int) bool {
	for _, n := range a.links[level] {
		if n == b {
			return true
		}
	}
	return false
}

// searchLayer performs a beam search of width ef at a given level.
func (h *Index) searchLayer(query []float32, entrypoint *node, level int, ef int) []candidate {
	visited := map[int]bool{entrypoint.id: true}
	d0 := h.distance(query, entrypoint.vector)
	candQueue := candidateMinHeap{{entrypoint, d0}}
	resultQueue := candidateMaxHeap{{entrypoint, d0}}
	// Explore candidates while there are promising ones.
	for candQueue.Len() > 0 {
		current := candQueue[0]
		if current.dist > resultQueue[0].dist {
			break
		}
		heap.Pop(&candQueue)
		for _, neighbor := range current.node.linksAt(level) {
			if visited[neighbor.id] {
				continue
			}
			visited[neighbor.id] = true
			d := h.distance(query, neighbor.vector)
			if resultQueue.Len() < ef || d < resultQueue[0].dist {
				newCand := candidate{neighbor, d}
				heap.Push(&candQueue, newCand)
				heap.Push(&resultQueue, newCand)
				if resultQueue.Len() > ef {
					heap.Pop(&resultQueue)
				}
			}
		}
	}
	// Pop worst first and fill from the back.
	results := make([]candidate, resultQueue.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(&resultQueue).(candidate)
	}
	return results
}

// search returns up to k neighbors of a single query.
func (h *Index) search(query []float32, k, ef int) []candidate {
	current := h.entry
	for L := h.maxLevel; L > 0; L-- {
		current = h.greedy(query, current, L)
	}
	candidates := h.searchLayer(query, current, 0, max(ef, k))
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// Query searches every row with the query parameter "ef" (default 10, never
// below topk). The whole batch fails when the graph is empty or any row
// reaches fewer than topk nodes.
func (h *Index) Query(vecs [][]float32, topk int, query core.Params) core.QueryResult {
	if h.rng == nil {
		return core.QueryResult{Err: core.ErrNotInitialized}
	}
	if h.entry == nil {
		return core.QueryResult{Err: fmt.Errorf("index is empty: %w", ErrTooFewResults)}
	}
	ef := query.Int("ef", defaultEf)
	ids := make([][]int, len(vecs))
	for i, q := range vecs {
		if len(q) != h.dimension {
			return core.QueryResult{Err: fmt.Errorf("query dimension %d does not match index dimension %d: %w",
				len(q), h.dimension, core.ErrDimensionMismatch)}
		}
		found := h.search(q, topk, ef)
		if len(found) < topk {
			return core.QueryResult{Err: fmt.Errorf("query %d found %d of %d: %w", i, len(found), topk, ErrTooFewResults)}
		}
		row := make([]int, len(found))
		for j, c := range found {
			row[j] = c.node.id
		}
		ids[i] = row
	}
	return core.QueryResult{IDs: ids}
}

var _ core.Algorithm = (*Index)(nil)
