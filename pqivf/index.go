// Package pqivf is an inverted-file index with product-quantized residuals.
//
// Vectors are assigned to the nearest of nlist coarse centroids and only the
// PQ codes of their residuals are stored. Queries scan the nprobe closest
// lists with asymmetric distance tables.
package pqivf

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/patrikhermansson/dynbench/core"
	"github.com/rs/zerolog/log"
)

const (
	defaultNlist       = 100
	defaultSubquantize = 8
	defaultKMeansIters = 10
	defaultNprobe      = 1
)

// ErrNotTrained is returned when vectors are added before Train.
var ErrNotTrained = errors.New("pqivf: index is not trained")

// pqEntry is one stored vector: its id and packed PQ codes.
type pqEntry struct {
	ID    int
	Codes []uint8
}

// location finds an entry inside the inverted lists.
type location struct {
	list int
	pos  int
}

// Index is the IVF-PQ index.
type Index struct {
	core.ProcessMemory
	bits             int           // bits per PQ code, 8 or 4
	dimension        int           // dimension of the vectors
	coarseK          int           // number of coarse clusters
	coarseCentroids  [][]float32   // centroids for coarse quantization
	invertedLists    [][]pqEntry   // entries per coarse cluster
	numSubquantizers int           // number of subquantizers (splits per vector)
	codebooks        [][][]float32 // codebooks for each subquantizer
	pqK              int           // number of centroids per subquantizer
	kMeansIters      int           // number of k-means iterations
	locations        map[int]location
	rng              *rand.Rand
}

// New returns an index with 8-bit codes.
func New() *Index {
	return &Index{bits: 8}
}

// New4Bit returns an index with 4-bit codes, packed two per byte.
func New4Bit() *Index {
	return &Index{bits: 4}
}

// Init configures the index. Build parameters: "nlist" (coarse clusters),
// "M" (subquantizers, must divide the dimension) and "iters" (k-means
// iterations).
func (pq *Index) Init(dimension, maxCapacity int, build core.Params) error {
	nlist := build.Int("nlist", defaultNlist)
	m := build.Int("M", defaultSubquantize)
	iters := build.Int("iters", defaultKMeansIters)
	if nlist < 1 || m < 1 || iters < 1 {
		return fmt.Errorf("pqivf: nlist=%d, M=%d and iters=%d must be positive", nlist, m, iters)
	}
	if dimension%m != 0 {
		return fmt.Errorf("pqivf: dimension (%d) must be divisible by M (%d)", dimension, m)
	}
	bits := pq.bits
	if bits == 0 {
		bits = 8
	}
	*pq = Index{
		bits:             bits,
		dimension:        dimension,
		coarseK:          nlist,
		numSubquantizers: m,
		pqK:              1 << bits,
		kMeansIters:      iters,
		locations:        make(map[int]location, max(maxCapacity, 0)),
		rng:              rand.New(rand.NewSource(core.GetSeed())),
	}
	log.Debug().Msgf("IVF-PQ ready: dimension=%d nlist=%d M=%d bits=%d", dimension, nlist, m, bits)
	return nil
}

// HasTrain returns true: centroids and codebooks must be fitted first.
func (pq *Index) HasTrain() bool { return true }

// Trained reports whether Train has completed.
func (pq *Index) Trained() bool {
	return pq.codebooks != nil
}

// Len returns the number of stored vectors.
func (pq *Index) Len() int {
	return len(pq.locations)
}

// Train fits the coarse centroids on vecs and a codebook per subquantizer on
// their residuals. Stored entries are dropped.
func (pq *Index) Train(vecs [][]float32) error {
	if pq.rng == nil {
		return core.ErrNotInitialized
	}
	if len(vecs) == 0 {
		return fmt.Errorf("pqivf: no data to train on")
	}
	for i, v := range vecs {
		if len(v) != pq.dimension {
			return fmt.Errorf("training row %d has dimension %d, index has %d: %w",
				i, len(v), pq.dimension, core.ErrDimensionMismatch)
		}
	}
	if len(vecs) < pq.coarseK {
		log.Warn().Msgf("IVF-PQ: %d training vectors for %d lists, reducing nlist", len(vecs), pq.coarseK)
	}
	pq.coarseCentroids = kMeans(vecs, pq.coarseK, pq.kMeansIters, pq.rng)
	pq.invertedLists = make([][]pqEntry, len(pq.coarseCentroids))
	clear(pq.locations)

	// Split residuals per subquantizer.
	dataPerSub := make([][][]float32, pq.numSubquantizers)
	for _, v := range vecs {
		c, _ := pq.nearestCentroid(v)
		residual := vectorSub(v, pq.coarseCentroids[c])
		for i, sub := range splitVector(residual, pq.numSubquantizers) {
			dataPerSub[i] = append(dataPerSub[i], sub)
		}
	}
	codebooks := make([][][]float32, pq.numSubquantizers)
	for i := range codebooks {
		codebooks[i] = kMeans(dataPerSub[i], pq.pqK, pq.kMeansIters, pq.rng)
	}
	pq.codebooks = codebooks
	log.Debug().Msgf("IVF-PQ trained on %d vectors: %d lists, %d codes per subquantizer",
		len(vecs), len(pq.coarseCentroids), pq.pqK)
	return nil
}

// nearestCentroid finds the closest coarse centroid to the vector and returns its index and distance.
func (pq *Index) nearestCentroid(vector []float32) (int, float64) {
	best := -1
	bestDist := math.MaxFloat64
	for i, centroid := range pq.coarseCentroids {
		d := core.SquaredEuclidean(vector, centroid)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best, bestDist
}

// nearestCentroids returns the n closest coarse clusters.
func (pq *Index) nearestCentroids(vector []float32, n int) []int {
	top := core.NewTopK(n)
	for i, centroid := range pq.coarseCentroids {
		top.Push(i, core.SquaredEuclidean(vector, centroid))
	}
	return core.NeighborIDs(top.Sorted())
}

// RawAdd encodes vecs[start:start+count] with their positions as ids.
// Ids already present are moved to their new list and codes.
func (pq *Index) RawAdd(vecs [][]float32, start, count int) error {
	if pq.rng == nil {
		return core.ErrNotInitialized
	}
	if !pq.Trained() {
		return ErrNotTrained
	}
	s, e := core.Span(len(vecs), start, count)
	for id := s; id < e; id++ {
		v := vecs[id]
		if len(v) != pq.dimension {
			return fmt.Errorf("vector dimension %d does not match index dimension %d: %w",
				len(v), pq.dimension, core.ErrDimensionMismatch)
		}
		pq.remove(id)
		cluster, _ := pq.nearestCentroid(v)
		entry := pqEntry{ID: id, Codes: pq.encodeVector(v, cluster)}
		pq.locations[id] = location{list: cluster, pos: len(pq.invertedLists[cluster])}
		pq.invertedLists[cluster] = append(pq.invertedLists[cluster], entry)
	}
	return nil
}

// RawUpdate re-encodes the changed rows.
func (pq *Index) RawUpdate(vecs [][]float32, start, count int) error {
	return pq.RawAdd(vecs, start, count)
}

// remove drops id from its list by swapping in the list's last entry.
func (pq *Index) remove(id int) {
	loc, ok := pq.locations[id]
	if !ok {
		return
	}
	list := pq.invertedLists[loc.list]
	last := len(list) - 1
	if loc.pos != last {
		list[loc.pos] = list[last]
		pq.locations[list[loc.pos].ID] = loc
	}
	pq.invertedLists[loc.list] = list[:last]
	delete(pq.locations, id)
}

// encodeVector computes the packed PQ codes of a vector given its coarse cluster.
func (pq *Index) encodeVector(vector []float32, cluster int) []uint8 {
	residual := vectorSub(vector, pq.coarseCentroids[cluster])
	codes := make([]uint8, pq.codeBytes())
	for i, sub := range splitVector(residual, pq.numSubquantizers) {
		best := 0
		bestDist := math.MaxFloat64
		for j, cent := range pq.codebooks[i] {
			d := core.SquaredEuclidean(sub, cent)
			if d < bestDist {
				bestDist = d
				best = j
			}
		}
		pq.setCode(codes, i, best)
	}
	return codes
}

func (pq *Index) codeBytes() int {
	if pq.bits == 4 {
		return (pq.numSubquantizers + 1) / 2
	}
	return pq.numSubquantizers
}

func (pq *Index) setCode(codes []uint8, i, code int) {
	if pq.bits == 4 {
		codes[i/2] |= uint8(code&0xF) << (4 * (i % 2))
		return
	}
	codes[i] = uint8(code)
}

func (pq *Index) code(codes []uint8, i int) int {
	if pq.bits == 4 {
		return int(codes[i/2]>>(4*(i%2))) & 0xF
	}
	return int(codes[i])
}

// distanceTable holds the squared distance of every query sub-vector to every
// codebook entry, relative to one coarse centroid.
func (pq *Index) distanceTable(query []float32, cluster int) [][]float64 {
	residual := vectorSub(query, pq.coarseCentroids[cluster])
	table := make([][]float64, pq.numSubquantizers)
	for i, sub := range splitVector(residual, pq.numSubquantizers) {
		row := make([]float64, len(pq.codebooks[i]))
		for j, cent := range pq.codebooks[i] {
			row[j] = core.SquaredEuclidean(sub, cent)
		}
		table[i] = row
	}
	return table
}

// Query scans the "nprobe" closest lists (default 1) of every row.
func (pq *Index) Query(vecs [][]float32, topk int, query core.Params) core.QueryResult {
	if pq.rng == nil {
		return core.QueryResult{Err: core.ErrNotInitialized}
	}
	if !pq.Trained() {
		return core.QueryResult{Err: ErrNotTrained}
	}
	nprobe := max(query.Int("nprobe", defaultNprobe), 1)
	ids := make([][]int, len(vecs))
	for i, q := range vecs {
		if len(q) != pq.dimension {
			return core.QueryResult{Err: fmt.Errorf("query dimension %d does not match index dimension %d: %w",
				len(q), pq.dimension, core.ErrDimensionMismatch)}
		}
		top := core.NewTopK(topk)
		for _, cluster := range pq.nearestCentroids(q, nprobe) {
			entries := pq.invertedLists[cluster]
			if len(entries) == 0 {
				continue
			}
			table := pq.distanceTable(q, cluster)
			for _, entry := range entries {
				var d float64
				for s := range table {
					d += table[s][pq.code(entry.Codes, s)]
				}
				top.Push(entry.ID, d)
			}
		}
		ids[i] = core.NeighborIDs(top.Sorted())
	}
	return core.QueryResult{IDs: ids}
}

// vectorSub computes the element-wise subtraction of two vectors.
func vectorSub(a, b []float32) []float32 {
	res := make([]float32, len(a))
	for i := range a {
		res[i] = a[i] - b[i]
	}
	return res
}

// splitVector splits a vector into numParts equal parts.
func splitVector(vec []float32, numParts int) [][]float32 {
	subDim := len(vec) / numParts
	parts := make([][]float32, numParts)
	for i := range parts {
		parts[i] = vec[i*subDim : (i+1)*subDim]
	}
	return parts
}

// kMeans clusters data into at most k centroids. Seeding starts from a random
// point and then repeatedly takes the point farthest from every centroid so
// far. Empty clusters are reseeded with a random point.
func kMeans(data [][]float32, k int, iterations int, rng *rand.Rand) [][]float32 {
	if len(data) < k {
		k = len(data)
	}
	dim := len(data[0])
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, append([]float32(nil), data[rng.Intn(len(data))]...))
	nearest := make([]float64, len(data))
	for p := range nearest {
		nearest[p] = math.MaxFloat64
	}
	for len(centroids) < k {
		last := centroids[len(centroids)-1]
		far, farDist := 0, -1.0
		for p, point := range data {
			if d := core.SquaredEuclidean(point, last); d < nearest[p] {
				nearest[p] = d
			}
			if nearest[p] > farDist {
				far, farDist = p, nearest[p]
			}
		}
		centroids = append(centroids, append([]float32(nil), data[far]...))
	}
	assign := make([]int, len(data))
	for iter := 0; iter < iterations; iter++ {
		for p, point := range data {
			best := 0
			bestDist := math.MaxFloat64
			for i, cent := range centroids {
				if d := core.SquaredEuclidean(point, cent); d < bestDist {
					bestDist = d
					best = i
				}
			}
			assign[p] = best
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for p, point := range data {
			c := assign[p]
			counts[c]++
			for j, v := range point {
				sums[c][j] += float64(v)
			}
		}
		for i := range centroids {
			if counts[i] == 0 {
				centroids[i] = append([]float32(nil), data[rng.Intn(len(data))]...)
				continue
			}
			for j := range centroids[i] {
				centroids[i][j] = float32(sums[i][j] / float64(counts[i]))
			}
		}
	}
	return centroids
}

var _ core.Algorithm = (*Index)(nil)
