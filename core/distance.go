package core

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// Distances maps the "metric" build parameter to a distance function.
var Distances = map[string]DistanceFunc{
	"euclidean":         Euclidean,
	"squared_euclidean": SquaredEuclidean,
	"manhattan":         Manhattan,
	"cosine":            CosineDistance,
	"angular":           AngularDistance,
}

// DistanceFunc computes the distance between two vectors of equal length.
type DistanceFunc func(a, b []float32) float64

func checkPair(a, b []float32) {
	if len(a) == 0 || len(b) == 0 {
		panic("vectors must not be empty")
	}
	if len(a) != len(b) {
		panic("vectors must have the same length")
	}
}

// Euclidean computes the Euclidean (L2) distance between two vectors.
func Euclidean(a, b []float32) float64 {
	checkPair(a, b)
	return float64(vek32.Distance(a, b))
}

// SquaredEuclidean computes the squared Euclidean distance between two vectors.
// It skips the square root, which keeps rankings identical to Euclidean.
func SquaredEuclidean(a, b []float32) float64 {
	checkPair(a, b)
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// Manhattan computes the Manhattan (L1) distance between two vectors.
func Manhattan(a, b []float32) float64 {
	checkPair(a, b)
	return float64(vek32.ManhattanDistance(a, b))
}

// CosineDistance computes the cosine distance between two vectors.
// Zero vectors are treated as orthogonal to everything.
func CosineDistance(a, b []float32) float64 {
	checkPair(a, b)
	return 1 - cosineSimilarity(a, b)
}

// AngularDistance computes the angle in radians between two vectors.
func AngularDistance(a, b []float32) float64 {
	checkPair(a, b)
	sim := cosineSimilarity(a, b)
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return math.Acos(sim)
}

// cosineSimilarity is 0 when either vector is zero.
func cosineSimilarity(a, b []float32) float64 {
	na := float64(vek32.Dot(a, a))
	nb := float64(vek32.Dot(b, b))
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b)) / math.Sqrt(na*nb)
}
