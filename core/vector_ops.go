package core

import (
	"errors"
	"fmt"

	"github.com/viterin/vek/vek32"
)

// ErrDimensionMismatch is returned when two vector sets cannot be combined element-wise.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// NormalizeVector scales a single float32 slice to unit length in place.
// Zero vectors are left untouched.
func NormalizeVector(vec []float32) {
	if len(vec) == 0 {
		return
	}
	n := vek32.Norm(vec)
	if n == 0 {
		return
	}
	vek32.DivNumber_Inplace(vec, n)
}

// LerpVector linearly interpolates between v and target:
// (1-frac)*v + frac*target. The result is a new slice.
func LerpVector(v, target []float32, frac float64) ([]float32, error) {
	if len(v) != len(target) {
		return nil, fmt.Errorf("lerp: vector length %d vs target %d: %w", len(v), len(target), ErrDimensionMismatch)
	}
	switch frac {
	case 0:
		out := make([]float32, len(v))
		copy(out, v)
		return out, nil
	case 1:
		out := make([]float32, len(target))
		copy(out, target)
		return out, nil
	}
	out := vek32.MulNumber(v, float32(1-frac))
	vek32.Add_Inplace(out, vek32.MulNumber(target, float32(frac)))
	return out, nil
}

// Lerp interpolates every row of vecs toward the matching row of target.
// Both sets must have the same number of rows and the same row lengths.
func Lerp(vecs, target [][]float32, frac float64) ([][]float32, error) {
	if len(vecs) != len(target) {
		return nil, fmt.Errorf("lerp: %d rows vs %d target rows: %w", len(vecs), len(target), ErrDimensionMismatch)
	}
	out := make([][]float32, len(vecs))
	for i := range vecs {
		row, err := LerpVector(vecs[i], target[i], frac)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = row
	}
	return out, nil
}
