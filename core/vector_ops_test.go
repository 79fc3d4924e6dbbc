package core

import (
	"errors"
	"math"
	"testing"
)

func closeTo(a, b []float32, eps float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > eps {
			return false
		}
	}
	return true
}

func TestNormalizeVector(t *testing.T) {
	third := float32(1.0 / 3.0)
	tests := map[string]struct {
		in, want []float32
	}{
		"pythagorean": {[]float32{3, 0, 4}, []float32{0.6, 0, 0.8}},
		"axis":        {[]float32{0, -8}, []float32{0, -1}},
		"thirds":      {[]float32{1, 2, 2}, []float32{third, 2 * third, 2 * third}},
		"zero":        {[]float32{0, 0, 0}, []float32{0, 0, 0}},
		"empty":       {[]float32{}, []float32{}},
	}
	for name, tt := range tests {
		NormalizeVector(tt.in)
		if !closeTo(tt.in, tt.want, 1e-5) {
			t.Errorf("%s: NormalizeVector = %v; want %v", name, tt.in, tt.want)
		}
	}
}

func TestLerpEndpoints(t *testing.T) {
	v := [][]float32{{1, 2, 3}, {4, 5, 6}}
	target := [][]float32{{7, 8, 9}, {0, 0, 0}}

	same, err := Lerp(v, target, 0)
	if err != nil {
		t.Fatalf("Lerp(0) returned error: %v", err)
	}
	full, err := Lerp(v, target, 1)
	if err != nil {
		t.Fatalf("Lerp(1) returned error: %v", err)
	}
	for i := range v {
		if !closeTo(same[i], v[i], 0) {
			t.Errorf("Lerp(0) row %d = %v; want %v", i, same[i], v[i])
		}
		if !closeTo(full[i], target[i], 0) {
			t.Errorf("Lerp(1) row %d = %v; want %v", i, full[i], target[i])
		}
	}
	same[0][0] = 100
	if v[0][0] == 100 {
		t.Errorf("Lerp(0) result aliases its input")
	}
}

func TestLerpQuarter(t *testing.T) {
	got, err := LerpVector([]float32{0, 2, -4}, []float32{2, 2, 4}, 0.25)
	if err != nil {
		t.Fatalf("LerpVector returned error: %v", err)
	}
	if want := []float32{0.5, 2, -2}; !closeTo(got, want, 1e-6) {
		t.Errorf("LerpVector = %v; want %v", got, want)
	}
}

func TestLerpShapeMismatch(t *testing.T) {
	if _, err := Lerp([][]float32{{1}}, [][]float32{{1}, {2}}, 0.5); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Lerp with row mismatch: err = %v; want ErrDimensionMismatch", err)
	}
	if _, err := Lerp([][]float32{{1, 2}}, [][]float32{{1}}, 0.5); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Lerp with column mismatch: err = %v; want ErrDimensionMismatch", err)
	}
}
