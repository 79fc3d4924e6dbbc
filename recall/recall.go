// Package recall scores returned neighbor ids against ground truth.
package recall

import (
	"errors"
	"fmt"

	"github.com/patrikhermansson/dynbench/core"
)

// ErrShape is returned when the id and ground-truth matrices cannot be compared.
var ErrShape = errors.New("recall: incompatible shapes")

// Point is the recall at one cutoff r, one count per query row. Scored is
// the number of rows whose ground truth holds a real id; the others were
// never captured and count zero.
type Point struct {
	R      int   `yaml:"r"`
	Counts []int `yaml:"counts"`
	Scored int   `yaml:"scored"`
}

// Mean returns the average fraction of the r true neighbors that were found
// over the scored rows, or over every row when Scored is unset.
func (p Point) Mean() float64 {
	rows := p.Scored
	if rows == 0 {
		rows = len(p.Counts)
	}
	if rows == 0 || p.R == 0 {
		return 0
	}
	total := 0
	for _, c := range p.Counts {
		total += c
	}
	return float64(total) / float64(rows*p.R)
}

// AtR counts, per row, the distinct ids anywhere in the returned row that
// also appear among the first r ground-truth ids. The returned rows are not
// truncated to r, so a neighbor found at rank r+5 still counts. Sentinel ids
// never match.
func AtR(ids, gt [][]int, r int) ([]int, error) {
	if err := checkShape(ids, gt, r); err != nil {
		return nil, err
	}
	counts := make([]int, len(ids))
	truth := make(map[int]struct{}, r)
	for i, row := range ids {
		clear(truth)
		for _, id := range gt[i][:r] {
			if id != core.Sentinel {
				truth[id] = struct{}{}
			}
		}
		n := 0
		for _, id := range row {
			if _, ok := truth[id]; ok {
				n++
				// distinct ids only
				delete(truth, id)
			}
		}
		counts[i] = n
	}
	return counts, nil
}

func checkShape(ids, gt [][]int, r int) error {
	if len(ids) != len(gt) {
		return fmt.Errorf("%d result rows vs %d ground-truth rows: %w", len(ids), len(gt), ErrShape)
	}
	if r <= 0 {
		return fmt.Errorf("r=%d must be positive: %w", r, ErrShape)
	}
	if len(ids) == 0 {
		return nil
	}
	cols, gtCols := width(ids), width(gt)
	if cols < 0 || gtCols < 0 {
		return fmt.Errorf("ragged rows: %w", ErrShape)
	}
	switch {
	case r > cols:
		return fmt.Errorf("r=%d exceeds %d result columns: %w", r, cols, ErrShape)
	case r > gtCols:
		return fmt.Errorf("r=%d exceeds %d ground-truth columns: %w", r, gtCols, ErrShape)
	case cols < gtCols:
		return fmt.Errorf("%d result columns narrower than %d ground-truth columns: %w", cols, gtCols, ErrShape)
	}
	return nil
}

// width returns the common row length, or -1 for ragged matrices.
func width(m [][]int) int {
	w := len(m[0])
	for _, row := range m[1:] {
		if len(row) != w {
			return -1
		}
	}
	return w
}

// Step returns the distance between consecutive cutoffs of a curve.
func Step(topk int) int {
	if topk < 20 {
		return 1
	}
	return 20
}

// Curve evaluates AtR for r = topk, topk-Step(topk), ... while r > 0.
func Curve(ids, gt [][]int, topk int) ([]Point, error) {
	var points []Point
	for r := topk; r > 0; r -= Step(topk) {
		counts, err := AtR(ids, gt, r)
		if err != nil {
			return nil, err
		}
		points = append(points, Point{R: r, Counts: counts, Scored: scored(gt, r)})
	}
	return points, nil
}

// scored counts the ground-truth rows with a real id among the first r.
func scored(gt [][]int, r int) int {
	n := 0
	for _, row := range gt {
		for _, id := range row[:r] {
			if id != core.Sentinel {
				n++
				break
			}
		}
	}
	return n
}
