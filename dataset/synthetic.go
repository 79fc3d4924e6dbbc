package dataset

import (
	"math/rand"
)

// generated caches the synthetic vectors so every load of a run sees the
// same data.
type generated struct {
	stream [][]float32
	train  [][]float32
}

// generate returns the synthetic stream, or the training set when train is
// set. Both depend only on Seed, Dimension and the size.
func (d *Dataset) generate(train bool) [][]float32 {
	if d.synth == nil {
		d.synth = &generated{
			stream: gaussian(rand.New(rand.NewSource(d.Seed)), d.StreamSize(), d.Dimension),
			train:  gaussian(rand.New(rand.NewSource(d.Seed+1)), d.BaseSize(), d.Dimension),
		}
	}
	if train {
		return d.synth.train
	}
	return d.synth.stream
}

func gaussian(rng *rand.Rand, n, dim int) [][]float32 {
	data := make([]float32, n*dim)
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = data[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return rows
}
