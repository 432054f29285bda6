package data

import (
	"fmt"
	"math/rand/v2"
)

// SyntheticExpression builds a reproducible samples x features table of
// values in [0, 1], the range the binary cross-entropy objective expects.
// Useful for demos and smoke tests in place of a real expression matrix.
func SyntheticExpression(samples, features int, seed uint64) *Table {
	rng := rand.New(rand.NewPCG(seed, seed+1))

	index := make([]string, samples)
	for i := range index {
		index[i] = fmt.Sprintf("sample_%d", i+1)
	}
	columns := make([]string, features)
	for j := range columns {
		columns[j] = fmt.Sprintf("gene_%d", j+1)
	}

	values := make([]float64, samples*features)
	for i := range values {
		values[i] = rng.Float64()
	}

	tbl, err := NewTable(index, columns, values)
	if err != nil {
		panic("synthetic expression: " + err.Error())
	}
	return tbl
}

// SyntheticLabels builds a one-hot label table row-aligned with a
// SyntheticExpression table of the same sample count.
func SyntheticLabels(samples, labelDim int, seed uint64) *Table {
	rng := rand.New(rand.NewPCG(seed, seed+1))

	index := make([]string, samples)
	for i := range index {
		index[i] = fmt.Sprintf("sample_%d", i+1)
	}
	columns := make([]string, labelDim)
	for j := range columns {
		columns[j] = fmt.Sprintf("label_%d", j+1)
	}

	values := make([]float64, samples*labelDim)
	for i := 0; i < samples; i++ {
		values[i*labelDim+rng.IntN(labelDim)] = 1.0
	}

	tbl, err := NewTable(index, columns, values)
	if err != nil {
		panic("synthetic labels: " + err.Error())
	}
	return tbl
}
