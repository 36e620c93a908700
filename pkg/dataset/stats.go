package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Statistics holds per-parameter normalization moments computed once over a
// fixed dataset. They go stale if the dataset changes: recompute per source,
// never reuse across distinct datasets.
type Statistics struct {
	Mean []float64
	Std  []float64
	Min  []float64
	Max  []float64
}

// ComputeStatistics computes per-parameter mean/std/min/max over d.
func ComputeStatistics(d *Dataset) (Statistics, error) {
	if d.Len() == 0 {
		return Statistics{}, fmt.Errorf("dataset: cannot compute statistics of an empty dataset")
	}
	p := len(d.Samples[0].Params)
	cols := make([][]float64, p)
	for j := range cols {
		cols[j] = make([]float64, 0, d.Len())
	}
	for i, s := range d.Samples {
		if len(s.Params) != p {
			return Statistics{}, fmt.Errorf("dataset: sample %d has %d parameters, expected %d", i, len(s.Params), p)
		}
		for j, v := range s.Params {
			cols[j] = append(cols[j], v)
		}
	}

	st := Statistics{
		Mean: make([]float64, p),
		Std:  make([]float64, p),
		Min:  make([]float64, p),
		Max:  make([]float64, p),
	}
	for j, col := range cols {
		st.Mean[j] = stat.Mean(col, nil)
		st.Std[j] = stat.StdDev(col, nil)
		if st.Std[j] == 0 {
			st.Std[j] = 1 // constant column, avoid division by zero
		}
		st.Min[j] = floats.Min(col)
		st.Max[j] = floats.Max(col)
	}
	return st, nil
}

// ParamCount returns the number of parameters the statistics cover.
func (s Statistics) ParamCount() int { return len(s.Mean) }

// Normalize maps raw parameters to zero-mean unit-variance units.
func (s Statistics) Normalize(params []float64) []float64 {
	out := make([]float64, len(params))
	for j, v := range params {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

// Denormalize maps normalized predictions back to raw parameter units.
func (s Statistics) Denormalize(normed []float64) []float64 {
	out := make([]float64, len(normed))
	for j, v := range normed {
		out[j] = v*s.Std[j] + s.Mean[j]
	}
	return out
}
