// Package dataset builds, splits, and persists trajectory datasets for SDE
// parameter estimation. Samples are generated in index order from independent
// per-index random streams, so the generation-order train/test split is
// reproducible regardless of worker count.
package dataset

import (
	"fmt"
)

// Sample is one dataset row: a post-discard trajectory together with the
// horizon and parameters that generated it. Samples are never mutated after
// creation; the trajectory is owned exclusively by its record.
type Sample struct {
	Trajectory []float64
	T          float64 // total simulated horizon, in time units
	N          int     // sample count, len(Trajectory)
	Params     []float64
}

// Dataset is an ordered collection of samples for one system variant.
// The variant tag travels with the data; it is never inferred from columns.
type Dataset struct {
	System  string
	Samples []Sample
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Samples) }

// Split partitions the dataset by generation order: the first trainCount rows
// become the train set and the next testCount rows the test set. The order is
// never reshuffled; this matches pre-generated CSV files exactly.
func (d *Dataset) Split(trainCount, testCount int) (train, test *Dataset, err error) {
	if trainCount < 0 || testCount < 0 {
		return nil, nil, fmt.Errorf("dataset: negative split counts %d/%d", trainCount, testCount)
	}
	if trainCount+testCount > len(d.Samples) {
		return nil, nil, fmt.Errorf("dataset: split %d+%d exceeds %d samples",
			trainCount, testCount, len(d.Samples))
	}
	train = &Dataset{System: d.System, Samples: d.Samples[:trainCount]}
	test = &Dataset{System: d.System, Samples: d.Samples[trainCount : trainCount+testCount]}
	return train, test, nil
}
