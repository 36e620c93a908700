package sde

import (
	"fmt"
	"math/rand"
	"sort"
)

// SimulateFunc runs one simulation with parameters in System.ParamNames order.
// Implementations own any divergence retry policy.
type SimulateFunc func(rng *rand.Rand, params []float64, n int, dt float64, cfg Config) ([]float64, error)

// System describes one SDE variant so that dataset generation and training
// stay variant-agnostic. The name is the explicit variant tag stored alongside
// every dataset file; nothing is ever inferred from column presence.
type System struct {
	Name       string
	ParamNames []string
	// Ranges are the default uniform sampling ranges, aligned with ParamNames.
	Ranges []Range
	// BaseLossWeights reflect prior per-parameter estimation difficulty,
	// aligned with ParamNames.
	BaseLossWeights []float64
	// Difficult names the parameters whose regression heads train slowly and
	// get a dedicated learning-rate group and late-training loss focus.
	Difficult []string
	Simulate  SimulateFunc
}

// ParamCount returns the number of target parameters.
func (s System) ParamCount() int { return len(s.ParamNames) }

// ParamIndex returns the position of a named parameter, or -1.
func (s System) ParamIndex(name string) int {
	for i, n := range s.ParamNames {
		if n == name {
			return i
		}
	}
	return -1
}

var registry = map[string]System{}

// Register adds a system variant to the registry.
func Register(s System) {
	registry[s.Name] = s
}

// Get returns a registered system by name.
func Get(name string) (System, error) {
	s, ok := registry[name]
	if !ok {
		return System{}, fmt.Errorf("sde: unknown system: %s (available: %v)", name, Names())
	}
	return s, nil
}

// Names returns all registered system names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(System{
		Name:            "geneswitch",
		ParamNames:      []string{"r", "k", "epsilon", "alpha"},
		Ranges:          []Range{{1, 10}, {5, 15}, {0.01, 0.1}, {1.1, 2.0}},
		BaseLossWeights: []float64{1, 1, 2, 2},
		Difficult:       []string{"epsilon", "alpha"},
		Simulate: func(rng *rand.Rand, params []float64, n int, dt float64, cfg Config) ([]float64, error) {
			if len(params) != 4 {
				return nil, fmt.Errorf("sde: geneswitch expects 4 parameters, got %d", len(params))
			}
			p := GeneSwitchParams{R: params[0], K: params[1], Epsilon: params[2], Alpha: params[3]}
			return SimulateGeneSwitch(rng, p, n, dt, cfg), nil
		},
	})

	Register(System{
		Name:            "duffing",
		ParamNames:      []string{"gamma", "epsilon", "alpha"},
		Ranges:          []Range{{0.1, 1.0}, {0.01, 0.5}, {1.1, 2.0}},
		BaseLossWeights: []float64{1, 2, 2},
		Difficult:       []string{"alpha"},
		Simulate: func(rng *rand.Rand, params []float64, n int, dt float64, cfg Config) ([]float64, error) {
			if len(params) != 3 {
				return nil, fmt.Errorf("sde: duffing expects 3 parameters, got %d", len(params))
			}
			p := DuffingParams{Gamma: params[0], Epsilon: params[1], Alpha: params[2]}
			traj, _, err := SimulateDuffingRetry(rng, p, n, dt, cfg)
			return traj, err
		},
	})
}
