package dataset

import (
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/levy"
	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/sde"
)

// Config holds all parameters for one dataset generation run.
type Config struct {
	System     string
	NumSamples int
	TrainCount int
	TestCount  int
	// TRange bounds the total horizon T; NRange bounds the sample count N.
	// dt is derived per sample as T/N.
	TRange sde.Range
	NRange [2]int
	// ParamRanges override the system's default sampling ranges when non-nil.
	ParamRanges []sde.Range
	Seed        int64
	Workers     int
	Sim         sde.Config
}

// DefaultConfig returns the generation settings used for the shipped datasets.
func DefaultConfig(system string) Config {
	return Config{
		System:     system,
		NumSamples: 4000,
		TrainCount: 3000,
		TestCount:  1000,
		TRange:     sde.Range{Min: 50, Max: 100},
		NRange:     [2]int{500, 1000},
		Seed:       0, // 0 = random
		Workers:    runtime.NumCPU(),
		Sim:        sde.DefaultConfig(),
	}
}

// ranges resolves the effective parameter ranges for the system.
func (c Config) ranges(sys sde.System) []sde.Range {
	if c.ParamRanges != nil {
		return c.ParamRanges
	}
	return sys.Ranges
}

// Validate fails fast on malformed configuration before any sample is drawn.
func (c Config) Validate() error {
	sys, err := sde.Get(c.System)
	if err != nil {
		return err
	}
	if c.NumSamples < 1 {
		return fmt.Errorf("dataset: num samples must be >= 1, got %d", c.NumSamples)
	}
	if c.TrainCount+c.TestCount > c.NumSamples {
		return fmt.Errorf("dataset: split %d+%d exceeds num samples %d",
			c.TrainCount, c.TestCount, c.NumSamples)
	}
	if !c.TRange.Valid() || c.TRange.Min <= 0 {
		return fmt.Errorf("dataset: invalid horizon range [%v, %v]", c.TRange.Min, c.TRange.Max)
	}
	if c.NRange[0] < 2 || c.NRange[1] < c.NRange[0] {
		return fmt.Errorf("dataset: invalid sample-count range [%d, %d]", c.NRange[0], c.NRange[1])
	}
	ranges := c.ranges(sys)
	if len(ranges) != sys.ParamCount() {
		return fmt.Errorf("dataset: %d parameter ranges for %d parameters", len(ranges), sys.ParamCount())
	}
	for i, r := range ranges {
		if !r.Valid() {
			return fmt.Errorf("dataset: invalid range for %s: [%v, %v]", sys.ParamNames[i], r.Min, r.Max)
		}
	}
	// The stability index must stay inside (0,2] over its whole range.
	if ai := sys.ParamIndex("alpha"); ai >= 0 {
		r := ranges[ai]
		if !levy.Valid(r.Min) || !levy.Valid(r.Max) {
			return fmt.Errorf("dataset: alpha range [%v, %v] outside (0,2]", r.Min, r.Max)
		}
	}
	return c.Sim.Validate()
}

// Build generates cfg.NumSamples trajectories. Sample i draws from a random
// stream seeded with Seed+i, so results are identical for any worker count and
// the generation order fully determines the train/test split.
func Build(cfg Config) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sys, err := sde.Get(cfg.System)
	if err != nil {
		return nil, err
	}
	ranges := cfg.ranges(sys)

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	samples := make([]Sample, cfg.NumSamples)
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < cfg.NumSamples; i++ {
		i := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed + int64(i)))
			s, err := buildOne(rng, sys, ranges, cfg)
			if err != nil {
				return fmt.Errorf("dataset: sample %d: %w", i, err)
			}
			samples[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Dataset{System: cfg.System, Samples: samples}, nil
}

// buildOne draws one (T, N, params) tuple and simulates its trajectory.
func buildOne(rng *rand.Rand, sys sde.System, ranges []sde.Range, cfg Config) (Sample, error) {
	t := cfg.TRange.Min + rng.Float64()*cfg.TRange.Width()
	n := cfg.NRange[0] + rng.Intn(cfg.NRange[1]-cfg.NRange[0]+1)
	dt := t / float64(n)

	params := make([]float64, len(ranges))
	for j, r := range ranges {
		params[j] = r.Min + rng.Float64()*r.Width()
	}

	traj, err := sys.Simulate(rng, params, n, dt, cfg.Sim)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Trajectory: traj, T: t, N: n, Params: params}, nil
}
