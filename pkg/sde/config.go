// Package sde simulates stochastic differential equations driven by symmetric
// alpha-stable noise using explicit Euler-Maruyama integration.
//
// Two systems are built in: a genetic toggle-switch with a saturating
// regulation nonlinearity, and a Duffing oscillator whose cubic term can blow
// up under large noise draws and therefore needs divergence detection with
// caller-driven retries. Both discard an initial transient so that sampled
// trajectories reflect the statistical regime, not the initial condition.
package sde

import (
	"errors"
	"fmt"
	"math"
)

// ErrDiverged reports that a simulation left the admissible state region.
// It is non-fatal: callers resample noise and retry.
var ErrDiverged = errors.New("sde: trajectory diverged")

// ErrRetriesExhausted reports that the bounded retry budget ran out without a
// single non-divergent run.
var ErrRetriesExhausted = errors.New("sde: divergence retries exhausted")

// Config holds the simulation constants shared by all systems.
type Config struct {
	// DiscardHorizon is the initial stretch of simulated time, in time units,
	// dropped from every trajectory before samples are recorded.
	DiscardHorizon float64
	// DivergenceThreshold bounds |x| and |y| for systems that can blow up.
	DivergenceThreshold float64
	// MaxRetries caps resample-and-retry attempts after divergence.
	MaxRetries int
}

// DefaultConfig returns the simulation constants used for dataset generation.
func DefaultConfig() Config {
	return Config{
		DiscardHorizon:      50,
		DivergenceThreshold: 1e4,
		MaxRetries:          200,
	}
}

// Validate checks the config before any simulation starts.
func (c Config) Validate() error {
	if c.DiscardHorizon < 0 || math.IsNaN(c.DiscardHorizon) {
		return fmt.Errorf("sde: discard horizon must be >= 0, got %v", c.DiscardHorizon)
	}
	if c.DivergenceThreshold <= 0 {
		return fmt.Errorf("sde: divergence threshold must be > 0, got %v", c.DivergenceThreshold)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("sde: max retries must be >= 1, got %d", c.MaxRetries)
	}
	return nil
}

// discardSteps converts the discard horizon to a step count at the given dt.
func (c Config) discardSteps(dt float64) int {
	if dt <= 0 {
		return 0
	}
	return int(c.DiscardHorizon / dt)
}

// Range is a closed interval used for uniform parameter sampling.
type Range struct {
	Min float64
	Max float64
}

// Valid reports whether the range is ordered and finite.
func (r Range) Valid() bool {
	return r.Min <= r.Max && !math.IsInf(r.Min, 0) && !math.IsInf(r.Max, 0) &&
		!math.IsNaN(r.Min) && !math.IsNaN(r.Max)
}

// Width returns Max - Min.
func (r Range) Width() float64 { return r.Max - r.Min }
