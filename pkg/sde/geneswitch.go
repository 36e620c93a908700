package sde

import (
	"math"
	"math/rand"

	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/levy"
)

// GeneSwitchParams parameterizes the genetic toggle-switch system.
type GeneSwitchParams struct {
	R       float64 // linear degradation rate
	K       float64 // regulation strength
	Epsilon float64 // noise amplitude
	Alpha   float64 // stability index of the driving noise, in (0,2]
}

// regulation is the fixed saturating nonlinearity modeling cooperative gene
// regulation. It is bounded, so the gene-switch drift cannot blow up and the
// simulator never needs a divergence check.
func regulation(x float64) float64 {
	x2 := x * x
	x4 := x2 * x2
	x6 := x4 * x2
	return (2*x2 + 50*x4) / (25 + 29*x2 + 52*x4 + 4*x6)
}

// GeneSwitchDrift returns the deterministic drift g(x)*k - r*x + 1.
// Exposed so callers can locate the noise-free fixed point.
func GeneSwitchDrift(x float64, p GeneSwitchParams) float64 {
	return regulation(x)*p.K - p.R*x + 1
}

// SimulateGeneSwitch integrates the gene-switch SDE for n post-discard steps
// of size dt, starting from a uniform random state in [0,1). The returned
// trajectory always has exactly n samples.
func SimulateGeneSwitch(rng *rand.Rand, p GeneSwitchParams, n int, dt float64, cfg Config) []float64 {
	x0 := rng.Float64()
	return SimulateGeneSwitchFrom(rng, p, n, dt, x0, cfg)
}

// SimulateGeneSwitchFrom is SimulateGeneSwitch with an explicit initial state.
func SimulateGeneSwitchFrom(rng *rand.Rand, p GeneSwitchParams, n int, dt float64, x0 float64, cfg Config) []float64 {
	src := levy.NewFromRand(rng)
	discard := cfg.discardSteps(dt)

	// Stable increments do not scale linearly with the step size the way
	// Gaussian increments do; dt^(1/alpha) keeps the noise-to-signal ratio
	// consistent across discretizations.
	scale := p.Epsilon * math.Pow(dt, 1/p.Alpha)

	traj := make([]float64, 0, n)
	x := x0
	for i := 0; i < n+discard; i++ {
		x += GeneSwitchDrift(x, p)*dt + scale*src.Draw(p.Alpha)
		if i >= discard {
			traj = append(traj, x)
		}
	}
	return traj
}
