package sde

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/levy"
)

// DuffingParams parameterizes the stochastically forced Duffing oscillator.
type DuffingParams struct {
	Gamma   float64 // damping coefficient
	Epsilon float64 // noise amplitude
	Alpha   float64 // stability index of the driving noise, in (0,2]
}

// duffingX0 and duffingY0 are the fixed initial conditions of every run.
const (
	duffingX0 = 0.01
	duffingY0 = 0.01
)

// SimulateDuffing integrates the Duffing SDE for n post-discard steps of size
// dt and returns the x-coordinate series. The velocity channel is a nuisance
// variable and is discarded. If |x| or |y| ever exceeds the divergence
// threshold the run is aborted with ErrDiverged and no partial trajectory;
// a diverged run is not a physically meaningful sample.
func SimulateDuffing(rng *rand.Rand, p DuffingParams, n int, dt float64, cfg Config) ([]float64, error) {
	src := levy.NewFromRand(rng)
	discard := cfg.discardSteps(dt)
	scale := p.Epsilon * math.Pow(dt, 1/p.Alpha)

	traj := make([]float64, 0, n)
	x, y := duffingX0, duffingY0
	for i := 0; i < n+discard; i++ {
		// Fully explicit step: both coordinates advance from the previous values.
		nx := x + y*dt
		ny := y + (-p.Gamma*y+x-x*x*x)*dt + scale*src.Draw(p.Alpha)
		x, y = nx, ny

		if math.Abs(x) > cfg.DivergenceThreshold || math.Abs(y) > cfg.DivergenceThreshold {
			return nil, ErrDiverged
		}
		if i >= discard {
			traj = append(traj, x)
		}
	}
	return traj, nil
}

// SimulateDuffingRetry resamples fresh noise and retries on divergence, up to
// cfg.MaxRetries attempts. It returns the trajectory and the number of
// discarded divergent runs.
func SimulateDuffingRetry(rng *rand.Rand, p DuffingParams, n int, dt float64, cfg Config) ([]float64, int, error) {
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		traj, err := SimulateDuffing(rng, p, n, dt, cfg)
		if err == nil {
			return traj, attempt, nil
		}
	}
	return nil, cfg.MaxRetries, fmt.Errorf("%w after %d attempts (gamma=%.3g epsilon=%.3g alpha=%.3g dt=%.3g)",
		ErrRetriesExhausted, cfg.MaxRetries, p.Gamma, p.Epsilon, p.Alpha, dt)
}
