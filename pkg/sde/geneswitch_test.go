package sde

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateGeneSwitch_ExactLength(t *testing.T) {
	cfg := DefaultConfig()
	p := GeneSwitchParams{R: 5, K: 10, Epsilon: 0.05, Alpha: 1.6}

	cases := []struct {
		n  int
		dt float64
	}{
		{750, 0.1},
		{500, 0.05},
		{100, 0.2},
		{1, 0.1},
	}
	for _, tc := range cases {
		rng := rand.New(rand.NewSource(1))
		traj := SimulateGeneSwitch(rng, p, tc.n, tc.dt, cfg)
		require.Len(t, traj, tc.n, "n=%d dt=%v", tc.n, tc.dt)
		for i, x := range traj {
			require.False(t, math.IsNaN(x) || math.IsInf(x, 0), "sample %d not finite", i)
		}
	}
}

// driftFixedPoint bisects the noise-free drift g(x)*k - r*x + 1 for its root.
func driftFixedPoint(t *testing.T, p GeneSwitchParams) float64 {
	t.Helper()
	lo, hi := 0.0, 1.0
	require.Positive(t, GeneSwitchDrift(lo, p))
	require.Negative(t, GeneSwitchDrift(hi, p))
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		if GeneSwitchDrift(mid, p) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

func TestSimulateGeneSwitch_MeanNearFixedPoint(t *testing.T) {
	// End-to-end scenario: r=5, k=10, epsilon=0.05, alpha=1.6, T=75, N=750.
	// The empirical mean over repeated draws should settle near the
	// deterministic equilibrium of the drift term.
	cfg := DefaultConfig()
	p := GeneSwitchParams{R: 5, K: 10, Epsilon: 0.05, Alpha: 1.6}
	const (
		n    = 750
		dt   = 75.0 / 750.0
		runs = 30
	)

	star := driftFixedPoint(t, p)

	var sum float64
	var count int
	for r := 0; r < runs; r++ {
		rng := rand.New(rand.NewSource(int64(1000 + r)))
		traj := SimulateGeneSwitch(rng, p, n, dt, cfg)
		require.Len(t, traj, n)
		for _, x := range traj {
			require.False(t, math.IsNaN(x) || math.IsInf(x, 0))
			sum += x
			count++
		}
	}
	mean := sum / float64(count)
	assert.InDelta(t, star, mean, 0.2,
		"empirical mean %.4f should sit near drift fixed point %.4f", mean, star)
}

func TestSimulateGeneSwitch_EpsilonScaling(t *testing.T) {
	// With identical noise draws and a start at the drift fixed point, the
	// deviation from the noise-free path scales approximately linearly in
	// epsilon in the linearized regime.
	cfg := DefaultConfig()
	cfg.DiscardHorizon = 0
	base := GeneSwitchParams{R: 5, K: 10, Epsilon: 0.005, Alpha: 2.0}
	doubled := base
	doubled.Epsilon = 2 * base.Epsilon
	zero := base
	zero.Epsilon = 0

	x0 := driftFixedPoint(t, base)
	const (
		n    = 2000
		dt   = 0.01
		seed = 99
	)

	run := func(p GeneSwitchParams) []float64 {
		rng := rand.New(rand.NewSource(seed))
		return SimulateGeneSwitchFrom(rng, p, n, dt, x0, cfg)
	}
	ref := run(zero)
	lo := run(base)
	hi := run(doubled)

	dev := func(traj []float64) float64 {
		var ss float64
		for i := range traj {
			d := traj[i] - ref[i]
			ss += d * d
		}
		return math.Sqrt(ss / float64(len(traj)))
	}
	devLo, devHi := dev(lo), dev(hi)
	require.Positive(t, devLo)
	ratio := devHi / devLo
	assert.InDelta(t, 2.0, ratio, 0.4,
		"doubling epsilon should roughly double the noise-driven deviation, got ratio %.3f", ratio)
}

func TestSimulateGeneSwitch_DiscardShortensNothing(t *testing.T) {
	// A zero discard horizon must not change the requested sample count.
	cfg := DefaultConfig()
	cfg.DiscardHorizon = 0
	rng := rand.New(rand.NewSource(3))
	traj := SimulateGeneSwitch(rng, GeneSwitchParams{R: 2, K: 8, Epsilon: 0.02, Alpha: 1.8}, 64, 0.1, cfg)
	assert.Len(t, traj, 64)
}
