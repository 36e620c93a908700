package levy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraw_GaussianLimit(t *testing.T) {
	// S(2,0,1,0) is N(0,2): mean 0, variance 2.
	src := New(42)
	const n = 200000
	var sum, sumSq float64
	for i := 0; i < n; i++ {
		x := src.Draw(2.0)
		require.False(t, math.IsNaN(x) || math.IsInf(x, 0), "draw %d not finite", i)
		sum += x
		sumSq += x * x
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	assert.InDelta(t, 0.0, mean, 0.02, "alpha=2 draws should be centered")
	assert.InDelta(t, 2.0, variance, 0.05, "alpha=2 draws should have variance 2")
}

func TestDraw_FiniteAcrossAlphas(t *testing.T) {
	src := New(7)
	for _, alpha := range []float64{0.6, 1.0, 1.3, 1.6, 1.9, 2.0} {
		for i := 0; i < 20000; i++ {
			x := src.Draw(alpha)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				t.Fatalf("alpha=%.1f produced non-finite draw at i=%d", alpha, i)
			}
		}
	}
}

func TestDraw_HeavyTails(t *testing.T) {
	// Lower alpha means heavier tails: extreme draws should be far more common
	// at alpha=1.2 than at alpha=2.
	count := func(alpha float64, seed int64) int {
		src := New(seed)
		extremes := 0
		for i := 0; i < 50000; i++ {
			if math.Abs(src.Draw(alpha)) > 10 {
				extremes++
			}
		}
		return extremes
	}
	heavy := count(1.2, 11)
	light := count(2.0, 11)
	if heavy <= light*5 {
		t.Errorf("expected many more extreme draws at alpha=1.2 (%d) than alpha=2 (%d)", heavy, light)
	}
}

func TestSource_Deterministic(t *testing.T) {
	a := New(123)
	b := New(123)
	for i := 0; i < 1000; i++ {
		if a.Draw(1.6) != b.Draw(1.6) {
			t.Fatal("same seed should reproduce the same stream")
		}
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(0.5))
	assert.True(t, Valid(2.0))
	assert.False(t, Valid(0))
	assert.False(t, Valid(2.1))
	assert.False(t, Valid(math.NaN()))
}

func TestFill(t *testing.T) {
	src := New(5)
	buf := make([]float64, 64)
	src.Fill(buf, 1.5)
	for i, x := range buf {
		require.False(t, math.IsNaN(x), "index %d", i)
	}
}
