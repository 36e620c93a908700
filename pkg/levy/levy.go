// Package levy generates symmetric alpha-stable noise increments.
//
// A standard symmetric alpha-stable variate S(alpha, 0, 1, 0) generalizes the
// Gaussian (alpha=2) and Cauchy (alpha=1) distributions. For alpha < 2 the
// increments are heavy-tailed with infinite variance, which is why SDE
// integration driven by them needs the dt^(1/alpha) step scaling instead of
// the Gaussian sqrt(dt).
package levy

import (
	"math"
	"math/rand"
)

// MinAlpha and MaxAlpha bound the stability index accepted by Valid.
const (
	MinAlpha = 0.0 // exclusive
	MaxAlpha = 2.0 // inclusive
)

// Valid reports whether alpha is a usable stability index.
func Valid(alpha float64) bool {
	return alpha > MinAlpha && alpha <= MaxAlpha && !math.IsNaN(alpha)
}

// Source draws standard symmetric alpha-stable variates (skew 0, scale 1,
// location 0) from a private random stream.
type Source struct {
	rng *rand.Rand
}

// New returns a Source seeded with seed. Seed 0 picks a random seed.
func New(seed int64) *Source {
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

// NewFromRand returns a Source drawing from an existing random stream.
// The caller keeps ownership of rng; draws interleave with any other use.
func NewFromRand(rng *rand.Rand) *Source {
	return &Source{rng: rng}
}

// Draw returns one variate using the Chambers-Mallows-Stuck transform.
// alpha must satisfy Valid; Draw does not re-check it.
func (s *Source) Draw(alpha float64) float64 {
	// V uniform on (-pi/2, pi/2), W standard exponential.
	v := (s.rng.Float64() - 0.5) * math.Pi
	w := s.rng.ExpFloat64()

	if alpha == 1 {
		// Symmetric stable with alpha=1 is standard Cauchy.
		return math.Tan(v)
	}

	t := math.Sin(alpha*v) / math.Pow(math.Cos(v), 1/alpha)
	c := math.Pow(math.Cos((1-alpha)*v)/w, (1-alpha)/alpha)
	return t * c
}

// Fill fills dst with independent draws at the given stability index.
func (s *Source) Fill(dst []float64, alpha float64) {
	for i := range dst {
		dst[i] = s.Draw(alpha)
	}
}

// Uniform returns a uniform draw in [0,1) from the same stream, so callers
// can derive auxiliary quantities (initial states) without a second rng.
func (s *Source) Uniform() float64 {
	return s.rng.Float64()
}
