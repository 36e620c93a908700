package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Pooling mode names accepted by Config.Pooling.
const (
	PoolMean      = "mean"
	PoolAttention = "attention"
)

// pooler collapses a sequence matrix to a single row, ignoring padded
// positions entirely.
type pooler interface {
	pool(x *mat.Dense, mask []bool) (*mat.Dense, backward)
	params() []*Param
}

// meanPooler averages the valid rows.
type meanPooler struct{}

func (meanPooler) params() []*Param { return nil }

func (meanPooler) pool(x *mat.Dense, mask []bool) (*mat.Dense, backward) {
	seqLen, dim := x.Dims()
	var count float64
	for _, m := range mask {
		if m {
			count++
		}
	}
	out := mat.NewDense(1, dim, nil)
	for i := 0; i < seqLen; i++ {
		if !mask[i] {
			continue
		}
		for j := 0; j < dim; j++ {
			out.Set(0, j, out.At(0, j)+x.At(i, j)/count)
		}
	}
	return out, func(dy *mat.Dense) *mat.Dense {
		dx := mat.NewDense(seqLen, dim, nil)
		for i := 0; i < seqLen; i++ {
			if !mask[i] {
				continue
			}
			for j := 0; j < dim; j++ {
				dx.Set(i, j, dy.At(0, j)/count)
			}
		}
		return dx
	}
}

// attentionPooler scores each position with a small tanh MLP, normalizes the
// scores over valid positions, and returns the weighted sum of rows.
type attentionPooler struct {
	score1, score2 *Linear
}

func newAttentionPooler(dim, hidden int, rng *rand.Rand) *attentionPooler {
	return &attentionPooler{
		score1: newLinear("pool.score1", GroupTrunk, dim, hidden, rng),
		score2: newLinear("pool.score2", GroupTrunk, hidden, 1, rng),
	}
}

func (p *attentionPooler) params() []*Param {
	return append(p.score1.params(), p.score2.params()...)
}

func (p *attentionPooler) pool(x *mat.Dense, mask []bool) (*mat.Dense, backward) {
	seqLen, dim := x.Dims()

	z, b1 := p.score1.forward(x)
	zt, bt := tanhAct(z)
	s, b2 := p.score2.forward(zt)

	// Masked softmax over the score column.
	w := mat.NewDense(seqLen, 1, nil)
	maxv := 0.0
	first := true
	for i := 0; i < seqLen; i++ {
		if mask[i] && (first || s.At(i, 0) > maxv) {
			maxv = s.At(i, 0)
			first = false
		}
	}
	var sum float64
	for i := 0; i < seqLen; i++ {
		if !mask[i] {
			continue
		}
		e := math.Exp(s.At(i, 0) - maxv)
		w.Set(i, 0, e)
		sum += e
	}
	for i := 0; i < seqLen; i++ {
		w.Set(i, 0, w.At(i, 0)/sum)
	}

	out := mat.NewDense(1, dim, nil)
	out.Mul(w.T(), x)

	return out, func(dy *mat.Dense) *mat.Dense {
		// out = sum_i w_i * x_i, so x gets w_i*dy directly and the weights get
		// dw_i = x_i . dy, pushed back through the masked softmax and scorer.
		dx := mat.NewDense(seqLen, dim, nil)
		dx.Mul(w, dy)

		dw := mat.NewDense(seqLen, 1, nil)
		dw.Mul(x, dy.T())

		var dot float64
		for i := 0; i < seqLen; i++ {
			dot += w.At(i, 0) * dw.At(i, 0)
		}
		ds := mat.NewDense(seqLen, 1, nil)
		for i := 0; i < seqLen; i++ {
			if mask[i] {
				ds.Set(i, 0, w.At(i, 0)*(dw.At(i, 0)-dot))
			}
		}

		dzt := b2(ds)
		dz := bt(dzt)
		dx.Add(dx, b1(dz))
		return dx
	}
}
