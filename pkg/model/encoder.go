package model

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// encoderLayer is one pre-norm Transformer block: the input is normalized
// before each sublayer and the residual adds the sublayer output back.
type encoderLayer struct {
	norm1, norm2 *LayerNorm
	attn         *multiHeadAttention
	ff1, ff2     *Linear
	drop         *dropout
}

func newEncoderLayer(name string, modelDim, ffDim, heads int, drop *dropout, rng *rand.Rand) *encoderLayer {
	return &encoderLayer{
		norm1: newLayerNorm(name+".norm1", modelDim),
		norm2: newLayerNorm(name+".norm2", modelDim),
		attn:  newMultiHeadAttention(name+".attn", modelDim, heads, rng),
		ff1:   newLinear(name+".ff1", GroupTrunk, modelDim, ffDim, rng),
		ff2:   newLinear(name+".ff2", GroupTrunk, ffDim, modelDim, rng),
		drop:  drop,
	}
}

func (e *encoderLayer) params() []*Param {
	var out []*Param
	out = append(out, e.norm1.params()...)
	out = append(out, e.attn.params()...)
	out = append(out, e.norm2.params()...)
	out = append(out, e.ff1.params()...)
	out = append(out, e.ff2.params()...)
	return out
}

func (e *encoderLayer) forward(x *mat.Dense, mask []bool, training bool) (*mat.Dense, backward) {
	n1, bn1 := e.norm1.forward(x)
	a, battn := e.attn.forward(n1, mask)
	a, bd1 := e.drop.forward(a, training)
	r1 := addDense(x, a)

	n2, bn2 := e.norm2.forward(r1)
	h, bf1 := e.ff1.forward(n2)
	h, brelu := relu(h)
	h, bd2 := e.drop.forward(h, training)
	f, bf2 := e.ff2.forward(h)
	f, bd3 := e.drop.forward(f, training)
	y := addDense(r1, f)

	return y, func(dy *mat.Dense) *mat.Dense {
		// y = r1 + ffn(norm2(r1)): r1 collects the residual path plus the
		// gradient routed back through the feed-forward branch.
		d := bd3(dy)
		d = bf2(d)
		d = bd2(d)
		d = brelu(d)
		d = bf1(d)
		dr1 := addDense(dy, bn2(d))

		da := bd1(dr1)
		dn1 := battn(da)
		return addDense(dr1, bn1(dn1))
	}
}
