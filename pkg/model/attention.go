package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// multiHeadAttention is scaled dot-product self-attention over the rows of a
// sequence matrix. Padded key positions are removed from every query's
// softmax by masking their scores before normalization.
type multiHeadAttention struct {
	heads    int
	modelDim int
	headDim  int

	wq, wk, wv, wo *Linear
}

func newMultiHeadAttention(name string, modelDim, heads int, rng *rand.Rand) *multiHeadAttention {
	return &multiHeadAttention{
		heads:    heads,
		modelDim: modelDim,
		headDim:  modelDim / heads,
		wq:       newLinear(name+".wq", GroupTrunk, modelDim, modelDim, rng),
		wk:       newLinear(name+".wk", GroupTrunk, modelDim, modelDim, rng),
		wv:       newLinear(name+".wv", GroupTrunk, modelDim, modelDim, rng),
		wo:       newLinear(name+".wo", GroupTrunk, modelDim, modelDim, rng),
	}
}

func (a *multiHeadAttention) params() []*Param {
	var out []*Param
	out = append(out, a.wq.params()...)
	out = append(out, a.wk.params()...)
	out = append(out, a.wv.params()...)
	out = append(out, a.wo.params()...)
	return out
}

type headCache struct {
	att        *mat.Dense // L x L softmax weights
	qh, kh, vh *mat.Dense // L x headDim slices
}

func (a *multiHeadAttention) forward(x *mat.Dense, mask []bool) (*mat.Dense, backward) {
	seqLen, _ := x.Dims()

	q, bq := a.wq.forward(x)
	k, bk := a.wk.forward(x)
	v, bv := a.wv.forward(x)

	concat := mat.NewDense(seqLen, a.modelDim, nil)
	caches := make([]headCache, a.heads)
	scale := 1 / math.Sqrt(float64(a.headDim))

	for h := 0; h < a.heads; h++ {
		c0, c1 := h*a.headDim, (h+1)*a.headDim
		qh := q.Slice(0, seqLen, c0, c1).(*mat.Dense)
		kh := k.Slice(0, seqLen, c0, c1).(*mat.Dense)
		vh := v.Slice(0, seqLen, c0, c1).(*mat.Dense)

		scores := mat.NewDense(seqLen, seqLen, nil)
		scores.Mul(qh, kh.T())
		scores.Scale(scale, scores)
		for i := 0; i < seqLen; i++ {
			for j := 0; j < seqLen; j++ {
				if !mask[j] {
					scores.Set(i, j, -1e9)
				}
			}
		}
		att := softmaxRows(scores)

		ctx := mat.NewDense(seqLen, a.headDim, nil)
		ctx.Mul(att, vh)
		concat.Slice(0, seqLen, c0, c1).(*mat.Dense).Copy(ctx)
		caches[h] = headCache{att: att, qh: qh, kh: kh, vh: vh}
	}

	out, bo := a.wo.forward(concat)

	return out, func(dy *mat.Dense) *mat.Dense {
		dConcat := bo(dy)
		dq := mat.NewDense(seqLen, a.modelDim, nil)
		dk := mat.NewDense(seqLen, a.modelDim, nil)
		dv := mat.NewDense(seqLen, a.modelDim, nil)

		for h := 0; h < a.heads; h++ {
			c0, c1 := h*a.headDim, (h+1)*a.headDim
			dctx := dConcat.Slice(0, seqLen, c0, c1).(*mat.Dense)
			hc := caches[h]

			var dAtt mat.Dense
			dAtt.Mul(dctx, hc.vh.T())

			var dvh mat.Dense
			dvh.Mul(hc.att.T(), dctx)
			dv.Slice(0, seqLen, c0, c1).(*mat.Dense).Copy(&dvh)

			ds := softmaxRowsBackward(hc.att, &dAtt)
			ds.Scale(scale, ds)

			var dqh mat.Dense
			dqh.Mul(ds, hc.kh)
			dq.Slice(0, seqLen, c0, c1).(*mat.Dense).Copy(&dqh)

			var dkh mat.Dense
			dkh.Mul(ds.T(), hc.qh)
			dk.Slice(0, seqLen, c0, c1).(*mat.Dense).Copy(&dkh)
		}

		dx := bq(dq)
		dx.Add(dx, bk(dk))
		dx.Add(dx, bv(dv))
		return dx
	}
}

// softmaxRows applies a numerically stable softmax to each row.
func softmaxRows(s *mat.Dense) *mat.Dense {
	r, c := s.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		maxv := math.Inf(-1)
		for j := 0; j < c; j++ {
			if s.At(i, j) > maxv {
				maxv = s.At(i, j)
			}
		}
		var sum float64
		for j := 0; j < c; j++ {
			e := math.Exp(s.At(i, j) - maxv)
			out.Set(i, j, e)
			sum += e
		}
		for j := 0; j < c; j++ {
			out.Set(i, j, out.At(i, j)/sum)
		}
	}
	return out
}

// softmaxRowsBackward computes the Jacobian-vector product of a row softmax:
// ds_ij = att_ij * (dAtt_ij - sum_k att_ik * dAtt_ik).
func softmaxRowsBackward(att, dAtt *mat.Dense) *mat.Dense {
	r, c := att.Dims()
	ds := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		var dot float64
		for j := 0; j < c; j++ {
			dot += att.At(i, j) * dAtt.At(i, j)
		}
		for j := 0; j < c; j++ {
			ds.Set(i, j, att.At(i, j)*(dAtt.At(i, j)-dot))
		}
	}
	return ds
}
