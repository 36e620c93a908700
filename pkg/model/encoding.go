package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// positionalEncoding holds the fixed sinusoidal position table. Even feature
// columns carry sin, odd columns cos, with wavelengths geometric in 10000.
type positionalEncoding struct {
	enc *mat.Dense // maxLen x dim
}

func newPositionalEncoding(dim, maxLen int) *positionalEncoding {
	enc := mat.NewDense(maxLen, dim, nil)
	for pos := 0; pos < maxLen; pos++ {
		for i := 0; i < dim; i += 2 {
			den := math.Pow(10000, float64(i)/float64(dim))
			enc.Set(pos, i, math.Sin(float64(pos)/den))
			if i+1 < dim {
				enc.Set(pos, i+1, math.Cos(float64(pos)/den))
			}
		}
	}
	return &positionalEncoding{enc: enc}
}

// maxLen reports the longest sequence the table covers.
func (pe *positionalEncoding) maxLen() int {
	r, _ := pe.enc.Dims()
	return r
}

// add returns x plus the position table's first len(x) rows. The encoding is
// constant, so the backward pass is the identity and needs no closure.
func (pe *positionalEncoding) add(x *mat.Dense) *mat.Dense {
	seqLen, dim := x.Dims()
	out := mat.NewDense(seqLen, dim, nil)
	out.Add(x, pe.enc.Slice(0, seqLen, 0, dim))
	return out
}
