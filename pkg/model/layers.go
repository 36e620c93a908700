package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Linear is a dense affine map applied independently to every row.
type Linear struct {
	In, Out int
	w, b    *Param
}

func newLinear(name, group string, in, out int, rng *rand.Rand) *Linear {
	// Xavier uniform keeps activations at unit scale through the stack.
	limit := math.Sqrt(6.0 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return &Linear{
		In:  in,
		Out: out,
		w:   &Param{Name: name + ".w", Group: group, Value: mat.NewDense(in, out, data), Grad: mat.NewDense(in, out, nil)},
		b:   &Param{Name: name + ".b", Group: group, Value: mat.NewDense(1, out, nil), Grad: mat.NewDense(1, out, nil)},
	}
}

func (l *Linear) params() []*Param { return []*Param{l.w, l.b} }

func (l *Linear) forward(x *mat.Dense) (*mat.Dense, backward) {
	rows, _ := x.Dims()
	y := mat.NewDense(rows, l.Out, nil)
	y.Mul(x, l.w.Value)
	for i := 0; i < rows; i++ {
		for j := 0; j < l.Out; j++ {
			y.Set(i, j, y.At(i, j)+l.b.Value.At(0, j))
		}
	}
	xc := mat.DenseCopyOf(x)
	return y, func(dy *mat.Dense) *mat.Dense {
		var dw mat.Dense
		dw.Mul(xc.T(), dy)
		l.w.Grad.Add(l.w.Grad, &dw)
		for j := 0; j < l.Out; j++ {
			var s float64
			for i := 0; i < rows; i++ {
				s += dy.At(i, j)
			}
			l.b.Grad.Set(0, j, l.b.Grad.At(0, j)+s)
		}
		dx := mat.NewDense(rows, l.In, nil)
		dx.Mul(dy, l.w.Value.T())
		return dx
	}
}

// LayerNorm normalizes each row over its features.
type LayerNorm struct {
	Dim         int
	gamma, beta *Param
	eps         float64
}

func newLayerNorm(name string, dim int) *LayerNorm {
	gamma := make([]float64, dim)
	for i := range gamma {
		gamma[i] = 1
	}
	return &LayerNorm{
		Dim:   dim,
		gamma: &Param{Name: name + ".gamma", Group: GroupTrunk, Value: mat.NewDense(1, dim, gamma), Grad: mat.NewDense(1, dim, nil)},
		beta:  &Param{Name: name + ".beta", Group: GroupTrunk, Value: mat.NewDense(1, dim, nil), Grad: mat.NewDense(1, dim, nil)},
		eps:   1e-5,
	}
}

func (ln *LayerNorm) params() []*Param { return []*Param{ln.gamma, ln.beta} }

func (ln *LayerNorm) forward(x *mat.Dense) (*mat.Dense, backward) {
	rows, _ := x.Dims()
	d := float64(ln.Dim)
	y := mat.NewDense(rows, ln.Dim, nil)
	xhat := mat.NewDense(rows, ln.Dim, nil)
	invStd := make([]float64, rows)

	for i := 0; i < rows; i++ {
		var mu float64
		for j := 0; j < ln.Dim; j++ {
			mu += x.At(i, j)
		}
		mu /= d
		var v float64
		for j := 0; j < ln.Dim; j++ {
			diff := x.At(i, j) - mu
			v += diff * diff
		}
		v /= d
		is := 1 / math.Sqrt(v+ln.eps)
		invStd[i] = is
		for j := 0; j < ln.Dim; j++ {
			xh := (x.At(i, j) - mu) * is
			xhat.Set(i, j, xh)
			y.Set(i, j, ln.gamma.Value.At(0, j)*xh+ln.beta.Value.At(0, j))
		}
	}

	return y, func(dy *mat.Dense) *mat.Dense {
		dx := mat.NewDense(rows, ln.Dim, nil)
		for i := 0; i < rows; i++ {
			var m1, m2 float64
			for j := 0; j < ln.Dim; j++ {
				dxh := dy.At(i, j) * ln.gamma.Value.At(0, j)
				m1 += dxh
				m2 += dxh * xhat.At(i, j)
			}
			m1 /= d
			m2 /= d
			for j := 0; j < ln.Dim; j++ {
				dxh := dy.At(i, j) * ln.gamma.Value.At(0, j)
				dx.Set(i, j, invStd[i]*(dxh-m1-xhat.At(i, j)*m2))
				ln.gamma.Grad.Set(0, j, ln.gamma.Grad.At(0, j)+dy.At(i, j)*xhat.At(i, j))
				ln.beta.Grad.Set(0, j, ln.beta.Grad.At(0, j)+dy.At(i, j))
			}
		}
		return dx
	}
}

// relu applies max(0, x) elementwise.
func relu(x *mat.Dense) (*mat.Dense, backward) {
	r, c := x.Dims()
	y := mat.NewDense(r, c, nil)
	active := make([]bool, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := x.At(i, j)
			if v > 0 {
				y.Set(i, j, v)
				active[i*c+j] = true
			}
		}
	}
	return y, func(dy *mat.Dense) *mat.Dense {
		dx := mat.NewDense(r, c, nil)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if active[i*c+j] {
					dx.Set(i, j, dy.At(i, j))
				}
			}
		}
		return dx
	}
}

// tanhAct applies tanh elementwise.
func tanhAct(x *mat.Dense) (*mat.Dense, backward) {
	r, c := x.Dims()
	y := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			y.Set(i, j, math.Tanh(x.At(i, j)))
		}
	}
	return y, func(dy *mat.Dense) *mat.Dense {
		dx := mat.NewDense(r, c, nil)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				t := y.At(i, j)
				dx.Set(i, j, dy.At(i, j)*(1-t*t))
			}
		}
		return dx
	}
}

// dropout zeroes activations with probability rate during training, scaling
// survivors by 1/(1-rate) so evaluation needs no rescaling.
type dropout struct {
	rate float64
	rng  *rand.Rand
}

func (d *dropout) forward(x *mat.Dense, training bool) (*mat.Dense, backward) {
	if !training || d.rate == 0 {
		return x, func(dy *mat.Dense) *mat.Dense { return dy }
	}
	r, c := x.Dims()
	keep := 1 - d.rate
	scale := 1 / keep
	maskv := make([]float64, r*c)
	y := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if d.rng.Float64() < keep {
				maskv[i*c+j] = scale
				y.Set(i, j, x.At(i, j)*scale)
			}
		}
	}
	return y, func(dy *mat.Dense) *mat.Dense {
		dx := mat.NewDense(r, c, nil)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				dx.Set(i, j, dy.At(i, j)*maskv[i*c+j])
			}
		}
		return dx
	}
}
