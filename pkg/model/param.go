// Package model implements a Transformer-encoder sequence regressor that maps
// a variable-length trajectory plus a scalar horizon feature to per-parameter
// predictions.
//
// Every layer's forward pass returns the output together with a backward
// closure over its cached activations, so a full training step is
// forward -> loss -> chained closures, with gradients accumulating into
// structurally tagged parameters. There is no global graph state.
package model

import "gonum.org/v1/gonum/mat"

// Learning-rate group tags, assigned at construction time. The optimizer
// selects rates by group; nothing ever matches parameter-name substrings.
const (
	GroupTrunk     = "trunk"
	GroupHead      = "head"
	GroupDifficult = "head-difficult"
)

// Param is one trainable matrix with its accumulated gradient.
type Param struct {
	Name  string
	Group string
	Value *mat.Dense
	Grad  *mat.Dense
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() { p.Grad.Zero() }

// backward maps dLoss/dOutput to dLoss/dInput, accumulating parameter
// gradients along the way.
type backward func(dy *mat.Dense) *mat.Dense

// addDense returns a + b as a fresh matrix.
func addDense(a, b *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	out.Add(a, b)
	return out
}
