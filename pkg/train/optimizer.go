package train

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/model"
)

// adam is Adam with first/second moment state keyed by parameter name and a
// learning rate chosen by the parameter's structural group.
type adam struct {
	beta1, beta2, eps float64
	step              int
	m, v              map[string]*mat.Dense
	rates             map[string]float64

	schedule   string
	warmup     int
	totalSteps int
}

func newAdam(cfg Config, totalSteps int) *adam {
	return &adam{
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make(map[string]*mat.Dense),
		v:     make(map[string]*mat.Dense),
		rates: map[string]float64{
			model.GroupTrunk:     cfg.LR,
			model.GroupHead:      cfg.LR,
			model.GroupDifficult: cfg.DifficultLR,
		},
		schedule:   cfg.Schedule,
		warmup:     cfg.WarmupSteps,
		totalSteps: totalSteps,
	}
}

// rate returns the effective learning rate for a group at the current step.
func (o *adam) rate(group string) float64 {
	base, ok := o.rates[group]
	if !ok {
		base = o.rates[model.GroupTrunk]
	}
	if o.schedule != ScheduleCosine {
		return base
	}
	if o.warmup > 0 && o.step <= o.warmup {
		return base * float64(o.step) / float64(o.warmup)
	}
	span := o.totalSteps - o.warmup
	if span < 1 {
		span = 1
	}
	progress := float64(o.step-o.warmup) / float64(span)
	if progress > 1 {
		progress = 1
	}
	return base * 0.5 * (1 + math.Cos(math.Pi*progress))
}

// update applies one Adam step to every parameter using its accumulated
// gradient.
func (o *adam) update(params []*model.Param) {
	o.step++
	bc1 := 1 - math.Pow(o.beta1, float64(o.step))
	bc2 := 1 - math.Pow(o.beta2, float64(o.step))

	for _, p := range params {
		rows, cols := p.Value.Dims()
		m1, ok := o.m[p.Name]
		if !ok {
			m1 = mat.NewDense(rows, cols, nil)
			o.m[p.Name] = m1
			o.v[p.Name] = mat.NewDense(rows, cols, nil)
		}
		m2 := o.v[p.Name]

		lr := o.rate(p.Group)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				g := p.Grad.At(i, j)
				m1v := o.beta1*m1.At(i, j) + (1-o.beta1)*g
				m2v := o.beta2*m2.At(i, j) + (1-o.beta2)*g*g
				m1.Set(i, j, m1v)
				m2.Set(i, j, m2v)
				p.Value.Set(i, j, p.Value.At(i, j)-lr*(m1v/bc1)/(math.Sqrt(m2v/bc2)+o.eps))
			}
		}
	}
}

// clipGradNorm rescales all gradients when their global L2 norm exceeds
// maxNorm, and returns the pre-clip norm.
func clipGradNorm(params []*model.Param, maxNorm float64) float64 {
	var sq float64
	for _, p := range params {
		rows, cols := p.Grad.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				g := p.Grad.At(i, j)
				sq += g * g
			}
		}
	}
	norm := math.Sqrt(sq)
	if maxNorm > 0 && norm > maxNorm {
		scale := maxNorm / norm
		for _, p := range params {
			p.Grad.Scale(scale, p.Grad)
		}
	}
	return norm
}
