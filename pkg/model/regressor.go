package model

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Head mode names accepted by Config.HeadMode.
const (
	HeadShared   = "shared"
	HeadPerParam = "per-param"
)

// Config holds the model architecture. All knobs are explicit fields; nothing
// is inferred from the environment at construction time.
type Config struct {
	ModelDim   int     // embedding width, must be divisible by Heads
	FFDim      int     // feed-forward hidden width
	Heads      int     // attention heads per layer
	Layers     int     // encoder blocks
	Dropout    float64 // drop rate in [0, 1), applied only when training
	Pooling    string  // PoolMean or PoolAttention
	PoolHidden int     // attention-pooling scorer hidden width
	HeadMode   string  // HeadShared or HeadPerParam
	HeadHidden int     // output-head hidden width
	ParamNames []string
	Difficult  []string // parameter names whose heads get the difficult group
	MaxLen     int      // longest trajectory the position table covers
	Seed       int64    // 0 draws from the clock
}

// DefaultConfig returns the architecture used throughout: a small pre-norm
// encoder with attention pooling and one head per target parameter.
func DefaultConfig(paramNames, difficult []string) Config {
	return Config{
		ModelDim:   64,
		FFDim:      128,
		Heads:      4,
		Layers:     2,
		Dropout:    0.1,
		Pooling:    PoolAttention,
		PoolHidden: 32,
		HeadMode:   HeadPerParam,
		HeadHidden: 32,
		ParamNames: paramNames,
		Difficult:  difficult,
		MaxLen:     2048,
		Seed:       0,
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.ModelDim <= 0 || c.FFDim <= 0 || c.Layers <= 0 || c.HeadHidden <= 0 {
		return fmt.Errorf("model: dimensions must be positive")
	}
	if c.Heads <= 0 || c.ModelDim%c.Heads != 0 {
		return fmt.Errorf("model: ModelDim %d must be divisible by Heads %d", c.ModelDim, c.Heads)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("model: dropout %g outside [0, 1)", c.Dropout)
	}
	switch c.Pooling {
	case PoolMean:
	case PoolAttention:
		if c.PoolHidden <= 0 {
			return fmt.Errorf("model: attention pooling needs PoolHidden > 0")
		}
	default:
		return fmt.Errorf("model: unknown pooling mode %q", c.Pooling)
	}
	if c.HeadMode != HeadShared && c.HeadMode != HeadPerParam {
		return fmt.Errorf("model: unknown head mode %q", c.HeadMode)
	}
	if len(c.ParamNames) == 0 {
		return fmt.Errorf("model: no target parameters")
	}
	if c.MaxLen <= 0 {
		return fmt.Errorf("model: MaxLen must be positive")
	}
	for _, d := range c.Difficult {
		found := false
		for _, n := range c.ParamNames {
			if n == d {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("model: difficult parameter %q is not a target", d)
		}
	}
	return nil
}

// mlpHead is a two-layer regression head over the pooled features plus the
// horizon scalar.
type mlpHead struct {
	l1, l2 *Linear
}

func newMLPHead(name, group string, in, hidden, out int, rng *rand.Rand) *mlpHead {
	return &mlpHead{
		l1: newLinear(name+".l1", group, in, hidden, rng),
		l2: newLinear(name+".l2", group, hidden, out, rng),
	}
}

func (h *mlpHead) params() []*Param { return append(h.l1.params(), h.l2.params()...) }

func (h *mlpHead) forward(x *mat.Dense) (*mat.Dense, backward) {
	z, b1 := h.l1.forward(x)
	zr, br := relu(z)
	y, b2 := h.l2.forward(zr)
	return y, func(dy *mat.Dense) *mat.Dense {
		return b1(br(b2(dy)))
	}
}

// Regressor is the full sequence-to-parameters model.
type Regressor struct {
	cfg    Config
	embed  *Linear
	pe     *positionalEncoding
	blocks []*encoderLayer
	pool   pooler
	shared *mlpHead   // HeadShared
	heads  []*mlpHead // HeadPerParam, aligned with cfg.ParamNames
}

// New builds a regressor from cfg. All weights come from a single seeded
// source, so equal configs with equal seeds produce identical models.
func New(cfg Config) (*Regressor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	m := &Regressor{
		cfg:   cfg,
		embed: newLinear("embed", GroupTrunk, 1, cfg.ModelDim, rng),
		pe:    newPositionalEncoding(cfg.ModelDim, cfg.MaxLen),
	}
	drop := &dropout{rate: cfg.Dropout, rng: rng}
	for i := 0; i < cfg.Layers; i++ {
		m.blocks = append(m.blocks, newEncoderLayer(fmt.Sprintf("enc%d", i), cfg.ModelDim, cfg.FFDim, cfg.Heads, drop, rng))
	}
	switch cfg.Pooling {
	case PoolMean:
		m.pool = meanPooler{}
	case PoolAttention:
		m.pool = newAttentionPooler(cfg.ModelDim, cfg.PoolHidden, rng)
	}

	headIn := cfg.ModelDim + 1 // pooled features plus the horizon scalar
	if cfg.HeadMode == HeadShared {
		m.shared = newMLPHead("head", GroupHead, headIn, cfg.HeadHidden, len(cfg.ParamNames), rng)
	} else {
		for _, name := range cfg.ParamNames {
			group := GroupHead
			for _, d := range cfg.Difficult {
				if d == name {
					group = GroupDifficult
					break
				}
			}
			m.heads = append(m.heads, newMLPHead("head."+name, group, headIn, cfg.HeadHidden, 1, rng))
		}
	}
	return m, nil
}

// Cfg returns the configuration the model was built with.
func (m *Regressor) Cfg() Config { return m.cfg }

// ParamCount reports the number of regression targets.
func (m *Regressor) ParamCount() int { return len(m.cfg.ParamNames) }

// Params lists every trainable parameter in a fixed order.
func (m *Regressor) Params() []*Param {
	var out []*Param
	out = append(out, m.embed.params()...)
	for _, b := range m.blocks {
		out = append(out, b.params()...)
	}
	out = append(out, m.pool.params()...)
	if m.shared != nil {
		out = append(out, m.shared.params()...)
	}
	for _, h := range m.heads {
		out = append(out, h.params()...)
	}
	return out
}

// ZeroGrads clears all accumulated gradients before a step.
func (m *Regressor) ZeroGrads() {
	for _, p := range m.Params() {
		p.ZeroGrad()
	}
}

// Batch is a collated minibatch. Trajectories are zero-padded to the batch
// maximum with masks marking the real positions.
type Batch struct {
	Traj    [][]float64
	Mask    [][]bool
	Horizon []float64
	Targets [][]float64 // nil for inference
}

// Size reports the number of samples in the batch.
func (b *Batch) Size() int { return len(b.Traj) }

// Collate pads trajectories to a common length and builds validity masks.
// targets may be nil; when present, a length mismatch is fatal because silent
// misalignment between inputs and labels corrupts every later gradient.
func Collate(trajs [][]float64, horizons []float64, targets [][]float64) (*Batch, error) {
	if len(trajs) == 0 {
		return nil, fmt.Errorf("model: empty batch")
	}
	if len(horizons) != len(trajs) {
		return nil, fmt.Errorf("model: %d trajectories but %d horizons", len(trajs), len(horizons))
	}
	if targets != nil && len(targets) != len(trajs) {
		return nil, fmt.Errorf("model: %d trajectories but %d target rows", len(trajs), len(targets))
	}
	maxLen := 0
	for i, tr := range trajs {
		if len(tr) == 0 {
			return nil, fmt.Errorf("model: trajectory %d is empty", i)
		}
		if len(tr) > maxLen {
			maxLen = len(tr)
		}
	}
	if targets != nil {
		arity := len(targets[0])
		for i, row := range targets {
			if len(row) != arity {
				return nil, fmt.Errorf("model: target row %d has %d values, expected %d", i, len(row), arity)
			}
		}
	}

	b := &Batch{
		Traj:    make([][]float64, len(trajs)),
		Mask:    make([][]bool, len(trajs)),
		Horizon: horizons,
		Targets: targets,
	}
	for i, tr := range trajs {
		padded := make([]float64, maxLen)
		mask := make([]bool, maxLen)
		copy(padded, tr)
		for j := range tr {
			mask[j] = true
		}
		b.Traj[i] = padded
		b.Mask[i] = mask
	}
	return b, nil
}

// Forward runs the batch through the model. It returns per-sample predictions
// and a backward function that accepts dLoss/dPred rows and accumulates
// parameter gradients. Samples are processed independently, so padding one
// sequence next to a longer one never changes its output.
func (m *Regressor) Forward(b *Batch, training bool) ([][]float64, func(dpreds [][]float64), error) {
	for i, tr := range b.Traj {
		if len(tr) > m.cfg.MaxLen {
			return nil, nil, fmt.Errorf("model: trajectory %d has %d samples, position table covers %d", i, len(tr), m.cfg.MaxLen)
		}
	}
	preds := make([][]float64, b.Size())
	backs := make([]func(dpred []float64), b.Size())
	for s := 0; s < b.Size(); s++ {
		p, bk := m.forwardOne(b.Traj[s], b.Mask[s], b.Horizon[s], training)
		preds[s] = p
		backs[s] = bk
	}
	return preds, func(dpreds [][]float64) {
		for s, bk := range backs {
			bk(dpreds[s])
		}
	}, nil
}

func (m *Regressor) forwardOne(traj []float64, mask []bool, horizon float64, training bool) ([]float64, func(dpred []float64)) {
	seqLen := len(traj)
	x := mat.NewDense(seqLen, 1, nil)
	for i, v := range traj {
		x.Set(i, 0, v)
	}

	h, bemb := m.embed.forward(x)
	h = m.pe.add(h)

	blockBacks := make([]backward, len(m.blocks))
	for i, blk := range m.blocks {
		h, blockBacks[i] = blk.forward(h, mask, training)
	}

	pooled, bpool := m.pool.pool(h, mask)

	d := m.cfg.ModelDim
	z := mat.NewDense(1, d+1, nil)
	for j := 0; j < d; j++ {
		z.Set(0, j, pooled.At(0, j))
	}
	z.Set(0, d, horizon)

	nParams := len(m.cfg.ParamNames)
	preds := make([]float64, nParams)
	var bShared backward
	headBacks := make([]backward, len(m.heads))
	if m.shared != nil {
		var y *mat.Dense
		y, bShared = m.shared.forward(z)
		for j := 0; j < nParams; j++ {
			preds[j] = y.At(0, j)
		}
	} else {
		for j, head := range m.heads {
			var y *mat.Dense
			y, headBacks[j] = head.forward(z)
			preds[j] = y.At(0, 0)
		}
	}

	return preds, func(dpred []float64) {
		dz := mat.NewDense(1, d+1, nil)
		if bShared != nil {
			dz = bShared(mat.NewDense(1, nParams, dpred))
		} else {
			for j, bk := range headBacks {
				dz.Add(dz, bk(mat.NewDense(1, 1, []float64{dpred[j]})))
			}
		}

		// The horizon column is an input feature; its gradient stops here.
		dpooled := mat.NewDense(1, d, nil)
		for j := 0; j < d; j++ {
			dpooled.Set(0, j, dz.At(0, j))
		}

		dh := bpool(dpooled)
		for i := len(blockBacks) - 1; i >= 0; i-- {
			dh = blockBacks[i](dh)
		}
		bemb(dh)
	}
}

// Predict runs a single unpadded trajectory in evaluation mode.
func (m *Regressor) Predict(traj []float64, horizon float64) ([]float64, error) {
	if len(traj) == 0 {
		return nil, fmt.Errorf("model: empty trajectory")
	}
	if len(traj) > m.cfg.MaxLen {
		return nil, fmt.Errorf("model: trajectory has %d samples, position table covers %d", len(traj), m.cfg.MaxLen)
	}
	mask := make([]bool, len(traj))
	for i := range mask {
		mask[i] = true
	}
	preds, _ := m.forwardOne(traj, mask, horizon, false)
	return preds, nil
}
