package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tinyConfig keeps forward passes cheap and dropout off so runs are exactly
// reproducible.
func tinyConfig(paramNames []string) Config {
	cfg := DefaultConfig(paramNames, nil)
	cfg.ModelDim = 8
	cfg.FFDim = 16
	cfg.Heads = 2
	cfg.Layers = 1
	cfg.Dropout = 0
	cfg.PoolHidden = 4
	cfg.HeadHidden = 8
	cfg.MaxLen = 64
	cfg.Seed = 7
	return cfg
}

func randTraj(rng *rand.Rand, n int) []float64 {
	tr := make([]float64, n)
	for i := range tr {
		tr[i] = rng.NormFloat64()
	}
	return tr
}

func TestPredict_OutputCardinality(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	// One prediction per target parameter, for both head modes.
	for _, mode := range []string{HeadPerParam, HeadShared} {
		cfg := tinyConfig([]string{"r", "k", "epsilon", "alpha"})
		cfg.HeadMode = mode
		cfg.Difficult = []string{"epsilon", "alpha"}
		m, err := New(cfg)
		require.NoError(t, err)

		preds, err := m.Predict(randTraj(rng, 20), 75)
		require.NoError(t, err)
		assert.Len(t, preds, 4, "head mode %s", mode)
		for j, p := range preds {
			assert.False(t, math.IsNaN(p), "mode %s pred %d", mode, j)
		}
	}

	cfg := tinyConfig([]string{"gamma", "epsilon", "alpha"})
	m, err := New(cfg)
	require.NoError(t, err)
	preds, err := m.Predict(randTraj(rng, 20), 60)
	require.NoError(t, err)
	assert.Len(t, preds, 3)
}

func TestForward_PaddingInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	short := randTraj(rng, 12)
	long := randTraj(rng, 30)

	for _, pooling := range []string{PoolMean, PoolAttention} {
		cfg := tinyConfig([]string{"gamma", "epsilon", "alpha"})
		cfg.Pooling = pooling
		m, err := New(cfg)
		require.NoError(t, err)

		alone, err := m.Predict(short, 50)
		require.NoError(t, err)

		// Batched next to a longer sequence the short one is zero-padded to
		// length 30; the mask must make that padding invisible.
		b, err := Collate([][]float64{short, long}, []float64{50, 80}, nil)
		require.NoError(t, err)
		preds, _, err := m.Forward(b, false)
		require.NoError(t, err)

		for j := range alone {
			assert.InDelta(t, alone[j], preds[0][j], 1e-10, "pooling %s output %d", pooling, j)
		}
	}
}

func TestForward_GradientsMatchFiniteDifferences(t *testing.T) {
	cfg := tinyConfig([]string{"a", "b"})
	cfg.Pooling = PoolAttention
	m, err := New(cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(5))
	b, err := Collate(
		[][]float64{randTraj(rng, 6), randTraj(rng, 9)},
		[]float64{10, 14},
		nil,
	)
	require.NoError(t, err)

	// Quadratic objective L = 0.5 * sum(pred^2), so dL/dpred = pred.
	loss := func() float64 {
		preds, _, err := m.Forward(b, false)
		require.NoError(t, err)
		var l float64
		for _, row := range preds {
			for _, p := range row {
				l += 0.5 * p * p
			}
		}
		return l
	}

	m.ZeroGrads()
	preds, backFn, err := m.Forward(b, false)
	require.NoError(t, err)
	dpreds := make([][]float64, len(preds))
	for i, row := range preds {
		dpreds[i] = append([]float64(nil), row...)
	}
	backFn(dpreds)

	const eps = 1e-5
	checked := 0
	for _, p := range m.Params() {
		r, c := p.Value.Dims()
		// Probe a few entries per parameter rather than the whole matrix.
		for _, idx := range [][2]int{{0, 0}, {r - 1, c - 1}} {
			i, j := idx[0], idx[1]
			orig := p.Value.At(i, j)

			p.Value.Set(i, j, orig+eps)
			up := loss()
			p.Value.Set(i, j, orig-eps)
			down := loss()
			p.Value.Set(i, j, orig)

			numeric := (up - down) / (2 * eps)
			analytic := p.Grad.At(i, j)
			denom := math.Abs(numeric) + math.Abs(analytic) + 1e-8
			assert.Less(t, math.Abs(numeric-analytic)/denom, 1e-3,
				"%s[%d,%d]: numeric %g analytic %g", p.Name, i, j, numeric, analytic)
			checked++
		}
	}
	assert.Greater(t, checked, 20, "sanity: probes actually ran")
}

func TestPositionalEncoding_Values(t *testing.T) {
	dim := 8
	pe := newPositionalEncoding(dim, 16)

	// Position zero is sin(0)=0 on even columns, cos(0)=1 on odd columns.
	for i := 0; i < dim; i += 2 {
		assert.Equal(t, 0.0, pe.enc.At(0, i))
		assert.Equal(t, 1.0, pe.enc.At(0, i+1))
	}

	assert.InDelta(t, math.Sin(1), pe.enc.At(1, 0), 1e-15)
	assert.InDelta(t, math.Cos(1), pe.enc.At(1, 1), 1e-15)
	den := math.Pow(10000, 2.0/float64(dim))
	assert.InDelta(t, math.Sin(5/den), pe.enc.At(5, 2), 1e-15)
	assert.InDelta(t, math.Cos(5/den), pe.enc.At(5, 3), 1e-15)
}

func TestCollate_Errors(t *testing.T) {
	_, err := Collate(nil, nil, nil)
	assert.Error(t, err, "empty batch")

	_, err = Collate([][]float64{{1, 2}}, []float64{1, 2}, nil)
	assert.Error(t, err, "horizon arity mismatch")

	_, err = Collate([][]float64{{1, 2}, {3}}, []float64{1, 2}, [][]float64{{1}})
	assert.Error(t, err, "target row count mismatch")

	_, err = Collate([][]float64{{1, 2}, {3}}, []float64{1, 2}, [][]float64{{1, 2}, {3}})
	assert.Error(t, err, "ragged target rows")

	_, err = Collate([][]float64{{}}, []float64{1}, nil)
	assert.Error(t, err, "empty trajectory")

	b, err := Collate([][]float64{{1}, {2, 3, 4}}, []float64{1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, b.Traj[0])
	assert.Equal(t, []bool{true, false, false}, b.Mask[0])
	assert.Equal(t, []bool{true, true, true}, b.Mask[1])
}

func TestForward_RejectsOverlongTrajectory(t *testing.T) {
	cfg := tinyConfig([]string{"a"})
	cfg.MaxLen = 8
	m, err := New(cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	_, err = m.Predict(randTraj(rng, 9), 10)
	assert.Error(t, err)

	b, err := Collate([][]float64{randTraj(rng, 12)}, []float64{5}, nil)
	require.NoError(t, err)
	_, _, err = m.Forward(b, false)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	base := tinyConfig([]string{"a", "b"})
	require.NoError(t, base.Validate())

	cfg := base
	cfg.Heads = 3 // 8 % 3 != 0
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.Pooling = "max"
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.HeadMode = "ensemble"
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.Dropout = 1
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.Difficult = []string{"zeta"}
	assert.Error(t, cfg.Validate(), "difficult name must be a target")

	cfg = base
	cfg.ParamNames = nil
	assert.Error(t, cfg.Validate())
}

func TestNew_SeedDeterminism(t *testing.T) {
	cfg := tinyConfig([]string{"a", "b", "c"})
	m1, err := New(cfg)
	require.NoError(t, err)
	m2, err := New(cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(9))
	tr := randTraj(rng, 15)
	p1, err := m1.Predict(tr, 30)
	require.NoError(t, err)
	p2, err := m2.Predict(tr, 30)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}
