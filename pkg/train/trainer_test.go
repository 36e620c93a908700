package train

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/dataset"
	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/model"
)

// syntheticDataset builds trajectories whose level encodes the first target
// parameter, so even a short run has signal to fit.
func syntheticDataset(rng *rand.Rand, n int) *dataset.Dataset {
	d := &dataset.Dataset{System: "synthetic"}
	for i := 0; i < n; i++ {
		a := rng.Float64()
		b := 1 + rng.Float64()
		traj := make([]float64, 10+rng.Intn(6))
		for j := range traj {
			traj[j] = a + 0.01*rng.NormFloat64()
		}
		d.Samples = append(d.Samples, dataset.Sample{Trajectory: traj, T: 10, N: len(traj), Params: []float64{a, b}})
	}
	return d
}

func tinyModel(t *testing.T, paramNames []string) *model.Regressor {
	t.Helper()
	cfg := model.DefaultConfig(paramNames, nil)
	cfg.ModelDim = 8
	cfg.FFDim = 16
	cfg.Heads = 2
	cfg.Layers = 1
	cfg.Dropout = 0
	cfg.PoolHidden = 4
	cfg.HeadHidden = 8
	cfg.MaxLen = 64
	cfg.Seed = 13
	m, err := model.New(cfg)
	require.NoError(t, err)
	return m
}

func quickConfig() Config {
	cfg := DefaultConfig([]float64{1, 1})
	cfg.Epochs = 10
	cfg.BatchSize = 16
	cfg.LR = 3e-3
	cfg.DifficultLR = 3e-3
	cfg.Schedule = ScheduleNone
	cfg.WarmupSteps = 0
	cfg.Patience = 0
	cfg.MinDelta = 0
	cfg.Seed = 99
	return cfg
}

func TestEpochWeights(t *testing.T) {
	cfg := DefaultConfig([]float64{1, 1, 2, 2})
	cfg.Epochs = 100
	cfg.FocusEpochFrac = 0.5
	cfg.FocusMultipliers = []float64{1, 1, 3, 3}

	assert.Equal(t, []float64{1, 1, 2, 2}, epochWeights(cfg, 0))
	assert.Equal(t, []float64{1, 1, 2, 2}, epochWeights(cfg, 49))
	assert.Equal(t, []float64{1, 1, 6, 6}, epochWeights(cfg, 50))
	assert.Equal(t, []float64{1, 1, 6, 6}, epochWeights(cfg, 99))

	cfg.FocusMultipliers = nil
	assert.Equal(t, []float64{1, 1, 2, 2}, epochWeights(cfg, 80))
}

func TestComputeLoss_GradientMatchesFiniteDifferences(t *testing.T) {
	preds := [][]float64{{0.3, -0.7, 1.1}, {-0.2, 0.4, 0.9}}
	targets := [][]float64{{0.1, -0.5, 1.0}, {0.2, 0.6, 1.2}}
	weights := []float64{1, 2, 2}
	lambda := 0.5

	_, _, dpreds := computeLoss(preds, targets, weights, lambda)

	const eps = 1e-6
	for i := range preds {
		for j := range preds[i] {
			orig := preds[i][j]
			preds[i][j] = orig + eps
			up, _, _ := computeLoss(preds, targets, weights, lambda)
			preds[i][j] = orig - eps
			down, _, _ := computeLoss(preds, targets, weights, lambda)
			preds[i][j] = orig

			numeric := (up - down) / (2 * eps)
			assert.InDelta(t, numeric, dpreds[i][j], 1e-6, "pred[%d][%d]", i, j)
		}
	}
}

func TestComputeLoss_MAEUnweighted(t *testing.T) {
	preds := [][]float64{{1, 0}, {3, 0}}
	targets := [][]float64{{0, 0}, {1, 0}}
	_, mae, _ := computeLoss(preds, targets, []float64{5, 5}, 0.5)
	assert.InDelta(t, 1.5, mae[0], 1e-12, "MAE ignores loss weights")
	assert.InDelta(t, 0.0, mae[1], 1e-12)
}

func TestRun_LossDecreasesAndReportPopulated(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	trainSet := syntheticDataset(rng, 48)
	valSet := syntheticDataset(rng, 16)
	stats, err := dataset.ComputeStatistics(trainSet)
	require.NoError(t, err)

	m := tinyModel(t, []string{"a", "b"})
	tr, err := New(quickConfig(), m, stats)
	require.NoError(t, err)

	report, err := tr.Run(trainSet, valSet)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "synthetic", report.System)
	assert.Equal(t, 10, report.EpochsRun)
	require.Len(t, report.Epochs, 10)
	require.Len(t, report.BestValMAE, 2)
	assert.GreaterOrEqual(t, report.BestEpoch, 0)

	assert.Less(t, report.BestValLoss, report.Epochs[0].ValLoss,
		"validation loss should improve over the first epoch")
}

func TestRun_ModelEndsAtBestEpoch(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	trainSet := syntheticDataset(rng, 32)
	valSet := syntheticDataset(rng, 12)
	stats, err := dataset.ComputeStatistics(trainSet)
	require.NoError(t, err)

	snapPath := filepath.Join(t.TempDir(), "best.sdem")
	cfg := quickConfig()
	cfg.Epochs = 6
	cfg.SnapshotPath = snapPath

	m := tinyModel(t, []string{"a", "b"})
	tr, err := New(cfg, m, stats)
	require.NoError(t, err)
	report, err := tr.Run(trainSet, valSet)
	require.NoError(t, err)

	// The snapshot on disk was written at the best epoch; after Run the live
	// model must hold those same weights, not the last epoch's.
	fresh := tinyModel(t, []string{"a", "b"})
	system, runID, valLoss, err := LoadSnapshot(fresh, snapPath)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", system)
	assert.Equal(t, report.RunID, runID)
	assert.Equal(t, report.BestValLoss, valLoss)

	probe := trainSet.Samples[0]
	want, err := fresh.Predict(probe.Trajectory, probe.T)
	require.NoError(t, err)
	got, err := m.Predict(probe.Trajectory, probe.T)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRun_NonFiniteLossAborts(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	trainSet := syntheticDataset(rng, 16)
	trainSet.Samples[3].Trajectory[0] = math.NaN()
	valSet := syntheticDataset(rng, 8)
	stats, err := dataset.ComputeStatistics(trainSet)
	require.NoError(t, err)

	cfg := quickConfig()
	cfg.Epochs = 2
	m := tinyModel(t, []string{"a", "b"})
	tr, err := New(cfg, m, stats)
	require.NoError(t, err)

	_, err = tr.Run(trainSet, valSet)
	assert.ErrorContains(t, err, "non-finite")
}

func TestNew_ArityChecks(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	d := syntheticDataset(rng, 8)
	stats, err := dataset.ComputeStatistics(d)
	require.NoError(t, err)

	m := tinyModel(t, []string{"a", "b"})

	cfg := quickConfig()
	cfg.BaseWeights = []float64{1, 1, 1}
	_, err = New(cfg, m, stats)
	assert.Error(t, err, "weight arity must match model targets")

	three := tinyModel(t, []string{"a", "b", "c"})
	cfg = quickConfig()
	cfg.BaseWeights = []float64{1, 1, 1}
	_, err = New(cfg, three, stats)
	assert.Error(t, err, "statistics arity must match model targets")
}

func TestConfigValidate(t *testing.T) {
	base := DefaultConfig([]float64{1, 2})
	require.NoError(t, base.Validate())

	cfg := base
	cfg.MixLambda = 1.5
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.Schedule = "step"
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.BaseWeights = []float64{1, -1}
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.FocusMultipliers = []float64{2}
	assert.Error(t, cfg.Validate(), "multiplier arity")

	cfg = base
	cfg.Epochs = 0
	assert.Error(t, cfg.Validate())
}
