package train

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/dataset"
	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/model"
)

// Trainer fits a regressor to a dataset.
type Trainer struct {
	cfg   Config
	model *model.Regressor
	stats dataset.Statistics
	rng   *rand.Rand
}

// New creates a trainer. stats must come from the training split: targets are
// normalized with it before every loss, and predictions denormalized for
// reporting.
func New(cfg Config, m *model.Regressor, stats dataset.Statistics) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.BaseWeights) != m.ParamCount() {
		return nil, fmt.Errorf("train: %d base weights for %d model targets", len(cfg.BaseWeights), m.ParamCount())
	}
	if stats.ParamCount() != m.ParamCount() {
		return nil, fmt.Errorf("train: statistics cover %d parameters, model has %d", stats.ParamCount(), m.ParamCount())
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Trainer{
		cfg:   cfg,
		model: m,
		stats: stats,
		rng:   rand.New(rand.NewSource(seed)),
	}, nil
}

// Run trains on train, validating on val after each epoch. The model is left
// holding the weights of its best validation epoch, not its last one.
func (t *Trainer) Run(train, val *dataset.Dataset) (*Report, error) {
	if train.Len() == 0 || val.Len() == 0 {
		return nil, fmt.Errorf("train: empty split (train %d, val %d)", train.Len(), val.Len())
	}

	runID := uuid.NewString()
	stepsPerEpoch := (train.Len() + t.cfg.BatchSize - 1) / t.cfg.BatchSize
	opt := newAdam(t.cfg, t.cfg.Epochs*stepsPerEpoch)

	fmt.Fprintf(os.Stderr, "Starting run %s: system %s, %d train / %d val, %d epochs, batch %d, lr %g/%g, schedule %s\n",
		runID, train.System, train.Len(), val.Len(), t.cfg.Epochs, t.cfg.BatchSize, t.cfg.LR, t.cfg.DifficultLR, t.cfg.Schedule)

	report := &Report{
		RunID:      runID,
		System:     train.System,
		Config:     t.cfg,
		ParamNames: t.model.Cfg().ParamNames,
		Timestamp:  time.Now().UTC(),
	}

	bestVal := math.Inf(1)
	bestEpoch := -1
	var bestMAE []float64
	var bestParams map[string]*mat.Dense
	badEpochs := 0

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		weights := epochWeights(t.cfg, epoch)
		order := t.rng.Perm(train.Len())

		var trainLoss float64
		for start := 0; start < len(order); start += t.cfg.BatchSize {
			end := start + t.cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			b, err := t.collate(train, order[start:end])
			if err != nil {
				return nil, err
			}

			t.model.ZeroGrads()
			preds, backFn, err := t.model.Forward(b, true)
			if err != nil {
				return nil, err
			}
			loss, _, dpreds := computeLoss(preds, b.Targets, weights, t.cfg.MixLambda)
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return nil, fmt.Errorf("train: non-finite loss at epoch %d, aborting run %s", epoch, runID)
			}
			backFn(dpreds)
			if t.cfg.ClipNorm > 0 {
				clipGradNorm(t.model.Params(), t.cfg.ClipNorm)
			}
			opt.update(t.model.Params())
			trainLoss += loss
		}
		trainLoss /= float64(stepsPerEpoch)

		valLoss, valMAE, err := t.evaluate(val)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(valLoss) || math.IsInf(valLoss, 0) {
			return nil, fmt.Errorf("train: non-finite validation loss at epoch %d, aborting run %s", epoch, runID)
		}

		improved := bestVal-valLoss > t.cfg.MinDelta
		if improved {
			bestVal = valLoss
			bestEpoch = epoch
			bestMAE = valMAE
			bestParams = copyParams(t.model.Params())
			badEpochs = 0
			if t.cfg.SnapshotPath != "" {
				if err := SaveSnapshot(t.model, t.cfg.SnapshotPath, train.System, runID, valLoss); err != nil {
					return nil, err
				}
			}
		} else {
			badEpochs++
		}

		er := EpochReport{
			Epoch:     epoch,
			TrainLoss: trainLoss,
			ValLoss:   valLoss,
			ValMAE:    valMAE,
			LR:        opt.rate(model.GroupTrunk),
			Improved:  improved,
		}
		report.Epochs = append(report.Epochs, er)
		report.EpochsRun = epoch + 1

		if t.cfg.Verbose {
			WriteTextEpoch(os.Stderr, er)
		} else if improved {
			fmt.Fprintf(os.Stderr, "[epoch %d] NEW BEST val %.6f\n", epoch, valLoss)
		}

		if t.cfg.Patience > 0 && badEpochs >= t.cfg.Patience {
			fmt.Fprintf(os.Stderr, "[epoch %d] Stopped after %d epochs without improvement (best %.6f at epoch %d)\n",
				epoch, badEpochs, bestVal, bestEpoch)
			report.EarlyStopped = true
			break
		}
	}

	if bestParams != nil {
		restoreParams(t.model.Params(), bestParams)
	}
	report.BestEpoch = bestEpoch
	report.BestValLoss = bestVal
	report.BestValMAE = bestMAE
	return report, nil
}

// evaluate computes the validation loss under the base weights and the
// denormalized per-parameter MAE.
func (t *Trainer) evaluate(val *dataset.Dataset) (float64, []float64, error) {
	nParams := t.model.ParamCount()
	var totalLoss float64
	mae := make([]float64, nParams)
	batches := 0

	idx := make([]int, val.Len())
	for i := range idx {
		idx[i] = i
	}
	for start := 0; start < len(idx); start += t.cfg.BatchSize {
		end := start + t.cfg.BatchSize
		if end > len(idx) {
			end = len(idx)
		}
		b, err := t.collate(val, idx[start:end])
		if err != nil {
			return 0, nil, err
		}
		preds, _, err := t.model.Forward(b, false)
		if err != nil {
			return 0, nil, err
		}
		loss, batchMAE, _ := computeLoss(preds, b.Targets, t.cfg.BaseWeights, t.cfg.MixLambda)
		totalLoss += loss
		for j := range mae {
			mae[j] += batchMAE[j]
		}
		batches++
	}

	for j := range mae {
		// Back to physical units for reporting.
		mae[j] = mae[j] / float64(batches) * t.stats.Std[j]
	}
	return totalLoss / float64(batches), mae, nil
}

// collate assembles a batch from dataset rows, normalizing the targets.
func (t *Trainer) collate(d *dataset.Dataset, idx []int) (*model.Batch, error) {
	trajs := make([][]float64, len(idx))
	horizons := make([]float64, len(idx))
	targets := make([][]float64, len(idx))
	for k, i := range idx {
		s := d.Samples[i]
		trajs[k] = s.Trajectory
		horizons[k] = s.T
		targets[k] = t.stats.Normalize(s.Params)
	}
	return model.Collate(trajs, horizons, targets)
}

func copyParams(params []*model.Param) map[string]*mat.Dense {
	out := make(map[string]*mat.Dense, len(params))
	for _, p := range params {
		out[p.Name] = mat.DenseCopyOf(p.Value)
	}
	return out
}

func restoreParams(params []*model.Param, saved map[string]*mat.Dense) {
	for _, p := range params {
		if v, ok := saved[p.Name]; ok {
			p.Value.Copy(v)
		}
	}
}
