// Package train drives optimization of the sequence regressor: minibatch
// Adam with per-group learning rates, a dynamically weighted multi-task loss,
// gradient clipping, LR scheduling, and early stopping with best-snapshot
// restore.
package train

import "fmt"

// Learning-rate schedule names accepted by Config.Schedule.
const (
	ScheduleNone   = "none"
	ScheduleCosine = "cosine"
)

// Config holds all training hyperparameters.
type Config struct {
	Epochs      int     `json:"epochs"`
	BatchSize   int     `json:"batch_size"`
	LR          float64 `json:"lr"`           // trunk and plain head parameters
	DifficultLR float64 `json:"difficult_lr"` // heads in the difficult group
	ClipNorm    float64 `json:"clip_norm"`    // global gradient norm cap, 0 disables
	Patience    int     `json:"patience"`     // epochs without improvement before stopping, 0 disables
	MinDelta    float64 `json:"min_delta"`    // minimum validation improvement that counts
	Schedule    string  `json:"schedule"`     // ScheduleNone or ScheduleCosine
	WarmupSteps int     `json:"warmup_steps"` // linear warmup steps before the schedule applies

	// MixLambda blends the per-parameter losses: lambda*MAE + (1-lambda)*MSE.
	MixLambda float64 `json:"mix_lambda"`

	// BaseWeights holds one positive weight per target parameter. Past
	// FocusEpochFrac of the epoch budget the training loss additionally scales
	// each weight by the matching focus multiplier; validation always uses the
	// base weights so early stopping compares like with like across epochs.
	BaseWeights      []float64 `json:"base_weights"`
	FocusEpochFrac   float64   `json:"focus_epoch_frac"`
	FocusMultipliers []float64 `json:"focus_multipliers,omitempty"`

	Seed         int64  `json:"seed"`
	SnapshotPath string `json:"snapshot_path,omitempty"` // "" disables on-disk snapshots
	Verbose      bool   `json:"verbose"`
}

// DefaultConfig returns the standard training setup for the given
// per-parameter base loss weights.
func DefaultConfig(baseWeights []float64) Config {
	return Config{
		Epochs:         100,
		BatchSize:      32,
		LR:             1e-3,
		DifficultLR:    3e-3,
		ClipNorm:       1.0,
		Patience:       10,
		MinDelta:       1e-4,
		Schedule:       ScheduleCosine,
		WarmupSteps:    100,
		MixLambda:      0.5,
		BaseWeights:    baseWeights,
		FocusEpochFrac: 0.5,
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("train: Epochs must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("train: BatchSize must be positive")
	}
	if c.LR <= 0 || c.DifficultLR <= 0 {
		return fmt.Errorf("train: learning rates must be positive")
	}
	if c.ClipNorm < 0 {
		return fmt.Errorf("train: ClipNorm must be non-negative")
	}
	if c.Patience < 0 || c.WarmupSteps < 0 {
		return fmt.Errorf("train: Patience and WarmupSteps must be non-negative")
	}
	if c.MixLambda < 0 || c.MixLambda > 1 {
		return fmt.Errorf("train: MixLambda %g outside [0, 1]", c.MixLambda)
	}
	if c.FocusEpochFrac < 0 || c.FocusEpochFrac > 1 {
		return fmt.Errorf("train: FocusEpochFrac %g outside [0, 1]", c.FocusEpochFrac)
	}
	if c.Schedule != ScheduleNone && c.Schedule != ScheduleCosine {
		return fmt.Errorf("train: unknown schedule %q", c.Schedule)
	}
	if len(c.BaseWeights) == 0 {
		return fmt.Errorf("train: no base loss weights")
	}
	for j, w := range c.BaseWeights {
		if w <= 0 {
			return fmt.Errorf("train: base weight %d is %g, must be positive", j, w)
		}
	}
	if c.FocusMultipliers != nil {
		if len(c.FocusMultipliers) != len(c.BaseWeights) {
			return fmt.Errorf("train: %d focus multipliers for %d weights", len(c.FocusMultipliers), len(c.BaseWeights))
		}
		for j, m := range c.FocusMultipliers {
			if m <= 0 {
				return fmt.Errorf("train: focus multiplier %d is %g, must be positive", j, m)
			}
		}
	}
	return nil
}
