package train

import "math"

// epochWeights returns the per-parameter training weights for an epoch: the
// base weights, scaled by the focus multipliers once the epoch index passes
// FocusEpochFrac of the budget.
func epochWeights(cfg Config, epoch int) []float64 {
	w := append([]float64(nil), cfg.BaseWeights...)
	if cfg.FocusMultipliers == nil {
		return w
	}
	if float64(epoch) >= cfg.FocusEpochFrac*float64(cfg.Epochs) {
		for j := range w {
			w[j] *= cfg.FocusMultipliers[j]
		}
	}
	return w
}

// computeLoss evaluates the weighted mixed objective over one batch of
// normalized predictions and targets:
//
//	L = (1/n) * sum_i sum_j w_j * (lambda*|e_ij| + (1-lambda)*e_ij^2)
//
// It returns the scalar loss, the unweighted per-parameter MAE, and the
// gradient rows dL/dPred for the backward pass.
func computeLoss(preds, targets [][]float64, weights []float64, lambda float64) (float64, []float64, [][]float64) {
	n := float64(len(preds))
	nParams := len(weights)
	var total float64
	mae := make([]float64, nParams)
	dpreds := make([][]float64, len(preds))

	for i := range preds {
		dpreds[i] = make([]float64, nParams)
		for j := 0; j < nParams; j++ {
			e := preds[i][j] - targets[i][j]
			ae := math.Abs(e)
			mae[j] += ae / n
			total += weights[j] * (lambda*ae + (1-lambda)*e*e) / n

			var sign float64
			if e > 0 {
				sign = 1
			} else if e < 0 {
				sign = -1
			}
			dpreds[i][j] = weights[j] * (lambda*sign + (1-lambda)*2*e) / n
		}
	}
	return total, mae, dpreds
}
