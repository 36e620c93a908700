package train

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// EpochReport summarizes one epoch.
type EpochReport struct {
	Epoch     int       `json:"epoch"`
	TrainLoss float64   `json:"train_loss"`
	ValLoss   float64   `json:"val_loss"`
	ValMAE    []float64 `json:"val_mae"` // denormalized, aligned with ParamNames
	LR        float64   `json:"lr"`
	Improved  bool      `json:"improved"`
}

// Report summarizes the entire run.
type Report struct {
	RunID        string        `json:"run_id"`
	System       string        `json:"system"`
	Config       Config        `json:"config"`
	ParamNames   []string      `json:"param_names"`
	Epochs       []EpochReport `json:"epochs,omitempty"`
	EpochsRun    int           `json:"epochs_run"`
	BestEpoch    int           `json:"best_epoch"`
	BestValLoss  float64       `json:"best_val_loss"`
	BestValMAE   []float64     `json:"best_val_mae"`
	EarlyStopped bool          `json:"early_stopped"`
	Timestamp    time.Time     `json:"timestamp"`
}

// WriteTextEpoch writes an epoch report in human-readable format.
func WriteTextEpoch(w io.Writer, r EpochReport) {
	marker := " "
	if r.Improved {
		marker = "*"
	}
	fmt.Fprintf(w, "Epoch %4d %s| train %.6f | val %.6f | lr %.2e |", r.Epoch, marker, r.TrainLoss, r.ValLoss, r.LR)
	for _, m := range r.ValMAE {
		fmt.Fprintf(w, " %.4f", m)
	}
	fmt.Fprintln(w)
}

// WriteTextFinal writes the final report in human-readable format.
func WriteTextFinal(w io.Writer, r Report) {
	fmt.Fprintln(w, "\n========== FINAL RESULT ==========")
	fmt.Fprintf(w, "Run:       %s\n", r.RunID)
	fmt.Fprintf(w, "System:    %s\n", r.System)
	fmt.Fprintf(w, "Epochs:    %d (best at %d)\n", r.EpochsRun, r.BestEpoch)
	fmt.Fprintf(w, "Val loss:  %.6f\n", r.BestValLoss)
	for j, name := range r.ParamNames {
		fmt.Fprintf(w, "MAE %-9s %.4f\n", name+":", r.BestValMAE[j])
	}
	if r.EarlyStopped {
		fmt.Fprintln(w, "Stopped:   early (patience exhausted)")
	}
	fmt.Fprintln(w, "==================================")
}

// WriteJSONFinal writes the final report as JSON.
func WriteJSONFinal(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
