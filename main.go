package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/dataset"
	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/model"
	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/sde"
	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/train"
)

// envOverrides are environment knobs layered under the flags: a set flag
// always wins, the environment adjusts the defaults.
type envOverrides struct {
	DataDir string `envconfig:"SDE_DATA_DIR"`
	Seed    int64  `envconfig:"SDE_SEED"`
	Workers int    `envconfig:"SDE_WORKERS"`
}

func main() {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		fmt.Fprintf(os.Stderr, "error reading environment: %v\n", err)
		os.Exit(1)
	}
	if env.DataDir == "" {
		env.DataDir = "."
	}
	if env.Workers == 0 {
		env.Workers = runtime.NumCPU()
	}

	root := &cobra.Command{
		Use:           "tsde",
		Short:         "Simulate stable-noise SDE trajectories and estimate their parameters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(generateCmd(env), trainCmd(env))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func generateCmd(env envOverrides) *cobra.Command {
	var (
		system  string
		samples int
		trainN  int
		testN   int
		seed    int64
		workers int
		outdir  string
		binary  bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build a trajectory dataset and write its CSV splits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := dataset.DefaultConfig(system)
			cfg.NumSamples = samples
			cfg.TrainCount = trainN
			cfg.TestCount = testN
			cfg.Seed = seed
			cfg.Workers = workers

			if err := os.MkdirAll(outdir, 0o755); err != nil {
				return fmt.Errorf("creating output dir: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Generating %d %s trajectories (%d train / %d test), workers %d, seed %d\n",
				cfg.NumSamples, cfg.System, cfg.TrainCount, cfg.TestCount, cfg.Workers, cfg.Seed)

			d, err := dataset.Build(cfg)
			if err != nil {
				return err
			}
			if err := dataset.WriteCSVFiles(d, outdir, cfg.TrainCount, cfg.TestCount); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %s splits to %s\n", cfg.System, outdir)

			if binary {
				path := filepath.Join(outdir, cfg.System+".sded")
				if err := dataset.WriteBinary(d, path); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "geneswitch", "SDE system ("+strings.Join(sde.Names(), ", ")+")")
	cmd.Flags().IntVar(&samples, "samples", 4000, "total trajectories to generate")
	cmd.Flags().IntVar(&trainN, "train", 3000, "training rows in the split")
	cmd.Flags().IntVar(&testN, "test", 1000, "test rows in the split")
	cmd.Flags().Int64Var(&seed, "seed", env.Seed, "random seed (0 = random)")
	cmd.Flags().IntVar(&workers, "workers", env.Workers, "parallel simulation workers")
	cmd.Flags().StringVar(&outdir, "outdir", env.DataDir, "output directory for dataset files")
	cmd.Flags().BoolVar(&binary, "binary", false, "also write the binary dataset file")
	return cmd
}

func trainCmd(env envOverrides) *cobra.Command {
	var (
		system   string
		datadir  string
		epochs   int
		batch    int
		lr       float64
		diffLR   float64
		clip     float64
		patience int
		schedule string
		warmup   int
		lambda   float64
		focus    float64
		seed     int64
		snapshot string
		format   string
		verbose  bool

		dim      int
		layers   int
		heads    int
		dropout  float64
		pooling  string
		headMode string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the sequence regressor to a generated dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := sde.Get(system)
			if err != nil {
				return err
			}

			trainSet, err := dataset.ReadCSV(filepath.Join(datadir, system+"_train.csv"), system)
			if err != nil {
				return err
			}
			valSet, err := dataset.ReadCSV(filepath.Join(datadir, system+"_test.csv"), system)
			if err != nil {
				return err
			}
			stats, err := dataset.ComputeStatistics(trainSet)
			if err != nil {
				return err
			}

			mcfg := model.DefaultConfig(sys.ParamNames, sys.Difficult)
			mcfg.ModelDim = dim
			mcfg.Layers = layers
			mcfg.Heads = heads
			mcfg.Dropout = dropout
			mcfg.Pooling = pooling
			mcfg.HeadMode = headMode
			mcfg.Seed = seed
			m, err := model.New(mcfg)
			if err != nil {
				return err
			}

			tcfg := train.DefaultConfig(sys.BaseLossWeights)
			tcfg.Epochs = epochs
			tcfg.BatchSize = batch
			tcfg.LR = lr
			tcfg.DifficultLR = diffLR
			tcfg.ClipNorm = clip
			tcfg.Patience = patience
			tcfg.Schedule = schedule
			tcfg.WarmupSteps = warmup
			tcfg.MixLambda = lambda
			tcfg.Seed = seed
			tcfg.SnapshotPath = snapshot
			tcfg.Verbose = verbose
			tcfg.FocusMultipliers = focusMultipliers(sys, focus)

			tr, err := train.New(tcfg, m, stats)
			if err != nil {
				return err
			}
			report, err := tr.Run(trainSet, valSet)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return train.WriteJSONFinal(os.Stdout, *report)
			default:
				train.WriteTextFinal(os.Stdout, *report)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "geneswitch", "SDE system ("+strings.Join(sde.Names(), ", ")+")")
	cmd.Flags().StringVar(&datadir, "datadir", env.DataDir, "directory holding the generated CSV splits")
	cmd.Flags().IntVar(&epochs, "epochs", 100, "training epochs")
	cmd.Flags().IntVar(&batch, "batch", 32, "minibatch size")
	cmd.Flags().Float64Var(&lr, "lr", 1e-3, "learning rate for trunk and plain heads")
	cmd.Flags().Float64Var(&diffLR, "difficult-lr", 3e-3, "learning rate for difficult-parameter heads")
	cmd.Flags().Float64Var(&clip, "clip", 1.0, "global gradient norm cap (0 = off)")
	cmd.Flags().IntVar(&patience, "patience", 10, "epochs without improvement before stopping (0 = off)")
	cmd.Flags().StringVar(&schedule, "schedule", train.ScheduleCosine, "learning-rate schedule (none, cosine)")
	cmd.Flags().IntVar(&warmup, "warmup", 100, "linear warmup steps")
	cmd.Flags().Float64Var(&lambda, "lambda", 0.5, "MAE share of the mixed loss in [0, 1]")
	cmd.Flags().Float64Var(&focus, "focus", 2.0, "late-training loss multiplier for difficult parameters")
	cmd.Flags().Int64Var(&seed, "seed", env.Seed, "random seed (0 = random)")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "path for the best-model snapshot (empty = off)")
	cmd.Flags().StringVar(&format, "format", "text", "final report format (text, json)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "report every epoch")

	cmd.Flags().IntVar(&dim, "dim", 64, "model embedding width")
	cmd.Flags().IntVar(&layers, "layers", 2, "encoder blocks")
	cmd.Flags().IntVar(&heads, "heads", 4, "attention heads")
	cmd.Flags().Float64Var(&dropout, "dropout", 0.1, "dropout rate")
	cmd.Flags().StringVar(&pooling, "pooling", model.PoolAttention, "pooling mode (mean, attention)")
	cmd.Flags().StringVar(&headMode, "head-mode", model.HeadPerParam, "output heads (shared, per-param)")
	return cmd
}

// focusMultipliers builds the per-parameter late-training multipliers: 1 for
// ordinary parameters, focus for the system's difficult ones.
func focusMultipliers(sys sde.System, focus float64) []float64 {
	if focus == 1 {
		return nil
	}
	out := make([]float64, sys.ParamCount())
	for j, name := range sys.ParamNames {
		out[j] = 1
		for _, d := range sys.Difficult {
			if d == name {
				out[j] = focus
				break
			}
		}
	}
	return out
}
