package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/sde"
)

// CSV layout: trajectory,T,N,<param columns in system order>. The trajectory
// cell is a space-separated float list parsed strictly with strconv, never
// evaluated as an expression, so a hostile file cannot execute anything.

// WriteCSVFiles writes <system>_train.csv, <system>_test.csv and
// <system>_full_dataset.csv under dir, splitting by generation order.
func WriteCSVFiles(d *Dataset, dir string, trainCount, testCount int) error {
	sys, err := sde.Get(d.System)
	if err != nil {
		return err
	}
	train, test, err := d.Split(trainCount, testCount)
	if err != nil {
		return err
	}
	files := []struct {
		name    string
		samples []Sample
	}{
		{d.System + "_train.csv", train.Samples},
		{d.System + "_test.csv", test.Samples},
		{d.System + "_full_dataset.csv", d.Samples},
	}
	for _, f := range files {
		if err := writeCSV(filepath.Join(dir, f.name), sys, f.samples); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, sys sde.System, samples []Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"trajectory", "T", "N"}, sys.ParamNames...)
	if err := w.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, s := range samples {
		row[0] = formatTrajectory(s.Trajectory)
		row[1] = strconv.FormatFloat(s.T, 'g', -1, 64)
		row[2] = strconv.Itoa(s.N)
		for j, p := range s.Params {
			row[3+j] = strconv.FormatFloat(p, 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadCSV loads one CSV file written by writeCSV. The system tag is explicit;
// the column layout is checked against it, never guessed from column presence.
func ReadCSV(path, system string) (*Dataset, error) {
	sys, err := sde.Get(system)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: reading %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset: %s has no header", path)
	}

	want := append([]string{"trajectory", "T", "N"}, sys.ParamNames...)
	got := records[0]
	if len(got) != len(want) {
		return nil, fmt.Errorf("dataset: %s has %d columns, %s expects %d", path, len(got), system, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return nil, fmt.Errorf("dataset: %s column %d is %q, expected %q", path, i, got[i], want[i])
		}
	}

	d := &Dataset{System: system, Samples: make([]Sample, 0, len(records)-1)}
	for line, rec := range records[1:] {
		s, err := parseRow(rec, sys.ParamCount())
		if err != nil {
			return nil, fmt.Errorf("dataset: %s row %d: %w", path, line+2, err)
		}
		d.Samples = append(d.Samples, s)
	}
	return d, nil
}

func parseRow(rec []string, paramCount int) (Sample, error) {
	traj, err := parseTrajectory(rec[0])
	if err != nil {
		return Sample{}, err
	}
	t, err := strconv.ParseFloat(rec[1], 64)
	if err != nil {
		return Sample{}, fmt.Errorf("T: %w", err)
	}
	n, err := strconv.Atoi(rec[2])
	if err != nil {
		return Sample{}, fmt.Errorf("N: %w", err)
	}
	if n != len(traj) {
		return Sample{}, fmt.Errorf("N=%d but trajectory has %d samples", n, len(traj))
	}
	params := make([]float64, paramCount)
	for j := 0; j < paramCount; j++ {
		params[j], err = strconv.ParseFloat(rec[3+j], 64)
		if err != nil {
			return Sample{}, fmt.Errorf("parameter %d: %w", j, err)
		}
	}
	return Sample{Trajectory: traj, T: t, N: n, Params: params}, nil
}

func formatTrajectory(traj []float64) string {
	var b strings.Builder
	for i, x := range traj {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
	return b.String()
}

func parseTrajectory(cell string) ([]float64, error) {
	fields := strings.Fields(cell)
	traj := make([]float64, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("trajectory sample %d: %w", i, err)
		}
		traj[i] = x
	}
	return traj, nil
}
