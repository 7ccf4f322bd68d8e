// Package dataset holds the worker-local training data and the column
// statistics exchanged during the preprocessing handshake. Raw rows never
// leave the worker; only per-column summaries do.
package dataset

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmpty         = errors.New("dataset is empty")
	ErrRaggedRows    = errors.New("rows have different widths")
	ErrWidthMismatch = errors.New("feature count mismatch")
)

// Dataset is a dense feature matrix X with one target per row in Y.
type Dataset struct {
	X [][]float64
	Y []float64
}

func New(x [][]float64, y []float64) (*Dataset, error) {
	if len(x) == 0 {
		return nil, ErrEmpty
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrRaggedRows, len(x), len(y))
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrRaggedRows, i, len(row), width)
		}
	}

	return &Dataset{X: x, Y: y}, nil
}

func (d *Dataset) Len() int {
	return len(d.X)
}

func (d *Dataset) NumFeatures() int {
	if len(d.X) == 0 {
		return 0
	}

	return len(d.X[0])
}

// Means returns the per-column arithmetic mean.
func (d *Dataset) Means() []float64 {
	means := make([]float64, d.NumFeatures())
	for _, row := range d.X {
		for j, v := range row {
			means[j] += v
		}
	}
	n := float64(d.Len())
	for j := range means {
		means[j] /= n
	}

	return means
}

// Variances returns the per-column mean squared deviation from globalMeans.
func (d *Dataset) Variances(globalMeans []float64) ([]float64, error) {
	if len(globalMeans) != d.NumFeatures() {
		return nil, fmt.Errorf("%w: got %d means for %d features", ErrWidthMismatch, len(globalMeans), d.NumFeatures())
	}
	vars := make([]float64, d.NumFeatures())
	for _, row := range d.X {
		for j, v := range row {
			dv := v - globalMeans[j]
			vars[j] += dv * dv
		}
	}
	n := float64(d.Len())
	for j := range vars {
		vars[j] /= n
	}

	return vars, nil
}

func (d *Dataset) MinMax() (mins, maxs []float64) {
	mins = make([]float64, d.NumFeatures())
	maxs = make([]float64, d.NumFeatures())
	for j := range mins {
		mins[j] = math.Inf(1)
		maxs[j] = math.Inf(-1)
	}
	for _, row := range d.X {
		for j, v := range row {
			mins[j] = min(mins[j], v)
			maxs[j] = max(maxs[j], v)
		}
	}

	return mins, maxs
}

// Apply transforms every row in place.
func (d *Dataset) Apply(n Normalizer) error {
	if len(n.Offset) != d.NumFeatures() || len(n.Scale) != d.NumFeatures() {
		return fmt.Errorf("%w: normalizer has %d columns, dataset has %d", ErrWidthMismatch, len(n.Offset), d.NumFeatures())
	}
	for _, row := range d.X {
		n.Transform(row)
	}

	return nil
}

// Rows returns the rows at the given indices.
func (d *Dataset) Rows(idx []int) ([][]float64, []float64) {
	x := make([][]float64, len(idx))
	y := make([]float64, len(idx))
	for i, j := range idx {
		x[i] = d.X[j]
		y[i] = d.Y[j]
	}

	return x, y
}
