package trainer

import (
	"context"
	"fmt"
	"slices"

	"github.com/absmach/robustfl/pkg/dataset"
	"github.com/absmach/robustfl/pkg/fl"
)

const defaultLearningRate = 0.01

// LinearArchitecture describes y = Xw + b for the given feature count.
func LinearArchitecture(features int) fl.Architecture {
	return fl.Architecture{Family: FamilyLinear, Shapes: [][]int{{features, 1}, {1}}}
}

// Linear is a least squares linear regression trained with plain SGD.
// Rows are visited in dataset order so runs are reproducible.
type Linear struct {
	data   *dataset.Dataset
	params fl.ParameterSet
	lr     float64
	cursor Cursor
}

var _ LocalTrainer = (*Linear)(nil)

func NewLinear(data *dataset.Dataset) *Linear {
	return &Linear{data: data, lr: defaultLearningRate}
}

func (l *Linear) Init(_ context.Context, arch fl.Architecture) error {
	if len(arch.Shapes) == 0 {
		arch = LinearArchitecture(l.data.NumFeatures())
	}
	want := LinearArchitecture(l.data.NumFeatures())
	if !slices.EqualFunc(arch.Shapes, want.Shapes, func(a, b []int) bool { return slices.Equal(a, b) }) {
		return fmt.Errorf("%w: got %v, want %v", ErrArchitecture, arch.Shapes, want.Shapes)
	}
	l.params = fl.Zeros(want)
	l.cursor.Reset()

	return nil
}

func (l *Linear) Compile(_ context.Context, cfg CompileConfig) error {
	switch cfg.Optimizer {
	case "", "sgd":
	default:
		return fmt.Errorf("%w: optimizer %q", ErrUnsupportedSetup, cfg.Optimizer)
	}
	switch cfg.Loss {
	case "", "mse":
	default:
		return fmt.Errorf("%w: loss %q", ErrUnsupportedSetup, cfg.Loss)
	}
	if cfg.LearningRate > 0 {
		l.lr = cfg.LearningRate
	}

	return nil
}

func (l *Linear) Parameters() fl.ParameterSet {
	return l.params.Clone()
}

func (l *Linear) SetParameters(params fl.ParameterSet) error {
	if l.params == nil {
		return ErrNotInitialized
	}
	if err := l.params.CheckShape(params); err != nil {
		return err
	}
	l.params = params.Clone()

	return nil
}

func (l *Linear) LocalTrain(ctx context.Context, params fl.ParameterSet, batchSize, epochs int) (fl.ParameterSet, error) {
	if err := l.SetParameters(params); err != nil {
		return nil, err
	}
	n := l.data.Len()
	if batchSize <= 0 || batchSize > n {
		batchSize = n
	}

	for range max(epochs, 1) {
		for start := 0; start < n; start += batchSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			end := min(start+batchSize, n)
			idx := make([]int, 0, end-start)
			for i := start; i < end; i++ {
				idx = append(idx, i)
			}
			grad := l.gradient(l.params, idx)
			for k := range l.params {
				for i := range l.params[k].Data {
					l.params[k].Data[i] -= l.lr * grad[k].Data[i]
				}
			}
		}
	}

	return l.params.Clone(), nil
}

func (l *Linear) LocalGradient(ctx context.Context, params fl.ParameterSet, numData int) (fl.ParameterSet, error) {
	if err := l.SetParameters(params); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return l.gradient(l.params, l.cursor.Next(numData, l.data.Len())), nil
}

func (l *Linear) Evaluate(ctx context.Context, params fl.ParameterSet) (Metrics, error) {
	if l.params == nil {
		return nil, ErrNotInitialized
	}
	if err := l.params.CheckShape(params); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sse float64
	for i, row := range l.data.X {
		r := predict(params, row) - l.data.Y[i]
		sse += r * r
	}

	return Metrics{"mse": sse / float64(l.data.Len())}, nil
}

// gradient of the mean squared error over the rows in idx.
func (l *Linear) gradient(params fl.ParameterSet, idx []int) fl.ParameterSet {
	grad := fl.Zeros(LinearArchitecture(l.data.NumFeatures()))
	if len(idx) == 0 {
		return grad
	}
	x, y := l.data.Rows(idx)
	scale := 2 / float64(len(idx))
	for i, row := range x {
		r := predict(params, row) - y[i]
		for j, v := range row {
			grad[0].Data[j] += scale * r * v
		}
		grad[1].Data[0] += scale * r
	}

	return grad
}

func predict(params fl.ParameterSet, row []float64) float64 {
	out := params[1].Data[0]
	for j, v := range row {
		out += params[0].Data[j] * v
	}

	return out
}
