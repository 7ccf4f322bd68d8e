package fl

import (
	"fmt"
	"slices"
	"strings"
)

type Strategy string

const (
	StrategyMean   Strategy = "mean"
	StrategyMedian Strategy = "median"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyMean, "average", "":
		return StrategyMean, nil
	case StrategyMedian:
		return StrategyMedian, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Aggregator combines one round of worker contributions into a single parameter set.
// Implementations never mutate the batch. Results do not depend on batch order,
// up to floating point summation order for the mean.
type Aggregator interface {
	Aggregate(batch []ParameterSet) (ParameterSet, error)
	Strategy() Strategy
}

func NewAggregator(s Strategy) (Aggregator, error) {
	switch s {
	case StrategyMean:
		return &MeanAggregator{}, nil
	case StrategyMedian:
		return &MedianAggregator{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// MeanAggregator averages every coordinate across the batch.
type MeanAggregator struct{}

func (a *MeanAggregator) Strategy() Strategy {
	return StrategyMean
}

func (a *MeanAggregator) Aggregate(batch []ParameterSet) (ParameterSet, error) {
	return Mean(batch)
}

// MedianAggregator takes the coordinate-wise median across the batch. The result
// stays within the range of the honest contributions as long as strictly fewer
// than half of the batch is corrupted. With half or more corrupted it offers no guarantee.
type MedianAggregator struct{}

func (a *MedianAggregator) Strategy() Strategy {
	return StrategyMedian
}

func (a *MedianAggregator) Aggregate(batch []ParameterSet) (ParameterSet, error) {
	return Median(batch)
}

func Mean(batch []ParameterSet) (ParameterSet, error) {
	if err := checkBatch(batch); err != nil {
		return nil, err
	}

	n := float64(len(batch))
	out := make(ParameterSet, len(batch[0]))
	for l := range batch[0] {
		layer := NewTensor(batch[0][l].Shape...)
		for _, ps := range batch {
			for i, v := range ps[l].Data {
				layer.Data[i] += v
			}
		}
		for i := range layer.Data {
			layer.Data[i] /= n
		}
		out[l] = layer
	}

	return out, nil
}

func Median(batch []ParameterSet) (ParameterSet, error) {
	if err := checkBatch(batch); err != nil {
		return nil, err
	}

	column := make([]float64, len(batch))
	out := make(ParameterSet, len(batch[0]))
	for l := range batch[0] {
		layer := NewTensor(batch[0][l].Shape...)
		for i := range layer.Data {
			for w, ps := range batch {
				column[w] = ps[l].Data[i]
			}
			layer.Data[i] = median(column)
		}
		out[l] = layer
	}

	return out, nil
}

// ApplyGradients performs params - lr * mean(grads). Gradient aggregation is
// always a plain mean and is not pluggable.
func ApplyGradients(params ParameterSet, grads []ParameterSet, lr float64) (ParameterSet, error) {
	avg, err := Mean(grads)
	if err != nil {
		return nil, err
	}
	if err := params.CheckShape(avg); err != nil {
		return nil, err
	}

	out := params.Clone()
	for l := range out {
		for i := range out[l].Data {
			out[l].Data[i] -= lr * avg[l].Data[i]
		}
	}

	return out, nil
}

func checkBatch(batch []ParameterSet) error {
	if len(batch) == 0 {
		return ErrNoUpdates
	}
	if err := batch[0].Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}
	for i := 1; i < len(batch); i++ {
		if err := batch[0].CheckShape(batch[i]); err != nil {
			return fmt.Errorf("update %d: %w", i, err)
		}
	}

	return nil
}

// median sorts values in place.
func median(values []float64) float64 {
	slices.Sort(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}

	return (values[mid-1] + values[mid]) / 2
}
