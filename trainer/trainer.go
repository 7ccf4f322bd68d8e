// Package trainer defines the local computation a worker runs on its own data.
package trainer

import (
	"context"
	"errors"
	"fmt"

	"github.com/absmach/robustfl/pkg/dataset"
	"github.com/absmach/robustfl/pkg/fl"
)

var (
	ErrNotInitialized   = errors.New("trainer is not initialized")
	ErrUnknownFamily    = errors.New("unknown model family")
	ErrArchitecture     = errors.New("architecture does not fit the dataset")
	ErrUnsupportedSetup = errors.New("unsupported compile setting")
)

type CompileConfig struct {
	Optimizer    string
	Loss         string
	Metric       string
	LearningRate float64
}

type Metrics map[string]float64

// LocalTrainer is implemented once per model family. Parameter sets passed in
// are never retained; implementations copy what they keep.
type LocalTrainer interface {
	Init(ctx context.Context, arch fl.Architecture) error
	Compile(ctx context.Context, cfg CompileConfig) error
	Parameters() fl.ParameterSet
	SetParameters(params fl.ParameterSet) error
	// LocalTrain runs epochs of minibatch training starting from params.
	LocalTrain(ctx context.Context, params fl.ParameterSet, batchSize, epochs int) (fl.ParameterSet, error)
	// LocalGradient evaluates the loss gradient at params over the next
	// numData rows of the local dataset, wrapping around at the end.
	LocalGradient(ctx context.Context, params fl.ParameterSet, numData int) (fl.ParameterSet, error)
	Evaluate(ctx context.Context, params fl.ParameterSet) (Metrics, error)
}

const FamilyLinear = "linear"

// New returns the trainer for family bound to data.
func New(family string, data *dataset.Dataset) (LocalTrainer, error) {
	switch family {
	case FamilyLinear:
		return NewLinear(data), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
}

// Cursor walks a dataset of a given size in fixed-size windows, wrapping
// around at the end so successive windows sweep all rows.
type Cursor struct {
	pos int
}

// Next returns the next n row indices. When n is not positive or exceeds
// size, every row is returned and the cursor does not move.
func (c *Cursor) Next(n, size int) []int {
	if n <= 0 || n > size {
		idx := make([]int, size)
		for i := range idx {
			idx[i] = i
		}

		return idx
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = (c.pos + i) % size
	}
	c.pos = (c.pos + n) % size

	return idx
}

func (c *Cursor) Reset() {
	c.pos = 0
}

func (c *Cursor) Position() int {
	return c.pos
}
