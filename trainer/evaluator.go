package trainer

import (
	"context"
	"sync"

	"github.com/absmach/robustfl/pkg/dataset"
	"github.com/absmach/robustfl/pkg/fl"
)

// Evaluator scores parameters on a held-out dataset. Once a session's
// preprocessor is known, Normalize maps the held-out features the same way
// the workers mapped theirs.
type Evaluator struct {
	mu         sync.Mutex
	data       *dataset.Dataset
	arch       fl.Architecture
	tr         LocalTrainer
	normalized bool
}

func NewEvaluator(ctx context.Context, arch fl.Architecture, data *dataset.Dataset) (*Evaluator, error) {
	if len(arch.Shapes) > 0 {
		if err := arch.Validate(); err != nil {
			return nil, err
		}
	}
	e := &Evaluator{data: data, arch: arch}
	if err := e.init(ctx); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Evaluator) init(ctx context.Context) error {
	tr, err := New(e.arch.Family, e.data)
	if err != nil {
		return err
	}
	if err := tr.Init(ctx, e.arch); err != nil {
		return err
	}
	e.tr = tr

	return nil
}

// Normalize applies n to the held-out features. Only the first call has an
// effect.
func (e *Evaluator) Normalize(n dataset.Normalizer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.normalized {
		return nil
	}
	if err := e.data.Apply(n); err != nil {
		return err
	}
	e.normalized = true

	return e.init(context.Background())
}

func (e *Evaluator) Evaluate(ctx context.Context, params fl.ParameterSet) (Metrics, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.tr.Evaluate(ctx, params)
}
