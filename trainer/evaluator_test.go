package trainer_test

import (
	"context"
	"testing"

	"github.com/absmach/robustfl/pkg/dataset"
	"github.com/absmach/robustfl/pkg/fl"
	"github.com/absmach/robustfl/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatorNormalize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, err := trainer.NewEvaluator(ctx, trainer.LinearArchitecture(1), lineData(t))
	require.NoError(t, err)

	// y = 8x' + 1 with x' = x / 4.
	scaled := fl.ParameterSet{
		{Shape: []int{1, 1}, Data: []float64{8}},
		{Shape: []int{1}, Data: []float64{1}},
	}
	raw, err := e.Evaluate(ctx, scaled)
	require.NoError(t, err)
	assert.Greater(t, raw["mse"], 1.0)

	norm := dataset.NewMinMaxNormalizer([]float64{0}, []float64{4})
	require.NoError(t, e.Normalize(norm))
	got, err := e.Evaluate(ctx, scaled)
	require.NoError(t, err)
	assert.InDelta(t, 0, got["mse"], 1e-12)

	require.NoError(t, e.Normalize(norm))
	got, err = e.Evaluate(ctx, scaled)
	require.NoError(t, err)
	assert.InDelta(t, 0, got["mse"], 1e-12)
}

func TestNewEvaluatorErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		desc string
		arch fl.Architecture
		err  error
	}{
		{desc: "negative dimension", arch: fl.Architecture{Family: trainer.FamilyLinear, Shapes: [][]int{{-1, 1}, {1}}}, err: fl.ErrShapeMismatch},
		{desc: "unknown family", arch: fl.Architecture{Family: "svm"}, err: trainer.ErrUnknownFamily},
		{desc: "architecture does not fit data", arch: trainer.LinearArchitecture(3), err: trainer.ErrArchitecture},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := trainer.NewEvaluator(context.Background(), tc.arch, lineData(t))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestEvaluatorNormalizeWidthMismatch(t *testing.T) {
	t.Parallel()
	e, err := trainer.NewEvaluator(context.Background(), trainer.LinearArchitecture(1), lineData(t))
	require.NoError(t, err)
	assert.ErrorIs(t, e.Normalize(dataset.NewMinMaxNormalizer([]float64{0, 0}, []float64{1, 1})), dataset.ErrWidthMismatch)
}
