package fl_test

import (
	"testing"

	"github.com/absmach/robustfl/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func params(layers ...[]float64) fl.ParameterSet {
	ps := make(fl.ParameterSet, len(layers))
	for i, l := range layers {
		ps[i] = fl.Tensor{Shape: []int{len(l)}, Data: l}
	}

	return ps
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want fl.Strategy
		err  error
	}{
		{in: "mean", want: fl.StrategyMean},
		{in: "", want: fl.StrategyMean},
		{in: " Median ", want: fl.StrategyMedian},
		{in: "krum", err: fl.ErrUnknownStrategy},
	}
	for _, tc := range cases {
		got, err := fl.ParseStrategy(tc.in)
		assert.ErrorIs(t, err, tc.err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestAggregate(t *testing.T) {
	t.Parallel()
	batch := []fl.ParameterSet{
		params([]float64{1, 10}, []float64{0}),
		params([]float64{2, 20}, []float64{4}),
		params([]float64{6, 30}, []float64{8}),
		params([]float64{3, 40}, []float64{12}),
	}

	cases := []struct {
		name     string
		strategy fl.Strategy
		want     fl.ParameterSet
	}{
		{
			name:     "mean",
			strategy: fl.StrategyMean,
			want:     params([]float64{3, 25}, []float64{6}),
		},
		{
			name:     "median of even count averages middle values",
			strategy: fl.StrategyMedian,
			want:     params([]float64{2.5, 25}, []float64{6}),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg, err := fl.NewAggregator(tc.strategy)
			require.NoError(t, err)
			assert.Equal(t, tc.strategy, agg.Strategy())

			got, err := agg.Aggregate(batch)
			require.NoError(t, err)
			require.NoError(t, tc.want.CheckShape(got))
			for l := range tc.want {
				assert.InDeltaSlice(t, tc.want[l].Data, got[l].Data, 1e-9)
			}
		})
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	t.Parallel()
	a := params([]float64{0.1, -3})
	b := params([]float64{0.7, 5})
	c := params([]float64{0.2, 1})

	orders := [][]fl.ParameterSet{{a, b, c}, {c, b, a}, {b, a, c}, {c, a, b}}
	for _, s := range []fl.Strategy{fl.StrategyMean, fl.StrategyMedian} {
		agg, err := fl.NewAggregator(s)
		require.NoError(t, err)

		first, err := agg.Aggregate(orders[0])
		require.NoError(t, err)
		for _, order := range orders[1:] {
			got, err := agg.Aggregate(order)
			require.NoError(t, err)
			// Summation order may differ in the last bits.
			assert.InDeltaSlice(t, first[0].Data, got[0].Data, 1e-12, string(s))
		}
	}
}

func TestAggregateOutlier(t *testing.T) {
	t.Parallel()
	honest := []fl.ParameterSet{
		params([]float64{1.0, 2.0, 3.0}),
		params([]float64{1.1, 2.1, 2.9}),
		params([]float64{0.9, 1.9, 3.1}),
		params([]float64{1.05, 2.05, 3.05}),
	}
	corrupted := params([]float64{1e9, 1e9, 1e9})
	batch := append([]fl.ParameterSet{corrupted}, honest...)

	mean, err := fl.Mean(batch)
	require.NoError(t, err)
	for _, v := range mean[0].Data {
		assert.Greater(t, v, 1e8)
	}

	median, err := fl.Median(batch)
	require.NoError(t, err)
	for i, v := range median[0].Data {
		lo, hi := honest[0][0].Data[i], honest[0][0].Data[i]
		for _, h := range honest {
			lo = min(lo, h[0].Data[i])
			hi = max(hi, h[0].Data[i])
		}
		assert.GreaterOrEqual(t, v, lo)
		assert.LessOrEqual(t, v, hi)
	}
}

func TestAggregateErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		desc  string
		batch []fl.ParameterSet
		err   error
	}{
		{
			desc:  "empty batch",
			batch: nil,
			err:   fl.ErrNoUpdates,
		},
		{
			desc:  "different layer count",
			batch: []fl.ParameterSet{params([]float64{1}), params([]float64{1}, []float64{2})},
			err:   fl.ErrShapeMismatch,
		},
		{
			desc:  "different layer shape",
			batch: []fl.ParameterSet{params([]float64{1, 2}), params([]float64{1})},
			err:   fl.ErrShapeMismatch,
		},
		{
			desc:  "shape does not match data",
			batch: []fl.ParameterSet{{fl.Tensor{Shape: []int{3}, Data: []float64{1}}}},
			err:   fl.ErrShapeMismatch,
		},
	}

	for _, tc := range cases {
		for _, s := range []fl.Strategy{fl.StrategyMean, fl.StrategyMedian} {
			agg, err := fl.NewAggregator(s)
			require.NoError(t, err)
			_, err = agg.Aggregate(tc.batch)
			assert.ErrorIs(t, err, tc.err, tc.desc)
		}
	}
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	t.Parallel()
	batch := []fl.ParameterSet{
		params([]float64{3, 1, 2}),
		params([]float64{1, 3, 2}),
		params([]float64{2, 2, 9}),
	}
	before := make([]fl.ParameterSet, len(batch))
	for i := range batch {
		before[i] = batch[i].Clone()
	}

	_, err := fl.Median(batch)
	require.NoError(t, err)
	_, err = fl.Mean(batch)
	require.NoError(t, err)
	assert.Equal(t, before, batch)
}

func TestApplyGradients(t *testing.T) {
	t.Parallel()
	global := params([]float64{1, 1}, []float64{0})
	grads := []fl.ParameterSet{
		params([]float64{2, 0}, []float64{1}),
		params([]float64{4, 2}, []float64{3}),
	}

	got, err := fl.ApplyGradients(global, grads, 0.5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-0.5, 0.5}, got[0].Data, 1e-12)
	assert.InDeltaSlice(t, []float64{-1}, got[1].Data, 1e-12)
	assert.Equal(t, []float64{1, 1}, global[0].Data)

	_, err = fl.ApplyGradients(params([]float64{1}), grads, 0.5)
	assert.ErrorIs(t, err, fl.ErrShapeMismatch)
}

func TestZeros(t *testing.T) {
	t.Parallel()
	ps := fl.Zeros(fl.Architecture{Family: "linear", Shapes: [][]int{{3, 1}, {1}}})
	require.Len(t, ps, 2)
	assert.Equal(t, []float64{0, 0, 0}, ps[0].Data)
	assert.Equal(t, 1, ps[1].Size())
	assert.NoError(t, ps.Validate())
}
