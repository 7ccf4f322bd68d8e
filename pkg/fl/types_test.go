package fl_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/absmach/robustfl/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchitectureValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		desc string
		arch fl.Architecture
		err  error
	}{
		{desc: "valid", arch: fl.Architecture{Family: "linear", Shapes: [][]int{{3, 1}, {1}}}},
		{desc: "no layers", arch: fl.Architecture{Family: "linear"}, err: fl.ErrShapeMismatch},
		{desc: "empty layer", arch: fl.Architecture{Shapes: [][]int{{}}}, err: fl.ErrShapeMismatch},
		{desc: "negative dimension", arch: fl.Architecture{Shapes: [][]int{{-1, 1}}}, err: fl.ErrShapeMismatch},
		{desc: "zero dimension", arch: fl.Architecture{Shapes: [][]int{{2, 0}}}, err: fl.ErrShapeMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			err := tc.arch.Validate()
			if tc.err == nil {
				assert.NoError(t, err)

				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestTensorJSONNonFinite(t *testing.T) {
	t.Parallel()
	in := fl.Tensor{Shape: []int{4}, Data: []float64{1.5, math.Inf(1), math.Inf(-1), math.NaN()}}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"shape":[4],"data":[1.5,"+Inf","-Inf","NaN"]}`, string(data))

	var out fl.Tensor
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Shape, out.Shape)
	require.Len(t, out.Data, 4)
	assert.Equal(t, 1.5, out.Data[0])
	assert.True(t, math.IsInf(out.Data[1], 1))
	assert.True(t, math.IsInf(out.Data[2], -1))
	assert.True(t, math.IsNaN(out.Data[3]))
}

func TestTensorJSONErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		desc string
		in   string
	}{
		{desc: "unknown string", in: `{"shape":[1],"data":["big"]}`},
		{desc: "wrong type", in: `{"shape":[1],"data":[true]}`},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			var out fl.Tensor
			assert.Error(t, json.Unmarshal([]byte(tc.in), &out))
		})
	}
}
