package sdk_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/absmach/robustfl/coordinator"
	"github.com/absmach/robustfl/coordinator/api"
	"github.com/absmach/robustfl/coordinator/mocks"
	"github.com/absmach/robustfl/pkg/fl"
	"github.com/absmach/robustfl/pkg/sdk"
	"github.com/absmach/robustfl/pkg/storage"
	"github.com/absmach/supermq/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (sdk.SDK, *mocks.MockService, *fl.Checkpoints) {
	t.Helper()
	svc := new(mocks.MockService)
	checkpoints := fl.NewCheckpoints(storage.NewInMemoryStorage())
	ts := httptest.NewServer(api.MakeHandler(svc, checkpoints, slog.Default(), "test"))
	t.Cleanup(ts.Close)

	return sdk.NewSDK(sdk.Config{CoordinatorURL: ts.URL}), svc, checkpoints
}

func TestStatus(t *testing.T) {
	s, svc, _ := setup(t)
	svc.On("Status", mock.Anything).Return(coordinator.Status{
		Session:   "s1",
		State:     coordinator.StateFinalize,
		Mode:      coordinator.ModeModelAveraging,
		Strategy:  fl.StrategyMedian,
		Iteration: 4,
		History:   []coordinator.RoundState{coordinator.StateStart, coordinator.StateInit},
	}, nil)

	st, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, "s1", st.Session)
	assert.Equal(t, "FINALIZE", st.State)
	assert.Equal(t, "median", st.Strategy)
	assert.Equal(t, 4, st.Iteration)
	assert.Equal(t, []string{"START", "INIT"}, st.History)
}

func TestModel(t *testing.T) {
	s, svc, _ := setup(t)
	params := fl.ParameterSet{{Shape: []int{2}, Data: []float64{0.25, -1}}}
	svc.On("Model", mock.Anything).Return(coordinator.Model{Iteration: 1, Params: params}, nil)

	m, err := s.Model()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Iteration)
	assert.False(t, m.Final)
	assert.Equal(t, params, m.Params)
}

func TestCheckpoints(t *testing.T) {
	ctx := context.Background()
	s, _, checkpoints := setup(t)
	params := fl.ParameterSet{{Shape: []int{1}, Data: []float64{3}}}
	for i := 1; i <= 3; i++ {
		require.NoError(t, checkpoints.SaveRound(ctx, fl.RoundRecord{Session: "s1", Iteration: i, Strategy: fl.StrategyMean, Workers: []string{"w0"}}))
		require.NoError(t, checkpoints.SaveModel(ctx, i, params))
	}

	page, err := s.ListRounds()
	require.NoError(t, err)
	assert.Equal(t, sdk.RoundPage{Total: 3, Rounds: []int{1, 2, 3}}, page)

	r, err := s.Round(2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Iteration)
	assert.Equal(t, []string{"w0"}, r.Workers)

	c, err := s.Checkpoint(3)
	require.NoError(t, err)
	assert.Equal(t, params, c.Params)

	_, err = s.Round(9)
	assert.True(t, errors.Contains(err, sdk.ErrUnexpectedStatus))
}
