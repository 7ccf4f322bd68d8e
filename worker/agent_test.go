package worker_test

import (
	"context"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/absmach/robustfl/pkg/channel"
	"github.com/absmach/robustfl/pkg/channel/local"
	"github.com/absmach/robustfl/pkg/dataset"
	"github.com/absmach/robustfl/pkg/fl"
	"github.com/absmach/robustfl/pkg/protocol"
	"github.com/absmach/robustfl/trainer"
	"github.com/absmach/robustfl/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// y = 2x + 1 sampled at xs.
func lineData(t *testing.T, xs ...float64) *dataset.Dataset {
	t.Helper()
	x := make([][]float64, len(xs))
	y := make([]float64, len(xs))
	for i, v := range xs {
		x[i] = []float64{v}
		y[i] = 2*v + 1
	}
	ds, err := dataset.New(x, y)
	require.NoError(t, err)

	return ds
}

func newAgent(t *testing.T, ch channel.Channel, data *dataset.Dataset) *worker.Agent {
	t.Helper()
	a, err := worker.NewAgent(worker.Config{ID: "w0", PollTimeout: 10 * time.Millisecond}, ch, data, slog.Default())
	require.NoError(t, err)

	return a
}

func model(action protocol.Action, data any) protocol.Message {
	return protocol.NewMessage(protocol.RoleMLModel, action, data)
}

func common(action protocol.Action, data any) protocol.Message {
	return protocol.NewMessage(protocol.RoleCommonML, action, data)
}

func TestNewAgent(t *testing.T) {
	t.Parallel()
	_, err := worker.NewAgent(worker.Config{}, nil, lineData(t, 0), slog.Default())
	assert.ErrorIs(t, err, worker.ErrMissingID)
}

func TestHandleModelLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newAgent(t, nil, lineData(t, 0, 1, 2, 3, 4))
	arch := trainer.LinearArchitecture(1)

	cases := []struct {
		desc string
		msg  protocol.Message
		want protocol.Action
	}{
		{desc: "init", msg: model(protocol.ActionInitModel, protocol.InitModel{Architecture: arch}), want: protocol.ActionAckInitModel},
		{desc: "compile", msg: model(protocol.ActionCompileInit, protocol.CompileInit{Optimizer: "sgd", Loss: "mse", LearningRate: 0.05}), want: protocol.ActionAckCompileInit},
		{desc: "fit", msg: model(protocol.ActionFitInit, protocol.FitInit{BatchSize: 5, Epochs: 200}), want: protocol.ActionAckFitInit},
	}
	for _, tc := range cases {
		reply, err := a.Handle(ctx, tc.msg)
		require.NoError(t, err, tc.desc)
		require.NotNil(t, reply, tc.desc)
		assert.Equal(t, tc.want, reply.Action, tc.desc)
		assert.Equal(t, protocol.RoleMLModel, reply.To, tc.desc)
	}

	reply, err := a.Handle(ctx, model(protocol.ActionLocalTrain, protocol.LocalTrain{Params: fl.Zeros(arch)}))
	require.NoError(t, err)
	require.Equal(t, protocol.ActionLocalUpdate, reply.Action)
	update := reply.Data.(protocol.LocalUpdate)
	assert.InDelta(t, 2, update.Params[0].Data[0], 0.1)
	assert.InDelta(t, 1, update.Params[1].Data[0], 0.2)
	assert.Contains(t, update.Metrics, "mse")
	assert.Contains(t, update.Metrics, worker.MetricTrainSeconds)
	assert.Contains(t, update.Metrics, worker.MetricHeapBytes)
	assert.Equal(t, worker.StateIdle, a.State())

	_, ok := a.FinalModel()
	assert.False(t, ok)
	reply, err = a.Handle(ctx, model(protocol.ActionSendFinalModel, protocol.FinalModel{Params: update.Params}))
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionAckFinalModel, reply.Action)
	final, ok := a.FinalModel()
	assert.True(t, ok)
	assert.Equal(t, update.Params, final)

	reply, err = a.Handle(ctx, model(protocol.ActionStop, nil))
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, worker.StateStopped, a.State())

	reply, err = a.Handle(ctx, model(protocol.ActionInitModel, protocol.InitModel{Architecture: arch}))
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestHandleGradients(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newAgent(t, nil, lineData(t, 0, 1, 2, 3, 4))
	arch := trainer.LinearArchitecture(1)

	_, err := a.Handle(ctx, model(protocol.ActionInitModel, protocol.InitModel{Architecture: arch}))
	require.NoError(t, err)

	// Two rows at a time: (0, 1) then (2, 3) then (4, 0).
	var seen [][]float64
	for range 3 {
		reply, err := a.Handle(ctx, model(protocol.ActionComputeGradients, protocol.ComputeGradients{Params: fl.Zeros(arch), NumData: 2}))
		require.NoError(t, err)
		require.Equal(t, protocol.ActionUpdateGradients, reply.Action)
		update := reply.Data.(protocol.UpdateGradients)
		assert.Contains(t, update.Metrics, worker.MetricTrainSeconds)
		seen = append(seen, update.Gradients[1].Data)
	}
	// With zero parameters the bias gradient is -2 * mean(y) over the window.
	assert.InDeltaSlice(t, []float64{-4}, seen[0], 1e-9)
	assert.InDeltaSlice(t, []float64{-12}, seen[1], 1e-9)
	assert.InDeltaSlice(t, []float64{-10}, seen[2], 1e-9)
}

func TestHandleErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	arch := trainer.LinearArchitecture(1)

	cases := []struct {
		desc string
		msg  protocol.Message
		err  error
	}{
		{desc: "unknown family", msg: model(protocol.ActionInitModel, protocol.InitModel{Architecture: fl.Architecture{Family: "svm", Shapes: arch.Shapes}}), err: trainer.ErrUnknownFamily},
		{desc: "architecture does not fit data", msg: model(protocol.ActionInitModel, protocol.InitModel{Architecture: trainer.LinearArchitecture(3)}), err: trainer.ErrArchitecture},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			a := newAgent(t, nil, lineData(t, 0, 1))
			reply, err := a.Handle(ctx, tc.msg)
			assert.ErrorIs(t, err, tc.err)
			assert.Nil(t, reply)
		})
	}
}

func TestHandleBeforeInit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	arch := trainer.LinearArchitecture(1)

	cases := []struct {
		desc string
		msg  protocol.Message
	}{
		{desc: "train before init", msg: model(protocol.ActionLocalTrain, protocol.LocalTrain{Params: fl.Zeros(arch)})},
		{desc: "gradients before init", msg: model(protocol.ActionComputeGradients, protocol.ComputeGradients{Params: fl.Zeros(arch), NumData: 1})},
		{desc: "compile before init", msg: model(protocol.ActionCompileInit, protocol.CompileInit{Optimizer: "sgd", Loss: "mse", LearningRate: 0.1})},
		{desc: "final model before init", msg: model(protocol.ActionSendFinalModel, protocol.FinalModel{Params: fl.Zeros(arch)})},
		{desc: "negative dimension", msg: model(protocol.ActionInitModel, protocol.InitModel{Architecture: fl.Architecture{Family: "linear", Shapes: [][]int{{-1, 1}}}})},
		{desc: "no layers", msg: model(protocol.ActionInitModel, protocol.InitModel{Architecture: fl.Architecture{Family: "linear"}})},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			a := newAgent(t, nil, lineData(t, 0, 1))
			reply, err := a.Handle(ctx, tc.msg)
			assert.NoError(t, err)
			assert.Nil(t, reply)
			assert.Equal(t, worker.StateIdle, a.State())

			reply, err = a.Handle(ctx, model(protocol.ActionInitModel, protocol.InitModel{Architecture: arch}))
			require.NoError(t, err)
			require.NotNil(t, reply)
			assert.Equal(t, protocol.ActionAckInitModel, reply.Action)
		})
	}
}

func TestHandleDivergedTraining(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newAgent(t, nil, lineData(t, 0, 10, 20, 30, 40))
	arch := trainer.LinearArchitecture(1)

	for _, msg := range []protocol.Message{
		model(protocol.ActionInitModel, protocol.InitModel{Architecture: arch}),
		model(protocol.ActionCompileInit, protocol.CompileInit{Optimizer: "sgd", Loss: "mse", Metric: "mse", LearningRate: 1e6}),
		model(protocol.ActionFitInit, protocol.FitInit{BatchSize: 5, Epochs: 50}),
	} {
		_, err := a.Handle(ctx, msg)
		require.NoError(t, err, msg.Action.String())
	}

	reply, err := a.Handle(ctx, model(protocol.ActionLocalTrain, protocol.LocalTrain{Params: fl.Zeros(arch)}))
	require.NoError(t, err)
	require.NotNil(t, reply)
	update := reply.Data.(protocol.LocalUpdate)
	for name, v := range update.Metrics {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), name)
	}

	_, err = protocol.JSONCodec{}.Encode(*reply)
	assert.NoError(t, err)
}

func TestHandleIgnoresUnexpectedMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newAgent(t, nil, lineData(t, 0, 1))

	cases := []struct {
		desc string
		msg  protocol.Message
	}{
		{desc: "unknown action", msg: model(protocol.ActionUnknown, nil)},
		{desc: "statistics request on the model role", msg: model(protocol.ActionSendMeans, nil)},
		{desc: "training request on the data role", msg: common(protocol.ActionLocalTrain, nil)},
		{desc: "reply sent to a worker", msg: model(protocol.ActionAckInitModel, nil)},
		{desc: "missing payload", msg: model(protocol.ActionInitModel, nil)},
		{desc: "unknown role", msg: protocol.NewMessage("other", protocol.ActionInitModel, nil)},
	}
	for _, tc := range cases {
		reply, err := a.Handle(ctx, tc.msg)
		assert.NoError(t, err, tc.desc)
		assert.Nil(t, reply, tc.desc)
	}
	assert.Equal(t, worker.StateIdle, a.State())
}

func TestHandlePreprocessing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	data := lineData(t, 0, 1, 2, 3, 4)
	a := newAgent(t, nil, data)

	reply, err := a.Handle(ctx, common(protocol.ActionSendMeans, nil))
	require.NoError(t, err)
	assert.Equal(t, protocol.ComputeMeans{Means: []float64{2}, Count: 5}, reply.Data)
	assert.Equal(t, worker.StatePreprocessing, a.State())

	reply, err = a.Handle(ctx, common(protocol.ActionSendStds, protocol.SendStds{GlobalMeans: []float64{2}}))
	require.NoError(t, err)
	assert.Equal(t, protocol.ComputeStds{Variances: []float64{2}, Count: 5}, reply.Data)

	reply, err = a.Handle(ctx, common(protocol.ActionSendMinMax, nil))
	require.NoError(t, err)
	assert.Equal(t, protocol.ComputeMinMax{Mins: []float64{0}, Maxs: []float64{4}}, reply.Data)

	norm := dataset.NewMinMaxNormalizer([]float64{0}, []float64{4})
	reply, err = a.Handle(ctx, common(protocol.ActionSendPreprocessor, protocol.SendPreprocessor{Normalizer: norm}))
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionAckSendPreprocessor, reply.Action)
	assert.Equal(t, worker.StateIdle, a.State())
	assert.Equal(t, []float64{1}, data.X[4])

	applied, ok := a.Normalizer()
	assert.True(t, ok)
	assert.Equal(t, norm, applied)

	_, err = a.Handle(ctx, common(protocol.ActionSendStds, protocol.SendStds{GlobalMeans: []float64{1, 2}}))
	assert.ErrorIs(t, err, dataset.ErrWidthMismatch)
}

func TestRunStopDuringPreprocessing(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub := local.NewHub(protocol.JSONCodec{}, []string{"w0"}, 8)
	master := hub.Master()
	ch, err := hub.Worker("w0")
	require.NoError(t, err)
	a := newAgent(t, ch, lineData(t, 0, 1, 2))

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.NoError(t, master.Broadcast(ctx, common(protocol.ActionSendMeans, nil)))
	d, err := master.Receive(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, channel.Received, d.Status)
	assert.Equal(t, "w0", d.Sender)
	assert.Equal(t, protocol.ActionComputeMeans, d.Message.Action)

	require.NoError(t, master.Broadcast(ctx, common(protocol.ActionStop, nil)))
	require.NoError(t, master.Broadcast(ctx, common(protocol.ActionSendStds, protocol.SendStds{GlobalMeans: []float64{1}})))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on stop")
	}
	assert.Equal(t, worker.StateStopped, a.State())

	d, err = master.Receive(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, channel.TimedOut, d.Status)
}

func TestRunSurvivesOutOfOrderMessage(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub := local.NewHub(protocol.JSONCodec{}, []string{"w0"}, 8)
	master := hub.Master()
	ch, err := hub.Worker("w0")
	require.NoError(t, err)
	a := newAgent(t, ch, lineData(t, 0, 1, 2))
	arch := trainer.LinearArchitecture(1)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.NoError(t, master.Send(ctx, model(protocol.ActionLocalTrain, protocol.LocalTrain{Params: fl.Zeros(arch)}), "w0"))
	require.NoError(t, master.Send(ctx, model(protocol.ActionInitModel, protocol.InitModel{Architecture: arch}), "w0"))

	d, err := master.Receive(ctx, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, channel.Received, d.Status)
	assert.Equal(t, protocol.ActionAckInitModel, d.Message.Action)

	require.NoError(t, master.Broadcast(ctx, model(protocol.ActionStop, nil)))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on stop")
	}
}

func TestRunInterrupted(t *testing.T) {
	t.Parallel()
	hub := local.NewHub(protocol.CBORCodec{}, []string{"w0"}, 8)
	ch, err := hub.Worker("w0")
	require.NoError(t, err)
	a := newAgent(t, ch, lineData(t, 0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on cancellation")
	}
}
