package local_test

import (
	"context"
	"testing"
	"time"

	"github.com/absmach/robustfl/pkg/channel"
	"github.com/absmach/robustfl/pkg/channel/local"
	"github.com/absmach/robustfl/pkg/errors"
	"github.com/absmach/robustfl/pkg/fl"
	"github.com/absmach/robustfl/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastAndReply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := local.NewHub(protocol.CBORCodec{}, []string{"w0", "w1"}, 4)
	master := hub.Master()

	params := fl.ParameterSet{{Shape: []int{2}, Data: []float64{1, 2}}}
	require.NoError(t, master.Broadcast(ctx, protocol.NewMessage(protocol.RoleMLModel, protocol.ActionLocalTrain, protocol.LocalTrain{Params: params})))

	for _, id := range []string{"w0", "w1"} {
		w, err := hub.Worker(id)
		require.NoError(t, err)

		d, err := w.Receive(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, channel.Received, d.Status)
		assert.Equal(t, channel.MasterID, d.Sender)
		assert.Equal(t, protocol.ActionLocalTrain, d.Message.Action)

		// The received copy is independent of the sender's.
		got := d.Message.Data.(protocol.LocalTrain).Params
		got[0].Data[0] = 99
		assert.Equal(t, 1.0, params[0].Data[0])

		require.NoError(t, w.Broadcast(ctx, protocol.NewMessage(protocol.RoleMLModel, protocol.ActionLocalUpdate, protocol.LocalUpdate{Params: got})))
	}

	senders := map[string]bool{}
	for range 2 {
		d, err := master.Receive(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, protocol.ActionLocalUpdate, d.Message.Action)
		senders[d.Sender] = true
	}
	assert.Equal(t, map[string]bool{"w0": true, "w1": true}, senders)
}

func TestReceiveTimeoutAndCancel(t *testing.T) {
	t.Parallel()
	hub := local.NewHub(protocol.JSONCodec{}, []string{"w0"}, 1)
	master := hub.Master()

	d, err := master.Receive(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, channel.TimedOut, d.Status)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = master.Receive(ctx, time.Second)
	assert.ErrorIs(t, err, errors.ErrInterrupted)
}

func TestUnknownDestination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := local.NewHub(protocol.JSONCodec{}, []string{"w0"}, 1)

	_, err := hub.Worker("w9")
	assert.ErrorIs(t, err, errors.ErrChannel)

	err = hub.Master().Send(ctx, protocol.NewMessage(protocol.RoleMLModel, protocol.ActionStop, nil), "w9")
	assert.ErrorIs(t, err, errors.ErrChannel)
}

func TestClosedEndpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := local.NewHub(protocol.JSONCodec{}, []string{"w0"}, 1)
	w, err := hub.Worker("w0")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Receive(ctx, time.Second)
	assert.ErrorIs(t, err, errors.ErrChannel)

	err = hub.Master().Send(ctx, protocol.NewMessage(protocol.RoleMLModel, protocol.ActionStop, nil), "w0")
	assert.ErrorIs(t, err, errors.ErrChannel)
}
