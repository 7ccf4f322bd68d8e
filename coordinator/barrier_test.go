package coordinator_test

import (
	"testing"

	"github.com/absmach/robustfl/coordinator"
	"github.com/absmach/robustfl/pkg/protocol"
	"github.com/stretchr/testify/assert"
)

func TestBarrierAllMatch(t *testing.T) {
	t.Parallel()
	ack := protocol.ActionAckInitModel
	cases := []struct {
		desc   string
		roster []string
		record map[string]protocol.Action
		want   bool
	}{
		{
			desc:   "empty table",
			roster: []string{"w0", "w1"},
			want:   false,
		},
		{
			desc:   "empty table and empty roster",
			roster: nil,
			want:   true,
		},
		{
			desc:   "one worker missing",
			roster: []string{"w0", "w1", "w2"},
			record: map[string]protocol.Action{"w0": ack, "w1": ack},
			want:   false,
		},
		{
			desc:   "one worker holds a different tag",
			roster: []string{"w0", "w1"},
			record: map[string]protocol.Action{"w0": ack, "w1": protocol.ActionAckCompileInit},
			want:   false,
		},
		{
			desc:   "all workers acknowledged",
			roster: []string{"w0", "w1"},
			record: map[string]protocol.Action{"w0": ack, "w1": ack},
			want:   true,
		},
		{
			desc:   "outsiders are ignored",
			roster: []string{"w0"},
			record: map[string]protocol.Action{"w0": ack, "intruder": protocol.ActionStop},
			want:   true,
		},
	}

	for _, tc := range cases {
		b := coordinator.NewBarrier(tc.roster)
		for id, tag := range tc.record {
			b.Record(id, tag)
		}
		assert.Equal(t, tc.want, b.AllMatch(ack), tc.desc)
	}
}

func TestBarrierRecordAndReset(t *testing.T) {
	t.Parallel()
	b := coordinator.NewBarrier([]string{"w0", "w1"})

	assert.False(t, b.Record("w9", protocol.ActionAckFitInit))
	assert.True(t, b.Record("w0", protocol.ActionAckFitInit))
	assert.True(t, b.Record("w0", protocol.ActionAckFitInit))

	tag, ok := b.Tag("w0")
	assert.True(t, ok)
	assert.Equal(t, protocol.ActionAckFitInit, tag)
	assert.Equal(t, []string{"w1"}, b.Pending(protocol.ActionAckFitInit))

	b.Reset()
	_, ok = b.Tag("w0")
	assert.False(t, ok)
	assert.Equal(t, []string{"w0", "w1"}, b.Pending(protocol.ActionAckFitInit))
}
