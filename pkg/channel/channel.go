// Package channel defines the transport contract between the coordinator and
// its workers.
package channel

import (
	"context"
	"time"

	"github.com/absmach/robustfl/pkg/protocol"
)

// MasterID is the sender reported for messages that come from the coordinator.
const MasterID = "master"

type Status uint8

const (
	Received Status = iota
	TimedOut
)

func (s Status) String() string {
	if s == TimedOut {
		return "timed_out"
	}

	return "received"
}

// Delivery is the outcome of a receive. A timeout is reported through Status,
// never through an error.
type Delivery struct {
	Status  Status
	Message protocol.Message
	Sender  string
}

// Channel is one endpoint of the transport. Send and Broadcast fail with
// errors.ErrChannel on transport failure. Receive returns errors.ErrInterrupted
// when ctx is cancelled and errors.ErrChannel for anything else that is not a
// timeout. On a worker endpoint Broadcast addresses the master.
type Channel interface {
	Send(ctx context.Context, msg protocol.Message, to string) error
	Broadcast(ctx context.Context, msg protocol.Message) error
	Receive(ctx context.Context, timeout time.Duration) (Delivery, error)
	Close() error
}
