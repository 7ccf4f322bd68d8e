package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/absmach/robustfl/pkg/errors"
	"github.com/absmach/robustfl/pkg/protocol"
)

const DefaultMailboxSize = 64

type envelope struct {
	sender  string
	payload []byte
}

// Mailbox is a bounded inbox of encoded messages shared by the transports.
type Mailbox struct {
	codec  protocol.Codec
	queue  chan envelope
	closed chan struct{}
	once   sync.Once
}

func NewMailbox(codec protocol.Codec, size int) *Mailbox {
	if size <= 0 {
		size = DefaultMailboxSize
	}

	return &Mailbox{
		codec:  codec,
		queue:  make(chan envelope, size),
		closed: make(chan struct{}),
	}
}

// Deliver enqueues payload, blocking while the mailbox is full.
func (m *Mailbox) Deliver(ctx context.Context, sender string, payload []byte) error {
	select {
	case <-m.closed:
		return fmt.Errorf("%w: mailbox closed", errors.ErrChannel)
	default:
	}

	select {
	case m.queue <- envelope{sender: sender, payload: payload}:
		return nil
	case <-m.closed:
		return fmt.Errorf("%w: mailbox closed", errors.ErrChannel)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errors.ErrInterrupted, ctx.Err())
	}
}

// Receive waits up to timeout for the next message. A non-positive timeout
// waits until ctx is done. Payloads that fail to decode are surfaced as
// ActionUnknown so the caller drops them like any other stray message.
func (m *Mailbox) Receive(ctx context.Context, timeout time.Duration) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, fmt.Errorf("%w: %w", errors.ErrInterrupted, err)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case env := <-m.queue:
		msg, err := m.codec.Decode(env.payload)
		if err != nil {
			msg = protocol.Message{Action: protocol.ActionUnknown}
		}

		return Delivery{Status: Received, Message: msg, Sender: env.sender}, nil
	case <-expired:
		return Delivery{Status: TimedOut}, nil
	case <-m.closed:
		return Delivery{}, fmt.Errorf("%w: mailbox closed", errors.ErrChannel)
	case <-ctx.Done():
		return Delivery{}, fmt.Errorf("%w: %w", errors.ErrInterrupted, ctx.Err())
	}
}

func (m *Mailbox) Close() {
	m.once.Do(func() {
		close(m.closed)
	})
}
