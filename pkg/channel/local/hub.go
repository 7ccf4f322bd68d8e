// Package local connects a coordinator and its workers inside one process.
// Every message is encoded and decoded on the way, so parameter sets are
// never shared between endpoints.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/absmach/robustfl/pkg/channel"
	"github.com/absmach/robustfl/pkg/errors"
	"github.com/absmach/robustfl/pkg/protocol"
)

var _ channel.Channel = (*endpoint)(nil)

type Hub struct {
	mu      sync.Mutex
	codec   protocol.Codec
	roster  []string
	master  *channel.Mailbox
	workers map[string]*channel.Mailbox
}

func NewHub(codec protocol.Codec, roster []string, size int) *Hub {
	h := &Hub{
		codec:   codec,
		roster:  append([]string(nil), roster...),
		master:  channel.NewMailbox(codec, size),
		workers: make(map[string]*channel.Mailbox, len(roster)),
	}
	for _, id := range roster {
		h.workers[id] = channel.NewMailbox(codec, size)
	}

	return h
}

func (h *Hub) Master() channel.Channel {
	return &endpoint{hub: h, id: channel.MasterID, inbox: h.master, master: true}
}

func (h *Hub) Worker(id string) (channel.Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	inbox, ok := h.workers[id]
	if !ok {
		return nil, fmt.Errorf("%w: worker %q is not in the roster", errors.ErrChannel, id)
	}

	return &endpoint{hub: h, id: id, inbox: inbox}, nil
}

func (h *Hub) mailbox(id string) (*channel.Mailbox, error) {
	if id == channel.MasterID {
		return h.master, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	inbox, ok := h.workers[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown destination %q", errors.ErrChannel, id)
	}

	return inbox, nil
}

type endpoint struct {
	hub    *Hub
	id     string
	inbox  *channel.Mailbox
	master bool
}

func (e *endpoint) Send(ctx context.Context, msg protocol.Message, to string) error {
	if !e.master {
		to = channel.MasterID
	}
	dst, err := e.hub.mailbox(to)
	if err != nil {
		return err
	}

	return e.deliver(ctx, dst, msg)
}

func (e *endpoint) Broadcast(ctx context.Context, msg protocol.Message) error {
	if !e.master {
		return e.Send(ctx, msg, channel.MasterID)
	}
	for _, id := range e.hub.roster {
		if err := e.Send(ctx, msg, id); err != nil {
			return err
		}
	}

	return nil
}

func (e *endpoint) Receive(ctx context.Context, timeout time.Duration) (channel.Delivery, error) {
	return e.inbox.Receive(ctx, timeout)
}

func (e *endpoint) Close() error {
	e.inbox.Close()

	return nil
}

func (e *endpoint) deliver(ctx context.Context, dst *channel.Mailbox, msg protocol.Message) error {
	payload, err := e.hub.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrChannel, err)
	}

	return dst.Deliver(ctx, e.id, payload)
}
