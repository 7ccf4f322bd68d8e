// Package mqtt carries coordinator and worker traffic over an MQTT broker.
//
// Topics for a session s:
//
//	robustfl/<s>/workers/<id>   coordinator to one worker
//	robustfl/<s>/broadcast      coordinator to every worker
//	robustfl/<s>/master/<id>    worker <id> to the coordinator
//	robustfl/<s>/alive/<id>     liveliness of worker <id>
//
// The sender of a message to the coordinator is the suffix of its topic.
// Publishes are not retained, so the coordinator waits until every worker in
// its roster has announced itself before it sends the first command.
package mqtt

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/absmach/robustfl/pkg/channel"
	"github.com/absmach/robustfl/pkg/errors"
	"github.com/absmach/robustfl/pkg/mqtt"
	"github.com/absmach/robustfl/pkg/protocol"
)

const (
	topicRoot       = "robustfl"
	statusAlive     = "alive"
	waitLogInterval = 10 * time.Second
)

var _ channel.Channel = (*Channel)(nil)

func WorkerTopic(session, id string) string {
	return fmt.Sprintf("%s/%s/workers/%s", topicRoot, session, id)
}

func BroadcastTopic(session string) string {
	return fmt.Sprintf("%s/%s/broadcast", topicRoot, session)
}

func MasterTopic(session, id string) string {
	return fmt.Sprintf("%s/%s/master/%s", topicRoot, session, id)
}

func AliveTopic(session, id string) string {
	return fmt.Sprintf("%s/%s/alive/%s", topicRoot, session, id)
}

type presence struct {
	ID      string `json:"worker_id"`
	Session string `json:"session"`
	Status  string `json:"status"`
}

type Channel struct {
	pubsub  mqtt.PubSub
	codec   protocol.Codec
	session string
	id      string
	master  bool
	inbox   *channel.Mailbox
	topics  []string
	logger  *slog.Logger

	mu    sync.Mutex
	alive map[string]time.Time
	seen  chan struct{}
}

// NewMaster subscribes to every worker's master topic.
func NewMaster(ctx context.Context, ps mqtt.PubSub, codec protocol.Codec, session string, size int, logger *slog.Logger) (*Channel, error) {
	c := &Channel{
		pubsub:  ps,
		codec:   codec,
		session: session,
		id:      channel.MasterID,
		master:  true,
		inbox:   channel.NewMailbox(codec, size),
		logger:  logger,
		alive:   make(map[string]time.Time),
		seen:    make(chan struct{}, 1),
	}
	prefix := MasterTopic(session, "")
	if err := c.subscribe(ctx, prefix+"+", func(topic string) string {
		return strings.TrimPrefix(topic, prefix)
	}); err != nil {
		return nil, err
	}
	aliveTopic := AliveTopic(session, "+")
	if err := c.pubsub.Subscribe(ctx, aliveTopic, c.handleAlive); err != nil {
		return nil, fmt.Errorf("%w: subscribe to %s: %w", errors.ErrChannel, aliveTopic, err)
	}
	c.topics = append(c.topics, aliveTopic)

	return c, nil
}

// NewWorker subscribes to the worker's own topic and the session broadcast topic.
func NewWorker(ctx context.Context, ps mqtt.PubSub, codec protocol.Codec, session, id string, size int, logger *slog.Logger) (*Channel, error) {
	c := &Channel{
		pubsub:  ps,
		codec:   codec,
		session: session,
		id:      id,
		inbox:   channel.NewMailbox(codec, size),
		logger:  logger,
	}
	fromMaster := func(string) string { return channel.MasterID }
	for _, topic := range []string{WorkerTopic(session, id), BroadcastTopic(session)} {
		if err := c.subscribe(ctx, topic, fromMaster); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Announce publishes the worker's liveliness right away and then every
// interval until ctx is done.
func (c *Channel) Announce(ctx context.Context, interval time.Duration) {
	c.publishAlive(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("stopping liveliness updates")

			return
		case <-ticker.C:
			c.publishAlive(ctx)
		}
	}
}

func (c *Channel) publishAlive(ctx context.Context) {
	topic := AliveTopic(c.session, c.id)
	payload, err := json.Marshal(presence{ID: c.id, Session: c.session, Status: statusAlive})
	if err != nil {
		c.logger.Error("failed to encode liveliness message", slog.Any("error", err))

		return
	}
	if err := c.pubsub.Publish(ctx, topic, payload); err != nil {
		c.logger.Error("failed to publish liveliness message", slog.Any("error", err))

		return
	}
	c.logger.Debug("published liveliness message", slog.String("topic", topic))
}

func (c *Channel) handleAlive(topic string, payload []byte) error {
	id := strings.TrimPrefix(topic, AliveTopic(c.session, ""))
	var p presence
	if err := json.Unmarshal(payload, &p); err != nil || id == "" || p.Status != statusAlive {
		c.logger.Warn("dropping malformed liveliness message", slog.String("topic", topic))

		return nil
	}

	c.mu.Lock()
	_, known := c.alive[id]
	c.alive[id] = time.Now()
	c.mu.Unlock()
	if !known {
		c.logger.Info("worker is alive", slog.String("worker", id))
	}
	select {
	case c.seen <- struct{}{}:
	default:
	}

	return nil
}

// WaitForWorkers blocks until every worker in roster has announced itself.
func (c *Channel) WaitForWorkers(ctx context.Context, roster []string) error {
	if !c.master {
		return fmt.Errorf("%w: only the coordinator tracks workers", errors.ErrChannel)
	}
	ticker := time.NewTicker(waitLogInterval)
	defer ticker.Stop()

	for {
		missing := c.missing(roster)
		if len(missing) == 0 {
			c.logger.Info("all workers are alive", slog.Int("workers", len(roster)))

			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", errors.ErrInterrupted, ctx.Err())
		case <-c.seen:
		case <-ticker.C:
			c.logger.Info("waiting for workers", slog.Any("missing", missing))
		}
	}
}

func (c *Channel) missing(roster []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, id := range roster {
		if _, ok := c.alive[id]; !ok {
			out = append(out, id)
		}
	}

	return out
}

func (c *Channel) Send(ctx context.Context, msg protocol.Message, to string) error {
	topic := MasterTopic(c.session, c.id)
	if c.master {
		topic = WorkerTopic(c.session, to)
	}

	return c.publish(ctx, topic, msg)
}

func (c *Channel) Broadcast(ctx context.Context, msg protocol.Message) error {
	topic := MasterTopic(c.session, c.id)
	if c.master {
		topic = BroadcastTopic(c.session)
	}

	return c.publish(ctx, topic, msg)
}

func (c *Channel) Receive(ctx context.Context, timeout time.Duration) (channel.Delivery, error) {
	return c.inbox.Receive(ctx, timeout)
}

// Close unsubscribes and stops the inbox. The underlying client stays
// connected; its owner disconnects it.
func (c *Channel) Close() error {
	c.inbox.Close()
	var errs []error
	for _, topic := range c.topics {
		if err := c.pubsub.Unsubscribe(context.Background(), topic); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", errors.ErrChannel, stderrors.Join(errs...))
	}

	return nil
}

func (c *Channel) publish(ctx context.Context, topic string, msg protocol.Message) error {
	payload, err := c.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrChannel, err)
	}
	if err := c.pubsub.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("%w: publish to %s: %w", errors.ErrChannel, topic, err)
	}

	return nil
}

func (c *Channel) subscribe(ctx context.Context, topic string, sender func(topic string) string) error {
	handler := func(topic string, payload []byte) error {
		from := sender(topic)
		if from == "" {
			c.logger.Warn("dropping message without sender", slog.String("topic", topic))

			return nil
		}

		return c.inbox.Deliver(context.Background(), from, payload)
	}
	if err := c.pubsub.Subscribe(ctx, topic, handler); err != nil {
		return fmt.Errorf("%w: subscribe to %s: %w", errors.ErrChannel, topic, err)
	}
	c.topics = append(c.topics, topic)

	return nil
}
