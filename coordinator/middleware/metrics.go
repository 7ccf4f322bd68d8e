package middleware

import (
	"context"
	"time"

	"github.com/absmach/robustfl/coordinator"
	"github.com/absmach/robustfl/pkg/channel"
	"github.com/absmach/robustfl/pkg/protocol"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Advance(ctx context.Context) (coordinator.RoundState, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "advance").Add(1)
		mm.latency.With("method", "advance").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Advance(ctx)
}

func (mm *metricsMiddleware) Ingest(ctx context.Context, msg protocol.Message, sender string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "ingest").Add(1)
		mm.latency.With("method", "ingest").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Ingest(ctx, msg, sender)
}

func (mm *metricsMiddleware) PollChannel(ctx context.Context, timeout time.Duration) (channel.Delivery, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "poll-channel").Add(1)
		mm.latency.With("method", "poll-channel").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.PollChannel(ctx, timeout)
}

func (mm *metricsMiddleware) Status(ctx context.Context) (coordinator.Status, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "status").Add(1)
		mm.latency.With("method", "status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Status(ctx)
}

func (mm *metricsMiddleware) Model(ctx context.Context) (coordinator.Model, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "model").Add(1)
		mm.latency.With("method", "model").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Model(ctx)
}
