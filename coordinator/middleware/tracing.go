package middleware

import (
	"context"
	"time"

	"github.com/absmach/robustfl/coordinator"
	"github.com/absmach/robustfl/pkg/channel"
	"github.com/absmach/robustfl/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Advance(ctx context.Context) (coordinator.RoundState, error) {
	ctx, span := tm.tracer.Start(ctx, "advance")
	defer span.End()

	state, err := tm.svc.Advance(ctx)
	span.SetAttributes(attribute.String("state", state.String()))

	return state, err
}

func (tm *tracing) Ingest(ctx context.Context, msg protocol.Message, sender string) error {
	ctx, span := tm.tracer.Start(ctx, "ingest", trace.WithAttributes(
		attribute.String("sender", sender),
		attribute.String("action", msg.Action.String()),
	))
	defer span.End()

	return tm.svc.Ingest(ctx, msg, sender)
}

func (tm *tracing) PollChannel(ctx context.Context, timeout time.Duration) (channel.Delivery, error) {
	ctx, span := tm.tracer.Start(ctx, "poll-channel", trace.WithAttributes(
		attribute.String("timeout", timeout.String()),
	))
	defer span.End()

	return tm.svc.PollChannel(ctx, timeout)
}

func (tm *tracing) Status(ctx context.Context) (coordinator.Status, error) {
	ctx, span := tm.tracer.Start(ctx, "status")
	defer span.End()

	return tm.svc.Status(ctx)
}

func (tm *tracing) Model(ctx context.Context) (coordinator.Model, error) {
	ctx, span := tm.tracer.Start(ctx, "model")
	defer span.End()

	return tm.svc.Model(ctx)
}
