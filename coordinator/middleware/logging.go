package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/robustfl/coordinator"
	"github.com/absmach/robustfl/pkg/channel"
	"github.com/absmach/robustfl/pkg/protocol"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

// Advance and the message path run once per poll, so they log at debug level.
func (lm *loggingMiddleware) Advance(ctx context.Context) (state coordinator.RoundState, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("state", state.String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Advance failed", args...)

			return
		}
		lm.logger.Debug("Advance completed successfully", args...)
	}(time.Now())

	return lm.svc.Advance(ctx)
}

func (lm *loggingMiddleware) Ingest(ctx context.Context, msg protocol.Message, sender string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("message",
				slog.String("sender", sender),
				slog.String("action", msg.Action.String()),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Debug("Ingest rejected message", args...)

			return
		}
		lm.logger.Debug("Ingest completed successfully", args...)
	}(time.Now())

	return lm.svc.Ingest(ctx, msg, sender)
}

func (lm *loggingMiddleware) PollChannel(ctx context.Context, timeout time.Duration) (d channel.Delivery, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("status", d.Status.String()),
		}
		if d.Status == channel.Received {
			args = append(args, slog.String("sender", d.Sender), slog.String("action", d.Message.Action.String()))
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Debug("Poll channel failed", args...)

			return
		}
		lm.logger.Debug("Poll channel completed successfully", args...)
	}(time.Now())

	return lm.svc.PollChannel(ctx, timeout)
}

func (lm *loggingMiddleware) Status(ctx context.Context) (st coordinator.Status, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("state", st.State.String()),
			slog.Int("iteration", st.Iteration),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get status failed", args...)

			return
		}
		lm.logger.Info("Get status completed successfully", args...)
	}(time.Now())

	return lm.svc.Status(ctx)
}

func (lm *loggingMiddleware) Model(ctx context.Context) (m coordinator.Model, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("iteration", m.Iteration),
			slog.Bool("final", m.Final),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get model failed", args...)

			return
		}
		lm.logger.Info("Get model completed successfully", args...)
	}(time.Now())

	return lm.svc.Model(ctx)
}
