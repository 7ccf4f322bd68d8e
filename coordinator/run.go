package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/absmach/robustfl/pkg/channel"
	pkgerrors "github.com/absmach/robustfl/pkg/errors"
)

// Run drives svc to END by looping Advance, PollChannel and Ingest. It keeps
// advancing while transitions need no replies. Cancelling ctx stops it
// without further network I/O and is not an error.
func Run(ctx context.Context, svc Service, pollTimeout time.Duration, logger *slog.Logger) error {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	st, err := svc.Status(ctx)
	if err != nil {
		return err
	}
	logger.Info("training session started",
		slog.String("session", st.Session),
		slog.Int("workers", len(st.Roster)),
		slog.String("mode", string(st.Mode)),
		slog.String("strategy", string(st.Strategy)),
		slog.Int("max_iterations", st.MaxIterations),
		slog.String("preprocessing", string(st.Preprocessing)),
	)

	prev := st.State
	for {
		state, err := svc.Advance(ctx)
		switch {
		case errors.Is(err, pkgerrors.ErrInterrupted):
			logger.Info("training session interrupted", slog.String("state", state.String()))

			return nil
		case err != nil:
			logger.Error("training session aborted", slog.String("state", state.String()), slog.Any("error", err))

			return err
		}
		if state == StateEnd {
			return nil
		}
		if state != prev {
			prev = state

			continue
		}

		d, err := svc.PollChannel(ctx, pollTimeout)
		switch {
		case errors.Is(err, pkgerrors.ErrInterrupted):
			logger.Info("training session interrupted", slog.String("state", state.String()))

			return nil
		case err != nil:
			return err
		case d.Status == channel.TimedOut:
			continue
		}
		// Violations are logged and counted by the service; they never end the session.
		if err := svc.Ingest(ctx, d.Message, d.Sender); err != nil && !errors.Is(err, pkgerrors.ErrProtocolViolation) {
			return err
		}
	}
}
