// Package cron runs housekeeping jobs on standard five field cron schedules.
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidCronExpression = errors.New("invalid cron expression")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one run of a scheduled task. Errors are logged and the schedule continues.
type Job func(ctx context.Context) error

func Parse(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, ErrInvalidCronExpression
	}
	spec, err := parser.Parse(expr)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronExpression, err)
	}

	return spec, nil
}

// Next returns the first activation after from, or the zero time for an
// invalid expression.
func Next(expr string, from time.Time) time.Time {
	spec, err := Parse(expr)
	if err != nil {
		return time.Time{}
	}

	return spec.Next(from)
}

// Run executes job on every activation of expr until ctx is done. Runs never
// overlap; an activation that fires while the previous run is busy is skipped.
func Run(ctx context.Context, expr, name string, job Job, logger *slog.Logger) error {
	spec, err := Parse(expr)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(spec, cron.FuncJob(func() {
		begin := time.Now()
		if err := job(ctx); err != nil {
			logger.Warn("scheduled job failed", slog.String("job", name), slog.Any("error", err))

			return
		}
		logger.Debug("scheduled job completed", slog.String("job", name), slog.String("duration", time.Since(begin).String()))
	}))
	c.Start()
	logger.Info("scheduled job registered", slog.String("job", name), slog.String("schedule", expr), slog.Time("next", spec.Next(time.Now())))

	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}
