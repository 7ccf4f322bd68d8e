package middleware_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/robustfl/coordinator"
	"github.com/absmach/robustfl/coordinator/middleware"
	"github.com/absmach/robustfl/coordinator/mocks"
	"github.com/absmach/robustfl/pkg/channel"
	"github.com/absmach/robustfl/pkg/protocol"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var errFailed = assert.AnError

func call(t *testing.T, svc coordinator.Service, method string) error {
	t.Helper()
	ctx := context.Background()

	switch method {
	case "advance":
		_, err := svc.Advance(ctx)

		return err
	case "ingest":
		return svc.Ingest(ctx, protocol.NewMessage(protocol.RoleMLModel, protocol.ActionAckInitModel, nil), "w1")
	case "poll-channel":
		_, err := svc.PollChannel(ctx, time.Millisecond)

		return err
	case "status":
		_, err := svc.Status(ctx)

		return err
	case "model":
		_, err := svc.Model(ctx)

		return err
	}
	t.Fatalf("unknown method %s", method)

	return nil
}

func expect(repo *mocks.MockService, method string, err error) {
	switch method {
	case "advance":
		repo.On("Advance", mock.Anything).Return(coordinator.StateInit, err)
	case "ingest":
		repo.On("Ingest", mock.Anything, mock.Anything, "w1").Return(err)
	case "poll-channel":
		repo.On("PollChannel", mock.Anything, time.Millisecond).Return(channel.Delivery{Status: channel.TimedOut}, err)
	case "status":
		repo.On("Status", mock.Anything).Return(coordinator.Status{State: coordinator.StateLocalTrain, Iteration: 3}, err)
	case "model":
		repo.On("Model", mock.Anything).Return(coordinator.Model{Iteration: 3}, err)
	}
}

var methods = []string{"advance", "ingest", "poll-channel", "status", "model"}

func TestMetrics(t *testing.T) {
	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "requests_total"}, []string{"method"})
	latencyVec := prometheus.NewSummaryVec(prometheus.SummaryOpts{Name: "request_latency"}, []string{"method"})
	counter := kitprometheus.NewCounter(counterVec)
	latency := kitprometheus.NewSummary(latencyVec)

	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			repo := new(mocks.MockService)
			expect(repo, method, nil)
			svc := middleware.Metrics(counter, latency, repo)

			require.NoError(t, call(t, svc, method))
			require.NoError(t, call(t, svc, method))
			assert.Equal(t, 2.0, testutil.ToFloat64(counterVec.WithLabelValues(method)))
			repo.AssertExpectations(t)
		})
	}
}

func TestTracing(t *testing.T) {
	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			recorder := tracetest.NewSpanRecorder()
			provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
			repo := new(mocks.MockService)
			expect(repo, method, nil)
			svc := middleware.Tracing(provider.Tracer("test"), repo)

			require.NoError(t, call(t, svc, method))
			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, method, spans[0].Name())
			repo.AssertExpectations(t)
		})
	}
}

func TestLogging(t *testing.T) {
	cases := []struct {
		method string
		err    error
		level  string
		want   string
	}{
		{method: "advance", level: "DEBUG", want: "Advance completed successfully"},
		{method: "advance", err: errFailed, level: "WARN", want: "Advance failed"},
		{method: "ingest", err: errFailed, level: "DEBUG", want: "Ingest rejected message"},
		{method: "poll-channel", level: "DEBUG", want: "Poll channel completed successfully"},
		{method: "status", level: "INFO", want: "Get status completed successfully"},
		{method: "model", err: errFailed, level: "WARN", want: "Get model failed"},
	}

	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			repo := new(mocks.MockService)
			expect(repo, tc.method, tc.err)
			svc := middleware.Logging(logger, repo)

			err := call(t, svc, tc.method)
			assert.ErrorIs(t, err, tc.err)
			assert.Contains(t, buf.String(), "level="+tc.level)
			assert.Contains(t, buf.String(), tc.want)
			repo.AssertExpectations(t)
		})
	}
}

func TestRunDrivesDecoratedService(t *testing.T) {
	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "driven_requests_total"}, []string{"method"})
	latencyVec := prometheus.NewSummaryVec(prometheus.SummaryOpts{Name: "driven_request_latency"}, []string{"method"})
	ack := protocol.NewMessage(protocol.RoleMLModel, protocol.ActionAckInitModel, nil)

	repo := new(mocks.MockService)
	repo.On("Status", mock.Anything).Return(coordinator.Status{State: coordinator.StateStart, Roster: []string{"w0"}}, nil).Once()
	repo.On("Advance", mock.Anything).Return(coordinator.StateInit, nil).Twice()
	repo.On("Advance", mock.Anything).Return(coordinator.StateEnd, nil).Once()
	repo.On("PollChannel", mock.Anything, 5*time.Millisecond).Return(channel.Delivery{Status: channel.Received, Sender: "w0", Message: ack}, nil).Once()
	repo.On("Ingest", mock.Anything, ack, "w0").Return(nil).Once()

	svc := middleware.Metrics(kitprometheus.NewCounter(counterVec), kitprometheus.NewSummary(latencyVec), repo)
	require.NoError(t, coordinator.Run(context.Background(), svc, 5*time.Millisecond, slog.Default()))

	assert.Equal(t, 3.0, testutil.ToFloat64(counterVec.WithLabelValues("advance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counterVec.WithLabelValues("poll-channel")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counterVec.WithLabelValues("ingest")))
	repo.AssertExpectations(t)
}
