package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/absmach/robustfl/coordinator"
	"github.com/absmach/robustfl/pkg/api"
	"github.com/absmach/robustfl/pkg/fl"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MakeHandler exposes the read-only session view. checkpoints may be nil.
func MakeHandler(svc coordinator.Service, checkpoints *fl.Checkpoints, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Get("/status", otelhttp.NewHandler(kithttp.NewServer(
		statusEndpoint(svc),
		decodeStatusReq,
		api.EncodeResponse,
		opts...,
	), "get-status").ServeHTTP)
	mux.Get("/model", otelhttp.NewHandler(kithttp.NewServer(
		modelEndpoint(svc),
		decodeStatusReq,
		api.EncodeResponse,
		opts...,
	), "get-model").ServeHTTP)

	mux.Route("/checkpoints", func(r chi.Router) {
		r.Get("/rounds", otelhttp.NewHandler(kithttp.NewServer(
			listRoundsEndpoint(checkpoints),
			decodeStatusReq,
			api.EncodeResponse,
			opts...,
		), "list-rounds").ServeHTTP)
		r.Get("/rounds/{iteration}", otelhttp.NewHandler(kithttp.NewServer(
			getRoundEndpoint(checkpoints),
			decodeIterationReq,
			api.EncodeResponse,
			opts...,
		), "get-round").ServeHTTP)
		r.Get("/models/{iteration}", otelhttp.NewHandler(kithttp.NewServer(
			getCheckpointEndpoint(checkpoints),
			decodeIterationReq,
			api.EncodeResponse,
			opts...,
		), "get-checkpoint").ServeHTTP)
	})

	mux.Get("/health", supermq.Health("coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeStatusReq(_ context.Context, _ *http.Request) (any, error) {
	return statusReq{}, nil
}

func decodeIterationReq(_ context.Context, r *http.Request) (any, error) {
	iteration, err := strconv.Atoi(chi.URLParam(r, api.IterationKey))
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrInvalidQueryParams, err)
	}

	return iterationReq{iteration: iteration}, nil
}
