package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"

	"github.com/absmach/robustfl"
	"github.com/absmach/robustfl/coordinator"
	"github.com/absmach/robustfl/coordinator/api"
	"github.com/absmach/robustfl/coordinator/middleware"
	mqttchannel "github.com/absmach/robustfl/pkg/channel/mqtt"
	"github.com/absmach/robustfl/pkg/cron"
	"github.com/absmach/robustfl/pkg/dataset"
	pkgerrors "github.com/absmach/robustfl/pkg/errors"
	"github.com/absmach/robustfl/pkg/fl"
	"github.com/absmach/robustfl/pkg/mqtt"
	"github.com/absmach/robustfl/pkg/protocol"
	"github.com/absmach/robustfl/pkg/storage"
	"github.com/absmach/robustfl/trainer"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "coordinator"
	defHTTPPort   = "7070"
	envPrefixHTTP = "COORDINATOR_HTTP_"
	envPrefixMQTT = "COORDINATOR_MQTT_"
	pathEnv       = ".env"
	mailboxSize   = 256
)

type envConfig struct {
	LogLevel    string `env:"COORDINATOR_LOG_LEVEL"    envDefault:"info"`
	InstanceID  string `env:"COORDINATOR_INSTANCE_ID"`
	SessionFile string `env:"COORDINATOR_SESSION_FILE" envDefault:"session.toml"`
	EvalData    string `env:"COORDINATOR_EVAL_DATA"`
	// PruneSchedule is a cron expression; empty keeps every model snapshot.
	PruneSchedule string  `env:"COORDINATOR_PRUNE_SCHEDULE"`
	KeepModels    int     `env:"COORDINATOR_KEEP_MODELS"    envDefault:"5"`
	OTELURL       url.URL `env:"COORDINATOR_OTEL_URL"`
	TraceRatio    float64 `env:"COORDINATOR_TRACE_RATIO"    envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	session, err := robustfl.LoadConfig(cfg.SessionFile)
	if err != nil {
		logger.Error("failed to load session", slog.String("path", cfg.SessionFile), slog.Any("error", err))

		return
	}
	svcCfg, err := session.Coordinator()
	if err != nil {
		logger.Error("invalid session", slog.Any("error", err))

		return
	}
	if svcCfg.Session == "" {
		svcCfg.Session = cfg.InstanceID
	}
	codec, err := protocol.ParseCodec(session.Session.Codec)
	if err != nil {
		logger.Error("invalid codec", slog.Any("error", err))

		return
	}

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(ctx); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	mqttCfg := mqtt.Config{}
	if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: envPrefixMQTT}); err != nil {
		logger.Error("failed to load mqtt configuration", slog.Any("error", err))

		return
	}
	// Workers stop if the coordinator drops off the broker.
	mqttCfg.WillTopic = mqttchannel.BroadcastTopic(svcCfg.Session)
	if mqttCfg.WillPayload, err = codec.Encode(protocol.NewMessage(protocol.RoleMLModel, protocol.ActionStop, nil)); err != nil {
		logger.Error("failed to encode last will", slog.Any("error", err))

		return
	}
	pubsub, err := mqtt.NewPubSub(svcName+"-"+svcCfg.Session, mqttCfg, logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

		return
	}
	defer func() {
		if err := pubsub.Disconnect(context.Background()); err != nil {
			logger.Error("failed to disconnect from mqtt broker", slog.Any("error", err))
		}
	}()

	ch, err := mqttchannel.NewMaster(ctx, pubsub, codec, svcCfg.Session, mailboxSize, logger)
	if err != nil {
		logger.Error("failed to subscribe to worker topics", slog.String("error", err.Error()))

		return
	}
	defer ch.Close()

	store, err := storage.New(session.Storage)
	if err != nil {
		logger.Error("failed to open checkpoint storage", slog.Any("error", err))

		return
	}
	defer store.Close()
	checkpoints := fl.NewCheckpoints(store)

	evaluator, err := newEvaluator(ctx, cfg.EvalData, svcCfg.Architecture)
	if err != nil {
		logger.Error("failed to load evaluation data", slog.String("path", cfg.EvalData), slog.Any("error", err))

		return
	}

	svc, err := coordinator.NewService(svcCfg, ch, evaluator, checkpoints, logger)
	if err != nil {
		logger.Error("failed to create coordinator", slog.Any("error", err))

		return
	}
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, checkpoints, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		if err := ch.WaitForWorkers(ctx, svcCfg.Roster); err != nil {
			if errors.Is(err, pkgerrors.ErrInterrupted) {
				return nil
			}

			return err
		}
		if err := coordinator.Run(ctx, svc, svcCfg.PollTimeout, logger); err != nil {
			return err
		}
		logger.Info("session finished, serving results until stopped", slog.String("session", svcCfg.Session))

		return nil
	})

	if cfg.PruneSchedule != "" {
		g.Go(func() error {
			return cron.Run(ctx, cfg.PruneSchedule, "prune-models", func(ctx context.Context) error {
				removed, err := checkpoints.PruneModels(ctx, cfg.KeepModels)
				if removed > 0 {
					logger.Info("pruned model snapshots", slog.Int("removed", removed), slog.Int("kept", cfg.KeepModels))
				}

				return err
			}, logger)
		})
	}

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

// newEvaluator scores the global model on a held-out CSV when one is
// configured. The coordinator normalizes it once preprocessing completes.
func newEvaluator(ctx context.Context, path string, arch fl.Architecture) (coordinator.Evaluator, error) {
	if path == "" {
		return nil, nil
	}
	data, err := dataset.LoadCSV(path)
	if err != nil {
		return nil, err
	}

	return trainer.NewEvaluator(ctx, arch, data)
}
