package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0x6flab/namegenerator"
	mqttchannel "github.com/absmach/robustfl/pkg/channel/mqtt"
	"github.com/absmach/robustfl/pkg/dataset"
	"github.com/absmach/robustfl/pkg/mqtt"
	"github.com/absmach/robustfl/pkg/protocol"
	"github.com/absmach/robustfl/worker"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	svcName         = "worker"
	envPrefixWorker = "WORKER_"
	envPrefixMQTT   = "WORKER_MQTT_"
	pathEnv         = ".env"
	mailboxSize     = 64
)

type envConfig struct {
	LogLevel string `env:"WORKER_LOG_LEVEL" envDefault:"info"`
	Session  string `env:"WORKER_SESSION,required"`
	DataPath string `env:"WORKER_DATA_PATH,required"`
	Codec    string `env:"WORKER_CODEC"     envDefault:"json"`
	// LivelinessInterval is how often the worker announces itself to the coordinator.
	LivelinessInterval time.Duration `env:"WORKER_LIVELINESS_INTERVAL" envDefault:"5s"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	workerCfg := worker.Config{}
	if err := env.ParseWithOptions(&workerCfg, env.Options{Prefix: envPrefixWorker}); err != nil {
		return fmt.Errorf("failed to load worker configuration: %w", err)
	}
	if workerCfg.ID == "" {
		workerCfg.ID = namegenerator.NewGenerator().Generate()
	}
	mqttCfg := mqtt.Config{}
	if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: envPrefixMQTT}); err != nil {
		return fmt.Errorf("failed to load mqtt configuration: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	codec, err := protocol.ParseCodec(cfg.Codec)
	if err != nil {
		return err
	}

	data, err := dataset.LoadCSV(cfg.DataPath)
	if err != nil {
		logger.Error("Failed to load dataset", slog.String("path", cfg.DataPath), slog.Any("error", err))

		return fmt.Errorf("failed to load dataset: %w", err)
	}

	pubsub, err := mqtt.NewPubSub(svcName+"-"+workerCfg.ID, mqttCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize mqtt pubsub: %w", err)
	}
	defer func() {
		if err := pubsub.Disconnect(context.Background()); err != nil {
			logger.Error("Failed to disconnect from mqtt broker", slog.Any("error", err))
		}
	}()

	ch, err := mqttchannel.NewWorker(ctx, pubsub, codec, cfg.Session, workerCfg.ID, mailboxSize, logger)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session topics: %w", err)
	}
	defer ch.Close()

	agent, err := worker.NewAgent(workerCfg, ch, data, logger)
	if err != nil {
		return err
	}

	logger.Info("Starting worker", slog.String("id", workerCfg.ID), slog.String("session", cfg.Session))

	// Subscriptions are in place, so the coordinator may start once it hears from us.
	aliveCtx, stopAlive := context.WithCancel(ctx)
	defer stopAlive()
	go ch.Announce(aliveCtx, cfg.LivelinessInterval)

	return agent.Run(ctx)
}
