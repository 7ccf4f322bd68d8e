package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/robustfl"
	"github.com/absmach/robustfl/coordinator"
	"github.com/absmach/robustfl/coordinator/middleware"
	"github.com/absmach/robustfl/pkg/channel"
	"github.com/absmach/robustfl/pkg/channel/local"
	"github.com/absmach/robustfl/pkg/dataset"
	"github.com/absmach/robustfl/pkg/fl"
	"github.com/absmach/robustfl/pkg/protocol"
	"github.com/absmach/robustfl/pkg/storage"
	"github.com/absmach/robustfl/trainer"
	"github.com/absmach/robustfl/worker"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	poisonValue = 1e6
	mailboxSize = 64
)

var namegen = namegenerator.NewGenerator()

// Simulation describes an in-process session over synthetic linear data.
type Simulation struct {
	Workers   int
	Corrupted int
	Rows      int
	Features  int
	Noise     float64
	Seed      uint64
	Codec     string
	Storage   storage.Config
	Session   coordinator.Config
}

type SimulationResult struct {
	Status coordinator.Status `json:"status"`
	Model  coordinator.Model  `json:"model"`
	Truth  fl.ParameterSet    `json:"truth"`
	// MaxError is the largest absolute distance to the generating parameters.
	// It is only reported when the data was not normalized.
	MaxError *float64 `json:"max_error,omitempty"`
}

// Simulate runs a coordinator and sim.Workers agents connected through an
// in-process hub. Workers are named after sim.Session.Roster when it is set.
// The first sim.Corrupted workers replace every update they send with a
// constant outlier.
func Simulate(ctx context.Context, sim Simulation, logger *slog.Logger) (SimulationResult, error) {
	if sim.Workers <= 0 || sim.Corrupted < 0 || sim.Corrupted > sim.Workers {
		return SimulationResult{}, fmt.Errorf("%w: %d workers with %d corrupted", coordinator.ErrInvalidConfig, sim.Workers, sim.Corrupted)
	}
	codec, err := protocol.ParseCodec(sim.Codec)
	if err != nil {
		return SimulationResult{}, err
	}
	store, err := storage.New(sim.Storage)
	if err != nil {
		return SimulationResult{}, err
	}
	defer store.Close()

	if n := len(sim.Session.Roster); n > 0 && n != sim.Workers {
		return SimulationResult{}, fmt.Errorf("%w: roster has %d workers, want %d", coordinator.ErrInvalidConfig, n, sim.Workers)
	}

	rng := rand.New(rand.NewPCG(sim.Seed, sim.Seed^0x9e3779b97f4a7c15))
	truth := randomLinear(rng, sim.Features)

	roster := make([]string, sim.Workers)
	shards := make([]*dataset.Dataset, sim.Workers)
	var pooledX [][]float64
	var pooledY []float64
	for i := range roster {
		if len(sim.Session.Roster) > 0 {
			roster[i] = sim.Session.Roster[i]
		} else {
			roster[i] = fmt.Sprintf("%s-%d", namegen.Generate(), i)
		}
		x, y := sample(rng, truth, sim.Rows, sim.Noise)
		shards[i], err = dataset.New(x, y)
		if err != nil {
			return SimulationResult{}, err
		}
		for j := range x {
			pooledX = append(pooledX, append([]float64(nil), x[j]...))
			pooledY = append(pooledY, y[j])
		}
	}
	pooled, err := dataset.New(pooledX, pooledY)
	if err != nil {
		return SimulationResult{}, err
	}

	cfg := sim.Session
	if cfg.Session == "" {
		cfg.Session = uuid.NewString()
	}
	cfg.Roster = roster
	cfg.Architecture = trainer.LinearArchitecture(sim.Features)

	hub := local.NewHub(codec, roster, mailboxSize)
	agents := make([]*worker.Agent, len(roster))
	for i, id := range roster {
		ch, err := hub.Worker(id)
		if err != nil {
			return SimulationResult{}, err
		}
		if i < sim.Corrupted {
			ch = &poisoned{Channel: ch}
		}
		agents[i], err = worker.NewAgent(worker.Config{ID: id, PollTimeout: cfg.PollTimeout}, ch, shards[i], logger)
		if err != nil {
			return SimulationResult{}, err
		}
	}

	// The pooled shards stand in for held-out data.
	eval, err := trainer.NewEvaluator(ctx, cfg.Architecture, pooled)
	if err != nil {
		return SimulationResult{}, err
	}
	svc, err := coordinator.NewService(cfg, hub.Master(), eval, fl.NewCheckpoints(store), logger)
	if err != nil {
		return SimulationResult{}, err
	}
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(noop.NewTracerProvider().Tracer("simulate"), svc)

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range agents {
		g.Go(func() error {
			return a.Run(gctx)
		})
	}
	g.Go(func() error {
		return coordinator.Run(gctx, svc, cfg.PollTimeout, logger)
	})
	if err := g.Wait(); err != nil {
		return SimulationResult{}, err
	}

	st, err := svc.Status(ctx)
	if err != nil {
		return SimulationResult{}, err
	}
	m, err := svc.Model(ctx)
	if err != nil {
		return SimulationResult{}, err
	}

	res := SimulationResult{Status: st, Model: m, Truth: truth}
	if cfg.Preprocessing == dataset.KindNone {
		e := maxError(m.Params, truth)
		res.MaxError = &e
	}

	return res, nil
}

func NewSimulateCmd() *cobra.Command {
	var (
		sim      Simulation
		mode     string
		strategy string
		prep     string
		config   string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a local session",
		Long: `Run a coordinator and workers in one process on synthetic linear data.

Examples:
  # Five workers, one of them sending outliers, robust aggregation
  robustfl simulate --workers 5 --corrupted 1 --strategy median

  # Gradient averaging over compressed CBOR messages
  robustfl simulate --mode gradient-averaging --codec cbor+snappy --iterations 50`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			var err error
			if sim.Session.Mode, err = coordinator.ParseMode(mode); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if sim.Session.Strategy, err = fl.ParseStrategy(strategy); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if sim.Session.Preprocessing, err = dataset.ParseKind(prep); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if config != "" {
				if err := applyConfigFile(&sim, config); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			res, err := Simulate(cmd.Context(), sim, logger)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, res)
			logSuccessCmd(*cmd, fmt.Sprintf("session %s finished after %d iterations", res.Status.Session, res.Status.Iteration))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&config, "config", "", "session file whose settings replace the session flags")
	flags.IntVar(&sim.Workers, "workers", 5, "number of workers")
	flags.IntVar(&sim.Corrupted, "corrupted", 0, "number of workers sending outliers")
	flags.IntVar(&sim.Rows, "rows", 40, "rows per worker")
	flags.IntVar(&sim.Features, "features", 2, "features per row")
	flags.Float64Var(&sim.Noise, "noise", 0.01, "standard deviation of the label noise")
	flags.Uint64Var(&sim.Seed, "seed", 1, "random seed")
	flags.StringVar(&sim.Codec, "codec", "json", "wire codec: json, cbor, json+snappy, cbor+snappy")
	flags.StringVar(&sim.Storage.Type, "storage", "memory", "checkpoint storage: memory, badger, bolt")
	flags.StringVar(&sim.Storage.BadgerPath, "badger-path", "./data/badger", "badger directory")
	flags.StringVar(&sim.Storage.BoltPath, "bolt-path", "./data/robustfl.db", "bolt file")
	flags.StringVar(&mode, "mode", string(coordinator.ModeModelAveraging), "model-averaging or gradient-averaging")
	flags.StringVar(&strategy, "strategy", string(fl.StrategyMean), "aggregation strategy: mean or median")
	flags.StringVar(&prep, "preprocessing", "none", "none, standard or minmax")
	flags.IntVar(&sim.Session.MaxIterations, "iterations", 10, "training iterations")
	flags.Float64Var(&sim.Session.LearningRate, "lr", 0.1, "learning rate")
	flags.IntVar(&sim.Session.BatchSize, "batch-size", 10, "local batch size")
	flags.IntVar(&sim.Session.Epochs, "epochs", 5, "local epochs per iteration")
	flags.IntVar(&sim.Session.NumData, "num-data", 10, "rows per gradient in gradient mode")

	return cmd
}

// applyConfigFile takes the session, model, codec and storage settings from a
// session file. The file's roster names the simulated workers; the
// architecture still follows the feature count.
func applyConfigFile(sim *Simulation, path string) error {
	file, err := robustfl.LoadConfig(path)
	if err != nil {
		return err
	}
	cfg, err := file.Coordinator()
	if err != nil {
		return err
	}
	sim.Session = cfg
	sim.Workers = len(cfg.Roster)
	sim.Corrupted = min(sim.Corrupted, sim.Workers)
	if file.Session.Codec != "" {
		sim.Codec = file.Session.Codec
	}
	if file.Storage.Type != "" {
		sim.Storage = file.Storage
	}

	return nil
}

// poisoned replaces the parameters of every update with poisonValue.
type poisoned struct {
	channel.Channel
}

func (p *poisoned) Send(ctx context.Context, msg protocol.Message, to string) error {
	switch data := msg.Data.(type) {
	case protocol.LocalUpdate:
		data.Params = fill(data.Params, poisonValue)
		msg.Data = data
	case protocol.UpdateGradients:
		data.Gradients = fill(data.Gradients, poisonValue)
		msg.Data = data
	}

	return p.Channel.Send(ctx, msg, to)
}

func randomLinear(rng *rand.Rand, features int) fl.ParameterSet {
	ps := fl.Zeros(trainer.LinearArchitecture(features))
	for l := range ps {
		for i := range ps[l].Data {
			ps[l].Data[i] = rng.Float64()*4 - 2
		}
	}

	return ps
}

func sample(rng *rand.Rand, truth fl.ParameterSet, rows int, noise float64) ([][]float64, []float64) {
	features := len(truth[0].Data)
	x := make([][]float64, rows)
	y := make([]float64, rows)
	for i := range x {
		x[i] = make([]float64, features)
		y[i] = truth[1].Data[0] + noise*rng.NormFloat64()
		for j := range x[i] {
			x[i][j] = rng.Float64()*2 - 1
			y[i] += truth[0].Data[j] * x[i][j]
		}
	}

	return x, y
}

func fill(ps fl.ParameterSet, v float64) fl.ParameterSet {
	out := ps.Clone()
	for l := range out {
		for i := range out[l].Data {
			out[l].Data[i] = v
		}
	}

	return out
}

func maxError(got, want fl.ParameterSet) float64 {
	var e float64
	for l := range want {
		for i := range want[l].Data {
			e = max(e, math.Abs(got[l].Data[i]-want[l].Data[i]))
		}
	}

	return e
}
