// Package coordinator implements the master side of a federated training
// session: a round state machine that broadcasts commands, waits on a
// barrier until every worker in the roster has replied and combines the
// replies into the next global parameter set.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/robustfl/pkg/channel"
	"github.com/absmach/robustfl/pkg/dataset"
	pkgerrors "github.com/absmach/robustfl/pkg/errors"
	"github.com/absmach/robustfl/pkg/fl"
	"github.com/absmach/robustfl/pkg/protocol"
	"github.com/absmach/robustfl/trainer"
)

// Service is the coordinator state machine. It never blocks on workers:
// Run drives it through the interface, so any decorator wrapping a Service
// observes every step.
type Service interface {
	// Advance performs at most one state transition and never waits for
	// messages. While the session is in START it also steps the optional
	// normalisation handshake.
	Advance(ctx context.Context) (RoundState, error)
	// Ingest records a worker reply. Replies that are not expected in the
	// current state are dropped and reported as ErrProtocolViolation.
	Ingest(ctx context.Context, msg protocol.Message, sender string) error
	// PollChannel receives at most one message. A timeout is reported in the
	// delivery status. The caller ingests what was received.
	PollChannel(ctx context.Context, timeout time.Duration) (channel.Delivery, error)
	Status(ctx context.Context) (Status, error)
	Model(ctx context.Context) (Model, error)
}

// Evaluator scores global parameters for progress reporting.
type Evaluator interface {
	Evaluate(ctx context.Context, params fl.ParameterSet) (trainer.Metrics, error)
}

// Normalizer is implemented by evaluators whose held-out features must be
// mapped with the session's preprocessor before they can score the model.
type Normalizer interface {
	Normalize(n dataset.Normalizer) error
}

type Status struct {
	Session       string              `json:"session"`
	State         RoundState          `json:"state"`
	Mode          Mode                `json:"mode"`
	Strategy      fl.Strategy         `json:"strategy"`
	Iteration     int                 `json:"iteration"`
	MaxIterations int                 `json:"max_iterations"`
	Roster        []string            `json:"roster"`
	Pending       []string            `json:"pending,omitempty"`
	Preprocessing dataset.Kind        `json:"preprocessing,omitempty"`
	Preprocessed  bool                `json:"preprocessed"`
	Normalizer    *dataset.Normalizer `json:"normalizer,omitempty"`
	Violations    uint64              `json:"violations"`
	Metrics       map[string]float64  `json:"metrics,omitempty"`
	History       []RoundState        `json:"history"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type Model struct {
	Iteration int             `json:"iteration"`
	Final     bool            `json:"final"`
	Params    fl.ParameterSet `json:"params"`
}

var _ Service = (*service)(nil)

type service struct {
	mu sync.Mutex

	cfg         Config
	channel     channel.Channel
	aggregator  fl.Aggregator
	evaluator   Evaluator
	checkpoints *fl.Checkpoints
	logger      *slog.Logger

	state     RoundState
	barrier   *Barrier
	params    fl.ParameterSet
	batch     map[string]fl.ParameterSet
	iteration int

	// awaiting is the reply expected by an in-flight preprocessing step.
	awaiting     protocol.Action
	prep         map[string]any
	globalMeans  []float64
	normalizer   *dataset.Normalizer
	preprocessed bool

	roundStart    time.Time
	roundDuration time.Duration
	lastMetrics   map[string]float64
	violations    uint64
	history       []RoundState
	updatedAt     time.Time
	lastProgress  time.Time
	lastStallWarn time.Time
}

// NewService builds a coordinator. The evaluator and the checkpoint store are optional.
func NewService(cfg Config, ch channel.Channel, evaluator Evaluator, checkpoints *fl.Checkpoints, logger *slog.Logger) (Service, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	agg, err := fl.NewAggregator(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	params := cfg.InitialParams.Clone()
	if params == nil {
		params = fl.Zeros(cfg.Architecture)
	}
	if len(cfg.Architecture.Shapes) == 0 {
		cfg.Architecture.Shapes = params.Shapes()
	}
	if err := fl.Zeros(cfg.Architecture).CheckShape(params); err != nil {
		return nil, fmt.Errorf("%w: initial parameters do not match architecture: %w", ErrInvalidConfig, err)
	}

	now := time.Now()

	return &service{
		cfg:          cfg,
		channel:      ch,
		aggregator:   agg,
		evaluator:    evaluator,
		checkpoints:  checkpoints,
		logger:       logger.With(slog.String("session", cfg.Session)),
		state:        StateStart,
		barrier:      NewBarrier(cfg.Roster),
		params:       params,
		batch:        make(map[string]fl.ParameterSet, len(cfg.Roster)),
		prep:         make(map[string]any, len(cfg.Roster)),
		history:      []RoundState{StateStart},
		updatedAt:    now,
		lastProgress: now,
	}, nil
}

func (svc *service) Advance(ctx context.Context) (RoundState, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return svc.state, fmt.Errorf("%w: %w", pkgerrors.ErrInterrupted, err)
	}

	switch svc.state {
	case StateStart:
		if svc.cfg.Preprocessing != dataset.KindNone && !svc.preprocessed {
			done, err := svc.advancePreprocessing(ctx)
			if err != nil || !done {
				return svc.state, err
			}
		}

		return svc.enter(ctx, StateInit)
	case StateInit:
		if svc.barrier.AllMatch(protocol.ActionAckInitModel) {
			return svc.enter(ctx, StateCompile)
		}
	case StateCompile:
		if svc.barrier.AllMatch(protocol.ActionAckCompileInit) {
			return svc.enter(ctx, StateFitInit)
		}
	case StateFitInit:
		if svc.barrier.AllMatch(protocol.ActionAckFitInit) {
			return svc.enter(ctx, StateLocalTrain)
		}
	case StateLocalTrain:
		if svc.barrier.AllMatch(svc.updateAction()) {
			return svc.enter(ctx, StateAggregate)
		}
	case StateAggregate:
		return svc.enter(ctx, StateCheckTermination)
	case StateCheckTermination:
		if svc.iteration >= svc.cfg.MaxIterations {
			return svc.enter(ctx, StateFinalize)
		}

		return svc.enter(ctx, StateLocalTrain)
	case StateFinalize:
		if svc.barrier.AllMatch(protocol.ActionAckFinalModel) {
			return svc.enter(ctx, StateEnd)
		}
	case StateEnd:
	}

	return svc.state, nil
}

// enter switches to next, resets the barrier and runs the entry action of next.
func (svc *service) enter(ctx context.Context, next RoundState) (RoundState, error) {
	prev := svc.state
	svc.state = next
	svc.barrier.Reset()
	svc.history = append(svc.history, next)
	svc.touch()
	svc.logger.Debug("state transition", slog.String("from", prev.String()), slog.String("to", next.String()))

	var err error
	switch next {
	case StateInit:
		err = svc.broadcast(ctx, protocol.ActionInitModel, protocol.InitModel{
			Architecture: svc.cfg.Architecture,
			Params:       svc.params.Clone(),
		})
	case StateCompile:
		err = svc.broadcast(ctx, protocol.ActionCompileInit, protocol.CompileInit{
			Optimizer:    svc.cfg.Optimizer,
			Loss:         svc.cfg.Loss,
			Metric:       svc.cfg.Metric,
			LearningRate: svc.cfg.LearningRate,
		})
	case StateFitInit:
		err = svc.broadcast(ctx, protocol.ActionFitInit, protocol.FitInit{
			BatchSize: svc.cfg.BatchSize,
			Epochs:    svc.cfg.Epochs,
		})
	case StateLocalTrain:
		clear(svc.batch)
		svc.roundStart = time.Now()
		if svc.cfg.Mode == ModeGradientAveraging {
			err = svc.broadcast(ctx, protocol.ActionComputeGradients, protocol.ComputeGradients{
				Params:  svc.params.Clone(),
				NumData: svc.cfg.NumData,
			})
		} else {
			err = svc.broadcast(ctx, protocol.ActionLocalTrain, protocol.LocalTrain{Params: svc.params.Clone()})
		}
	case StateAggregate:
		err = svc.aggregate()
	case StateCheckTermination:
		err = svc.checkpoint(ctx)
	case StateFinalize:
		err = svc.broadcast(ctx, protocol.ActionSendFinalModel, protocol.FinalModel{Params: svc.params.Clone()})
	case StateEnd:
		err = svc.broadcast(ctx, protocol.ActionStop, nil)
		if err == nil {
			svc.logger.Info("training session finished", slog.Int("iterations", svc.iteration))
		}
	}

	return svc.state, err
}

func (svc *service) aggregate() error {
	batch := make([]fl.ParameterSet, 0, len(svc.cfg.Roster))
	for _, id := range svc.barrier.Roster() {
		update := svc.batch[id]
		if err := svc.params.CheckShape(update); err != nil {
			return fmt.Errorf("update from %s: %w", id, err)
		}
		batch = append(batch, update)
	}
	// The batch is consumed exactly once.
	clear(svc.batch)

	start := time.Now()
	var (
		next fl.ParameterSet
		err  error
	)
	switch svc.cfg.Mode {
	case ModeGradientAveraging:
		next, err = fl.ApplyGradients(svc.params, batch, svc.cfg.LearningRate)
	default:
		next, err = svc.aggregator.Aggregate(batch)
	}
	if err != nil {
		return fmt.Errorf("aggregation %d failed: %w", svc.iteration+1, err)
	}

	strategy := string(svc.strategy())
	aggregationsTotal.WithLabelValues(svc.cfg.Session, strategy).Inc()
	aggregationDuration.WithLabelValues(svc.cfg.Session, strategy).Observe(time.Since(start).Seconds())
	roundsTotal.WithLabelValues(svc.cfg.Session, string(svc.cfg.Mode)).Inc()

	svc.params = next
	svc.iteration++
	svc.roundDuration = time.Since(svc.roundStart)
	currentIteration.WithLabelValues(svc.cfg.Session).Set(float64(svc.iteration))

	return nil
}

// checkpoint evaluates and persists the round that just closed.
func (svc *service) checkpoint(ctx context.Context) error {
	args := []any{
		slog.Int("iteration", svc.iteration),
		slog.Int("max_iterations", svc.cfg.MaxIterations),
		slog.String("duration", svc.roundDuration.String()),
	}

	if svc.evaluator != nil {
		metrics, err := svc.evaluator.Evaluate(ctx, svc.params.Clone())
		if err != nil {
			svc.logger.Warn("failed to evaluate global model", slog.Any("error", err))
		} else {
			svc.lastMetrics = metrics
			for name, v := range metrics {
				args = append(args, slog.Float64(name, v))
			}
		}
	}
	svc.logger.Info("round completed", args...)

	if svc.checkpoints == nil {
		return nil
	}
	if err := svc.checkpoints.SaveModel(ctx, svc.iteration, svc.params); err != nil {
		return fmt.Errorf("failed to save model %d: %w", svc.iteration, err)
	}
	rec := fl.RoundRecord{
		Session:   svc.cfg.Session,
		Iteration: svc.iteration,
		Strategy:  svc.strategy(),
		Workers:   svc.barrier.Roster(),
		Metrics:   svc.lastMetrics,
		Duration:  svc.roundDuration,
		CreatedAt: time.Now().UTC(),
	}
	if err := svc.checkpoints.SaveRound(ctx, rec); err != nil {
		return fmt.Errorf("failed to save round %d: %w", svc.iteration, err)
	}

	return nil
}

func (svc *service) Ingest(ctx context.Context, msg protocol.Message, sender string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	return svc.ingest(msg, sender)
}

func (svc *service) ingest(msg protocol.Message, sender string) error {
	if !svc.barrier.Has(sender) {
		return svc.violation(msg, sender, "sender is not in the roster")
	}
	expected, ok := svc.expected()
	if !ok || msg.Action != expected {
		return svc.violation(msg, sender, "action not expected in state "+svc.phase())
	}

	switch msg.Action {
	case protocol.ActionLocalUpdate:
		data, ok := msg.Data.(protocol.LocalUpdate)
		if !ok {
			return svc.violation(msg, sender, "missing parameters")
		}
		svc.batch[sender] = data.Params
		svc.observe(sender, data.Metrics)
	case protocol.ActionUpdateGradients:
		data, ok := msg.Data.(protocol.UpdateGradients)
		if !ok {
			return svc.violation(msg, sender, "missing gradients")
		}
		svc.batch[sender] = data.Gradients
		svc.observe(sender, data.Metrics)
	case protocol.ActionComputeMeans, protocol.ActionComputeStds, protocol.ActionComputeMinMax:
		if msg.Data == nil {
			return svc.violation(msg, sender, "missing statistics")
		}
		svc.prep[sender] = msg.Data
	default:
		if protocol.IsAck(msg.Action) && msg.Data != nil {
			return svc.violation(msg, sender, "acknowledgment carries a payload")
		}
	}

	svc.barrier.Record(sender, msg.Action)
	workerReplies.WithLabelValues(svc.cfg.Session, msg.Action.String()).Inc()
	svc.touch()

	return nil
}

func (svc *service) observe(sender string, metrics map[string]float64) {
	for name, v := range metrics {
		workerMetrics.WithLabelValues(svc.cfg.Session, sender, name).Set(v)
	}
}

func (svc *service) violation(msg protocol.Message, sender, reason string) error {
	svc.violations++
	protocolViolations.WithLabelValues(svc.cfg.Session, msg.Action.String()).Inc()
	svc.logger.Warn("dropping unexpected message",
		slog.String("sender", sender),
		slog.String("action", msg.Action.String()),
		slog.String("state", svc.phase()),
		slog.String("reason", reason),
	)

	return fmt.Errorf("%w: %s from %q: %s", pkgerrors.ErrProtocolViolation, msg.Action, sender, reason)
}

// expected returns the single reply accepted right now.
func (svc *service) expected() (protocol.Action, bool) {
	if svc.awaiting != protocol.ActionUnknown {
		return svc.awaiting, true
	}
	switch svc.state {
	case StateInit:
		return protocol.ActionAckInitModel, true
	case StateCompile:
		return protocol.ActionAckCompileInit, true
	case StateFitInit:
		return protocol.ActionAckFitInit, true
	case StateLocalTrain:
		return svc.updateAction(), true
	case StateFinalize:
		return protocol.ActionAckFinalModel, true
	default:
		return protocol.ActionUnknown, false
	}
}

func (svc *service) updateAction() protocol.Action {
	if svc.cfg.Mode == ModeGradientAveraging {
		return protocol.ActionUpdateGradients
	}

	return protocol.ActionLocalUpdate
}

func (svc *service) strategy() fl.Strategy {
	// Gradients are always averaged.
	if svc.cfg.Mode == ModeGradientAveraging {
		return fl.StrategyMean
	}

	return svc.aggregator.Strategy()
}

func (svc *service) phase() string {
	if svc.awaiting != protocol.ActionUnknown {
		return "PREPROCESSING"
	}

	return svc.state.String()
}

func (svc *service) PollChannel(ctx context.Context, timeout time.Duration) (channel.Delivery, error) {
	d, err := svc.channel.Receive(ctx, timeout)
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrInterrupted) {
			svc.logger.Error("failed to receive from channel", slog.Any("error", err))
		}

		return d, err
	}

	svc.mu.Lock()
	svc.warnIfStalled()
	svc.mu.Unlock()

	return d, nil
}

func (svc *service) warnIfStalled() {
	if svc.cfg.StallWarning <= 0 {
		return
	}
	now := time.Now()
	if now.Sub(svc.lastProgress) < svc.cfg.StallWarning || now.Sub(svc.lastStallWarn) < svc.cfg.StallWarning {
		return
	}
	expected, ok := svc.expected()
	if !ok {
		return
	}
	svc.lastStallWarn = now
	svc.logger.Warn("round is waiting on workers",
		slog.String("state", svc.phase()),
		slog.String("expected", expected.String()),
		slog.Any("pending", svc.barrier.Pending(expected)),
		slog.String("waiting", now.Sub(svc.lastProgress).Round(time.Second).String()),
	)
}

func (svc *service) Status(_ context.Context) (Status, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	st := Status{
		Session:       svc.cfg.Session,
		State:         svc.state,
		Mode:          svc.cfg.Mode,
		Strategy:      svc.strategy(),
		Iteration:     svc.iteration,
		MaxIterations: svc.cfg.MaxIterations,
		Roster:        svc.barrier.Roster(),
		Preprocessing: svc.cfg.Preprocessing,
		Preprocessed:  svc.preprocessed,
		Violations:    svc.violations,
		History:       append([]RoundState(nil), svc.history...),
		UpdatedAt:     svc.updatedAt,
	}
	if expected, ok := svc.expected(); ok {
		st.Pending = svc.barrier.Pending(expected)
	}
	if svc.normalizer != nil {
		n := svc.normalizer.Clone()
		st.Normalizer = &n
	}
	if svc.lastMetrics != nil {
		st.Metrics = make(map[string]float64, len(svc.lastMetrics))
		for k, v := range svc.lastMetrics {
			st.Metrics[k] = v
		}
	}

	return st, nil
}

func (svc *service) Model(_ context.Context) (Model, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	return Model{
		Iteration: svc.iteration,
		Final:     svc.state == StateFinalize || svc.state == StateEnd,
		Params:    svc.params.Clone(),
	}, nil
}

func (svc *service) broadcast(ctx context.Context, action protocol.Action, data any) error {
	return svc.broadcastTo(ctx, protocol.RoleMLModel, action, data)
}

func (svc *service) broadcastTo(ctx context.Context, role protocol.Role, action protocol.Action, data any) error {
	if err := svc.channel.Broadcast(ctx, protocol.NewMessage(role, action, data)); err != nil {
		svc.logger.Error("failed to broadcast", slog.String("action", action.String()), slog.Any("error", err))

		return err
	}

	return nil
}

func (svc *service) touch() {
	now := time.Now()
	svc.updatedAt = now
	svc.lastProgress = now
	svc.lastStallWarn = time.Time{}
}
