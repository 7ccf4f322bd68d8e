package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/absmach/robustfl/pkg/channel"
	"github.com/absmach/robustfl/pkg/dataset"
	pkgerrors "github.com/absmach/robustfl/pkg/errors"
	"github.com/absmach/robustfl/pkg/fl"
	"github.com/absmach/robustfl/pkg/protocol"
	"github.com/absmach/robustfl/trainer"
)

var (
	ErrBusy        = errors.New("worker is handling another request")
	ErrNoTrainer   = fmt.Errorf("%w: model is not initialized", pkgerrors.ErrProtocolViolation)
	errBadPayload  = errors.New("unexpected payload")
	errUnsupported = errors.New("action not handled by this role")
)

var _ Worker = (*Agent)(nil)

type Agent struct {
	mu      sync.Mutex
	cfg     Config
	channel channel.Channel
	data    *dataset.Dataset
	logger  *slog.Logger
	usage   *usageMeter

	trainer    trainer.LocalTrainer
	state      SubState
	busy       bool
	batchSize  int
	epochs     int
	normalizer *dataset.Normalizer
	final      fl.ParameterSet
	trained    bool
}

// NewAgent binds a worker to its channel and private dataset. The trainer is
// created when INIT_MODEL names the model family.
func NewAgent(cfg Config, ch channel.Channel, data *dataset.Dataset, logger *slog.Logger) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}

	return &Agent{
		cfg:     cfg,
		channel: ch,
		data:    data,
		logger:  logger.With(slog.String("worker", cfg.ID)),
		usage:   newUsageMeter(),
		epochs:  1,
	}, nil
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("worker started", slog.Int("rows", a.data.Len()), slog.Int("features", a.data.NumFeatures()))

	for a.State() != StateStopped {
		d, err := a.channel.Receive(ctx, a.cfg.PollTimeout)
		switch {
		case errors.Is(err, pkgerrors.ErrInterrupted):
			a.logger.Info("worker interrupted", slog.String("state", a.State().String()))

			return nil
		case err != nil:
			a.logger.Error("failed to receive from channel", slog.Any("error", err))

			return err
		}
		if d.Status == channel.TimedOut {
			continue
		}

		reply, err := a.Handle(ctx, d.Message)
		if err != nil {
			a.logger.Error("failed to handle message", slog.String("action", d.Message.Action.String()), slog.Any("error", err))

			return err
		}
		if reply == nil {
			continue
		}
		if err := a.channel.Send(ctx, *reply, channel.MasterID); err != nil {
			a.logger.Error("failed to send reply", slog.String("action", reply.Action.String()), slog.Any("error", err))

			return err
		}
	}
	a.logger.Info("worker stopped", slog.Bool("trained", a.trained))

	return nil
}

func (a *Agent) Handle(ctx context.Context, msg protocol.Message) (*protocol.Message, error) {
	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()

		return nil, ErrBusy
	}
	if a.state == StateStopped {
		a.mu.Unlock()
		a.logger.Debug("ignoring message after stop", slog.String("action", msg.Action.String()))

		return nil, nil
	}
	a.busy = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.busy = false
		a.mu.Unlock()
	}()

	var (
		reply *protocol.Message
		err   error
	)
	switch msg.To {
	case protocol.RoleCommonML:
		reply, err = a.handleCommon(msg)
	case protocol.RoleMLModel:
		reply, err = a.handleModel(ctx, msg)
	default:
		err = errUnsupported
	}

	switch {
	case errors.Is(err, errUnsupported), errors.Is(err, errBadPayload), errors.Is(err, pkgerrors.ErrProtocolViolation):
		a.logger.Warn("ignoring message",
			slog.String("role", string(msg.To)),
			slog.String("action", msg.Action.String()),
			slog.Any("error", err),
		)

		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", msg.Action, err)
	}

	return reply, nil
}

func (a *Agent) handleCommon(msg protocol.Message) (*protocol.Message, error) {
	if msg.Action == protocol.ActionStop {
		a.stop()

		return nil, nil
	}
	switch msg.Action {
	case protocol.ActionSendMeans, protocol.ActionSendStds, protocol.ActionSendMinMax:
		a.setState(StatePreprocessing)
	}

	switch msg.Action {
	case protocol.ActionSendMeans:
		return reply(protocol.ActionComputeMeans, protocol.ComputeMeans{
			Means: a.data.Means(),
			Count: a.data.Len(),
		}), nil
	case protocol.ActionSendStds:
		req, ok := msg.Data.(protocol.SendStds)
		if !ok {
			return nil, errBadPayload
		}
		vars, err := a.data.Variances(req.GlobalMeans)
		if err != nil {
			return nil, err
		}

		return reply(protocol.ActionComputeStds, protocol.ComputeStds{
			Variances: vars,
			Count:     a.data.Len(),
		}), nil
	case protocol.ActionSendMinMax:
		mins, maxs := a.data.MinMax()

		return reply(protocol.ActionComputeMinMax, protocol.ComputeMinMax{Mins: mins, Maxs: maxs}), nil
	case protocol.ActionSendPreprocessor:
		req, ok := msg.Data.(protocol.SendPreprocessor)
		if !ok {
			return nil, errBadPayload
		}
		if err := a.data.Apply(req.Normalizer); err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.normalizer = &req.Normalizer
		a.state = StateIdle
		a.mu.Unlock()
		a.logger.Info("applied preprocessor", slog.String("kind", string(req.Normalizer.Kind)))

		return ack(msg.Action), nil
	default:
		return nil, errUnsupported
	}
}

func (a *Agent) handleModel(ctx context.Context, msg protocol.Message) (*protocol.Message, error) {
	switch msg.Action {
	case protocol.ActionStop:
		a.stop()

		return nil, nil
	case protocol.ActionInitModel:
		req, ok := msg.Data.(protocol.InitModel)
		if !ok {
			return nil, errBadPayload
		}
		if err := req.Architecture.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", errBadPayload, err)
		}
		tr, err := trainer.New(req.Architecture.Family, a.data)
		if err != nil {
			return nil, err
		}
		if err := tr.Init(ctx, req.Architecture); err != nil {
			return nil, err
		}
		if req.Params != nil {
			if err := tr.SetParameters(req.Params); err != nil {
				return nil, err
			}
		}
		a.mu.Lock()
		a.trainer = tr
		a.state = StateIdle
		a.mu.Unlock()

		return ack(msg.Action), nil
	case protocol.ActionCompileInit:
		req, ok := msg.Data.(protocol.CompileInit)
		if !ok {
			return nil, errBadPayload
		}
		tr, err := a.model()
		if err != nil {
			return nil, err
		}
		if err := tr.Compile(ctx, trainer.CompileConfig{
			Optimizer:    req.Optimizer,
			Loss:         req.Loss,
			Metric:       req.Metric,
			LearningRate: req.LearningRate,
		}); err != nil {
			return nil, err
		}

		return ack(msg.Action), nil
	case protocol.ActionFitInit:
		req, ok := msg.Data.(protocol.FitInit)
		if !ok {
			return nil, errBadPayload
		}
		a.mu.Lock()
		a.batchSize = req.BatchSize
		a.epochs = max(req.Epochs, 1)
		a.mu.Unlock()

		return ack(msg.Action), nil
	case protocol.ActionLocalTrain:
		req, ok := msg.Data.(protocol.LocalTrain)
		if !ok {
			return nil, errBadPayload
		}
		tr, err := a.model()
		if err != nil {
			return nil, err
		}
		a.setState(StateTraining)
		a.mu.Lock()
		batchSize, epochs := a.batchSize, a.epochs
		a.mu.Unlock()

		sample := a.usage.start()
		params, err := tr.LocalTrain(ctx, req.Params, batchSize, epochs)
		if err != nil {
			return nil, err
		}
		metrics, err := tr.Evaluate(ctx, params)
		if err != nil {
			a.logger.Warn("failed to evaluate local model", slog.Any("error", err))
		}
		metrics = a.usage.finish(sample, a.finite(metrics))
		a.setState(StateIdle)

		return reply(protocol.ActionLocalUpdate, protocol.LocalUpdate{Params: params, Metrics: metrics}), nil
	case protocol.ActionComputeGradients:
		req, ok := msg.Data.(protocol.ComputeGradients)
		if !ok {
			return nil, errBadPayload
		}
		tr, err := a.model()
		if err != nil {
			return nil, err
		}
		a.setState(StateTraining)
		sample := a.usage.start()
		grads, err := tr.LocalGradient(ctx, req.Params, req.NumData)
		if err != nil {
			return nil, err
		}
		a.setState(StateIdle)

		return reply(protocol.ActionUpdateGradients, protocol.UpdateGradients{
			Gradients: grads,
			Metrics:   a.usage.finish(sample, nil),
		}), nil
	case protocol.ActionSendFinalModel:
		req, ok := msg.Data.(protocol.FinalModel)
		if !ok {
			return nil, errBadPayload
		}
		tr, err := a.model()
		if err != nil {
			return nil, err
		}
		if err := tr.SetParameters(req.Params); err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.final = req.Params.Clone()
		a.trained = true
		a.mu.Unlock()

		if metrics, err := tr.Evaluate(ctx, req.Params); err == nil {
			args := make([]any, 0, len(metrics))
			for name, v := range metrics {
				args = append(args, slog.Float64(name, v))
			}
			a.logger.Info("received final model", args...)
		}

		return ack(msg.Action), nil
	default:
		return nil, errUnsupported
	}
}

func (a *Agent) State() SubState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

func (a *Agent) FinalModel() (fl.ParameterSet, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.final.Clone(), a.trained
}

// Normalizer returns the preprocessor applied to the local data, if any.
func (a *Agent) Normalizer() (dataset.Normalizer, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.normalizer == nil {
		return dataset.Normalizer{}, false
	}

	return *a.normalizer, true
}

func (a *Agent) model() (trainer.LocalTrainer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.trainer == nil {
		return nil, ErrNoTrainer
	}

	return a.trainer, nil
}

func (a *Agent) setState(s SubState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Agent) stop() {
	a.mu.Lock()
	prev := a.state
	a.state = StateStopped
	a.mu.Unlock()
	a.logger.Info("received stop", slog.String("state", prev.String()))
}

// finite drops metric values that are NaN or infinite.
func (a *Agent) finite(metrics trainer.Metrics) trainer.Metrics {
	for name, v := range metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			a.logger.Warn("dropping non-finite metric", slog.String("metric", name), slog.Float64("value", v))
			delete(metrics, name)
		}
	}

	return metrics
}

func ack(action protocol.Action) *protocol.Message {
	a, _ := protocol.AckFor(action)

	return reply(a, nil)
}

func reply(action protocol.Action, data any) *protocol.Message {
	msg := protocol.NewMessage(protocol.RoleMLModel, action, data)

	return &msg
}
