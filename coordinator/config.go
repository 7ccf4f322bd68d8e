package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/absmach/robustfl/pkg/dataset"
	"github.com/absmach/robustfl/pkg/fl"
)

const (
	DefaultPollTimeout  = time.Second
	DefaultStallWarning = 30 * time.Second
)

var ErrInvalidConfig = errors.New("invalid coordinator config")

// Config describes one training session. The roster is fixed for the
// whole session.
type Config struct {
	Session       string
	Roster        []string
	Mode          Mode
	Strategy      fl.Strategy
	MaxIterations int

	Architecture  fl.Architecture
	InitialParams fl.ParameterSet

	Optimizer    string
	Loss         string
	Metric       string
	LearningRate float64
	BatchSize    int
	Epochs       int
	// NumData bounds the rows a worker uses per gradient in gradient mode.
	NumData int

	Preprocessing dataset.Kind

	PollTimeout time.Duration
	// StallWarning is how long a round may go without progress before the
	// pending workers are logged. Rounds never time out.
	StallWarning time.Duration
}

func (c *Config) Validate() error {
	if len(c.Roster) == 0 {
		return fmt.Errorf("%w: empty roster", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Roster))
	for _, id := range c.Roster {
		if id == "" {
			return fmt.Errorf("%w: empty worker id", ErrInvalidConfig)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: duplicate worker %q", ErrInvalidConfig, id)
		}
		seen[id] = struct{}{}
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w: max iterations must be positive", ErrInvalidConfig)
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Mode == ModeGradientAveraging && c.LearningRate <= 0 {
		return fmt.Errorf("%w: gradient averaging needs a positive learning rate", ErrInvalidConfig)
	}
	if c.InitialParams == nil && len(c.Architecture.Shapes) == 0 {
		return fmt.Errorf("%w: either initial parameters or an architecture is required", ErrInvalidConfig)
	}
	if c.InitialParams != nil {
		if err := c.InitialParams.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	arch := c.Architecture
	if len(arch.Shapes) == 0 {
		arch.Shapes = c.InitialParams.Shapes()
	}
	if err := arch.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := dataset.ParseKind(string(c.Preprocessing)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeModelAveraging
	}
	if c.Strategy == "" {
		c.Strategy = fl.StrategyMean
	}
	if kind, err := dataset.ParseKind(string(c.Preprocessing)); err == nil {
		c.Preprocessing = kind
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.StallWarning == 0 {
		c.StallWarning = DefaultStallWarning
	}
	if c.Epochs <= 0 {
		c.Epochs = 1
	}
}
