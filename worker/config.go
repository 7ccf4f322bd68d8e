package worker

import (
	"errors"
	"time"
)

const DefaultPollTimeout = time.Second

var ErrMissingID = errors.New("worker id is required")

type Config struct {
	ID          string        `env:"ID"`
	PollTimeout time.Duration `env:"POLL_TIMEOUT" envDefault:"1s"`
}

func (c Config) Validate() error {
	if c.ID == "" {
		return ErrMissingID
	}

	return nil
}
