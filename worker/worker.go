// Package worker implements the participant side of a training session. A
// worker answers every coordinator request with exactly one reply, computed
// on its private dataset, and exits on STOP.
package worker

import (
	"context"

	"github.com/absmach/robustfl/pkg/fl"
	"github.com/absmach/robustfl/pkg/protocol"
)

type Worker interface {
	// Handle processes one message and returns the reply for the master, if any.
	Handle(ctx context.Context, msg protocol.Message) (*protocol.Message, error)
	// Run receives and handles messages until STOP or cancellation.
	Run(ctx context.Context) error
	State() SubState
	// FinalModel returns the parameters of SEND_FINAL_MODEL, or false before it arrived.
	FinalModel() (fl.ParameterSet, bool)
}

type SubState uint8

const (
	StateIdle SubState = iota
	StatePreprocessing
	StateTraining
	StateStopped
)

func (s SubState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreprocessing:
		return "preprocessing"
	case StateTraining:
		return "training"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
