// Package protocol defines the messages exchanged between the coordinator
// and its workers.
package protocol

import (
	"fmt"

	"github.com/absmach/robustfl/pkg/errors"
)

// Role selects which dispatcher on the worker handles a message.
type Role string

const (
	RoleCommonML Role = "CommonML"
	RoleMLModel  Role = "MLmodel"
)

type Action uint8

const (
	ActionUnknown Action = iota
	ActionInitModel
	ActionAckInitModel
	ActionCompileInit
	ActionAckCompileInit
	ActionFitInit
	ActionAckFitInit
	ActionLocalTrain
	ActionLocalUpdate
	ActionComputeGradients
	ActionUpdateGradients
	ActionSendFinalModel
	ActionAckFinalModel
	ActionStop
	ActionSendMeans
	ActionComputeMeans
	ActionSendStds
	ActionComputeStds
	ActionSendMinMax
	ActionComputeMinMax
	ActionSendPreprocessor
	ActionAckSendPreprocessor
)

var actionNames = map[Action]string{
	ActionUnknown:             "UNKNOWN",
	ActionInitModel:           "INIT_MODEL",
	ActionAckInitModel:        "ACK_INIT_MODEL",
	ActionCompileInit:         "COMPILE_INIT",
	ActionAckCompileInit:      "ACK_COMPILE_INIT",
	ActionFitInit:             "FIT_INIT",
	ActionAckFitInit:          "ACK_FIT_INIT",
	ActionLocalTrain:          "LOCAL_TRAIN",
	ActionLocalUpdate:         "LOCAL_UPDATE",
	ActionComputeGradients:    "COMPUTE_GRADIENTS",
	ActionUpdateGradients:     "UPDATE_GRADIENTS",
	ActionSendFinalModel:      "SEND_FINAL_MODEL",
	ActionAckFinalModel:       "ACK_FINAL_MODEL",
	ActionStop:                "STOP",
	ActionSendMeans:           "SEND_MEANS",
	ActionComputeMeans:        "COMPUTE_MEANS",
	ActionSendStds:            "SEND_STDS",
	ActionComputeStds:         "COMPUTE_STDS",
	ActionSendMinMax:          "SEND_MIN_MAX",
	ActionComputeMinMax:       "COMPUTE_MIN_MAX",
	ActionSendPreprocessor:    "SEND_PREPROCESSOR",
	ActionAckSendPreprocessor: "ACK_SEND_PREPROCESSOR",
}

var actionsByName = func() map[string]Action {
	m := make(map[string]Action, len(actionNames))
	for a, n := range actionNames {
		if a != ActionUnknown {
			m[n] = a
		}
	}

	return m
}()

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}

	return fmt.Sprintf("Action(%d)", uint8(a))
}

// ParseAction maps a wire name to its Action. Unrecognised names yield
// ActionUnknown together with an ErrProtocolViolation.
func ParseAction(s string) (Action, error) {
	if a, ok := actionsByName[s]; ok {
		return a, nil
	}

	return ActionUnknown, fmt.Errorf("%w: unknown action %q", errors.ErrProtocolViolation, s)
}

var acks = map[Action]bool{
	ActionAckInitModel:        true,
	ActionAckCompileInit:      true,
	ActionAckFitInit:          true,
	ActionAckFinalModel:       true,
	ActionAckSendPreprocessor: true,
}

// IsAck reports whether a is a bare acknowledgment without payload.
func IsAck(a Action) bool {
	return acks[a]
}

// AckFor returns the acknowledgment a worker sends after handling a.
func AckFor(a Action) (Action, bool) {
	switch a {
	case ActionInitModel:
		return ActionAckInitModel, true
	case ActionCompileInit:
		return ActionAckCompileInit, true
	case ActionFitInit:
		return ActionAckFitInit, true
	case ActionSendFinalModel:
		return ActionAckFinalModel, true
	case ActionSendPreprocessor:
		return ActionAckSendPreprocessor, true
	default:
		return ActionUnknown, false
	}
}
