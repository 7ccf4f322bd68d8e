package coordinator

import "fmt"

type RoundState uint8

const (
	StateStart RoundState = iota
	StateInit
	StateCompile
	StateFitInit
	StateLocalTrain
	// StateWaitUpdates is part of the status vocabulary only: the machine
	// collects updates while in StateLocalTrain.
	StateWaitUpdates
	StateAggregate
	StateCheckTermination
	StateFinalize
	StateEnd
)

var stateNames = [...]string{
	StateStart:            "START",
	StateInit:             "INIT",
	StateCompile:          "COMPILE",
	StateFitInit:          "FIT_INIT",
	StateLocalTrain:       "LOCAL_TRAIN",
	StateWaitUpdates:      "WAIT_UPDATES",
	StateAggregate:        "AGGREGATE",
	StateCheckTermination: "CHECK_TERMINATION",
	StateFinalize:         "FINALIZE",
	StateEnd:              "END",
}

func (s RoundState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return fmt.Sprintf("RoundState(%d)", uint8(s))
}

func (s RoundState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RoundState) UnmarshalText(text []byte) error {
	for i, n := range stateNames {
		if n == string(text) {
			*s = RoundState(i)

			return nil
		}
	}

	return fmt.Errorf("unknown round state %q", text)
}

type Mode string

const (
	ModeModelAveraging    Mode = "model-averaging"
	ModeGradientAveraging Mode = "gradient-averaging"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeModelAveraging, "":
		return ModeModelAveraging, nil
	case ModeGradientAveraging:
		return ModeGradientAveraging, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
	}
}
