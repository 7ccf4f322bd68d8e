package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")

	// ErrTimeout marks an expired receive. It is recoverable and retried by both roles.
	ErrTimeout = errors.New("receive timed out")
	// ErrChannel marks a transport failure other than a timeout. It is fatal.
	ErrChannel = errors.New("channel failure")
	// ErrShapeMismatch marks parameter sets that cannot be combined.
	ErrShapeMismatch = errors.New("parameter shape mismatch")
	// ErrProtocolViolation marks a message not valid in the receiver's current state.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrInterrupted marks an operator requested shutdown.
	ErrInterrupted = errors.New("interrupted by operator")
)
