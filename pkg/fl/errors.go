package fl

import (
	"errors"

	pkgerrors "github.com/absmach/robustfl/pkg/errors"
)

var (
	ErrNoUpdates       = errors.New("no updates provided for aggregation")
	ErrShapeMismatch   = pkgerrors.ErrShapeMismatch
	ErrUnknownStrategy = errors.New("unknown aggregation strategy")
	ErrInvalidTensor   = errors.New("tensor data does not match its shape")
)
