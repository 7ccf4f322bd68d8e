package api

import (
	"errors"

	apiutil "github.com/absmach/supermq/api/http/util"
)

var errNoCheckpoints = errors.New("checkpoints are disabled")

type statusReq struct{}

func (r *statusReq) validate() error {
	return nil
}

type iterationReq struct {
	iteration int
}

func (r *iterationReq) validate() error {
	if r.iteration <= 0 {
		return apiutil.ErrInvalidQueryParams
	}

	return nil
}
