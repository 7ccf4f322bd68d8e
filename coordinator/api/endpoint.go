package api

import (
	"context"
	"errors"

	"github.com/absmach/robustfl/coordinator"
	pkgerrors "github.com/absmach/robustfl/pkg/errors"
	"github.com/absmach/robustfl/pkg/fl"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func statusEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(statusReq)
		if !ok {
			return statusResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return statusResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		st, err := svc.Status(ctx)
		if err != nil {
			return statusResponse{}, err
		}

		return statusResponse{Status: st}, nil
	}
}

func modelEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(statusReq)
		if !ok {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return modelResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		m, err := svc.Model(ctx)
		if err != nil {
			return modelResponse{}, err
		}

		return modelResponse{Model: m}, nil
	}
}

func listRoundsEndpoint(checkpoints *fl.Checkpoints) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		if _, ok := request.(statusReq); !ok {
			return listRoundsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if checkpoints == nil {
			return listRoundsResponse{}, errors.Join(pkgerrors.ErrNotFound, errNoCheckpoints)
		}

		rounds, err := checkpoints.ListRounds(ctx)
		if err != nil {
			return listRoundsResponse{}, err
		}

		return listRoundsResponse{
			Total:  uint64(len(rounds)),
			Rounds: rounds,
		}, nil
	}
}

func getRoundEndpoint(checkpoints *fl.Checkpoints) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(iterationReq)
		if !ok {
			return roundResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return roundResponse{}, errors.Join(apiutil.ErrValidation, err)
		}
		if checkpoints == nil {
			return roundResponse{}, errors.Join(pkgerrors.ErrNotFound, errNoCheckpoints)
		}

		rec, err := checkpoints.LoadRound(ctx, req.iteration)
		if err != nil {
			return roundResponse{}, err
		}

		return roundResponse{RoundRecord: rec}, nil
	}
}

func getCheckpointEndpoint(checkpoints *fl.Checkpoints) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(iterationReq)
		if !ok {
			return checkpointResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return checkpointResponse{}, errors.Join(apiutil.ErrValidation, err)
		}
		if checkpoints == nil {
			return checkpointResponse{}, errors.Join(pkgerrors.ErrNotFound, errNoCheckpoints)
		}

		params, err := checkpoints.LoadModel(ctx, req.iteration)
		if err != nil {
			return checkpointResponse{}, err
		}

		return checkpointResponse{
			Version: req.iteration,
			Params:  params,
		}, nil
	}
}
