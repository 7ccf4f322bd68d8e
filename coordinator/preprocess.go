package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/absmach/robustfl/pkg/dataset"
	"github.com/absmach/robustfl/pkg/protocol"
)

// advancePreprocessing steps the normalisation handshake by at most one
// request. It reports true once every worker has applied the preprocessor.
// The caller holds the lock.
func (svc *service) advancePreprocessing(ctx context.Context) (bool, error) {
	if svc.awaiting == protocol.ActionUnknown {
		switch svc.cfg.Preprocessing {
		case dataset.KindStandard:
			return false, svc.request(ctx, protocol.ActionSendMeans, nil, protocol.ActionComputeMeans)
		case dataset.KindMinMax:
			return false, svc.request(ctx, protocol.ActionSendMinMax, nil, protocol.ActionComputeMinMax)
		default:
			return false, fmt.Errorf("%w: preprocessing %q", ErrInvalidConfig, svc.cfg.Preprocessing)
		}
	}
	if !svc.barrier.AllMatch(svc.awaiting) {
		return false, nil
	}

	replies := svc.replies()
	switch svc.awaiting {
	case protocol.ActionComputeMeans:
		means, err := globalMeans(replies)
		if err != nil {
			return false, err
		}
		svc.globalMeans = means

		return false, svc.request(ctx, protocol.ActionSendStds, protocol.SendStds{GlobalMeans: means}, protocol.ActionComputeStds)
	case protocol.ActionComputeStds:
		vars, err := globalVariances(replies)
		if err != nil {
			return false, err
		}

		return false, svc.sendPreprocessor(ctx, dataset.NewStandardNormalizer(svc.globalMeans, vars))
	case protocol.ActionComputeMinMax:
		norm, err := minMax(replies)
		if err != nil {
			return false, err
		}

		return false, svc.sendPreprocessor(ctx, norm)
	default:
		if n, ok := svc.evaluator.(Normalizer); ok && svc.normalizer != nil {
			if err := n.Normalize(*svc.normalizer); err != nil {
				return false, fmt.Errorf("failed to normalize evaluation data: %w", err)
			}
		}
		svc.awaiting = protocol.ActionUnknown
		svc.barrier.Reset()
		clear(svc.prep)
		svc.preprocessed = true
		svc.logger.Info("preprocessing completed", slog.String("kind", string(svc.cfg.Preprocessing)))

		return true, nil
	}
}

// request broadcasts a CommonML command and arms the barrier for its reply.
func (svc *service) request(ctx context.Context, action protocol.Action, data any, expected protocol.Action) error {
	svc.barrier.Reset()
	clear(svc.prep)
	svc.awaiting = expected
	svc.touch()

	return svc.broadcastTo(ctx, protocol.RoleCommonML, action, data)
}

func (svc *service) sendPreprocessor(ctx context.Context, norm dataset.Normalizer) error {
	svc.normalizer = &norm

	return svc.request(ctx, protocol.ActionSendPreprocessor, protocol.SendPreprocessor{Normalizer: norm}, protocol.ActionAckSendPreprocessor)
}

// replies returns the recorded payloads in roster order.
func (svc *service) replies() []any {
	replies := make([]any, 0, len(svc.cfg.Roster))
	for _, id := range svc.barrier.Roster() {
		if p, ok := svc.prep[id]; ok {
			replies = append(replies, p)
		}
	}

	return replies
}

func globalMeans(replies []any) ([]float64, error) {
	means := make([][]float64, 0, len(replies))
	counts := make([]int, 0, len(replies))
	for _, r := range replies {
		m, ok := r.(protocol.ComputeMeans)
		if !ok {
			return nil, fmt.Errorf("unexpected means payload %T", r)
		}
		means = append(means, m.Means)
		counts = append(counts, m.Count)
	}

	return dataset.CombineMeans(means, counts)
}

func globalVariances(replies []any) ([]float64, error) {
	vars := make([][]float64, 0, len(replies))
	counts := make([]int, 0, len(replies))
	for _, r := range replies {
		s, ok := r.(protocol.ComputeStds)
		if !ok {
			return nil, fmt.Errorf("unexpected variance payload %T", r)
		}
		vars = append(vars, s.Variances)
		counts = append(counts, s.Count)
	}

	return dataset.CombineVariances(vars, counts)
}

func minMax(replies []any) (dataset.Normalizer, error) {
	mins := make([][]float64, 0, len(replies))
	maxs := make([][]float64, 0, len(replies))
	for _, r := range replies {
		m, ok := r.(protocol.ComputeMinMax)
		if !ok {
			return dataset.Normalizer{}, fmt.Errorf("unexpected min-max payload %T", r)
		}
		mins = append(mins, m.Mins)
		maxs = append(maxs, m.Maxs)
	}
	gmin, gmax, err := dataset.CombineMinMax(mins, maxs)
	if err != nil {
		return dataset.Normalizer{}, err
	}

	return dataset.NewMinMaxNormalizer(gmin, gmax), nil
}
