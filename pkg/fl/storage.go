package fl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/absmach/robustfl/pkg/storage"
	"github.com/fxamacker/cbor/v2"
)

const (
	roundPrefix = "round:"
	modelPrefix = "model:"
)

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}

	return em
}()

// RoundRecord summarises one completed aggregation.
type RoundRecord struct {
	Session   string             `json:"session"            cbor:"1,keyasint"`
	Iteration int                `json:"iteration"          cbor:"2,keyasint"`
	Strategy  Strategy           `json:"strategy"           cbor:"3,keyasint"`
	Workers   []string           `json:"workers"            cbor:"4,keyasint"`
	Metrics   map[string]float64 `json:"metrics,omitempty"  cbor:"5,keyasint,omitempty"`
	Duration  time.Duration      `json:"duration"           cbor:"6,keyasint"`
	CreatedAt time.Time          `json:"created_at"         cbor:"7,keyasint"`
}

// Checkpoints persists round records and model snapshots on top of a key value store.
type Checkpoints struct {
	store storage.Storage
}

func NewCheckpoints(store storage.Storage) *Checkpoints {
	return &Checkpoints{store: store}
}

func (c *Checkpoints) SaveRound(ctx context.Context, rec RoundRecord) error {
	data, err := encMode.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal round record: %w", err)
	}

	return c.store.Put(ctx, roundKey(rec.Iteration), data)
}

func (c *Checkpoints) LoadRound(ctx context.Context, iteration int) (RoundRecord, error) {
	data, err := c.store.Get(ctx, roundKey(iteration))
	if err != nil {
		return RoundRecord{}, err
	}

	var rec RoundRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return RoundRecord{}, fmt.Errorf("failed to unmarshal round record: %w", err)
	}

	return rec, nil
}

func (c *Checkpoints) ListRounds(ctx context.Context) ([]int, error) {
	return c.list(ctx, roundPrefix)
}

func (c *Checkpoints) SaveModel(ctx context.Context, version int, params ParameterSet) error {
	data, err := encMode.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	return c.store.Put(ctx, modelKey(version), data)
}

func (c *Checkpoints) LoadModel(ctx context.Context, version int) (ParameterSet, error) {
	data, err := c.store.Get(ctx, modelKey(version))
	if err != nil {
		return nil, err
	}

	var params ParameterSet
	if err := cbor.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	return params, nil
}

func (c *Checkpoints) ListModels(ctx context.Context) ([]int, error) {
	return c.list(ctx, modelPrefix)
}

// LatestModel returns the highest stored model version.
func (c *Checkpoints) LatestModel(ctx context.Context) (int, ParameterSet, error) {
	versions, err := c.ListModels(ctx)
	if err != nil {
		return 0, nil, err
	}
	if len(versions) == 0 {
		return 0, nil, nil
	}
	latest := versions[len(versions)-1]
	params, err := c.LoadModel(ctx, latest)

	return latest, params, err
}

// PruneModels deletes all but the newest keep model snapshots and returns
// how many were removed. Round records are never pruned.
func (c *Checkpoints) PruneModels(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	versions, err := c.ListModels(ctx)
	if err != nil {
		return 0, err
	}
	if len(versions) <= keep {
		return 0, nil
	}

	stale := versions[:len(versions)-keep]
	for i, v := range stale {
		if err := c.store.Delete(ctx, modelKey(v)); err != nil {
			return i, fmt.Errorf("failed to delete model %d: %w", v, err)
		}
	}

	return len(stale), nil
}

func (c *Checkpoints) list(ctx context.Context, prefix string) ([]int, error) {
	entries, err := c.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		id, err := strconv.Atoi(strings.TrimPrefix(e.Key, prefix))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// Keys are zero padded so lexical order matches numeric order.
func roundKey(iteration int) string {
	return fmt.Sprintf("%s%08d", roundPrefix, iteration)
}

func modelKey(version int) string {
	return fmt.Sprintf("%s%08d", modelPrefix, version)
}
