package dataset

import (
	"fmt"
	"math"
	"slices"
)

type Kind string

const (
	KindNone     Kind = ""
	KindStandard Kind = "standard"
	KindMinMax   Kind = "minmax"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindNone, "none":
		return KindNone, nil
	case KindStandard, KindMinMax:
		return Kind(s), nil
	default:
		return KindNone, fmt.Errorf("unknown preprocessing kind %q", s)
	}
}

// Normalizer maps x to (x - Offset) / Scale column by column.
type Normalizer struct {
	Kind   Kind      `json:"kind"   cbor:"1,keyasint"`
	Offset []float64 `json:"offset" cbor:"2,keyasint"`
	Scale  []float64 `json:"scale"  cbor:"3,keyasint"`
}

func (n Normalizer) Clone() Normalizer {
	return Normalizer{Kind: n.Kind, Offset: slices.Clone(n.Offset), Scale: slices.Clone(n.Scale)}
}

func (n Normalizer) Transform(row []float64) {
	for j := range row {
		row[j] = (row[j] - n.Offset[j]) / n.Scale[j]
	}
}

func NewStandardNormalizer(means, variances []float64) Normalizer {
	scale := make([]float64, len(variances))
	for j, v := range variances {
		scale[j] = nonZero(math.Sqrt(v))
	}

	return Normalizer{Kind: KindStandard, Offset: append([]float64(nil), means...), Scale: scale}
}

func NewMinMaxNormalizer(mins, maxs []float64) Normalizer {
	scale := make([]float64, len(mins))
	for j := range mins {
		scale[j] = nonZero(maxs[j] - mins[j])
	}

	return Normalizer{Kind: KindMinMax, Offset: append([]float64(nil), mins...), Scale: scale}
}

// Constant columns keep their values instead of dividing by zero.
func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}

	return v
}

// CombineMeans merges per-worker means weighted by each worker's row count.
func CombineMeans(means [][]float64, counts []int) ([]float64, error) {
	return weighted(means, counts)
}

// CombineVariances merges per-worker variances that were computed around the
// same global means, weighted by row count.
func CombineVariances(vars [][]float64, counts []int) ([]float64, error) {
	return weighted(vars, counts)
}

func CombineMinMax(mins, maxs [][]float64) ([]float64, []float64, error) {
	if len(mins) == 0 || len(mins) != len(maxs) {
		return nil, nil, ErrEmpty
	}
	width := len(mins[0])
	gmin := append([]float64(nil), mins[0]...)
	gmax := append([]float64(nil), maxs[0]...)
	for i := range mins {
		if len(mins[i]) != width || len(maxs[i]) != width {
			return nil, nil, fmt.Errorf("%w: contribution %d", ErrWidthMismatch, i)
		}
		for j := 0; j < width; j++ {
			gmin[j] = min(gmin[j], mins[i][j])
			gmax[j] = max(gmax[j], maxs[i][j])
		}
	}

	return gmin, gmax, nil
}

func weighted(values [][]float64, counts []int) ([]float64, error) {
	if len(values) == 0 || len(values) != len(counts) {
		return nil, ErrEmpty
	}
	width := len(values[0])
	out := make([]float64, width)
	total := 0
	for i, v := range values {
		if len(v) != width {
			return nil, fmt.Errorf("%w: contribution %d", ErrWidthMismatch, i)
		}
		for j := range v {
			out[j] += v[j] * float64(counts[i])
		}
		total += counts[i]
	}
	if total == 0 {
		return nil, ErrEmpty
	}
	for j := range out {
		out[j] /= float64(total)
	}

	return out, nil
}
