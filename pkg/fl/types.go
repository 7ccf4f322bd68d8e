package fl

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Tensor is a dense row-major block of parameters.
type Tensor struct {
	Shape []int     `json:"shape" cbor:"1,keyasint"`
	Data  []float64 `json:"data"  cbor:"2,keyasint"`
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int) Tensor {
	return Tensor{
		Shape: slices.Clone(shape),
		Data:  make([]float64, size(shape)),
	}
}

func (t Tensor) Size() int {
	return size(t.Shape)
}

func (t Tensor) Validate() error {
	if len(t.Data) != t.Size() {
		return fmt.Errorf("%w: shape %v holds %d values, got %d", ErrInvalidTensor, t.Shape, t.Size(), len(t.Data))
	}

	return nil
}

// jsonFloat carries NaN and infinities as the strings "NaN", "+Inf" and
// "-Inf", which plain JSON numbers cannot express.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}

	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "NaN", "+Inf", "-Inf":
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			*f = jsonFloat(v)

			return nil
		default:
			return fmt.Errorf("%w: unexpected value %q", ErrInvalidTensor, s)
		}
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)

	return nil
}

type jsonTensor struct {
	Shape []int       `json:"shape"`
	Data  []jsonFloat `json:"data"`
}

func (t Tensor) MarshalJSON() ([]byte, error) {
	jt := jsonTensor{Shape: t.Shape}
	if t.Data != nil {
		jt.Data = make([]jsonFloat, len(t.Data))
		for i, v := range t.Data {
			jt.Data[i] = jsonFloat(v)
		}
	}

	return json.Marshal(jt)
}

func (t *Tensor) UnmarshalJSON(data []byte) error {
	var jt jsonTensor
	if err := json.Unmarshal(data, &jt); err != nil {
		return err
	}
	t.Shape = jt.Shape
	t.Data = nil
	if jt.Data != nil {
		t.Data = make([]float64, len(jt.Data))
		for i, v := range jt.Data {
			t.Data[i] = float64(v)
		}
	}

	return nil
}

func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: slices.Clone(t.Shape),
		Data:  slices.Clone(t.Data),
	}
}

// ParameterSet is the ordered list of layers of a model or a gradient.
// Layer order mirrors the model's internal ordering and must match on every party.
type ParameterSet []Tensor

func (ps ParameterSet) Clone() ParameterSet {
	if ps == nil {
		return nil
	}
	out := make(ParameterSet, len(ps))
	for i := range ps {
		out[i] = ps[i].Clone()
	}

	return out
}

// CheckShape reports ErrShapeMismatch unless other has the same layer count and per-layer shapes.
func (ps ParameterSet) CheckShape(other ParameterSet) error {
	if len(ps) != len(other) {
		return fmt.Errorf("%w: %d layers vs %d layers", ErrShapeMismatch, len(ps), len(other))
	}
	for i := range ps {
		if !slices.Equal(ps[i].Shape, other[i].Shape) {
			return fmt.Errorf("%w: layer %d has shape %v vs %v", ErrShapeMismatch, i, ps[i].Shape, other[i].Shape)
		}
		if len(ps[i].Data) != len(other[i].Data) {
			return fmt.Errorf("%w: layer %d has %d values vs %d", ErrShapeMismatch, i, len(ps[i].Data), len(other[i].Data))
		}
	}

	return nil
}

func (ps ParameterSet) Validate() error {
	for i := range ps {
		if err := ps[i].Validate(); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}

	return nil
}

// Shapes returns the per-layer shapes.
func (ps ParameterSet) Shapes() [][]int {
	shapes := make([][]int, len(ps))
	for i := range ps {
		shapes[i] = slices.Clone(ps[i].Shape)
	}

	return shapes
}

// Architecture describes a model family and its layer shapes.
type Architecture struct {
	Family string  `json:"family" cbor:"1,keyasint" toml:"family" yaml:"family"`
	Shapes [][]int `json:"shapes" cbor:"2,keyasint" toml:"shapes" yaml:"shapes"`
}

// Validate rejects architectures with no layers or with a dimension that is
// not positive.
func (a Architecture) Validate() error {
	if len(a.Shapes) == 0 {
		return fmt.Errorf("%w: architecture has no layers", ErrShapeMismatch)
	}
	for i, shape := range a.Shapes {
		if len(shape) == 0 {
			return fmt.Errorf("%w: layer %d has no dimensions", ErrShapeMismatch, i)
		}
		for _, d := range shape {
			if d <= 0 {
				return fmt.Errorf("%w: layer %d has dimension %d", ErrShapeMismatch, i, d)
			}
		}
	}

	return nil
}

// Zeros returns a zero-valued parameter set laid out as the architecture.
func Zeros(arch Architecture) ParameterSet {
	ps := make(ParameterSet, len(arch.Shapes))
	for i, shape := range arch.Shapes {
		ps[i] = NewTensor(shape...)
	}

	return ps
}

func size(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}

	return n
}
