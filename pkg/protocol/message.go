package protocol

import (
	"github.com/absmach/robustfl/pkg/dataset"
	"github.com/absmach/robustfl/pkg/fl"
)

// Message is the unit carried by a channel. Data holds the payload value
// registered for Action, or nil for actions without payload.
type Message struct {
	To     Role
	Action Action
	Data   any
}

func NewMessage(to Role, action Action, data any) Message {
	return Message{To: to, Action: action, Data: data}
}

type InitModel struct {
	Architecture fl.Architecture `json:"architecture" cbor:"1,keyasint"`
	Params       fl.ParameterSet `json:"params"       cbor:"2,keyasint"`
}

type CompileInit struct {
	Optimizer    string  `json:"optimizer"     cbor:"1,keyasint"`
	Loss         string  `json:"loss"          cbor:"2,keyasint"`
	Metric       string  `json:"metric"        cbor:"3,keyasint"`
	LearningRate float64 `json:"learning_rate" cbor:"4,keyasint"`
}

type FitInit struct {
	BatchSize int `json:"batch_size" cbor:"1,keyasint"`
	Epochs    int `json:"epochs"     cbor:"2,keyasint"`
}

type LocalTrain struct {
	Params fl.ParameterSet `json:"params" cbor:"1,keyasint"`
}

type ComputeGradients struct {
	Params  fl.ParameterSet `json:"params"   cbor:"1,keyasint"`
	NumData int             `json:"num_data" cbor:"2,keyasint"`
}

type LocalUpdate struct {
	Params  fl.ParameterSet    `json:"params"            cbor:"1,keyasint"`
	Metrics map[string]float64 `json:"metrics,omitempty" cbor:"2,keyasint,omitempty"`
}

type UpdateGradients struct {
	Gradients fl.ParameterSet    `json:"gradients"         cbor:"1,keyasint"`
	Metrics   map[string]float64 `json:"metrics,omitempty" cbor:"2,keyasint,omitempty"`
}

type FinalModel struct {
	Params fl.ParameterSet `json:"params" cbor:"1,keyasint"`
}

type ComputeMeans struct {
	Means []float64 `json:"means"  cbor:"1,keyasint"`
	Count int       `json:"counts" cbor:"2,keyasint"`
}

type SendStds struct {
	GlobalMeans []float64 `json:"global_means" cbor:"1,keyasint"`
}

type ComputeStds struct {
	Variances []float64 `json:"var"    cbor:"1,keyasint"`
	Count     int       `json:"counts" cbor:"2,keyasint"`
}

type ComputeMinMax struct {
	Mins []float64 `json:"mins" cbor:"1,keyasint"`
	Maxs []float64 `json:"maxs" cbor:"2,keyasint"`
}

type SendPreprocessor struct {
	Normalizer dataset.Normalizer `json:"prep_model" cbor:"1,keyasint"`
}

type payloadDecoder func(raw []byte, unmarshal func([]byte, any) error) (any, error)

func decodeAs[T any]() payloadDecoder {
	return func(raw []byte, unmarshal func([]byte, any) error) (any, error) {
		var v T
		if err := unmarshal(raw, &v); err != nil {
			return nil, err
		}

		return v, nil
	}
}

// Actions missing here carry no payload.
var payloads = map[Action]payloadDecoder{
	ActionInitModel:        decodeAs[InitModel](),
	ActionCompileInit:      decodeAs[CompileInit](),
	ActionFitInit:          decodeAs[FitInit](),
	ActionLocalTrain:       decodeAs[LocalTrain](),
	ActionComputeGradients: decodeAs[ComputeGradients](),
	ActionLocalUpdate:      decodeAs[LocalUpdate](),
	ActionUpdateGradients:  decodeAs[UpdateGradients](),
	ActionSendFinalModel:   decodeAs[FinalModel](),
	ActionComputeMeans:     decodeAs[ComputeMeans](),
	ActionSendStds:         decodeAs[SendStds](),
	ActionComputeStds:      decodeAs[ComputeStds](),
	ActionComputeMinMax:    decodeAs[ComputeMinMax](),
	ActionSendPreprocessor: decodeAs[SendPreprocessor](),
}
