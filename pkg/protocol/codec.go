package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/absmach/robustfl/pkg/errors"
	"github.com/fxamacker/cbor/v2"
	"github.com/golang/snappy"
)

// Codec turns messages into bytes and back. Decoding an unrecognised action
// is not an error: the message comes back as ActionUnknown so the receiver
// can log and drop it.
type Codec interface {
	Name() string
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

func ParseCodec(name string) (Codec, error) {
	base, compressed := strings.CutSuffix(strings.ToLower(name), "+snappy")
	var c Codec
	switch base {
	case "json", "":
		c = JSONCodec{}
	case "cbor":
		c = CBORCodec{}
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
	if compressed {
		c = SnappyCodec{Inner: c}
	}

	return c, nil
}

type jsonEnvelope struct {
	To     Role            `json:"to"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type JSONCodec struct{}

func (JSONCodec) Name() string {
	return "json"
}

func (JSONCodec) Encode(msg Message) ([]byte, error) {
	env := jsonEnvelope{To: msg.To, Action: msg.Action.String()}
	if msg.Data != nil {
		raw, err := json.Marshal(msg.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", msg.Action, err)
		}
		env.Data = raw
	}

	return json.Marshal(env)
}

func (JSONCodec) Decode(data []byte) (Message, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %w", errors.ErrInvalidData, err)
	}

	return decodePayload(env.To, env.Action, env.Data, json.Unmarshal)
}

type cborEnvelope struct {
	To     Role            `cbor:"1,keyasint"`
	Action string          `cbor:"2,keyasint"`
	Data   cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

type CBORCodec struct{}

func (CBORCodec) Name() string {
	return "cbor"
}

func (CBORCodec) Encode(msg Message) ([]byte, error) {
	env := cborEnvelope{To: msg.To, Action: msg.Action.String()}
	if msg.Data != nil {
		raw, err := cbor.Marshal(msg.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", msg.Action, err)
		}
		env.Data = raw
	}

	return cbor.Marshal(env)
}

func (CBORCodec) Decode(data []byte) (Message, error) {
	var env cborEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %w", errors.ErrInvalidData, err)
	}

	return decodePayload(env.To, env.Action, env.Data, cbor.Unmarshal)
}

// SnappyCodec compresses the output of Inner. Parameter sets of larger
// models shrink considerably.
type SnappyCodec struct {
	Inner Codec
}

func (c SnappyCodec) Name() string {
	return c.Inner.Name() + "+snappy"
}

func (c SnappyCodec) Encode(msg Message) ([]byte, error) {
	data, err := c.Inner.Encode(msg)
	if err != nil {
		return nil, err
	}

	return snappy.Encode(nil, data), nil
}

func (c SnappyCodec) Decode(data []byte) (Message, error) {
	decoded, err := snappy.Decode(nil, data)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", errors.ErrInvalidData, err)
	}

	return c.Inner.Decode(decoded)
}

func decodePayload(to Role, name string, raw []byte, unmarshal func([]byte, any) error) (Message, error) {
	action, err := ParseAction(name)
	if err != nil {
		return Message{To: to, Action: ActionUnknown}, nil
	}
	msg := Message{To: to, Action: action}
	dec, ok := payloads[action]
	if !ok || len(raw) == 0 {
		return msg, nil
	}
	data, err := dec(raw, unmarshal)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s payload: %w", errors.ErrInvalidData, action, err)
	}
	msg.Data = data

	return msg, nil
}
