package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/core/errcode"
)

var ErrDecodePayload = errors.New("decode payload")

type wireEnvelope struct {
	From     actorid.Address `json:"from"`
	Target   actorid.ActorID `json:"target"`
	RpcID    uint32          `json:"rpc_id,omitempty"`
	Response bool            `json:"response,omitempty"`
	Error    errcode.Code    `json:"error,omitempty"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Codec frames envelopes for the process wire. Payloads are decoded into the
// Go type registered under the envelope's type name.
type Codec struct {
	types *Registry
}

func NewCodec(types *Registry) *Codec {
	return &Codec{types: types}
}

func (c *Codec) Types() *Registry { return c.types }

func (c *Codec) Marshal(env *Envelope) ([]byte, error) {
	w := wireEnvelope{
		From:     env.From,
		Target:   env.Target,
		RpcID:    env.RpcID,
		Response: env.Response,
		Error:    env.Error,
		Type:     env.Type,
	}
	if env.Payload != nil {
		data, err := json.Marshal(env.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", env.Type, err)
		}
		w.Data = data
	}
	return json.Marshal(w)
}

// Unmarshal decodes data. When only the payload fails to decode, the
// envelope header is still returned together with an ErrDecodePayload error
// so the receiver can answer the sender. Responses of an unregistered type
// decode into a *RawResponse.
func (c *Codec) Unmarshal(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	env := &Envelope{
		From:     w.From,
		Target:   w.Target,
		RpcID:    w.RpcID,
		Response: w.Response,
		Error:    w.Error,
		Type:     w.Type,
	}
	if len(w.Data) == 0 {
		return env, nil
	}

	v, err := c.types.New(w.Type)
	if err != nil && w.Response {
		// the caller may not know the response type; keep the body raw
		raw := &RawResponse{Type: w.Type, Data: w.Data}
		if err := json.Unmarshal(w.Data, &raw.ResponseHeader); err != nil {
			return env, fmt.Errorf("%w: %s: %w", ErrDecodePayload, w.Type, err)
		}
		env.Payload = raw
		return env, nil
	}
	if err != nil {
		return env, fmt.Errorf("%w: %w", ErrDecodePayload, err)
	}
	if err := json.Unmarshal(w.Data, v); err != nil {
		return env, fmt.Errorf("%w: %s: %w", ErrDecodePayload, w.Type, err)
	}
	env.Payload = v
	return env, nil
}
