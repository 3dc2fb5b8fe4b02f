package message

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/core/errcode"
	"github.com/codewandler/clstr-fiber/core/reflector"
)

type ping struct {
	Seq int `json:"seq"`
}

type pong struct {
	ResponseHeader
	Seq int `json:"seq"`
}

type otherPong struct {
	ResponseHeader
}

type notAResponse struct{}

func TestRegistry_RegisterRequest(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterRequest[ping, pong](r))
	require.NoError(t, RegisterRequest[ping, *pong](r), "pointer and value name the same type")

	name, ok := r.ResponseTypeFor(reflector.NameFor[ping]())
	require.True(t, ok)
	require.Equal(t, reflector.NameFor[pong](), name)

	err := RegisterRequest[ping, otherPong](r)
	require.ErrorIs(t, err, ErrResponseMismatch)

	err = RegisterRequest[ping, notAResponse](r)
	require.ErrorIs(t, err, ErrNotResponse)
}

func TestRegistry_NewResponse(t *testing.T) {
	r := NewRegistry()
	MustRegisterRequest[ping, pong](r)

	resp := r.NewResponse(reflector.NameFor[ping]())
	require.IsType(t, &pong{}, resp)

	resp = r.NewResponse("unknown.Request")
	require.IsType(t, &ErrorResponse{}, resp)

	resp = NewErrorResponse(r, "unknown.Request", errcode.NotFoundActor, "gone")
	require.Equal(t, errcode.NotFoundActor, resp.Header().Error)
	require.ErrorIs(t, resp.Header().Err(), errcode.ErrNotFoundActor)

	_, err := r.New("unknown.Type")
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestResponseHeader_SetError(t *testing.T) {
	var h ResponseHeader
	h.SetError(errcode.New(errcode.RpcFail, "boom"))
	require.Equal(t, errcode.RpcFail, h.Error)
	require.NotEmpty(t, h.Message)

	h.SetError(nil)
	require.Equal(t, errcode.OK, h.Error)
	require.NoError(t, h.Err())
}

func TestCodec_Request(t *testing.T) {
	r := NewRegistry()
	MustRegisterRequest[ping, pong](r)
	c := NewCodec(r)

	env := New(actorid.NewAddress(1, 1), actorid.New(actorid.NewAddress(2, 3), 77), ping{Seq: 5})
	env.RpcID = 9

	data, err := c.Marshal(env)
	require.NoError(t, err)

	got, err := c.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, env.From, got.From)
	require.Equal(t, env.Target, got.Target)
	require.Equal(t, uint32(9), got.RpcID)
	require.True(t, got.IsRequest())
	require.Equal(t, &ping{Seq: 5}, got.Payload)
}

func TestCodec_Reply(t *testing.T) {
	r := NewRegistry()
	MustRegisterRequest[ping, pong](r)
	c := NewCodec(r)

	req := New(actorid.NewAddress(1, 1), actorid.New(actorid.NewAddress(2, 3), 77), ping{Seq: 5})
	req.RpcID = 4
	resp := &pong{Seq: 5}
	resp.Error = errcode.Code(200100)

	reply := Reply(req, resp)
	require.Equal(t, actorid.NewAddress(2, 3), reply.From)
	require.Equal(t, actorid.NewAddress(1, 1), reply.Target.Address)
	require.False(t, reply.IsRequest())

	data, err := c.Marshal(reply)
	require.NoError(t, err)
	got, err := c.Unmarshal(data)
	require.NoError(t, err)
	require.True(t, got.Response)
	require.Equal(t, uint32(4), got.RpcID)
	require.Equal(t, errcode.Code(200100), got.Error)
	require.Equal(t, resp, got.Payload)
}

func TestCodec_UnknownPayload(t *testing.T) {
	sender := NewRegistry()
	MustRegisterRequest[ping, pong](sender)
	receiver := NewRegistry()

	env := New(actorid.NewAddress(1, 1), actorid.New(actorid.NewAddress(2, 1), 1), ping{})
	env.RpcID = 1
	data, err := NewCodec(sender).Marshal(env)
	require.NoError(t, err)

	got, err := NewCodec(receiver).Unmarshal(data)
	require.ErrorIs(t, err, ErrDecodePayload)
	require.NotNil(t, got)
	require.True(t, got.IsRequest())
	require.Nil(t, got.Payload)

	_, err = NewCodec(receiver).Unmarshal([]byte("{"))
	require.Error(t, err)
}

func TestCodec_UnregisteredResponse(t *testing.T) {
	sender := NewRegistry()
	MustRegisterRequest[ping, pong](sender)

	req := New(actorid.NewAddress(1, 1), actorid.New(actorid.NewAddress(2, 1), 1), ping{})
	req.RpcID = 5
	reply := Reply(req, &pong{ResponseHeader: ResponseHeader{Error: errcode.RpcFail, Message: "nope"}, Seq: 2})
	data, err := NewCodec(sender).Marshal(reply)
	require.NoError(t, err)

	got, err := NewCodec(NewRegistry()).Unmarshal(data)
	require.NoError(t, err)
	raw, ok := got.Payload.(*RawResponse)
	require.True(t, ok)
	require.Equal(t, reply.Type, raw.Type)
	require.Equal(t, errcode.RpcFail, raw.Error)
	require.Equal(t, "nope", raw.Message)

	var out pong
	require.NoError(t, raw.Decode(&out))
	require.Equal(t, 2, out.Seq)
}
