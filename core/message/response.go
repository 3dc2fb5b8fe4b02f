package message

import (
	"encoding/json"

	"github.com/codewandler/clstr-fiber/core/errcode"
)

// Response is implemented by every response type, usually by embedding
// ResponseHeader:
//
//	type Pong struct {
//		message.ResponseHeader
//		Seq int `json:"seq"`
//	}
type Response interface {
	Header() *ResponseHeader
}

type ResponseHeader struct {
	Error   errcode.Code `json:"error,omitempty"`
	Message string       `json:"message,omitempty"`
}

func (h *ResponseHeader) Header() *ResponseHeader { return h }

// SetError fills the header from err; nil resets it to OK.
func (h *ResponseHeader) SetError(err error) {
	if err == nil {
		h.Error, h.Message = errcode.OK, ""
		return
	}
	h.Error = errcode.CodeOf(err)
	h.Message = err.Error()
}

// Err returns the header as an error, nil when OK.
func (h *ResponseHeader) Err() error {
	if h.Error == errcode.OK {
		return nil
	}
	return &errcode.Error{Code: h.Error, Message: h.Message}
}

// ErrorResponse is the response used when the request's own response type is
// unknown, e.g. a NotFoundActor answer for an unregistered request type.
type ErrorResponse struct {
	ResponseHeader
}

func (*ErrorResponse) MsgType() string { return "clstr.fiber.ErrorResponse" }

// RawResponse is a received response whose type is not registered locally.
// Only the header is decoded.
type RawResponse struct {
	ResponseHeader
	Type string          `json:"-"`
	Data json.RawMessage `json:"-"`
}

// Decode unmarshals the full response body into v.
func (r *RawResponse) Decode(v any) error { return json.Unmarshal(r.Data, v) }

// NewErrorResponse builds a response of the request's registered response type
// (falling back to ErrorResponse) carrying code and msg.
func NewErrorResponse(types *Registry, requestType string, code errcode.Code, msg string) Response {
	resp := types.NewResponse(requestType)
	h := resp.Header()
	h.Error = code
	h.Message = msg
	return resp
}
