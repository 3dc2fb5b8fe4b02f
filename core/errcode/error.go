package errcode

import (
	"errors"
	"fmt"
)

var (
	ErrActorTimeout  = &Error{Code: ActorTimeout}
	ErrTimeout       = &Error{Code: Timeout}
	ErrRpcFail       = &Error{Code: RpcFail}
	ErrNoHandler     = &Error{Code: NoHandler}
	ErrPacketParse   = &Error{Code: PacketParse}
	ErrNotFoundActor = &Error{Code: NotFoundActor}
)

// Error is a response code surfaced as a Go error.
type Error struct {
	Code    Code
	Message string
	// Detail describes the originating request, set on timeouts.
	Detail string
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func (e *Error) Error() string {
	s := e.Code.String()
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Detail != "" {
		s += " (" + e.Detail + ")"
	}
	return s
}

// Is matches another *Error with the same code. The sentinels above carry no
// message, so errors.Is(err, ErrActorTimeout) matches any actor timeout.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the code from err; OK for nil, RpcFail for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RpcFail
}

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
