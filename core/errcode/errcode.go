// Package errcode defines the numeric error codes carried by responses and
// the error type callers observe when a code surfaces as a Go error.
//
// Codes are split into two classes:
//
//   - [MustThrowStart, WithoutExceptionStart): failures that become an error
//     for callers asking for exceptions (see [Code.NeedThrow]).
//   - >= WithoutExceptionStart: informational codes that never become an
//     error on their own, e.g. [NotFoundActor]. Application codes belong here
//     when callers should inspect them on the response instead.
//
// Timeouts are special: they always surface as an error, whatever the caller
// asked for.
package errcode

import (
	"fmt"
)

type Code int32

const (
	OK Code = 0

	MustThrowStart        Code = 100000
	WithoutExceptionStart Code = 200000
)

const (
	// ActorTimeout is produced locally when a pending request expires.
	ActorTimeout Code = 100101
	// Timeout is a generic timeout reported by a remote handler.
	Timeout Code = 100102

	PacketParse Code = 110005
	NoHandler   Code = 110006
	RpcFail     Code = 110307
)

const (
	NotFoundActor Code = 200002
)

// NeedThrow reports whether the code belongs to the must-throw class.
func (c Code) NeedThrow() bool {
	return c >= MustThrowStart && c < WithoutExceptionStart
}

func (c Code) IsTimeout() bool {
	return c == ActorTimeout || c == Timeout
}

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case ActorTimeout:
		return "actor_timeout"
	case Timeout:
		return "timeout"
	case PacketParse:
		return "packet_parse"
	case NoHandler:
		return "no_handler"
	case RpcFail:
		return "rpc_fail"
	case NotFoundActor:
		return "not_found_actor"
	default:
		return fmt.Sprintf("code_%d", int32(c))
	}
}
