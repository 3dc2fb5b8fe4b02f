package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode_NeedThrow(t *testing.T) {
	require.False(t, OK.NeedThrow())
	require.True(t, RpcFail.NeedThrow())
	require.True(t, ActorTimeout.NeedThrow())
	require.True(t, PacketParse.NeedThrow())
	require.False(t, NotFoundActor.NeedThrow())
	require.False(t, Code(250000).NeedThrow())
	require.False(t, Code(42).NeedThrow())
}

func TestCode_IsTimeout(t *testing.T) {
	require.True(t, ActorTimeout.IsTimeout())
	require.True(t, Timeout.IsTimeout())
	require.False(t, RpcFail.IsTimeout())
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("calling: %w", &Error{Code: ActorTimeout, Message: "expired", Detail: "Ping{}"})
	require.ErrorIs(t, err, ErrActorTimeout)
	require.NotErrorIs(t, err, ErrRpcFail)
	require.Equal(t, ActorTimeout, CodeOf(err))
	require.Contains(t, err.Error(), "actor_timeout: expired (Ping{})")
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, OK, CodeOf(nil))
	require.Equal(t, RpcFail, CodeOf(errors.New("boom")))
	require.Equal(t, NotFoundActor, CodeOf(Errorf(NotFoundActor, "actor %d", 7)))
}
