package actorid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorID_Equality(t *testing.T) {
	a := New(NewAddress(1, 2), 42)
	b := New(NewAddress(1, 2), 42)
	require.Equal(t, a, b)
	require.True(t, a == b)

	stale := New(NewAddress(1, 2), 43)
	require.NotEqual(t, a, stale)
	require.Equal(t, a.Address, stale.Address)
}

func TestActorID_StringParse(t *testing.T) {
	id := New(NewAddress(3, 7), 1<<40+5)
	require.Equal(t, "3:7:1099511627781", id.String())

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	for _, bad := range []string{"", "1:2", "a:2:3", "1:b:3", "1:2:c", "1:2:3:4"} {
		_, err := Parse(bad)
		require.ErrorIs(t, err, ErrInvalidActorID, bad)
	}
}

func TestActorID_JSON(t *testing.T) {
	id := New(NewAddress(1, 2), 99)
	data, err := json.Marshal(id)
	require.NoError(t, err)
	require.JSONEq(t, `{"process":1,"fiber":2,"instance_id":99}`, string(data))

	var out ActorID
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, id, out)
}

func TestZero(t *testing.T) {
	require.True(t, Address{}.IsZero())
	require.True(t, ActorID{}.IsZero())
	require.False(t, New(NewAddress(0, 1), 0).IsZero())
}
