package hrw

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBest(t *testing.T) {
	_, ok := Best(1, nil, 0)
	require.False(t, ok)

	nodes := []int32{1, 2, 3, 4}
	got, ok := Best(42, nodes, 7)
	require.True(t, ok)
	require.Contains(t, nodes, got)

	again, _ := Best(42, []int32{4, 3, 2, 1}, 7)
	require.Equal(t, got, again, "order of nodes does not matter")
}

func TestRank(t *testing.T) {
	nodes := []int32{1, 2, 3, 4, 5}
	r := Rank(9, nodes, 3, 1)
	require.Len(t, r, 3)
	require.Greater(t, Score(9, r[0], 1), Score(9, r[1], 1))
	require.Greater(t, Score(9, r[1], 1), Score(9, r[2], 1))

	require.Len(t, Rank(9, nodes, 10, 1), 5)
	require.Nil(t, Rank(9, nodes, 0, 1))
}

func TestRemovingNodeOnlyMovesItsKeys(t *testing.T) {
	nodes := []int32{1, 2, 3, 4}
	remaining := []int32{1, 2, 4}
	moved := 0
	for key := range int64(1000) {
		before, _ := Best(key, nodes, 1)
		after, _ := Best(key, remaining, 1)
		if before != 3 {
			require.Equal(t, before, after, "key %d", key)
		} else {
			moved++
		}
	}
	require.Greater(t, moved, 150)
	require.Less(t, moved, 350)
}
