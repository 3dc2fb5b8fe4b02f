// Package hrw ranks fibers for a persistent id with rendezvous hashing.
// Removing a fiber only moves the ids it held; adding one takes a fair share
// from every other fiber.
package hrw

import (
	"encoding/binary"
	"slices"

	"golang.org/x/crypto/blake2b"
)

// Rank returns up to k of nodes ordered by descending score for key. seed
// separates placements of different processes.
func Rank(key int64, nodes []int32, k int, seed int32) []int32 {
	if k <= 0 || len(nodes) == 0 {
		return nil
	}
	k = min(k, len(nodes))

	type scored struct {
		score uint64
		node  int32
	}
	all := make([]scored, len(nodes))
	for i, n := range nodes {
		all[i] = scored{score: Score(key, n, seed), node: n}
	}
	slices.SortFunc(all, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return int(a.node) - int(b.node)
	})

	out := make([]int32, k)
	for i := range out {
		out[i] = all[i].node
	}
	return out
}

// Best returns the highest ranked node. ok is false without nodes.
func Best(key int64, nodes []int32, seed int32) (int32, bool) {
	r := Rank(key, nodes, 1, seed)
	if len(r) == 0 {
		return 0, false
	}
	return r[0], true
}

// Score is the 64 bit blake2b digest of seed, key and node.
func Score(key int64, node int32, seed int32) uint64 {
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:], uint32(seed))
	binary.BigEndian.PutUint64(buf[4:], uint64(key))
	binary.BigEndian.PutUint32(buf[12:], uint32(node))

	h, _ := blake2b.New(8, nil)
	h.Write(buf[:])
	return binary.BigEndian.Uint64(h.Sum(nil))
}
