package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"
	"pgregory.net/rapid"

	"github.com/tendermint/intentd/types"
)

type write struct {
	key   types.Key
	value []byte
}

func drawWrites(t *rapid.T) []write {
	n := rapid.IntRange(1, 30).Draw(t, "n").(int)
	seen := map[types.Key]bool{}
	var ws []write
	for i := 0; i < n; i++ {
		owner := rapid.SampledFrom([]string{"xan", "btc", "alice", "bob"}).Draw(t, "owner").(string)
		sub := rapid.StringMatching(`[a-z]{1,6}(/[a-z0-9]{1,4})?`).Draw(t, "sub").(string)
		k := types.Key{Owner: types.Address(owner), Sub: sub}
		if seen[k] {
			continue
		}
		seen[k] = true
		ws = append(ws, write{key: k, value: rapid.SliceOf(rapid.Byte()).Draw(t, "value").([]byte)})
	}
	return ws
}

func applyWrites(t *rapid.T, s *Store, ws []write) Hash {
	o := s.NewOverlay()
	for _, w := range ws {
		require.NoError(t, o.Write(w.key, w.value))
	}
	d, err := o.Diff()
	require.NoError(t, err)
	root, err := s.Commit(d)
	require.NoError(t, err)
	return root
}

// The root is a function of the stored slots only: applying the same writes
// one at a time, in any order, yields the root of applying them at once.
func TestRootIsOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ws := drawWrites(t)

		batched, err := NewStore(dbm.NewMemDB())
		require.NoError(t, err)
		want := applyWrites(t, batched, ws)

		shuffled := append([]write(nil), ws...)
		for i := len(shuffled) - 1; i > 0; i-- {
			j := rapid.IntRange(0, i).Draw(t, fmt.Sprintf("swap%d", i)).(int)
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		}

		single, err := NewStore(dbm.NewMemDB())
		require.NoError(t, err)
		var got Hash
		for _, w := range shuffled {
			got = applyWrites(t, single, []write{w})
		}
		require.Equal(t, want, got)
	})
}

// A diff is applied entirely or not at all.
func TestDiffAtomicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s, err := NewStore(dbm.NewMemDB())
		require.NoError(t, err)
		applyWrites(t, s, drawWrites(t))

		ws := drawWrites(t)
		o := s.NewOverlay()
		for _, w := range ws {
			require.NoError(t, o.Write(w.key, w.value))
		}
		d, err := o.Diff()
		require.NoError(t, err)

		stale := rapid.Bool().Draw(t, "stale").(bool)
		if stale {
			applyWrites(t, s, []write{{key: types.MustParseKey("zz/bump"), value: []byte{1}}})
		}

		before := map[types.Key][]byte{}
		for _, w := range ws {
			v, _, err := s.Read(w.key)
			require.NoError(t, err)
			before[w.key] = v
		}
		rootBefore := s.Root()

		_, err = s.Commit(d)
		for _, w := range ws {
			v, _, rerr := s.Read(w.key)
			require.NoError(t, rerr)
			if stale {
				require.Equal(t, before[w.key], v)
			} else {
				require.Equal(t, w.value, v)
			}
		}
		if stale {
			require.ErrorIs(t, err, ErrStorageConflict)
			require.Equal(t, rootBefore, s.Root())
		} else {
			require.NoError(t, err)
		}
	})
}
