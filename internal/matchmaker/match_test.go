package matchmaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/intentd/internal/test/factory"
	"github.com/tendermint/intentd/types"
)

var (
	alice   = factory.NewUser("alice")
	bob     = factory.NewUser("bob")
	charlie = factory.NewUser("charlie")
	mmUser  = factory.NewUser("matchmaker")

	genesisTime = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
)

const topic = "asset_v0"

func intentAt(u factory.User, sell types.Address, amtSell uint64, buy types.Address, amtBuy uint64, offset int) *types.Intent {
	return factory.Intent(u, sell, amtSell, buy, amtBuy, topic, genesisTime.Add(time.Duration(offset)*time.Second))
}

func TestFindMatchFIFO(t *testing.T) {
	ws := NewWorkingSet(0)

	a := intentAt(alice, "xan", 10, "btc", 1, 0)
	b := intentAt(bob, "btc", 1, "xan", 10, 1)
	c := intentAt(charlie, "btc", 1, "xan", 10, 2)

	// b and c both counter a; the earlier one wins
	require.True(t, ws.Add(b))
	require.True(t, ws.Add(c))
	assert.Equal(t, b.ID(), FindMatch(ws, a).ID())

	ws.Remove(b)
	assert.Equal(t, c.ID(), FindMatch(ws, a).ID())
}

func TestFindMatchExactOnly(t *testing.T) {
	a := intentAt(alice, "xan", 10, "btc", 1, 0)

	testCases := map[string]struct {
		counter *types.Intent
		match   bool
	}{
		"exact opposite":   {intentAt(bob, "btc", 1, "xan", 10, 1), true},
		"more than wanted": {intentAt(bob, "btc", 2, "xan", 10, 1), false},
		"asks for more":    {intentAt(bob, "btc", 1, "xan", 11, 1), false},
		"other token":      {intentAt(bob, "eth", 1, "xan", 10, 1), false},
		"same direction":   {intentAt(bob, "xan", 10, "btc", 1, 1), false},
		"same sender":      {intentAt(alice, "btc", 1, "xan", 10, 1), false},
		"other topic":      {factory.Intent(bob, "btc", 1, "xan", 10, "nft", genesisTime), false},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			ws := NewWorkingSet(0)
			require.True(t, ws.Add(tc.counter))
			got := FindMatch(ws, a)
			if tc.match {
				require.NotNil(t, got)
				assert.Equal(t, tc.counter.ID(), got.ID())
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestFindMatchNeverSelf(t *testing.T) {
	ws := NewWorkingSet(0)
	a := intentAt(alice, "xan", 10, "btc", 1, 0)
	require.True(t, ws.Add(a))
	assert.Nil(t, FindMatch(ws, a))
}

func TestCounters(t *testing.T) {
	a := intentAt(alice, "xan", 10, "btc", 1, 0)
	b := intentAt(bob, "btc", 1, "xan", 10, 0)
	assert.True(t, Counters(a, b))
	assert.True(t, Counters(b, a))
	assert.False(t, Counters(a, a))
}
