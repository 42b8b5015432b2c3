package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/intentd/types"
)

func TestUsersAreDeterministic(t *testing.T) {
	assert.Equal(t, NewUser("alice").Address, NewUser("alice").Address)
	assert.NotEqual(t, NewUser("alice").Address, NewUser("bob").Address)
}

func TestGenesisJSON(t *testing.T) {
	alice := NewUser("alice")
	g := NewGenesis(DefaultTestChainID, time.Unix(1600000000, 0).UTC()).
		AddToken("xan").
		AddUser(alice, map[types.Address]uint64{"xan": 100})

	doc, err := types.GenesisDocFromJSON(g.JSON())
	require.NoError(t, err)
	require.Len(t, doc.Accounts, 2)
	assert.Equal(t, alice.PubKey(), doc.Accounts[1].PubKey)
	assert.Equal(t, uint64(100), doc.Accounts[1].Balances["xan"])
}

func TestIntentAndTx(t *testing.T) {
	alice := NewUser("alice")
	in := Intent(alice, "xan", 10, "btc", 1, "swap", time.Now())
	require.NoError(t, in.VerifySignature())

	tx, err := types.DecodeTransaction(Tx([]byte("code"), []byte("data"), time.Now(), alice))
	require.NoError(t, err)
	assert.True(t, tx.IsSignedBy(alice.PubKey()))
	assert.Equal(t, []types.Address{alice.Address}, tx.Signers())
}
