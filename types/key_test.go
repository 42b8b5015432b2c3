package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/intentd/crypto/ed25519"
)

func TestParseKey(t *testing.T) {
	k, err := ParseKey("xan/balance/alice")
	require.NoError(t, err)
	assert.Equal(t, Key{Owner: "xan", Sub: "balance/alice"}, k)
	assert.Equal(t, "xan/balance/alice", k.String())

	owner, ok := BalanceOwner("xan", k)
	require.True(t, ok)
	assert.Equal(t, Address("alice"), owner)

	_, ok = BalanceOwner("btc", k)
	assert.False(t, ok)

	for _, bad := range []string{"noseparator", "/vp", "xan/", "XAN/vp", "xan/bad key", "xan/" + strings.Repeat("a", MaxSubKeyLen+1)} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
	assert.True(t, VPKey("alice").IsVP())
}

func TestImplicitAddress(t *testing.T) {
	pk := ed25519.GenPrivKeyFromSecret([]byte("albert")).PubKey()
	addr := ImplicitAddress(pk)

	require.NoError(t, addr.ValidateBasic())
	assert.True(t, strings.HasPrefix(string(addr), AddressHRP+"1"))
	assert.Equal(t, addr, ImplicitAddress(pk))

	a := EstablishedAddress([]byte("tx"), 0)
	b := EstablishedAddress([]byte("tx"), 1)
	require.NoError(t, a.ValidateBasic())
	assert.NotEqual(t, a, b)
}

func TestFrame(t *testing.T) {
	bz := EncodeFrame([]byte("a"), nil, []byte("xyz"))
	items, err := DecodeFrame(bz)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "xyz", string(items[2]))
	assert.Empty(t, items[1])

	_, err = DecodeFrame(bz[:len(bz)-1])
	assert.ErrorIs(t, err, ErrMalformedFrame)
	_, err = DecodeFrameN(bz, 2)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	v, err := DecodeU64(EncodeU64(1 << 40))
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), v)
	v, err = DecodeU64([]byte{1, 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(256), v)
	_, err = DecodeU64(make([]byte, 9))
	assert.Error(t, err)
}

func TestAddressIsBech32(t *testing.T) {
	pk := ed25519.GenPrivKeyFromSecret([]byte("carol")).PubKey()
	assert.True(t, ImplicitAddress(pk).IsBech32())
	assert.True(t, EstablishedAddress([]byte("tx"), 0).IsBech32())
	for _, name := range []Address{"xan", "fresh", "a1", ""} {
		assert.False(t, name.IsBech32(), name)
	}
}
