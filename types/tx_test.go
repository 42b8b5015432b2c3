package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/intentd/crypto/ed25519"
)

func TestTransactionSignAndDecode(t *testing.T) {
	key := ed25519.GenPrivKeyFromSecret([]byte("matchmaker"))
	other := ed25519.GenPrivKeyFromSecret([]byte("other"))

	tx := &Transaction{
		Code:      []byte("\x00natvp_user"),
		Data:      EncodeTransfers([]Transfer{{Source: "alice", Target: "bob", Token: "xan", Amount: 3}}),
		Timestamp: time.Unix(1600000000, 0).UTC(),
	}
	require.NoError(t, tx.Sign(key))

	decoded, err := DecodeTransaction(tx.Marshal())
	require.NoError(t, err)
	assert.Equal(t, tx.Code, decoded.Code)
	assert.Equal(t, tx.Data, decoded.Data)
	assert.True(t, tx.Timestamp.Equal(decoded.Timestamp))

	assert.True(t, decoded.IsSignedBy(key.PubKey().Bytes()))
	assert.False(t, decoded.IsSignedBy(other.PubKey().Bytes()))
	assert.Equal(t, []Address{ImplicitAddress(key.PubKey())}, decoded.Signers())

	decoded.Data = append(decoded.Data, 0)
	assert.False(t, decoded.IsSignedBy(key.PubKey().Bytes()))
	assert.Empty(t, decoded.Signers())
}

func TestDecodeTransactionRequiresTimestamp(t *testing.T) {
	_, err := DecodeTransaction(Tx(appendBytesField(nil, 1, []byte{1})))
	require.ErrorIs(t, err, ErrInvalidTx)
}

func TestIntentTransfersEncoding(t *testing.T) {
	in := signedIntent(t)
	it := &IntentTransfers{
		Transfers: []Transfer{
			{Source: in.Sender, Target: "bob", Token: "xan", Amount: 10},
			{Source: "bob", Target: in.Sender, Token: "btc", Amount: 5},
		},
		Intents: []*Intent{in},
	}

	got, err := DecodeIntentTransfers(it.Encode())
	require.NoError(t, err)
	require.Equal(t, it.Transfers, got.Transfers)
	require.Len(t, got.Intents, 1)
	require.Equal(t, in.ID(), got.Intents[0].ID())
}
