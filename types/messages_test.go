package types

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/intentd/crypto/ed25519"
)

func signedIntent(t *testing.T) *Intent {
	t.Helper()
	key := ed25519.GenPrivKeyFromSecret([]byte("albert"))
	in := &Intent{
		Sender:     ImplicitAddress(key.PubKey()),
		TokenSell:  "xan",
		AmountSell: 10,
		TokenBuy:   "btc",
		AmountBuy:  5,
		Topic:      "asset_v0",
		Timestamp:  time.Date(2021, 3, 4, 5, 6, 7, 890, time.UTC),
	}
	require.NoError(t, in.Sign(key))
	return in
}

func TestIntentMessageRoundTrip(t *testing.T) {
	msg := &IntentMessage{Intent: signedIntent(t), Topic: "asset_v0"}

	var got IntentMessage
	require.NoError(t, got.Unmarshal(msg.Marshal()))
	if diff := cmp.Diff(msg, &got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, got.Intent.VerifySignature())
	require.Equal(t, msg.Intent.ID(), got.Intent.ID())
}

func TestRPCMessageVariants(t *testing.T) {
	testCases := map[string]*RPCMessage{
		"intent":    {Intent: &IntentMessage{Intent: signedIntent(t), Topic: "asset_v0"}},
		"subscribe": {Subscribe: &SubscribeTopicMessage{Topic: "asset_v1"}},
		"dkg":       {Dkg: &DkgMessage{Data: "round 1"}},
	}
	for name, msg := range testCases {
		msg := msg
		t.Run(name, func(t *testing.T) {
			var got RPCMessage
			require.NoError(t, got.Unmarshal(msg.Marshal()))
			if diff := cmp.Diff(msg, &got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}

	var empty RPCMessage
	require.ErrorIs(t, empty.Unmarshal(nil), ErrEmptyMessage)
}

func TestIntentWithoutTimestampIsRejected(t *testing.T) {
	in := signedIntent(t)
	bz := in.Marshal()

	// Drop the timestamp field by re-encoding without it.
	var b []byte
	b = appendStringField(b, 1, string(in.Sender))
	b = appendBytesField(b, 9, in.Signature)
	require.NotEqual(t, bz, b)

	_, err := DecodeIntent(b)
	require.ErrorIs(t, err, ErrMissingTimestamp)
}

func TestIntentSignature(t *testing.T) {
	in := signedIntent(t)
	require.NoError(t, in.ValidateBasic())
	require.NoError(t, in.VerifySignature())

	in.AmountBuy++
	require.ErrorIs(t, in.VerifySignature(), ErrInvalidIntentSignature)
}

func TestIntentValidateBasic(t *testing.T) {
	testCases := map[string]func(*Intent){
		"same token":  func(in *Intent) { in.TokenBuy = in.TokenSell },
		"zero amount": func(in *Intent) { in.AmountSell = 0 },
		"no topic":    func(in *Intent) { in.Topic = "" },
		"bad sender":  func(in *Intent) { in.Sender = "Not/Valid" },
		"no signature": func(in *Intent) {
			in.Signature = nil
		},
	}
	for name, mutate := range testCases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			in := signedIntent(t)
			mutate(in)
			require.ErrorIs(t, in.ValidateBasic(), ErrInvalidIntent)
		})
	}
}
