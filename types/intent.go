package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tendermint/intentd/crypto"
	"github.com/tendermint/intentd/crypto/ed25519"
)

var (
	ErrInvalidIntent          = errors.New("invalid intent")
	ErrInvalidIntentSignature = errors.New("invalid intent signature")
)

// Intent is a signed statement that Sender wants to swap exactly AmountSell
// of TokenSell for exactly AmountBuy of TokenBuy. Once signed it is
// immutable.
type Intent struct {
	Sender     Address
	TokenSell  Address
	AmountSell uint64
	TokenBuy   Address
	AmountBuy  uint64
	Topic      string
	Timestamp  time.Time

	PubKey    []byte
	Signature []byte
}

// ID identifies an intent by its signature. Two intents with identical
// signatures are the same intent.
func (in *Intent) ID() string {
	h := sha256.Sum256(in.Signature)
	return hex.EncodeToString(h[:])
}

// SignBytes is the canonical encoding of every field except the key and
// the signature.
func (in *Intent) SignBytes() []byte {
	var b []byte
	b = appendStringField(b, 1, string(in.Sender))
	b = appendStringField(b, 2, string(in.TokenSell))
	b = appendVarintField(b, 3, in.AmountSell)
	b = appendStringField(b, 4, string(in.TokenBuy))
	b = appendVarintField(b, 5, in.AmountBuy)
	b = appendStringField(b, 6, in.Topic)
	b = appendMessageField(b, 7, marshalTimestamp(in.Timestamp))
	return b
}

// Sign sets PubKey and Signature using key.
func (in *Intent) Sign(key crypto.PrivKey) error {
	sig, err := key.Sign(in.SignBytes())
	if err != nil {
		return err
	}
	in.PubKey = key.PubKey().Bytes()
	in.Signature = sig
	return nil
}

// VerifySignature checks the signature against the embedded public key.
func (in *Intent) VerifySignature() error {
	pk, err := ed25519.PubKeyFromBytes(in.PubKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIntentSignature, err)
	}
	if !pk.VerifySignature(in.SignBytes(), in.Signature) {
		return ErrInvalidIntentSignature
	}
	return nil
}

// ValidateBasic performs stateless checks on the intent fields.
func (in *Intent) ValidateBasic() error {
	for _, a := range []Address{in.Sender, in.TokenSell, in.TokenBuy} {
		if err := a.ValidateBasic(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidIntent, err)
		}
	}
	switch {
	case in.TokenSell == in.TokenBuy:
		return fmt.Errorf("%w: sell and buy the same token %s", ErrInvalidIntent, in.TokenSell)
	case in.AmountSell == 0 || in.AmountBuy == 0:
		return fmt.Errorf("%w: zero amount", ErrInvalidIntent)
	case in.Topic == "":
		return fmt.Errorf("%w: empty topic", ErrInvalidIntent)
	case in.Timestamp.IsZero():
		return fmt.Errorf("%w: %v", ErrInvalidIntent, ErrMissingTimestamp)
	case len(in.Signature) != ed25519.SignatureSize:
		return fmt.Errorf("%w: signature size %d", ErrInvalidIntent, len(in.Signature))
	}
	return nil
}

// Marshal encodes the intent in protobuf wire format.
func (in *Intent) Marshal() []byte {
	b := in.SignBytes()
	b = appendBytesField(b, 8, in.PubKey)
	b = appendBytesField(b, 9, in.Signature)
	return b
}

// Unmarshal decodes an intent produced by Marshal.
func (in *Intent) Unmarshal(bz []byte) error {
	*in = Intent{}
	hasTimestamp := false
	err := walkFields(bz, func(num protowire.Number, typ protowire.Type, val []byte, v uint64) error {
		var err error
		switch num {
		case 1:
			in.Sender = Address(val)
		case 2:
			in.TokenSell = Address(val)
		case 3:
			err = expectType(typ, protowire.VarintType)
			in.AmountSell = v
		case 4:
			in.TokenBuy = Address(val)
		case 5:
			err = expectType(typ, protowire.VarintType)
			in.AmountBuy = v
		case 6:
			in.Topic = string(val)
		case 7:
			hasTimestamp = true
			in.Timestamp, err = unmarshalTimestamp(val)
		case 8:
			in.PubKey = append([]byte(nil), val...)
		case 9:
			in.Signature = append([]byte(nil), val...)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("decoding intent: %w", err)
	}
	if !hasTimestamp {
		return ErrMissingTimestamp
	}
	return nil
}

// DecodeIntent is a convenience wrapper around Unmarshal.
func DecodeIntent(bz []byte) (*Intent, error) {
	in := new(Intent)
	if err := in.Unmarshal(bz); err != nil {
		return nil, err
	}
	return in, nil
}

func (in *Intent) String() string {
	return fmt.Sprintf("Intent{%s sells %d %s for %d %s on %s}",
		in.Sender, in.AmountSell, in.TokenSell, in.AmountBuy, in.TokenBuy, in.Topic)
}
