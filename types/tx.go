package types

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tendermint/intentd/crypto"
	"github.com/tendermint/intentd/crypto/ed25519"
)

// Tx is the wire encoding of a Transaction, as carried by the mempool and
// the block interface.
type Tx []byte

// TxKey is the fixed length mempool key of a Tx.
type TxKey [sha256.Size]byte

// Key produces a fixed-length key for use in indexing.
func (tx Tx) Key() TxKey { return sha256.Sum256(tx) }

// Hash computes the hash of the wire encoded transaction.
func (tx Tx) Hash() []byte { return crypto.Checksum(tx) }

// String returns the hex-encoded transaction as a string.
func (tx Tx) String() string { return fmt.Sprintf("Tx{%X}", []byte(tx)) }

// Txs is a slice of transactions, in block order.
type Txs []Tx

// Hashes returns the hash of every tx.
func (txs Txs) Hashes() [][]byte {
	hashes := make([][]byte, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}
	return hashes
}

var ErrInvalidTx = errors.New("invalid transaction")

// TxSignature authorizes a transaction on behalf of the holder of PubKey.
type TxSignature struct {
	PubKey    []byte
	Signature []byte
}

// Transaction is untrusted code plus its input. Executing it produces exactly
// one write diff or fails with no state change.
type Transaction struct {
	Code       []byte
	Data       []byte
	Timestamp  time.Time
	Signatures []TxSignature
}

// SignBytes is the canonical encoding of code, data and timestamp.
func (t *Transaction) SignBytes() []byte {
	var b []byte
	b = appendBytesField(b, 1, t.Code)
	b = appendBytesField(b, 2, t.Data)
	b = appendMessageField(b, 3, marshalTimestamp(t.Timestamp))
	return b
}

// Sign appends a signature by key.
func (t *Transaction) Sign(key crypto.PrivKey) error {
	sig, err := key.Sign(t.SignBytes())
	if err != nil {
		return err
	}
	t.Signatures = append(t.Signatures, TxSignature{PubKey: key.PubKey().Bytes(), Signature: sig})
	return nil
}

// IsSignedBy reports whether the transaction carries a valid signature by
// pubKey.
func (t *Transaction) IsSignedBy(pubKey []byte) bool {
	pk, err := ed25519.PubKeyFromBytes(pubKey)
	if err != nil {
		return false
	}
	sb := t.SignBytes()
	for _, s := range t.Signatures {
		if pk.Equals(ed25519.PubKey(s.PubKey)) && pk.VerifySignature(sb, s.Signature) {
			return true
		}
	}
	return false
}

// Signers returns the implicit addresses of every valid signature.
func (t *Transaction) Signers() []Address {
	sb := t.SignBytes()
	var out []Address
	for _, s := range t.Signatures {
		pk, err := ed25519.PubKeyFromBytes(s.PubKey)
		if err != nil || !pk.VerifySignature(sb, s.Signature) {
			continue
		}
		out = append(out, ImplicitAddress(pk))
	}
	return out
}

func (t *Transaction) ValidateBasic() error {
	if len(t.Code) == 0 {
		return fmt.Errorf("%w: empty code", ErrInvalidTx)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: %v", ErrInvalidTx, ErrMissingTimestamp)
	}
	return nil
}

// Marshal encodes the transaction into its wire form.
func (t *Transaction) Marshal() Tx {
	b := t.SignBytes()
	for _, s := range t.Signatures {
		var sb []byte
		sb = appendBytesField(sb, 1, s.PubKey)
		sb = appendBytesField(sb, 2, s.Signature)
		b = appendMessageField(b, 4, sb)
	}
	return Tx(b)
}

// DecodeTransaction decodes the wire form of a transaction.
func DecodeTransaction(tx Tx) (*Transaction, error) {
	t := new(Transaction)
	hasTimestamp := false
	err := walkFields(tx, func(num protowire.Number, typ protowire.Type, val []byte, _ uint64) error {
		switch num {
		case 1:
			t.Code = append([]byte(nil), val...)
		case 2:
			t.Data = append([]byte(nil), val...)
		case 3:
			hasTimestamp = true
			ts, err := unmarshalTimestamp(val)
			if err != nil {
				return err
			}
			t.Timestamp = ts
		case 4:
			var s TxSignature
			err := walkFields(val, func(num protowire.Number, _ protowire.Type, val []byte, _ uint64) error {
				switch num {
				case 1:
					s.PubKey = append([]byte(nil), val...)
				case 2:
					s.Signature = append([]byte(nil), val...)
				}
				return nil
			})
			if err != nil {
				return err
			}
			t.Signatures = append(t.Signatures, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTx, err)
	}
	if !hasTimestamp {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTx, ErrMissingTimestamp)
	}
	return t, nil
}
