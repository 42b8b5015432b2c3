package types

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"

	"github.com/tendermint/intentd/crypto"
)

const (
	// MaxAddressLen is the maximum length of an address string.
	MaxAddressLen = 64

	// AddressHRP is the human readable part of bech32 encoded addresses.
	AddressHRP = "a"
)

var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an account. It is the namespace owner of every storage
// key. Implicit and established addresses are bech32 strings, well-known
// token accounts use short alphanumeric names such as "xan".
type Address string

// ValidateBasic checks the address is 1..MaxAddressLen lowercase
// alphanumeric characters.
func (a Address) ValidateBasic() error {
	if len(a) == 0 || len(a) > MaxAddressLen {
		return fmt.Errorf("%w: length %d", ErrInvalidAddress, len(a))
	}
	for _, c := range a {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidAddress, string(a), c)
		}
	}
	return nil
}

func (a Address) String() string { return string(a) }

// IsBech32 reports whether a has the form of an implicit or established
// address rather than a well-known name.
func (a Address) IsBech32() bool {
	hrp, data, err := bech32.Decode(string(a))
	if err != nil || hrp != AddressHRP {
		return false
	}
	bz, err := bech32.ConvertBits(data, 5, 8, false)
	return err == nil && len(bz) == crypto.AddressSize
}

// ImplicitAddress derives the address owned by an ed25519 public key.
func ImplicitAddress(pubKey crypto.PubKey) Address {
	return mustBech32(crypto.AddressHash(pubKey.Bytes()))
}

// EstablishedAddress derives a fresh account address from the hash of the
// transaction that creates it and a per-transaction counter.
func EstablishedAddress(txHash []byte, counter uint64) Address {
	h := crypto.Blake2b(txHash, EncodeU64(counter))
	return mustBech32(h[:crypto.AddressSize])
}

func mustBech32(bz []byte) Address {
	conv, err := bech32.ConvertBits(bz, 8, 5, true)
	if err != nil {
		panic(err)
	}
	s, err := bech32.Encode(AddressHRP, conv)
	if err != nil {
		panic(err)
	}
	return Address(s)
}
