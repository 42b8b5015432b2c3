package factory

import (
	"github.com/tendermint/intentd/crypto/ed25519"
	"github.com/tendermint/intentd/types"
)

// User is a key pair and its implicit address.
type User struct {
	Name    string
	Key     ed25519.PrivKey
	Address types.Address
}

// NewUser derives a user deterministically from name.
func NewUser(name string) User {
	key := ed25519.GenPrivKeyFromSecret([]byte(name))
	return User{
		Name:    name,
		Key:     key,
		Address: types.ImplicitAddress(key.PubKey()),
	}
}

func (u User) PubKey() []byte { return u.Key.PubKey().Bytes() }
