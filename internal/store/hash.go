package store

import (
	"bytes"
	"encoding/hex"

	"github.com/tendermint/intentd/crypto"
)

// HashSize is the size of every node in the commitment tree.
const HashSize = 32

// Hash is a node of the commitment tree. The zero Hash commits to the
// empty subtree.
type Hash [HashSize]byte

// EmptyRoot is the root of a store without any slot.
var EmptyRoot Hash

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == EmptyRoot }

func (h Hash) Equal(o Hash) bool { return bytes.Equal(h[:], o[:]) }

// HashFromBytes copies bz into a Hash. It returns false if bz has the wrong
// length.
func HashFromBytes(bz []byte) (Hash, bool) {
	var h Hash
	if len(bz) != HashSize {
		return h, false
	}
	copy(h[:], bz)
	return h, true
}

// keyPath places a key in the tree.
func keyPath(key []byte) Hash { return crypto.Blake2b(key) }

// leafHash commits to a key's path and value.
func leafHash(path Hash, value []byte) Hash {
	vh := crypto.Blake2b(value)
	return crypto.Blake2b(leafPrefix, path[:], vh[:])
}

func innerHash(left, right Hash) Hash {
	return crypto.Blake2b(innerPrefix, left[:], right[:])
}

var (
	leafPrefix  = []byte{0}
	innerPrefix = []byte{1}
)
