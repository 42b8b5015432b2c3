package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/blake2b"
)

const (
	// HashSize is the size in bytes of a Checksum.
	HashSize = sha256.Size

	// AddressSize is the size of a pubkey address.
	AddressSize = 20
)

// AddressHash computes a truncated SHA-256 hash of bz for use as
// an account address.
func AddressHash(bz []byte) []byte {
	h := sha256.Sum256(bz)
	return h[:AddressSize]
}

// Checksum returns the SHA256 of the bz.
func Checksum(bz []byte) []byte {
	h := sha256.Sum256(bz)
	return h[:]
}

// Blake2b returns the 256-bit BLAKE2b digest of the concatenation of parts.
// It is the hash used for storage commitments and code hashes.
func Blake2b(parts ...[]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}

type PubKey interface {
	Bytes() []byte
	VerifySignature(msg []byte, sig []byte) bool
	Equals(PubKey) bool
	Type() string
}

type PrivKey interface {
	Bytes() []byte
	Sign(msg []byte) ([]byte, error)
	PubKey() PubKey
	Type() string
}
