package crypto

import (
	crand "crypto/rand"
)

// CRandBytes returns numBytes bytes from the OS entropy source.
func CRandBytes(numBytes int) []byte {
	b := make([]byte, numBytes)
	if _, err := crand.Read(b); err != nil {
		panic(err)
	}
	return b
}
