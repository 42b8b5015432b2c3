package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedFrame is returned when decoding a frame fails.
var ErrMalformedFrame = errors.New("malformed frame")

// EncodeFrame packs items as a sequence of u32 big-endian length prefixed
// byte strings. It is the argument and payload format shared by the sandbox
// and the native programs.
func EncodeFrame(items ...[]byte) []byte {
	n := 0
	for _, it := range items {
		n += 4 + len(it)
	}
	out := make([]byte, 0, n)
	for _, it := range items {
		out = appendFrameItem(out, it)
	}
	return out
}

func appendFrameItem(out, item []byte) []byte {
	if uint64(len(item)) > math.MaxUint32 {
		panic("frame item too large")
	}
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(item)))
	out = append(out, l[:]...)
	return append(out, item...)
}

// DecodeFrame splits bz into its items. Items alias bz.
func DecodeFrame(bz []byte) ([][]byte, error) {
	var items [][]byte
	for len(bz) > 0 {
		if len(bz) < 4 {
			return nil, fmt.Errorf("%w: truncated length prefix", ErrMalformedFrame)
		}
		l := binary.BigEndian.Uint32(bz)
		bz = bz[4:]
		if uint64(len(bz)) < uint64(l) {
			return nil, fmt.Errorf("%w: item of %d bytes exceeds remaining %d", ErrMalformedFrame, l, len(bz))
		}
		items = append(items, bz[:l:l])
		bz = bz[l:]
	}
	return items, nil
}

// DecodeFrameN decodes a frame with exactly n items.
func DecodeFrameN(bz []byte, n int) ([][]byte, error) {
	items, err := DecodeFrame(bz)
	if err != nil {
		return nil, err
	}
	if len(items) != n {
		return nil, fmt.Errorf("%w: want %d items, got %d", ErrMalformedFrame, n, len(items))
	}
	return items, nil
}

// EncodeU64 encodes v as 8 bytes big-endian. Token amounts are stored in
// this form.
func EncodeU64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// DecodeU64 decodes a big-endian unsigned integer of at most 8 bytes. The
// empty string decodes to zero.
func DecodeU64(bz []byte) (uint64, error) {
	if len(bz) > 8 {
		return 0, fmt.Errorf("integer of %d bytes overflows u64", len(bz))
	}
	var v uint64
	for _, b := range bz {
		v = v<<8 | uint64(b)
	}
	return v, nil
}
