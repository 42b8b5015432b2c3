package store

import (
	"fmt"

	"github.com/google/orderedcode"

	"github.com/tendermint/intentd/types"
)

//---------------------------------- KEY ENCODING -----------------------------------------

// key prefixes
const (
	prefixSlot      = int64(0)
	prefixLastState = int64(1)
	prefixBlockRoot = int64(2)
)

func slotKey(k types.Key) []byte {
	key, err := orderedcode.Append(nil, prefixSlot, k.String())
	if err != nil {
		panic(err)
	}
	return key
}

// slotRange returns the [start, end) range of slot keys whose string form
// starts with prefix. Key strings never contain the bytes orderedcode
// escapes, so the encoded prefix is the raw prefix.
func slotRange(prefix string) (start, end []byte) {
	base, err := orderedcode.Append(nil, prefixSlot)
	if err != nil {
		panic(err)
	}
	start = append(append([]byte{}, base...), prefix...)
	if pe := prefixEnd([]byte(prefix)); pe != nil {
		end = append(append([]byte{}, base...), pe...)
	} else {
		end = prefixEnd(base)
	}
	return start, end
}

func decodeSlotKey(key []byte) (types.Key, error) {
	var (
		prefix int64
		s      string
	)
	remaining, err := orderedcode.Parse(string(key), &prefix, &s)
	if err != nil {
		return types.Key{}, err
	}
	if len(remaining) != 0 {
		return types.Key{}, fmt.Errorf("expected complete key but got remainder: %s", remaining)
	}
	if prefix != prefixSlot {
		return types.Key{}, fmt.Errorf("incorrect prefix. Expected %v, got %v", prefixSlot, prefix)
	}
	return types.ParseKey(s)
}

func lastStateKey() []byte {
	key, err := orderedcode.Append(nil, prefixLastState)
	if err != nil {
		panic(err)
	}
	return key
}

func blockRootKey(height int64) []byte {
	key, err := orderedcode.Append(nil, prefixBlockRoot, height)
	if err != nil {
		panic(err)
	}
	return key
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil if there is none.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
