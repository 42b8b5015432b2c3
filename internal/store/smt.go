package store

import (
	"bytes"
	"errors"
	"sort"

	"github.com/tendermint/intentd/types"
)

// The commitment is a sparse Merkle tree of depth 256 over key paths. A
// subtree holding no leaf hashes to the zero Hash and a subtree holding a
// single leaf hashes to that leaf, so the root depends only on the set of
// (path, value) pairs and never on the order they were written in.

type leaf struct {
	path Hash
	hash Hash
}

func bitAt(h Hash, depth int) byte {
	return (h[depth/8] >> (7 - uint(depth%8))) & 1
}

func sortLeaves(leaves []leaf) {
	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i].path[:], leaves[j].path[:]) < 0
	})
}

// splitAt returns the index of the first leaf with a 1 bit at depth. leaves
// must be sorted and share their first depth bits.
func splitAt(leaves []leaf, depth int) int {
	return sort.Search(len(leaves), func(i int) bool {
		return bitAt(leaves[i].path, depth) == 1
	})
}

// computeRoot hashes sorted leaves that share their first depth bits.
func computeRoot(leaves []leaf, depth int) Hash {
	switch len(leaves) {
	case 0:
		return EmptyRoot
	case 1:
		return leaves[0].hash
	}
	i := splitAt(leaves, depth)
	return innerHash(computeRoot(leaves[:i], depth+1), computeRoot(leaves[i:], depth+1))
}

// Proof shows a key's value is committed under a root. Siblings are listed
// from the root downwards; the sibling at index i sits at depth i.
type Proof struct {
	Key      []byte
	Siblings []Hash
}

var ErrInvalidProof = errors.New("invalid merkle proof")

func buildProof(leaves []leaf, path Hash) ([]Hash, bool) {
	var siblings []Hash
	depth := 0
	for len(leaves) > 1 {
		i := splitAt(leaves, depth)
		if bitAt(path, depth) == 0 {
			siblings = append(siblings, computeRoot(leaves[i:], depth+1))
			leaves = leaves[:i]
		} else {
			siblings = append(siblings, computeRoot(leaves[:i], depth+1))
			leaves = leaves[i:]
		}
		depth++
	}
	if len(leaves) != 1 || leaves[0].path != path {
		return nil, false
	}
	return siblings, true
}

// VerifyMembership checks that p proves value is stored under root.
func VerifyMembership(root Hash, p *Proof, value []byte) error {
	if p == nil || len(p.Siblings) > HashSize*8 {
		return ErrInvalidProof
	}
	path := keyPath(p.Key)
	cur := leafHash(path, value)
	for depth := len(p.Siblings) - 1; depth >= 0; depth-- {
		if bitAt(path, depth) == 0 {
			cur = innerHash(cur, p.Siblings[depth])
		} else {
			cur = innerHash(p.Siblings[depth], cur)
		}
	}
	if cur != root {
		return ErrInvalidProof
	}
	return nil
}

// Encode returns frame(key, sibling...).
func (p *Proof) Encode() []byte {
	items := make([][]byte, 0, len(p.Siblings)+1)
	items = append(items, p.Key)
	for _, s := range p.Siblings {
		items = append(items, s.Bytes())
	}
	return types.EncodeFrame(items...)
}

// DecodeProof decodes the output of Proof.Encode.
func DecodeProof(bz []byte) (*Proof, error) {
	items, err := types.DecodeFrame(bz)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrInvalidProof
	}
	p := &Proof{Key: items[0], Siblings: make([]Hash, 0, len(items)-1)}
	for _, it := range items[1:] {
		h, ok := HashFromBytes(it)
		if !ok {
			return nil, ErrInvalidProof
		}
		p.Siblings = append(p.Siblings, h)
	}
	return p, nil
}
