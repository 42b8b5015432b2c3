package ledger

import (
	"bytes"
	"fmt"

	"github.com/tendermint/intentd/types"
	"github.com/tendermint/intentd/vm"
)

// vpInput is the decoded input of a validity predicate.
type vpInput struct {
	txData    []byte
	addr      types.Address
	keys      []types.Key
	verifiers map[types.Address]bool
}

func encodeVPInput(txData []byte, addr types.Address, keys []types.Key, verifiers []types.Address) []byte {
	ks := make([][]byte, len(keys))
	for i, k := range keys {
		ks[i] = k.Bytes()
	}
	vs := make([][]byte, len(verifiers))
	for i, v := range verifiers {
		vs[i] = []byte(v)
	}
	return types.EncodeFrame(txData, []byte(addr), types.EncodeFrame(ks...), types.EncodeFrame(vs...))
}

func decodeVPInput(bz []byte) (*vpInput, error) {
	parts, err := types.DecodeFrameN(bz, 4)
	if err != nil {
		return nil, err
	}
	rawKeys, err := types.DecodeFrame(parts[2])
	if err != nil {
		return nil, err
	}
	rawVerifiers, err := types.DecodeFrame(parts[3])
	if err != nil {
		return nil, err
	}
	in := &vpInput{
		txData:    parts[0],
		addr:      types.Address(parts[1]),
		keys:      make([]types.Key, 0, len(rawKeys)),
		verifiers: make(map[types.Address]bool, len(rawVerifiers)),
	}
	for _, rk := range rawKeys {
		k, err := types.ParseKey(string(rk))
		if err != nil {
			return nil, err
		}
		in.keys = append(in.keys, k)
	}
	for _, v := range rawVerifiers {
		in.verifiers[types.Address(v)] = true
	}
	return in, nil
}

var (
	accept = []byte{1}
	reject = []byte{0}
)

func verdict(ok bool) []byte {
	if ok {
		return accept
	}
	return reject
}

// Natives returns the registry of native programs.
func Natives() map[string]vm.NativeFunc {
	return map[string]vm.NativeFunc{
		VPUser:         vpUser,
		VPToken:        vpToken,
		VPAlwaysAccept: func(*vm.Host, []byte) ([]byte, error) { return accept, nil },
		VPAlwaysReject: func(*vm.Host, []byte) ([]byte, error) { return reject, nil },
	}
}

func readAmount(read func(types.Key) ([]byte, error), key types.Key) (uint64, error) {
	bz, err := read(key)
	if err != nil {
		return 0, err
	}
	amt, err := types.DecodeU64(bz)
	if err != nil {
		return 0, fmt.Errorf("%w: balance %s: %v", vm.ErrTrap, key, err)
	}
	return amt, nil
}

// vpToken accepts a diff that only moves balances of the token, conserves
// the supply and is approved by every debited owner.
func vpToken(h *vm.Host, input []byte) ([]byte, error) {
	in, err := decodeVPInput(input)
	if err != nil {
		return nil, err
	}
	var credited, debited uint64
	for _, key := range in.keys {
		if key.Owner != in.addr {
			continue
		}
		owner, ok := types.BalanceOwner(in.addr, key)
		if !ok {
			return reject, h.Log(fmt.Sprintf("key %s is not a balance", key))
		}
		pre, err := readAmount(h.ReadPre, key)
		if err != nil {
			return nil, err
		}
		post, err := readAmount(h.ReadPost, key)
		if err != nil {
			return nil, err
		}
		switch {
		case post > pre:
			credited += post - pre
			if credited < post-pre {
				return reject, nil
			}
		case post < pre:
			if !in.verifiers[owner] {
				return reject, h.Log(fmt.Sprintf("debit of %s is not approved", owner))
			}
			debited += pre - post
			if debited < pre-post {
				return reject, nil
			}
		}
	}
	return verdict(credited == debited), nil
}

// balanceChange is the pre and post balance of one token.
type balanceChange struct {
	pre, post uint64
}

// vpUser accepts anything signed by the account key. Unsigned diffs are
// accepted only when they settle a signed intent of the account exactly,
// and never when they write under the account's own namespace.
func vpUser(h *vm.Host, input []byte) ([]byte, error) {
	in, err := decodeVPInput(input)
	if err != nil {
		return nil, err
	}
	pk, err := h.ReadPre(types.PubKeyKey(in.addr))
	if err != nil {
		return nil, err
	}
	if len(pk) > 0 {
		signed, err := h.TxSignedBy(pk)
		if err != nil {
			return nil, err
		}
		if signed {
			return accept, nil
		}
	}

	it, err := types.DecodeIntentTransfers(in.txData)
	if err != nil {
		return reject, h.Log(fmt.Sprintf("unsigned tx for %s", in.addr))
	}

	changes := make(map[types.Address]balanceChange)
	for _, key := range in.keys {
		if key.Owner == in.addr {
			return reject, h.Log(fmt.Sprintf("unsigned write to %s", key))
		}
		if owner, ok := types.BalanceOwner(key.Owner, key); !ok || owner != in.addr {
			continue
		}
		pre, err := readAmount(h.ReadPre, key)
		if err != nil {
			return nil, err
		}
		post, err := readAmount(h.ReadPost, key)
		if err != nil {
			return nil, err
		}
		if pre != post {
			changes[key.Owner] = balanceChange{pre: pre, post: post}
		}
	}

	for _, intent := range it.Intents {
		if intent.Sender != in.addr || len(pk) == 0 || !bytes.Equal(intent.PubKey, pk) {
			continue
		}
		if err := intent.VerifySignature(); err != nil {
			continue
		}
		if settles(intent, changes) {
			return accept, nil
		}
	}
	return reject, h.Log(fmt.Sprintf("no intent of %s matches its balance changes", in.addr))
}

// settles reports whether changes are exactly the debit of the sold token
// and the credit of the bought one.
func settles(in *types.Intent, changes map[types.Address]balanceChange) bool {
	if len(changes) != 2 {
		return false
	}
	sell, ok := changes[in.TokenSell]
	if !ok || sell.pre < sell.post || sell.pre-sell.post != in.AmountSell {
		return false
	}
	buy, ok := changes[in.TokenBuy]
	if !ok || buy.post < buy.pre || buy.post-buy.pre != in.AmountBuy {
		return false
	}
	return true
}
