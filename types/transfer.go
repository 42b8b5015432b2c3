package types

import (
	"fmt"
)

// Transfer moves Amount of Token from Source to Target.
type Transfer struct {
	Source Address
	Target Address
	Token  Address
	Amount uint64
}

func (t Transfer) ValidateBasic() error {
	for _, a := range []Address{t.Source, t.Target, t.Token} {
		if err := a.ValidateBasic(); err != nil {
			return err
		}
	}
	if t.Amount == 0 {
		return fmt.Errorf("zero amount transfer from %s", t.Source)
	}
	return nil
}

// Encode returns frame(source, target, token, amount).
func (t Transfer) Encode() []byte {
	return EncodeFrame([]byte(t.Source), []byte(t.Target), []byte(t.Token), EncodeU64(t.Amount))
}

// DecodeTransfer decodes the output of Transfer.Encode.
func DecodeTransfer(bz []byte) (Transfer, error) {
	items, err := DecodeFrameN(bz, 4)
	if err != nil {
		return Transfer{}, fmt.Errorf("decoding transfer: %w", err)
	}
	amount, err := DecodeU64(items[3])
	if err != nil {
		return Transfer{}, fmt.Errorf("decoding transfer amount: %w", err)
	}
	return Transfer{
		Source: Address(items[0]),
		Target: Address(items[1]),
		Token:  Address(items[2]),
		Amount: amount,
	}, nil
}

// EncodeTransfers returns frame(transfer...), the input of the transfer
// transaction program.
func EncodeTransfers(ts []Transfer) []byte {
	items := make([][]byte, len(ts))
	for i, t := range ts {
		items[i] = t.Encode()
	}
	return EncodeFrame(items...)
}

// DecodeTransfers decodes the output of EncodeTransfers.
func DecodeTransfers(bz []byte) ([]Transfer, error) {
	items, err := DecodeFrame(bz)
	if err != nil {
		return nil, err
	}
	out := make([]Transfer, len(items))
	for i, it := range items {
		if out[i], err = DecodeTransfer(it); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// IntentTransfers is the payload crafted by the matchmaker: the transfers
// that settle a matched set of intents, along with the signed intents that
// authorize them.
type IntentTransfers struct {
	Transfers []Transfer
	Intents   []*Intent
}

// Encode returns frame(frame(transfer...), frame(intent...)).
func (it *IntentTransfers) Encode() []byte {
	intents := make([][]byte, len(it.Intents))
	for i, in := range it.Intents {
		intents[i] = in.Marshal()
	}
	return EncodeFrame(EncodeTransfers(it.Transfers), EncodeFrame(intents...))
}

// DecodeIntentTransfers decodes the output of IntentTransfers.Encode.
func DecodeIntentTransfers(bz []byte) (*IntentTransfers, error) {
	parts, err := DecodeFrameN(bz, 2)
	if err != nil {
		return nil, err
	}
	transfers, err := DecodeTransfers(parts[0])
	if err != nil {
		return nil, err
	}
	raw, err := DecodeFrame(parts[1])
	if err != nil {
		return nil, err
	}
	intents := make([]*Intent, len(raw))
	for i, r := range raw {
		if intents[i], err = DecodeIntent(r); err != nil {
			return nil, err
		}
	}
	return &IntentTransfers{Transfers: transfers, Intents: intents}, nil
}
