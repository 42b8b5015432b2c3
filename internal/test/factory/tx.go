package factory

import (
	"time"

	"github.com/tendermint/intentd/types"
)

// Intent returns an intent of u, signed.
func Intent(
	u User,
	tokenSell types.Address, amountSell uint64,
	tokenBuy types.Address, amountBuy uint64,
	topic string,
	ts time.Time,
) *types.Intent {
	in := &types.Intent{
		Sender:     u.Address,
		TokenSell:  tokenSell,
		AmountSell: amountSell,
		TokenBuy:   tokenBuy,
		AmountBuy:  amountBuy,
		Topic:      topic,
		Timestamp:  ts,
	}
	if err := in.Sign(u.Key); err != nil {
		panic(err)
	}
	return in
}

// Tx returns the wire form of a transaction signed by signers.
func Tx(code, data []byte, ts time.Time, signers ...User) types.Tx {
	t := &types.Transaction{Code: code, Data: data, Timestamp: ts}
	for _, s := range signers {
		if err := t.Sign(s.Key); err != nil {
			panic(err)
		}
	}
	return t.Marshal()
}
