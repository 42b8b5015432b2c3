package matchmaker

import (
	"github.com/tendermint/intentd/types"
)

// FindMatch returns the first pending intent of intent's topic, in arrival
// order, that exactly counters it, or nil if there is none. An intent
// never matches itself or another intent of the same sender.
func FindMatch(ws *WorkingSet, intent *types.Intent) *types.Intent {
	id := intent.ID()
	for _, c := range ws.Pending(intent.Topic) {
		if c.ID() == id || c.Sender == intent.Sender {
			continue
		}
		if Counters(intent, c) {
			return c
		}
	}
	return nil
}

// Counters reports whether a and b are exact opposites: each sells
// exactly what the other buys.
func Counters(a, b *types.Intent) bool {
	return a.TokenSell == b.TokenBuy &&
		a.AmountSell == b.AmountBuy &&
		a.TokenBuy == b.TokenSell &&
		a.AmountBuy == b.AmountSell
}
