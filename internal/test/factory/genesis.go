package factory

import (
	"encoding/json"
	"time"

	"github.com/tendermint/intentd/types"
)

const DefaultTestChainID = "test-chain"

// Genesis builds a genesis document.
type Genesis struct {
	doc *types.GenesisDoc
}

func NewGenesis(chainID string, genesisTime time.Time) *Genesis {
	return &Genesis{doc: &types.GenesisDoc{GenesisTime: genesisTime, ChainID: chainID}}
}

// AddUser adds u guarded by the user predicate, holding balances.
func (g *Genesis) AddUser(u User, balances map[types.Address]uint64) *Genesis {
	return g.AddAccount(types.GenesisAccount{
		Address:  u.Address,
		VP:       "vp_user",
		PubKey:   u.PubKey(),
		Balances: balances,
	})
}

// AddToken adds a token account guarded by the token predicate.
func (g *Genesis) AddToken(token types.Address) *Genesis {
	return g.AddAccount(types.GenesisAccount{Address: token, VP: "vp_token"})
}

func (g *Genesis) AddAccount(acc types.GenesisAccount) *Genesis {
	g.doc.Accounts = append(g.doc.Accounts, acc)
	return g
}

func (g *Genesis) Doc() *types.GenesisDoc { return g.doc }

// JSON returns the document as InitChain expects it.
func (g *Genesis) JSON() []byte {
	bz, err := json.Marshal(g.doc)
	if err != nil {
		panic(err)
	}
	return bz
}
