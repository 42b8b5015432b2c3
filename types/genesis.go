package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creachadair/atomicfile"
)

const (
	// MaxChainIDLen is a maximum length of the chain ID.
	MaxChainIDLen = 50
)

//------------------------------------------------------------
// core types for a genesis definition

// GenesisAccount is an account present at genesis. VP names a built-in
// program. VPCode, when set, takes precedence and holds raw module code.
type GenesisAccount struct {
	Address  Address            `json:"address"`
	VP       string             `json:"vp,omitempty"`
	VPCode   []byte             `json:"vp_code,omitempty"`
	PubKey   []byte             `json:"pub_key,omitempty"`
	Balances map[Address]uint64 `json:"balances,omitempty"`
}

// GenesisDoc defines the initial ledger state.
type GenesisDoc struct {
	GenesisTime time.Time        `json:"genesis_time"`
	ChainID     string           `json:"chain_id"`
	Accounts    []GenesisAccount `json:"accounts"`
}

// JSON returns the document as InitChain expects it.
func (genDoc *GenesisDoc) JSON() ([]byte, error) {
	return json.Marshal(genDoc)
}

// SaveAs is a utility method for saving GenesisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := json.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	_, err = atomicfile.WriteAll(file, bytes.NewReader(genDocBytes), 0644)
	return err
}

// ValidateAndComplete checks that all necessary fields are present
// and fills in defaults for optional fields left empty
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(genDoc.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id in genesis doc is too long (max: %d)", MaxChainIDLen)
	}

	seen := make(map[Address]bool, len(genDoc.Accounts))
	for i, acc := range genDoc.Accounts {
		if err := acc.Address.ValidateBasic(); err != nil {
			return fmt.Errorf("genesis account %d: %w", i, err)
		}
		if seen[acc.Address] {
			return fmt.Errorf("genesis account %s is declared twice", acc.Address)
		}
		seen[acc.Address] = true
		if acc.VP == "" && len(acc.VPCode) == 0 {
			return fmt.Errorf("genesis account %s has no validity predicate", acc.Address)
		}
		for token := range acc.Balances {
			if err := token.ValidateBasic(); err != nil {
				return fmt.Errorf("genesis account %s balance: %w", acc.Address, err)
			}
		}
	}

	if genDoc.GenesisTime.IsZero() {
		genDoc.GenesisTime = time.Now().UTC()
	}

	return nil
}

//------------------------------------------------------------
// Make genesis state from file

// GenesisDocFromJSON unmarshalls JSON data into a GenesisDoc.
func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	if err := json.Unmarshal(jsonBlob, &genDoc); err != nil {
		return nil, err
	}

	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}

	return &genDoc, nil
}

// GenesisDocFromFile reads JSON data from a file and unmarshalls it into a GenesisDoc.
func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := os.ReadFile(genDocFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GenesisDoc file: %w", err)
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading GenesisDoc at %s: %w", genDocFile, err)
	}
	return genDoc, nil
}
