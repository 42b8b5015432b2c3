package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/creachadair/atomicfile"

	"github.com/tendermint/intentd/crypto"
	"github.com/tendermint/intentd/crypto/ed25519"
)

// NodeKey is a persistent ed25519 key. The node uses one for its gossip
// identity and the matchmaker uses another to sign the transactions it
// crafts.
type NodeKey struct {
	Address Address         `json:"address"`
	PrivKey ed25519.PrivKey `json:"priv_key"`
}

// PubKey returns the key's public key.
func (nk NodeKey) PubKey() crypto.PubKey {
	return nk.PrivKey.PubKey()
}

// SaveAs persists the NodeKey to filePath.
func (nk NodeKey) SaveAs(filePath string) error {
	jsonBytes, err := json.Marshal(nk)
	if err != nil {
		return err
	}
	_, err = atomicfile.WriteAll(filePath, bytes.NewReader(jsonBytes), 0600)
	return err
}

// LoadOrGenNodeKey attempts to load the NodeKey from the given filePath. If
// the file does not exist, it generates and saves a new NodeKey.
func LoadOrGenNodeKey(filePath string) (NodeKey, error) {
	if _, err := os.Stat(filePath); err == nil {
		return LoadNodeKey(filePath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return NodeKey{}, err
	}

	nodeKey := GenNodeKey()
	if err := nodeKey.SaveAs(filePath); err != nil {
		return NodeKey{}, err
	}

	return nodeKey, nil
}

// GenNodeKey generates a new node key.
func GenNodeKey() NodeKey {
	return NodeKeyFromPrivKey(ed25519.GenPrivKey())
}

// NodeKeyFromPrivKey wraps privKey, deriving its implicit address.
func NodeKeyFromPrivKey(privKey ed25519.PrivKey) NodeKey {
	return NodeKey{
		Address: ImplicitAddress(privKey.PubKey()),
		PrivKey: privKey,
	}
}

// LoadNodeKey loads NodeKey located in filePath.
func LoadNodeKey(filePath string) (NodeKey, error) {
	jsonBytes, err := os.ReadFile(filePath)
	if err != nil {
		return NodeKey{}, err
	}
	nodeKey := NodeKey{}
	if err := json.Unmarshal(jsonBytes, &nodeKey); err != nil {
		return NodeKey{}, fmt.Errorf("decoding key file %s: %w", filePath, err)
	}
	if len(nodeKey.PrivKey) != ed25519.PrivateKeySize {
		return NodeKey{}, fmt.Errorf("key file %s: invalid private key", filePath)
	}
	if nodeKey.Address != ImplicitAddress(nodeKey.PrivKey.PubKey()) {
		return NodeKey{}, fmt.Errorf("key file %s: address does not match key", filePath)
	}
	return nodeKey, nil
}
