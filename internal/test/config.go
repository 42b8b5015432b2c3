package test

import (
	"fmt"
	"os"
	"strings"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/types"
)

// ResetTestRoot creates a fresh node home under os.TempDir(), writes genDoc
// as its genesis file and returns a test configuration rooted there.
func ResetTestRoot(testName string, genDoc *types.GenesisDoc) (*config.Config, error) {
	// create a unique, concurrency-safe test directory under os.TempDir();
	// subtest names contain slashes
	name := strings.ReplaceAll(testName, "/", "_")
	rootDir, err := os.MkdirTemp("", fmt.Sprintf("%s-%s_", genDoc.ChainID, name))
	if err != nil {
		return nil, err
	}

	config.EnsureRoot(rootDir)

	cfg := config.TestConfig().SetRoot(rootDir)
	if err := genDoc.SaveAs(cfg.GenesisFile()); err != nil {
		return nil, err
	}
	return cfg, nil
}
