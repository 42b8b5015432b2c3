package test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/intentd/internal/test/factory"
	"github.com/tendermint/intentd/types"
)

func TestResetTestRoot(t *testing.T) {
	genDoc := factory.NewGenesis(factory.DefaultTestChainID, time.Now()).AddToken("xan").Doc()

	t.Run("sub/test", func(t *testing.T) {
		cfg, err := ResetTestRoot(t.Name(), genDoc)
		require.NoError(t, err)
		defer os.RemoveAll(cfg.RootDir)

		got, err := types.GenesisDocFromFile(cfg.GenesisFile())
		require.NoError(t, err)
		assert.Equal(t, genDoc.ChainID, got.ChainID)
		assert.DirExists(t, cfg.RootDir)
	})
}
