package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/crypto"
	"github.com/tendermint/intentd/libs/log"
	tmos "github.com/tendermint/intentd/libs/os"
	"github.com/tendermint/intentd/types"
)

// MakeInitFilesCommand returns the command that initializes a fresh node
// home: the config file, the node and matchmaker keys and a genesis holding
// the matchmaker account and the given token accounts.
func MakeInitFilesCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	var (
		chainID string
		tokens  []string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initializes an intentd node home",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initFilesWithConfig(conf, logger, chainID, tokens)
		},
	}
	cmd.Flags().StringVar(&chainID, "chain_id", "", "chain ID of the genesis (random when empty)")
	cmd.Flags().StringSliceVar(&tokens, "tokens", []string{"xan", "btc", "eth"}, "token accounts created at genesis")
	return cmd
}

func initFilesWithConfig(conf *config.Config, logger log.Logger, chainID string, tokens []string) error {
	nodeKeyFile := conf.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("found node key", "path", nodeKeyFile)
	} else {
		if _, err := types.LoadOrGenNodeKey(nodeKeyFile); err != nil {
			return err
		}
		logger.Info("generated node key", "path", nodeKeyFile)
	}

	mmKeyFile := conf.Matchmaker.KeyFile()
	mmKey, err := types.LoadOrGenNodeKey(mmKeyFile)
	if err != nil {
		return err
	}
	logger.Info("matchmaker key", "path", mmKeyFile, "address", mmKey.Address)

	genFile := conf.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("found genesis file", "path", genFile)
		return nil
	}

	if chainID == "" {
		chainID = fmt.Sprintf("intentd-%x", crypto.CRandBytes(3))
	}
	genDoc := types.GenesisDoc{
		ChainID:     chainID,
		GenesisTime: time.Now().UTC(),
		Accounts: []types.GenesisAccount{{
			Address: mmKey.Address,
			VP:      "vp_user",
			PubKey:  mmKey.PubKey().Bytes(),
		}},
	}
	for _, token := range tokens {
		genDoc.Accounts = append(genDoc.Accounts, types.GenesisAccount{
			Address: types.Address(token),
			VP:      "vp_token",
		})
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("generated genesis file", "path", genFile, "chain_id", chainID)
	return nil
}
