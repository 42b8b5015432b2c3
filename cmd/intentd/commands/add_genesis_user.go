package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
)

// MakeAddGenesisUserCommand returns the command that adds a user account,
// guarded by the user predicate, to the genesis file. The user key is read
// from the given file and created there when missing.
func MakeAddGenesisUserCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:     "add_genesis_user <key_file> [token=amount...]",
		Short:   "Add a user account and its balances to the genesis file",
		Example: "intentd add_genesis_user alice.json xan=100 btc=5",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			balances, err := parseBalances(args[1:])
			if err != nil {
				return err
			}

			key, err := types.LoadOrGenNodeKey(args[0])
			if err != nil {
				return err
			}

			genDoc, err := types.GenesisDocFromFile(conf.GenesisFile())
			if err != nil {
				return err
			}
			genDoc.Accounts = append(genDoc.Accounts, types.GenesisAccount{
				Address:  key.Address,
				VP:       "vp_user",
				PubKey:   key.PubKey().Bytes(),
				Balances: balances,
			})
			if err := genDoc.ValidateAndComplete(); err != nil {
				return err
			}
			if err := genDoc.SaveAs(conf.GenesisFile()); err != nil {
				return err
			}

			logger.Info("added genesis user", "address", key.Address, "key", args[0])
			fmt.Fprintln(cmd.OutOrStdout(), key.Address)
			return nil
		},
	}
}

func parseBalances(args []string) (map[types.Address]uint64, error) {
	if len(args) == 0 {
		return nil, nil
	}
	balances := make(map[types.Address]uint64, len(args))
	for _, arg := range args {
		token, amount, err := parseAmount(arg, "=")
		if err != nil {
			return nil, err
		}
		balances[token] += amount
	}
	return balances, nil
}

// parseAmount splits "token<sep>amount".
func parseAmount(s, sep string) (types.Address, uint64, error) {
	parts := strings.SplitN(s, sep, 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("expected token%samount, got %q", sep, s)
	}
	token := types.Address(parts[0])
	if err := token.ValidateBasic(); err != nil {
		return "", 0, err
	}
	amount, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid amount in %q: %w", s, err)
	}
	return token, amount, nil
}
