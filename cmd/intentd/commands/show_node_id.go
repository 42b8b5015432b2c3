package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/types"
)

// MakeShowNodeIDCommand constructs a command to dump the node's gossip
// address and the matchmaker address to stdout.
func MakeShowNodeIDCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show_node_id",
		Short: "Show this node's address and its matchmaker address",
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeKey, err := types.LoadNodeKey(conf.NodeKeyFile())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), nodeKey.Address)

			mmKey, err := types.LoadNodeKey(conf.Matchmaker.KeyFile())
			if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "matchmaker", mmKey.Address)
			}
			return nil
		},
	}
}
