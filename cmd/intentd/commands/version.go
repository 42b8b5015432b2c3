package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/intentd/version"
)

// MakeVersionCommand returns the command that prints the node version and,
// with --verbose, the protocol versions.
func MakeVersionCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !verbose {
				fmt.Fprintln(cmd.OutOrStdout(), version.Version)
				return nil
			}
			values, err := json.MarshalIndent(struct {
				Intentd   string            `json:"intentd"`
				Protocols version.Protocols `json:"protocols"`
			}{
				Intentd:   version.Version,
				Protocols: version.Current(),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(values))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show protocol versions")
	return cmd
}
