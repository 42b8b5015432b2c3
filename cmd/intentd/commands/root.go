package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/libs/cli"
	"github.com/tendermint/intentd/libs/log"
)

// EnvPrefix prefixes the environment variables read as settings.
const EnvPrefix = "INTENTD"

// ParseConfig loads the settings bound in viper on top of conf, sets up the
// node home and validates the result.
func ParseConfig(conf *config.Config) (*config.Config, error) {
	return config.ParseConfig(viper.GetViper(), conf)
}

// RootCommand constructs the root command-line entry point for intentd.
func RootCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intentd",
		Short: "Intent gossip, matchmaking and ledger node",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}

			if err := cli.BindFlagsLoadViper(cmd, args); err != nil {
				return err
			}

			pconf, err := ParseConfig(conf)
			if err != nil {
				return err
			}
			*conf = *pconf
			config.EnsureRoot(conf.RootDir)
			return log.OverrideWithNewLogger(logger, conf.LogFormat, conf.LogLevel)
		},
	}
	cmd.PersistentFlags().StringP(cli.HomeFlag, "", os.ExpandEnv(filepath.Join("$HOME", config.DefaultIntentdDir)), "directory for config and data")
	cmd.PersistentFlags().Bool(cli.TraceFlag, false, "print out full stack trace on errors")
	cmd.PersistentFlags().String("log_level", conf.LogLevel, "log level")
	cmd.PersistentFlags().String("log_format", conf.LogFormat, "log format (plain | json)")
	cobra.OnInitialize(func() { cli.InitEnv(EnvPrefix) })
	return cmd
}
