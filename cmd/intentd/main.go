package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tendermint/intentd/cmd/intentd/commands"
	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/libs/cli"
	"github.com/tendermint/intentd/libs/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf := config.DefaultConfig()
	logger := log.MustNewDefaultLogger(conf.LogFormat, conf.LogLevel)

	rcmd := commands.RootCommand(conf, logger)
	rcmd.AddCommand(
		commands.MakeInitFilesCommand(conf, logger),
		commands.MakeAddGenesisUserCommand(conf, logger),
		commands.NewRunNodeCmd(conf, logger),
		commands.MakeIntentCommand(conf),
		commands.MakeSubscribeCommand(conf),
		commands.MakeShowNodeIDCommand(conf),
		commands.MakeVersionCommand(),
	)

	if err := cli.RunWithTrace(ctx, rcmd); err != nil {
		cancel()
		os.Exit(1)
	}
}
