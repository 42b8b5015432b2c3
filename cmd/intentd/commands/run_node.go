package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/internal/gossip"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/node"
)

// AddNodeFlags exposes some common configuration options on the command-line
// These are exposed for convenience of commands embedding an intentd node
func AddNodeFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String("moniker", conf.Moniker, "node name")

	// producer flags
	cmd.Flags().Duration("producer.block_interval", conf.Producer.BlockInterval, "time between two blocks")
	cmd.Flags().Bool(
		"producer.create_empty_blocks",
		conf.Producer.CreateEmptyBlocks,
		"set this to false to only produce blocks when there are txs")

	// gossip flags
	cmd.Flags().String("gossip.transport", conf.Gossip.Transport, "gossip transport (libp2p | memory)")
	cmd.Flags().String("gossip.laddr", conf.Gossip.ListenAddress, "gossip listen multiaddr")
	cmd.Flags().StringSlice("gossip.persistent_peers", conf.Gossip.PersistentPeers, "peer multiaddrs to dial on start")
	cmd.Flags().StringSlice("gossip.topics", conf.Gossip.Topics, "topics joined on start")
	cmd.Flags().String("gossip.topic_regex", conf.Gossip.TopicRegex, "only topics matching this regex may be joined")

	// matchmaker flags
	cmd.Flags().Bool("matchmaker.enabled", conf.Matchmaker.Enabled, "run the matchmaker")
	cmd.Flags().String("matchmaker.filter_file", conf.Matchmaker.FilterPath, "lua script screening intents")
	cmd.Flags().Duration("matchmaker.intent_ttl", conf.Matchmaker.IntentTTL, "drop unmatched intents after this long (0 keeps them)")
	cmd.Flags().Duration("matchmaker.filter_timeout", conf.Matchmaker.FilterTimeout, "longest a filter call may run")
	cmd.Flags().String("matchmaker.program_file", conf.Matchmaker.ProgramPath, "matchmaker program, bytecode or assembler text")
	cmd.Flags().String("matchmaker.tx_code_file", conf.Matchmaker.TxCodePath, "code of the settlement txs, bytecode or assembler text")

	// rpc flags
	cmd.Flags().String("rpc.laddr", conf.RPC.ListenAddress, "RPC listen address. Port required")

	// instrumentation flags
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus, "serve Prometheus metrics")

	addDBFlags(cmd, conf)
}

func addDBFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String(
		"db_backend",
		conf.DBBackend,
		"database backend: goleveldb | memdb")
	cmd.Flags().String(
		"db_dir",
		conf.DBPath,
		"database directory")
}

// NewRunNodeCmd returns the command that allows the CLI to start a node.
func NewRunNodeCmd(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the intentd node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			opts, err := nodeOptions(ctx, conf, logger)
			if err != nil {
				return err
			}

			n, err := node.New(conf, logger, opts...)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			if err := n.Start(ctx); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			logger.Info("started node", "node", n.String(), "address", n.NodeKey().Address)
			if rpc := n.RPCServer(); rpc != nil {
				logger.Info("rpc listening", "addr", rpc.Addr().String())
			}

			// Stop upon receiving SIGTERM or CTRL-C.
			<-ctx.Done()
			n.Wait()
			return nil
		},
	}

	AddNodeFlags(cmd, conf)
	return cmd
}

// nodeOptions gives a node configured with the memory transport a private
// network, which only makes sense for a standalone node.
func nodeOptions(ctx context.Context, conf *config.Config, logger log.Logger) ([]node.Option, error) {
	if conf.Gossip.Transport != config.GossipTransportMemory {
		return nil, nil
	}
	network, err := gossip.NewMemoryNetwork(ctx, logger)
	if err != nil {
		return nil, err
	}
	return []node.Option{node.WithMemoryNetwork(network)}, nil
}
