package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/internal/rpc"
	"github.com/tendermint/intentd/types"
)

const ctxTimeout = 10 * time.Second

// MakeIntentCommand returns the command that signs an intent and sends it
// to a node, which gossips it on the intent's topic.
func MakeIntentCommand(conf *config.Config) *cobra.Command {
	var (
		keyFile   string
		sell, buy string
		topic     string
	)
	cmd := &cobra.Command{
		Use:     "intent",
		Short:   "Sign an intent and gossip it through a node",
		Example: "intentd intent --key alice.json --sell xan=10 --buy btc=1",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := types.LoadNodeKey(keyFile)
			if err != nil {
				return err
			}
			tokenSell, amountSell, err := parseAmount(sell, "=")
			if err != nil {
				return fmt.Errorf("--sell: %w", err)
			}
			tokenBuy, amountBuy, err := parseAmount(buy, "=")
			if err != nil {
				return fmt.Errorf("--buy: %w", err)
			}

			intent := &types.Intent{
				Sender:     key.Address,
				TokenSell:  tokenSell,
				AmountSell: amountSell,
				TokenBuy:   tokenBuy,
				AmountBuy:  amountBuy,
				Topic:      topic,
				Timestamp:  time.Now().UTC(),
			}
			if err := intent.Sign(key.PrivKey); err != nil {
				return err
			}

			res, err := sendMessage(cmd.Context(), conf.RPC.ListenAddress, &types.RPCMessage{
				Intent: &types.IntentMessage{Intent: intent, Topic: topic},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), intent.ID(), res.Result)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "file holding the sender key")
	cmd.Flags().StringVar(&sell, "sell", "", "token=amount offered")
	cmd.Flags().StringVar(&buy, "buy", "", "token=amount wanted in exchange")
	cmd.Flags().StringVar(&topic, "topic", "asset_v0", "topic the intent is gossiped on")
	cmd.Flags().String("rpc.laddr", conf.RPC.ListenAddress, "RPC address of the node")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("sell")
	_ = cmd.MarkFlagRequired("buy")
	return cmd
}

// MakeSubscribeCommand returns the command that makes a node join a topic.
func MakeSubscribeCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe <topic>",
		Short: "Make a node join a gossip topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := sendMessage(cmd.Context(), conf.RPC.ListenAddress, &types.RPCMessage{
				Subscribe: &types.SubscribeTopicMessage{Topic: args[0]},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Result)
			return nil
		},
	}
	cmd.Flags().String("rpc.laddr", conf.RPC.ListenAddress, "RPC address of the node")
	return cmd
}

func sendMessage(ctx context.Context, addr string, msg *types.RPCMessage) (*types.RPCResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, ctxTimeout)
	defer cancel()

	conn, err := rpc.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	return rpc.NewClient(conn).SendMessage(ctx, msg)
}
