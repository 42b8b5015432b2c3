package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/internal/gossip"
	"github.com/tendermint/intentd/libs/cli"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/node"
	"github.com/tendermint/intentd/types"
)

// clearConfig clears env vars, the given root dir, and resets viper.
func clearConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	require.NoError(t, os.Unsetenv("INTENTDHOME"))
	require.NoError(t, os.Unsetenv("INTENTD_HOME"))
	require.NoError(t, os.RemoveAll(dir))

	viper.Reset()
	conf := config.DefaultConfig()
	conf.SetRoot(dir)
	return conf
}

// testRootCmd returns a root command that runs its hooks even without a
// subcommand.
func testRootCmd(conf *config.Config, subcommands ...*cobra.Command) *cobra.Command {
	cmd := RootCommand(conf, log.NewNopLogger())
	cmd.RunE = func(*cobra.Command, []string) error { return nil }
	cmd.AddCommand(subcommands...)
	return cmd
}

// runWithArgs executes cmd with the given command line args and environment
// variables set.
func runWithArgs(ctx context.Context, cmd *cobra.Command, args []string, env map[string]string) error {
	oargs := os.Args
	oenv := map[string]string{}
	defer func() {
		os.Args = oargs
		for k, v := range oenv {
			os.Setenv(k, v)
		}
	}()

	os.Args = append([]string{cmd.Use}, args...)
	for k, v := range env {
		oenv[k] = os.Getenv(k)
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	cmd.SetArgs(args)
	return cli.RunWithTrace(ctx, cmd)
}

func TestRootHome(t *testing.T) {
	defaultRoot := t.TempDir()
	newRoot := filepath.Join(defaultRoot, "something-else")
	cases := []struct {
		args []string
		env  map[string]string
		root string
	}{
		{[]string{"--home", defaultRoot}, nil, defaultRoot},
		{[]string{"--home", newRoot}, nil, newRoot},
		{nil, map[string]string{"INTENTD_HOME": newRoot}, newRoot},
	}

	ctx := context.Background()
	for i, tc := range cases {
		tc := tc
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			conf := clearConfig(t, tc.root)
			require.NoError(t, runWithArgs(ctx, testRootCmd(conf), tc.args, tc.env))

			require.Equal(t, tc.root, conf.RootDir)
			require.Equal(t, tc.root, conf.Matchmaker.RootDir)
			assert.FileExists(t, config.ConfigFile(tc.root))
		})
	}
}

func TestRootFlagsOverrideConfigFile(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	conf := clearConfig(t, root)
	config.EnsureRoot(root)
	fileConf := config.DefaultConfig()
	fileConf.LogLevel = "debug"
	fileConf.Matchmaker.Enabled = true
	require.NoError(t, config.WriteConfigFile(root, fileConf))

	require.NoError(t, runWithArgs(ctx, testRootCmd(conf), []string{"--home", root}, nil))
	assert.Equal(t, "debug", conf.LogLevel)
	assert.True(t, conf.Matchmaker.Enabled)

	conf = clearConfig(t, "")
	require.NoError(t, runWithArgs(ctx, testRootCmd(conf), []string{"--home", root, "--log_level", "error"}, nil))
	assert.Equal(t, "error", conf.LogLevel)
}

func TestInitFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	conf := clearConfig(t, root)
	logger := log.NewNopLogger()

	cmd := testRootCmd(conf, MakeInitFilesCommand(conf, logger))
	require.NoError(t, runWithArgs(ctx, cmd, []string{"init", "--home", root, "--chain_id", "swap-1", "--tokens", "xan,btc"}, nil))

	nodeKey, err := types.LoadNodeKey(conf.NodeKeyFile())
	require.NoError(t, err)
	mmKey, err := types.LoadNodeKey(conf.Matchmaker.KeyFile())
	require.NoError(t, err)
	assert.NotEqual(t, nodeKey.Address, mmKey.Address)

	genDoc, err := types.GenesisDocFromFile(conf.GenesisFile())
	require.NoError(t, err)
	assert.Equal(t, "swap-1", genDoc.ChainID)
	require.Len(t, genDoc.Accounts, 3)
	assert.Equal(t, mmKey.Address, genDoc.Accounts[0].Address)
	assert.Equal(t, "vp_user", genDoc.Accounts[0].VP)
	assert.Equal(t, types.Address("xan"), genDoc.Accounts[1].Address)
	assert.Equal(t, "vp_token", genDoc.Accounts[2].VP)

	// a second run keeps the existing files
	conf = clearConfig(t, "")
	cmd = testRootCmd(conf, MakeInitFilesCommand(conf, logger))
	require.NoError(t, runWithArgs(ctx, cmd, []string{"init", "--home", root, "--chain_id", "other"}, nil))
	again, err := types.GenesisDocFromFile(conf.GenesisFile())
	require.NoError(t, err)
	assert.Equal(t, "swap-1", again.ChainID)
}

func TestAddGenesisUser(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	conf := clearConfig(t, root)
	logger := log.NewNopLogger()

	cmd := testRootCmd(conf, MakeInitFilesCommand(conf, logger))
	require.NoError(t, runWithArgs(ctx, cmd, []string{"init", "--home", root}, nil))

	keyFile := filepath.Join(root, "alice.json")
	conf = clearConfig(t, "")
	add := MakeAddGenesisUserCommand(conf, logger)
	var out bytes.Buffer
	add.SetOut(&out)
	cmd = testRootCmd(conf, add)
	require.NoError(t, runWithArgs(ctx, cmd, []string{"add_genesis_user", "--home", root, keyFile, "xan=100", "btc=5"}, nil))

	alice, err := types.LoadNodeKey(keyFile)
	require.NoError(t, err)
	assert.Contains(t, out.String(), string(alice.Address))

	genDoc, err := types.GenesisDocFromFile(conf.GenesisFile())
	require.NoError(t, err)
	acc := genDoc.Accounts[len(genDoc.Accounts)-1]
	assert.Equal(t, alice.Address, acc.Address)
	assert.Equal(t, alice.PubKey().Bytes(), acc.PubKey)
	assert.Equal(t, map[types.Address]uint64{"xan": 100, "btc": 5}, acc.Balances)

	// the same user can't be added twice
	conf = clearConfig(t, "")
	cmd = testRootCmd(conf, MakeAddGenesisUserCommand(conf, logger))
	assert.Error(t, runWithArgs(ctx, cmd, []string{"add_genesis_user", "--home", root, keyFile}, nil))
}

func TestParseAmount(t *testing.T) {
	token, amount, err := parseAmount("xan=10", "=")
	require.NoError(t, err)
	assert.Equal(t, types.Address("xan"), token)
	assert.Equal(t, uint64(10), amount)

	for _, bad := range []string{"xan", "XAN=10", "xan=-1", "xan=ten", "=5"} {
		_, _, err := parseAmount(bad, "=")
		assert.Error(t, err, bad)
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := MakeVersionCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--verbose"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"protocols"`)
	assert.Contains(t, out.String(), `"gossip": 1`)
}

func TestIntentAndSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	logger := log.NewNopLogger()
	keyFile := filepath.Join(root, "alice.json")

	conf := clearConfig(t, root)
	cmd := testRootCmd(conf, MakeInitFilesCommand(conf, logger))
	require.NoError(t, runWithArgs(ctx, cmd, []string{"init", "--home", root}, nil))
	conf = clearConfig(t, "")
	cmd = testRootCmd(conf, MakeAddGenesisUserCommand(conf, logger))
	require.NoError(t, runWithArgs(ctx, cmd, []string{"add_genesis_user", "--home", root, keyFile, "xan=100"}, nil))

	nodeConf := config.TestConfig().SetRoot(root)
	network, err := gossip.NewMemoryNetwork(ctx, logger)
	require.NoError(t, err)
	n, err := node.New(nodeConf, logger, node.WithMemoryNetwork(network))
	require.NoError(t, err)
	require.NoError(t, n.Start(ctx))
	addr := n.RPCServer().Addr().String()

	conf = clearConfig(t, "")
	sub := MakeSubscribeCommand(conf)
	var out bytes.Buffer
	sub.SetOut(&out)
	cmd = testRootCmd(conf, sub)
	require.NoError(t, runWithArgs(ctx, cmd, []string{"subscribe", "--home", root, "--rpc.laddr", addr, "nft"}, nil))
	assert.Equal(t, "subscribed to nft\n", out.String())
	assert.Contains(t, n.Gossiper().Topics(), "nft")

	conf = clearConfig(t, "")
	intent := MakeIntentCommand(conf)
	out.Reset()
	intent.SetOut(&out)
	cmd = testRootCmd(conf, intent)
	require.NoError(t, runWithArgs(ctx, cmd, []string{
		"intent", "--home", root, "--rpc.laddr", addr,
		"--key", keyFile, "--sell", "xan=10", "--buy", "btc=1",
	}, nil))
	assert.Contains(t, out.String(), "intent published")

	cancel()
	n.Wait()
}
