package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)

	// set up some defaults
	cfg := DefaultConfig()
	assert.NotNil(cfg.Mempool)
	assert.NotNil(cfg.Gossip)
	assert.NotNil(cfg.Matchmaker)

	// check the root dir stuff...
	cfg.SetRoot("/foo")
	cfg.Genesis = "bar"
	cfg.DBPath = "/opt/data"
	cfg.Matchmaker.FilterPath = "filters/swap.lua"

	assert.Equal("/foo/bar", cfg.GenesisFile())
	assert.Equal("/opt/data", cfg.DBDir())
	assert.Equal("/foo/config/node_key.json", cfg.NodeKeyFile())
	assert.Equal("/foo/config/matchmaker_key.json", cfg.Matchmaker.KeyFile())
	assert.Equal("/foo/filters/swap.lua", cfg.Matchmaker.FilterFile())

	cfg.Matchmaker.FilterPath = ""
	assert.Equal("", cfg.Matchmaker.FilterFile())
	assert.Equal(time.Duration(0), cfg.Matchmaker.IntentTTL)

	assert.Equal("", cfg.Matchmaker.ProgramFile())
	assert.Equal("", cfg.Matchmaker.TxCodeFile())
	cfg.Matchmaker.ProgramPath = "config/swap.asm"
	cfg.Matchmaker.TxCodePath = "/abs/settle.bin"
	assert.Equal("/foo/config/swap.asm", cfg.Matchmaker.ProgramFile())
	assert.Equal("/abs/settle.bin", cfg.Matchmaker.TxCodeFile())
}

func TestConfigValidateBasic(t *testing.T) {
	require.NoError(t, DefaultConfig().ValidateBasic())
	require.NoError(t, TestConfig().ValidateBasic())

	testCases := map[string]func(*Config){
		"log format":        func(c *Config) { c.LogFormat = "xml" },
		"db backend":        func(c *Config) { c.DBBackend = "cleveldb" },
		"module cache":      func(c *Config) { c.Ledger.ModuleCacheSize = 0 },
		"gas limit":         func(c *Config) { c.Sandbox.GasLimit = 0 },
		"mempool size":      func(c *Config) { c.Mempool.Size = -1 },
		"broadcast timeout": func(c *Config) { c.Mempool.BroadcastTimeout = 0 },
		"block interval":    func(c *Config) { c.Producer.BlockInterval = -time.Second },
		"transport":         func(c *Config) { c.Gossip.Transport = "carrier-pigeon" },
		"topic regex":       func(c *Config) { c.Gossip.TopicRegex = "([" },
		"intent ttl":        func(c *Config) { c.Matchmaker.IntentTTL = -time.Second },
		"filter timeout":    func(c *Config) { c.Matchmaker.FilterTimeout = 0 },
		"rpc msg size":      func(c *Config) { c.RPC.MaxRecvMsgSize = 0 },
		"prometheus addr": func(c *Config) {
			c.Instrumentation.Prometheus = true
			c.Instrumentation.PrometheusListenAddr = ""
		},
	}
	for name, tamper := range testCases {
		tamper := tamper
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			tamper(cfg)
			assert.Error(t, cfg.ValidateBasic())
		})
	}
}

func TestSandboxParams(t *testing.T) {
	cfg := DefaultSandboxConfig()
	cfg.GasLimit = 42
	p := cfg.Params()
	assert.EqualValues(t, 42, p.GasLimit)
	assert.Equal(t, cfg.MaxIterators, p.MaxIterators)
}

func TestEnsureRoot(t *testing.T) {
	tmpDir := t.TempDir()

	EnsureRoot(tmpDir)

	for _, p := range []string{"config", "data", filepath.Join("config", "config.toml")} {
		_, err := os.Stat(filepath.Join(tmpDir, p))
		assert.NoError(t, err, p)
	}

	cfg, err := LoadConfig(tmpDir)
	require.NoError(t, err)
	want := DefaultConfig().SetRoot(tmpDir)
	if diff := cmp.Diff(want, cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("loaded config differs from default (-want +got):\n%s", diff)
	}
}

func TestWriteAndLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	EnsureRoot(tmpDir)

	cfg := DefaultConfig()
	cfg.Moniker = "swapper"
	cfg.Matchmaker.Enabled = true
	cfg.Matchmaker.IntentTTL = 90 * time.Second
	cfg.Matchmaker.ProgramPath = "config/swap.asm"
	cfg.Matchmaker.FilterTimeout = time.Second
	cfg.Gossip.Topics = []string{"asset_v0", "asset_v1"}
	cfg.Gossip.TopicRegex = "^asset_"
	cfg.Producer.BlockInterval = 250 * time.Millisecond
	require.NoError(t, WriteConfigFile(tmpDir, cfg))

	got, err := LoadConfig(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "swapper", got.Moniker)
	assert.True(t, got.Matchmaker.Enabled)
	assert.Equal(t, 90*time.Second, got.Matchmaker.IntentTTL)
	assert.Equal(t, "config/swap.asm", got.Matchmaker.ProgramPath)
	assert.Equal(t, time.Second, got.Matchmaker.FilterTimeout)
	assert.Equal(t, []string{"asset_v0", "asset_v1"}, got.Gossip.Topics)
	assert.Equal(t, "^asset_", got.Gossip.TopicRegex)
	assert.Equal(t, 250*time.Millisecond, got.Producer.BlockInterval)
	assert.Equal(t, tmpDir, got.Matchmaker.RootDir)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	EnsureRoot(tmpDir)

	cfg := DefaultConfig()
	cfg.Gossip.Transport = "smoke-signals"
	require.NoError(t, WriteConfigFile(tmpDir, cfg))

	_, err := LoadConfig(tmpDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[gossip]")
}
