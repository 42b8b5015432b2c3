package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tendermint/intentd/vm"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// GossipTransportLibp2p runs the gossip layer over a libp2p host.
	GossipTransportLibp2p = "libp2p"
	// GossipTransportMemory keeps gossip inside the process.
	GossipTransportMemory = "memory"
)

// NOTE: libs/cli must know to look in the config dir!
var (
	DefaultIntentdDir = ".intentd"
	defaultConfigDir  = "config"
	defaultDataDir    = "data"

	defaultConfigFileName     = "config.toml"
	defaultGenesisJSONName    = "genesis.json"
	defaultNodeKeyName        = "node_key.json"
	defaultMatchmakerKeyName  = "matchmaker_key.json"
	defaultConfigFilePath     = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultGenesisJSONPath    = filepath.Join(defaultConfigDir, defaultGenesisJSONName)
	defaultNodeKeyPath        = filepath.Join(defaultConfigDir, defaultNodeKeyName)
	defaultMatchmakerKeyPath  = filepath.Join(defaultConfigDir, defaultMatchmakerKeyName)
	defaultMatchmakerFilePath = ""
)

// Config defines the top level configuration for an intentd node.
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	Ledger          *LedgerConfig          `mapstructure:"ledger" toml:"ledger"`
	Sandbox         *SandboxConfig         `mapstructure:"sandbox" toml:"sandbox"`
	Mempool         *MempoolConfig         `mapstructure:"mempool" toml:"mempool"`
	Producer        *ProducerConfig        `mapstructure:"producer" toml:"producer"`
	Gossip          *GossipConfig          `mapstructure:"gossip" toml:"gossip"`
	Matchmaker      *MatchmakerConfig      `mapstructure:"matchmaker" toml:"matchmaker"`
	RPC             *RPCConfig             `mapstructure:"rpc" toml:"rpc"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation" toml:"instrumentation"`
}

// DefaultConfig returns a default configuration for an intentd node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Ledger:          DefaultLedgerConfig(),
		Sandbox:         DefaultSandboxConfig(),
		Mempool:         DefaultMempoolConfig(),
		Producer:        DefaultProducerConfig(),
		Gossip:          DefaultGossipConfig(),
		Matchmaker:      DefaultMatchmakerConfig(),
		RPC:             DefaultRPCConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Ledger:          DefaultLedgerConfig(),
		Sandbox:         DefaultSandboxConfig(),
		Mempool:         TestMempoolConfig(),
		Producer:        TestProducerConfig(),
		Gossip:          TestGossipConfig(),
		Matchmaker:      DefaultMatchmakerConfig(),
		RPC:             TestRPCConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.Matchmaker.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Ledger.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [ledger] section: %w", err)
	}
	if err := cfg.Sandbox.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [sandbox] section: %w", err)
	}
	if err := cfg.Mempool.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [mempool] section: %w", err)
	}
	if err := cfg.Producer.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [producer] section: %w", err)
	}
	if err := cfg.Gossip.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [gossip] section: %w", err)
	}
	if err := cfg.Matchmaker.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [matchmaker] section: %w", err)
	}
	if err := cfg.RPC.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [rpc] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for an intentd node
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home" toml:"-"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker" toml:"moniker"`

	// Database backend: goleveldb | memdb
	DBBackend string `mapstructure:"db_backend" toml:"db_backend"`

	// Database directory
	DBPath string `mapstructure:"db_dir" toml:"db_dir"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level" toml:"log_level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log_format" toml:"log_format"`

	// Path to the JSON file containing the genesis accounts
	Genesis string `mapstructure:"genesis_file" toml:"genesis_file"`

	// A JSON file containing the private key that identifies this node on
	// the gossip network
	NodeKey string `mapstructure:"node_key_file" toml:"node_key_file"`
}

// DefaultBaseConfig returns a default base configuration for an intentd node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Genesis:   defaultGenesisJSONPath,
		NodeKey:   defaultNodeKeyPath,
		Moniker:   defaultMoniker,
		LogLevel:  "info",
		LogFormat: LogFormatPlain,
		DBBackend: "goleveldb",
		DBPath:    defaultDataDir,
	}
}

// TestBaseConfig returns a base configuration for testing an intentd node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.DBBackend = "memdb"
	cfg.LogLevel = "debug"
	return cfg
}

// GenesisFile returns the full path to the genesis.json file
func (cfg BaseConfig) GenesisFile() string {
	return rootify(cfg.Genesis, cfg.RootDir)
}

// NodeKeyFile returns the full path to the node_key.json file
func (cfg BaseConfig) NodeKeyFile() string {
	return rootify(cfg.NodeKey, cfg.RootDir)
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log_format (must be 'plain' or 'json')")
	}
	switch cfg.DBBackend {
	case "goleveldb", "memdb":
	default:
		return fmt.Errorf("unsupported db_backend %q", cfg.DBBackend)
	}
	return nil
}

//-----------------------------------------------------------------------------
// LedgerConfig

// LedgerConfig configures the validity pipeline.
type LedgerConfig struct {
	// Number of loaded modules kept in the cache, keyed by code hash.
	ModuleCacheSize int `mapstructure:"module_cache_size" toml:"module_cache_size"`
}

func DefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{ModuleCacheSize: 256}
}

func (cfg *LedgerConfig) ValidateBasic() error {
	if cfg.ModuleCacheSize <= 0 {
		return errors.New("module_cache_size must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// SandboxConfig

// SandboxConfig holds the resource limits applied to every tx and
// validity predicate run.
type SandboxConfig struct {
	GasLimit      uint64 `mapstructure:"gas_limit" toml:"gas_limit"`
	MaxMemory     int    `mapstructure:"max_memory" toml:"max_memory"`
	MaxStackDepth int    `mapstructure:"max_stack_depth" toml:"max_stack_depth"`
	MaxIterators  int    `mapstructure:"max_iterators" toml:"max_iterators"`
}

func DefaultSandboxConfig() *SandboxConfig {
	p := vm.DefaultParams()
	return &SandboxConfig{
		GasLimit:      p.GasLimit,
		MaxMemory:     p.MaxMemory,
		MaxStackDepth: p.MaxStackDepth,
		MaxIterators:  p.MaxIterators,
	}
}

// Params converts the section into sandbox parameters.
func (cfg *SandboxConfig) Params() vm.Params {
	return vm.Params{
		GasLimit:      cfg.GasLimit,
		MaxMemory:     cfg.MaxMemory,
		MaxStackDepth: cfg.MaxStackDepth,
		MaxIterators:  cfg.MaxIterators,
	}
}

func (cfg *SandboxConfig) ValidateBasic() error {
	return cfg.Params().ValidateBasic()
}

//-----------------------------------------------------------------------------
// MempoolConfig

// MempoolConfig defines the configuration options for the mempool
type MempoolConfig struct {
	Size       int `mapstructure:"size" toml:"size"`
	CacheSize  int `mapstructure:"cache_size" toml:"cache_size"`
	MaxTxBytes int `mapstructure:"max_tx_bytes" toml:"max_tx_bytes"`

	// How long BroadcastTxCommit waits for the tx to land in a block.
	BroadcastTimeout time.Duration `mapstructure:"broadcast_timeout" toml:"broadcast_timeout"`
}

// DefaultMempoolConfig returns a default configuration for the mempool
func DefaultMempoolConfig() *MempoolConfig {
	return &MempoolConfig{
		Size:             5000,
		CacheSize:        10000,
		MaxTxBytes:       1024 * 1024, // 1MB
		BroadcastTimeout: 10 * time.Second,
	}
}

// TestMempoolConfig returns a configuration for testing the mempool
func TestMempoolConfig() *MempoolConfig {
	cfg := DefaultMempoolConfig()
	cfg.CacheSize = 1000
	cfg.BroadcastTimeout = 2 * time.Second
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *MempoolConfig) ValidateBasic() error {
	if cfg.Size < 0 {
		return errors.New("size can't be negative")
	}
	if cfg.CacheSize < 0 {
		return errors.New("cache_size can't be negative")
	}
	if cfg.MaxTxBytes < 0 {
		return errors.New("max_tx_bytes can't be negative")
	}
	if cfg.BroadcastTimeout <= 0 {
		return errors.New("broadcast_timeout must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ProducerConfig

// ProducerConfig controls how often blocks are cut from the mempool.
type ProducerConfig struct {
	BlockInterval time.Duration `mapstructure:"block_interval" toml:"block_interval"`

	// Maximum number of txs per block. 0 means no limit.
	MaxBlockTxs int `mapstructure:"max_block_txs" toml:"max_block_txs"`

	// When false, blocks are only produced while the mempool is non-empty.
	CreateEmptyBlocks bool `mapstructure:"create_empty_blocks" toml:"create_empty_blocks"`
}

func DefaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		BlockInterval:     time.Second,
		MaxBlockTxs:       1000,
		CreateEmptyBlocks: false,
	}
}

func TestProducerConfig() *ProducerConfig {
	cfg := DefaultProducerConfig()
	cfg.BlockInterval = 50 * time.Millisecond
	return cfg
}

func (cfg *ProducerConfig) ValidateBasic() error {
	if cfg.BlockInterval <= 0 {
		return errors.New("block_interval must be positive")
	}
	if cfg.MaxBlockTxs < 0 {
		return errors.New("max_block_txs can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// GossipConfig

// GossipConfig configures the intent gossip layer.
type GossipConfig struct {
	// libp2p | memory
	Transport string `mapstructure:"transport" toml:"transport"`

	// Multiaddr to listen on, e.g. /ip4/0.0.0.0/tcp/26656
	ListenAddress string `mapstructure:"laddr" toml:"laddr"`

	// Multiaddrs (including the /p2p/<id> suffix) of peers to dial on start.
	PersistentPeers []string `mapstructure:"persistent_peers" toml:"persistent_peers"`

	// Topics joined on start.
	Topics []string `mapstructure:"topics" toml:"topics"`

	// Subscription filter. When TopicRegex is set, topic names must match
	// it. Otherwise, when TopicWhitelist is non-empty, only listed topics
	// are accepted.
	TopicRegex     string   `mapstructure:"topic_regex" toml:"topic_regex"`
	TopicWhitelist []string `mapstructure:"topic_whitelist" toml:"topic_whitelist"`

	// Buffer of decoded intents handed to the matchmaker.
	IntentBufferSize int `mapstructure:"intent_buffer_size" toml:"intent_buffer_size"`
}

func DefaultGossipConfig() *GossipConfig {
	return &GossipConfig{
		Transport:        GossipTransportLibp2p,
		ListenAddress:    "/ip4/0.0.0.0/tcp/26656",
		PersistentPeers:  []string{},
		Topics:           []string{"asset_v0"},
		TopicWhitelist:   []string{},
		IntentBufferSize: 100,
	}
}

func TestGossipConfig() *GossipConfig {
	cfg := DefaultGossipConfig()
	cfg.Transport = GossipTransportMemory
	return cfg
}

func (cfg *GossipConfig) ValidateBasic() error {
	switch cfg.Transport {
	case GossipTransportLibp2p, GossipTransportMemory:
	default:
		return fmt.Errorf("unknown transport %q (must be %q or %q)",
			cfg.Transport, GossipTransportLibp2p, GossipTransportMemory)
	}
	if cfg.TopicRegex != "" {
		if _, err := regexp.Compile(cfg.TopicRegex); err != nil {
			return fmt.Errorf("invalid topic_regex: %w", err)
		}
	}
	if cfg.IntentBufferSize < 0 {
		return errors.New("intent_buffer_size can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// MatchmakerConfig

// MatchmakerConfig configures the optional matchmaker.
type MatchmakerConfig struct {
	RootDir string `mapstructure:"home" toml:"-"`

	Enabled bool `mapstructure:"enabled" toml:"enabled"`

	// Key used to sign the txs the matchmaker crafts.
	Key string `mapstructure:"key_file" toml:"key_file"`

	// Optional Lua script defining filter(intent) -> bool.
	FilterPath string `mapstructure:"filter_file" toml:"filter_file"`

	// Longest a single filter call may run before the intent is dropped.
	FilterTimeout time.Duration `mapstructure:"filter_timeout" toml:"filter_timeout"`

	// Optional matchmaker program crafting the tx data of a matched pair,
	// as bytecode or assembler text. Empty runs the built-in exact swap.
	ProgramPath string `mapstructure:"program_file" toml:"program_file"`

	// Optional code of the txs the matchmaker submits, as bytecode or
	// assembler text. Empty uses the built-in tx_intent_transfers.
	TxCodePath string `mapstructure:"tx_code_file" toml:"tx_code_file"`

	// How long an unmatched intent stays in the working set. 0 keeps it
	// until it is matched.
	IntentTTL time.Duration `mapstructure:"intent_ttl" toml:"intent_ttl"`

	// Capacity of the results channel.
	ResultsBufferSize int `mapstructure:"results_buffer_size" toml:"results_buffer_size"`
}

func DefaultMatchmakerConfig() *MatchmakerConfig {
	return &MatchmakerConfig{
		Enabled:           false,
		Key:               defaultMatchmakerKeyPath,
		FilterPath:        defaultMatchmakerFilePath,
		FilterTimeout:     100 * time.Millisecond,
		IntentTTL:         0,
		ResultsBufferSize: 100,
	}
}

// KeyFile returns the full path to the matchmaker key file.
func (cfg *MatchmakerConfig) KeyFile() string {
	return rootify(cfg.Key, cfg.RootDir)
}

// FilterFile returns the full path to the filter script, or "" when no
// filter is configured.
func (cfg *MatchmakerConfig) FilterFile() string {
	if cfg.FilterPath == "" {
		return ""
	}
	return rootify(cfg.FilterPath, cfg.RootDir)
}

// ProgramFile returns the full path to the matchmaker program, or "" for
// the built-in one.
func (cfg *MatchmakerConfig) ProgramFile() string {
	if cfg.ProgramPath == "" {
		return ""
	}
	return rootify(cfg.ProgramPath, cfg.RootDir)
}

// TxCodeFile returns the full path to the tx code, or "" for the built-in
// one.
func (cfg *MatchmakerConfig) TxCodeFile() string {
	if cfg.TxCodePath == "" {
		return ""
	}
	return rootify(cfg.TxCodePath, cfg.RootDir)
}

func (cfg *MatchmakerConfig) ValidateBasic() error {
	if cfg.FilterTimeout <= 0 {
		return errors.New("filter_timeout must be positive")
	}
	if cfg.IntentTTL < 0 {
		return errors.New("intent_ttl can't be negative")
	}
	if cfg.ResultsBufferSize < 0 {
		return errors.New("results_buffer_size can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// RPCConfig

// RPCConfig defines the configuration options for the gRPC server.
type RPCConfig struct {
	// TCP address to listen on. Empty disables the server.
	ListenAddress string `mapstructure:"laddr" toml:"laddr"`

	// Maximum size of a received message in bytes.
	MaxRecvMsgSize int `mapstructure:"max_recv_msg_size" toml:"max_recv_msg_size"`
}

func DefaultRPCConfig() *RPCConfig {
	return &RPCConfig{
		ListenAddress:  "127.0.0.1:26657",
		MaxRecvMsgSize: 4 * 1024 * 1024,
	}
}

func TestRPCConfig() *RPCConfig {
	cfg := DefaultRPCConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	return cfg
}

func (cfg *RPCConfig) ValidateBasic() error {
	if cfg.MaxRecvMsgSize <= 0 {
		return errors.New("max_recv_msg_size must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	Prometheus bool `mapstructure:"prometheus" toml:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr" toml:"prometheus_listen_addr"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace" toml:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		Namespace:            "intentd",
	}
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.Prometheus && cfg.PrometheusListenAddr == "" {
		return errors.New("prometheus_listen_addr is required when prometheus is enabled")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

//-----------------------------------------------------------------------------
// Moniker

var defaultMoniker = getDefaultMoniker()

// getDefaultMoniker returns a default moniker, which is the host name. If runtime
// fails to get the host name, "anonymous" will be returned.
func getDefaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}
