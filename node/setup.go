package node

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/internal/gossip"
	"github.com/tendermint/intentd/internal/ledger"
	"github.com/tendermint/intentd/internal/matchmaker"
	"github.com/tendermint/intentd/internal/mempool"
	"github.com/tendermint/intentd/internal/store"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
	"github.com/tendermint/intentd/vm"
)

type nodeMetrics struct {
	ledger     *ledger.Metrics
	mempool    *mempool.Metrics
	gossip     *gossip.Metrics
	matchmaker *matchmaker.Metrics
}

func defaultMetricsProvider(cfg *config.InstrumentationConfig) func(chainID string) *nodeMetrics {
	return func(chainID string) *nodeMetrics {
		if cfg.Prometheus {
			return &nodeMetrics{
				ledger:     ledger.PrometheusMetrics(cfg.Namespace),
				mempool:    mempool.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
				gossip:     gossip.PrometheusMetrics(cfg.Namespace),
				matchmaker: matchmaker.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
			}
		}
		return &nodeMetrics{
			ledger:     ledger.NopMetrics(),
			mempool:    mempool.NopMetrics(),
			gossip:     gossip.NopMetrics(),
			matchmaker: matchmaker.NopMetrics(),
		}
	}
}

func loadGenesis(cfg *config.Config) (*types.GenesisDoc, error) {
	genDoc, err := types.GenesisDocFromFile(cfg.GenesisFile())
	if err != nil {
		return nil, fmt.Errorf("couldn't read genesis: %w", err)
	}
	return genDoc, nil
}

func initDBs(cfg *config.Config, dbProvider config.DBProvider) (dbm.DB, *store.Store, error) {
	db, err := dbProvider(&config.DBContext{ID: "ledger", Config: cfg})
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("loading ledger store: %w", err)
	}
	return db, st, nil
}

func createTransport(
	logger log.Logger,
	cfg *config.GossipConfig,
	nodeKey types.NodeKey,
	network *gossip.MemoryNetwork,
) (gossip.Transport, gossip.SubscriptionFilter, error) {
	filter, err := gossip.NewSubscriptionFilter(cfg)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Transport {
	case config.GossipTransportMemory:
		if network == nil {
			return nil, nil, fmt.Errorf("%s transport needs a memory network", cfg.Transport)
		}
		return network.Transport(string(nodeKey.Address)), filter, nil

	case config.GossipTransportLibp2p:
		t, err := gossip.NewLibp2pTransport(logger, nodeKey, cfg.ListenAddress, filter)
		if err != nil {
			return nil, nil, err
		}
		return t, filter, nil

	default:
		return nil, nil, fmt.Errorf("unknown gossip transport %q", cfg.Transport)
	}
}

// startPrometheusServer starts a Prometheus HTTP server, listening for metrics
// collectors on addr.
func startPrometheusServer(logger log.Logger, addr string) *http.Server {
	srv := &http.Server{
		Addr: addr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{},
			),
		),
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			// Error starting or closing listener:
			logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}

// drainIntents discards gossiped intents when no matchmaker consumes them,
// so the receive loops never block.
func drainIntents(ctx context.Context, ch <-chan *types.Intent) {
	for {
		select {
		case <-ch:
		case <-ctx.Done():
			return
		}
	}
}

// matchmakerOptions loads the configured matchmaker program and settlement
// tx code.
func matchmakerOptions(logger log.Logger, cfg *config.Config) ([]matchmaker.Option, error) {
	var opts []matchmaker.Option
	if path := cfg.Matchmaker.ProgramFile(); path != "" {
		code, err := loadCode(path, nil)
		if err != nil {
			return nil, fmt.Errorf("matchmaker program: %w", err)
		}
		program, err := matchmaker.NewProgram(logger, cfg.Sandbox.Params(), code)
		if err != nil {
			return nil, err
		}
		opts = append(opts, matchmaker.WithProgram(program))
		logger.Info("loaded matchmaker program", "path", path)
	}
	if path := cfg.Matchmaker.TxCodeFile(); path != "" {
		code, err := loadCode(path, ledger.Natives())
		if err != nil {
			return nil, fmt.Errorf("matchmaker tx code: %w", err)
		}
		opts = append(opts, matchmaker.WithTxCode(code))
		logger.Info("loaded matchmaker tx code", "path", path)
	}
	return opts, nil
}

// loadCode reads a module file holding bytecode or assembler text and
// checks that it loads.
func loadCode(path string, natives map[string]vm.NativeFunc) ([]byte, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	code, err := vm.ParseCode(bz)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	loader, err := vm.NewLoader(1, natives)
	if err != nil {
		return nil, err
	}
	if _, err := loader.Load(code); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return code, nil
}
