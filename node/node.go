package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	dbm "github.com/tendermint/tm-db"
	"golang.org/x/sync/errgroup"

	abciclient "github.com/tendermint/intentd/abci/client"
	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/internal/gossip"
	"github.com/tendermint/intentd/internal/ledger"
	"github.com/tendermint/intentd/internal/matchmaker"
	"github.com/tendermint/intentd/internal/mempool"
	"github.com/tendermint/intentd/internal/producer"
	"github.com/tendermint/intentd/internal/rpc"
	"github.com/tendermint/intentd/internal/store"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/libs/service"
	"github.com/tendermint/intentd/types"
)

// Node wires the ledger, its mempool and block producer, the intent gossip
// layer, the optional matchmaker and the RPC endpoint into one service.
type Node struct {
	*service.BaseService
	logger log.Logger

	config  *config.Config
	genDoc  *types.GenesisDoc
	nodeKey types.NodeKey

	db         dbm.DB
	store      *store.Store
	mempool    *mempool.TxMempool
	producer   *producer.Producer
	transport  gossip.Transport
	gossiper   *gossip.Gossiper
	matchmaker *matchmaker.Matchmaker
	rpcServer  *rpc.Server

	network       *gossip.MemoryNetwork
	rpcListener   net.Listener
	prometheusSrv *http.Server
	dbProvider    config.DBProvider

	// started in order by OnStart
	services []stoppable
}

type stoppable interface {
	Stop() error
	Wait()
}

// Option sets an optional parameter on the Node.
type Option func(*Node)

// WithMemoryNetwork attaches the node to an in-process gossip network. It is
// required when the gossip transport is "memory".
func WithMemoryNetwork(network *gossip.MemoryNetwork) Option {
	return func(n *Node) { n.network = network }
}

// WithRPCListener serves RPC on ln instead of listening on the configured
// address.
func WithRPCListener(ln net.Listener) Option {
	return func(n *Node) { n.rpcListener = ln }
}

// WithDBProvider overrides config.DefaultDBProvider.
func WithDBProvider(p config.DBProvider) Option {
	return func(n *Node) { n.dbProvider = p }
}

// New builds a node from cfg, reading the genesis file and the node key
// from the node home and creating the node key if needed.
func New(cfg *config.Config, logger log.Logger, options ...Option) (*Node, error) {
	n := &Node{
		logger:     logger,
		config:     cfg,
		dbProvider: config.DefaultDBProvider,
	}
	for _, opt := range options {
		opt(n)
	}

	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	genDoc, err := loadGenesis(cfg)
	if err != nil {
		return nil, err
	}
	n.genDoc = genDoc

	n.nodeKey, err = types.LoadOrGenNodeKey(cfg.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load or gen node key %s: %w", cfg.NodeKeyFile(), err)
	}

	n.db, n.store, err = initDBs(cfg, n.dbProvider)
	if err != nil {
		return nil, err
	}
	if err := n.build(); err != nil {
		_ = n.db.Close()
		return nil, err
	}

	n.BaseService = service.NewBaseService(logger, "Node", n)
	return n, nil
}

func (n *Node) build() error {
	cfg := n.config
	metrics := defaultMetricsProvider(cfg.Instrumentation)(n.genDoc.ChainID)

	app, err := ledger.NewApp(
		n.logger.With("module", "ledger"),
		n.store,
		cfg.Sandbox.Params(),
		cfg.Ledger.ModuleCacheSize,
		ledger.WithChainID(n.genDoc.ChainID),
		ledger.WithMetrics(metrics.ledger),
	)
	if err != nil {
		return err
	}
	client := abciclient.NewLocalClient(n.logger.With("module", "abci-client"), nil, app)

	n.mempool = mempool.NewTxMempool(
		n.logger.With("module", "mempool"),
		cfg.Mempool,
		client,
		n.store.Height(),
		mempool.WithMetrics(metrics.mempool),
	)
	n.producer = producer.New(n.logger.With("module", "producer"), cfg.Producer, client, n.mempool, n.genDoc)

	transport, filter, err := createTransport(n.logger.With("module", "gossip"), cfg.Gossip, n.nodeKey, n.network)
	if err != nil {
		return err
	}
	n.transport = transport
	n.gossiper = gossip.NewGossiper(
		n.logger.With("module", "gossip"),
		cfg.Gossip,
		transport,
		gossip.WithMetrics(metrics.gossip),
		gossip.WithSubscriptionFilter(filter),
	)

	if cfg.Matchmaker.Enabled {
		key, err := types.LoadOrGenNodeKey(cfg.Matchmaker.KeyFile())
		if err != nil {
			_ = transport.Close()
			return fmt.Errorf("failed to load or gen matchmaker key %s: %w", cfg.Matchmaker.KeyFile(), err)
		}
		mmLogger := n.logger.With("module", "matchmaker")
		opts, err := matchmakerOptions(mmLogger, cfg)
		if err != nil {
			_ = transport.Close()
			return err
		}
		opts = append(opts,
			matchmaker.WithMetrics(metrics.matchmaker),
			matchmaker.WithIntentSource(n.gossiper.Intents()),
		)
		n.matchmaker, err = matchmaker.NewMatchmaker(
			mmLogger,
			cfg.Matchmaker,
			cfg.Sandbox.Params(),
			key.PrivKey,
			n.mempool,
			opts...,
		)
		if err != nil {
			_ = transport.Close()
			return err
		}
		n.logger.Info("matchmaker enabled", "address", key.Address)
	}

	if cfg.RPC.ListenAddress != "" || n.rpcListener != nil {
		var opts []rpc.ServerOption
		if n.rpcListener != nil {
			opts = append(opts, rpc.WithListener(n.rpcListener))
		}
		n.rpcServer = rpc.NewServer(n.logger.With("module", "rpc"), cfg.RPC, n.gossiper, n.mempool, opts...)
	}
	return nil
}

// OnStart starts the producer, then the gossip layer and its consumers.
func (n *Node) OnStart(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			n.stopServices()
			n.stopPrometheus()
			_ = n.db.Close()
		}
	}()

	if n.config.Instrumentation.Prometheus && n.config.Instrumentation.PrometheusListenAddr != "" {
		n.prometheusSrv = startPrometheusServer(n.logger, n.config.Instrumentation.PrometheusListenAddr)
	}

	n.logger.Info("starting node",
		"moniker", n.config.Moniker,
		"chain_id", n.genDoc.ChainID,
		"address", n.nodeKey.Address,
	)

	if err := n.producer.Start(ctx); err != nil {
		return fmt.Errorf("starting producer: %w", err)
	}
	n.services = append(n.services, n.producer)

	if err := n.gossiper.Start(ctx); err != nil {
		return fmt.Errorf("starting gossiper: %w", err)
	}
	n.services = append(n.services, n.gossiper)
	n.dialPeers(ctx)

	if n.matchmaker != nil {
		if err := n.matchmaker.Start(ctx); err != nil {
			return fmt.Errorf("starting matchmaker: %w", err)
		}
		n.services = append(n.services, n.matchmaker)
	} else {
		go drainIntents(ctx, n.gossiper.Intents())
	}

	if n.rpcServer != nil {
		if err := n.rpcServer.Start(ctx); err != nil {
			return fmt.Errorf("starting rpc server: %w", err)
		}
		n.services = append(n.services, n.rpcServer)
	}
	return nil
}

// dialPeers connects to the persistent peers in parallel. Failures are
// logged and do not stop the node.
func (n *Node) dialPeers(ctx context.Context) {
	t, ok := n.transport.(*gossip.Libp2pTransport)
	if !ok || len(n.config.Gossip.PersistentPeers) == 0 {
		return
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var g errgroup.Group
	for _, addr := range n.config.Gossip.PersistentPeers {
		addr := addr
		g.Go(func() error {
			if err := t.Connect(dialCtx, addr); err != nil {
				n.logger.Error("failed to dial persistent peer", "addr", addr, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// OnStop stops the services in reverse order and closes the database.
func (n *Node) OnStop() {
	n.logger.Info("stopping node")

	n.stopServices()
	n.stopPrometheus()

	if err := n.db.Close(); err != nil {
		n.logger.Error("problem closing ledger db", "err", err)
	}
}

func (n *Node) stopServices() {
	// the services share the node's context and may already be stopping;
	// Wait makes sure each one is done before the db closes
	for i := len(n.services) - 1; i >= 0; i-- {
		_ = n.services[i].Stop()
		n.services[i].Wait()
	}
	if len(n.services) < 2 {
		// the gossiper never started, so nothing else closes its transport
		if err := n.transport.Close(); err != nil {
			n.logger.Error("closing gossip transport", "err", err)
		}
	}
	n.services = nil
}

func (n *Node) stopPrometheus() {
	if n.prometheusSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.prometheusSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		n.logger.Error("Prometheus HTTP server Shutdown", "err", err)
	}
}

// NodeKey returns the node's gossip identity.
func (n *Node) NodeKey() types.NodeKey { return n.nodeKey }

// GenesisDoc returns the genesis the node was started from.
func (n *Node) GenesisDoc() *types.GenesisDoc { return n.genDoc }

func (n *Node) Store() *store.Store          { return n.store }
func (n *Node) Mempool() *mempool.TxMempool  { return n.mempool }
func (n *Node) Producer() *producer.Producer { return n.producer }
func (n *Node) Gossiper() *gossip.Gossiper   { return n.gossiper }
func (n *Node) Transport() gossip.Transport  { return n.transport }
func (n *Node) RPCServer() *rpc.Server       { return n.rpcServer }

// Matchmaker returns nil unless the matchmaker is enabled.
func (n *Node) Matchmaker() *matchmaker.Matchmaker { return n.matchmaker }
