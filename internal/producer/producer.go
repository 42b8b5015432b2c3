// Package producer cuts blocks from the mempool on a fixed interval and
// drives them through the application's block interface.
package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	abciclient "github.com/tendermint/intentd/abci/client"
	abci "github.com/tendermint/intentd/abci/types"
	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/internal/mempool"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/libs/service"
	"github.com/tendermint/intentd/types"
	"github.com/tendermint/intentd/version"
)

// Block is a produced block together with the outcome of each tx.
type Block struct {
	Height  int64
	Time    time.Time
	Txs     types.Txs
	Results []*abci.ResponseDeliverTx
	AppHash []byte
}

// Producer is a single-node block producer.
type Producer struct {
	*service.BaseService
	logger log.Logger

	cfg     *config.ProducerConfig
	app     abciclient.Client
	mempool mempool.Mempool
	genDoc  *types.GenesisDoc
	now     func() time.Time

	mtx     sync.Mutex
	height  int64
	appHash []byte
}

// Option sets an optional parameter on the Producer.
type Option func(*Producer)

// WithClock replaces time.Now as the source of block times.
func WithClock(now func() time.Time) Option {
	return func(p *Producer) { p.now = now }
}

func New(
	logger log.Logger,
	cfg *config.ProducerConfig,
	app abciclient.Client,
	mp mempool.Mempool,
	genDoc *types.GenesisDoc,
	options ...Option,
) *Producer {
	p := &Producer{
		logger:  logger,
		cfg:     cfg,
		app:     app,
		mempool: mp,
		genDoc:  genDoc,
		now:     func() time.Time { return time.Now().UTC() },
	}
	p.BaseService = service.NewBaseService(logger, "Producer", p)
	for _, opt := range options {
		opt(p)
	}
	return p
}

// OnStart syncs with the application and starts the block loop.
func (p *Producer) OnStart(ctx context.Context) error {
	if err := p.Handshake(ctx); err != nil {
		return err
	}
	if !p.cfg.CreateEmptyBlocks {
		p.mempool.EnableTxsAvailable()
	}
	go p.loop(ctx)
	return nil
}

func (p *Producer) OnStop() {}

// Handshake asks the application for its last committed block and runs
// InitChain with the genesis document when there is none.
func (p *Producer) Handshake(ctx context.Context) error {
	res, err := p.app.Info(ctx, &abci.RequestInfo{Version: version.Version})
	if err != nil {
		return fmt.Errorf("error calling Info: %w", err)
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if len(res.LastBlockAppHash) > 0 {
		p.height = res.LastBlockHeight
		p.appHash = res.LastBlockAppHash
		p.logger.Info("application state found",
			"height", p.height,
			"app_hash", log.NewHexadecimal(p.appHash))
		return nil
	}

	appState, err := p.genDoc.JSON()
	if err != nil {
		return err
	}
	initRes, err := p.app.InitChain(ctx, &abci.RequestInitChain{
		Time:          p.genDoc.GenesisTime,
		ChainID:       p.genDoc.ChainID,
		AppStateBytes: appState,
	})
	if err != nil {
		return fmt.Errorf("error calling InitChain: %w", err)
	}
	p.height = 0
	p.appHash = initRes.AppHash
	p.logger.Info("initialized chain from genesis",
		"chain_id", p.genDoc.ChainID,
		"app_hash", log.NewHexadecimal(p.appHash))
	return nil
}

// Height returns the height of the last committed block.
func (p *Producer) Height() int64 {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.height
}

// AppHash returns the root committed by the last block.
func (p *Producer) AppHash() []byte {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.appHash
}

func (p *Producer) loop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.BlockInterval)
	defer ticker.Stop()

	for {
		if !p.cfg.CreateEmptyBlocks {
			select {
			case <-ctx.Done():
				return
			case <-p.mempool.TxsAvailable():
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !p.cfg.CreateEmptyBlocks && p.mempool.Size() == 0 {
			continue
		}
		if _, err := p.ProduceBlock(ctx); err != nil {
			p.logger.Error("failed to produce block", "height", p.Height()+1, "err", err)
		}
	}
}

// ProduceBlock reaps the mempool and executes the next block: BeginBlock,
// one DeliverTx per tx, EndBlock and Commit. The mempool is then updated
// with the outcome of every tx.
func (p *Producer) ProduceBlock(ctx context.Context) (*Block, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	block := &Block{
		Height: p.height + 1,
		Time:   p.now(),
		Txs:    p.mempool.ReapMaxTxs(p.maxTxs()),
	}

	if _, err := p.app.BeginBlock(ctx, &abci.RequestBeginBlock{Height: block.Height, Time: block.Time}); err != nil {
		return nil, fmt.Errorf("BeginBlock: %w", err)
	}

	var validTxs, invalidTxs int
	block.Results = make([]*abci.ResponseDeliverTx, len(block.Txs))
	for i, tx := range block.Txs {
		res, err := p.app.DeliverTx(ctx, &abci.RequestDeliverTx{Tx: tx})
		if err != nil {
			return nil, fmt.Errorf("DeliverTx: %w", err)
		}
		if res.IsOK() {
			validTxs++
		} else {
			p.logger.Debug("invalid tx", "code", res.Code, "log", res.Log)
			invalidTxs++
		}
		block.Results[i] = res
	}

	if _, err := p.app.EndBlock(ctx, &abci.RequestEndBlock{Height: block.Height}); err != nil {
		return nil, fmt.Errorf("EndBlock: %w", err)
	}

	commit, err := p.app.Commit(ctx)
	if err != nil {
		return nil, fmt.Errorf("Commit: %w", err)
	}
	block.AppHash = commit.Data

	p.mempool.Lock()
	err = p.mempool.Update(block.Height, block.Txs, block.Results)
	p.mempool.Unlock()
	if err != nil {
		return nil, fmt.Errorf("updating mempool: %w", err)
	}

	p.height = block.Height
	p.appHash = block.AppHash

	p.logger.Info("executed block",
		"height", block.Height,
		"valid_txs", validTxs,
		"invalid_txs", invalidTxs,
		"app_hash", log.NewHexadecimal(block.AppHash))
	return block, nil
}

func (p *Producer) maxTxs() int {
	if p.cfg.MaxBlockTxs == 0 {
		return -1
	}
	return p.cfg.MaxBlockTxs
}
