package mempool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	lru "github.com/hashicorp/golang-lru"

	abciclient "github.com/tendermint/intentd/abci/client"
	abci "github.com/tendermint/intentd/abci/types"
	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
)

// Mempool is the view of the mempool the block producer needs.
type Mempool interface {
	// ReapMaxTxs returns up to max txs in arrival order. A negative max
	// returns every tx.
	ReapMaxTxs(max int) types.Txs

	// Lock and Unlock bracket Update.
	Lock()
	Unlock()

	Update(blockHeight int64, blockTxs types.Txs, deliverTxResponses []*abci.ResponseDeliverTx) error

	Size() int
	EnableTxsAvailable()
	TxsAvailable() <-chan struct{}
}

var _ Mempool = (*TxMempool)(nil)

// TxMempoolOption sets an optional parameter on the TxMempool.
type TxMempoolOption func(*TxMempool)

// BroadcastResult is the outcome of BroadcastTxCommit. DeliverTx is nil
// when the tx never made it past CheckTx.
type BroadcastResult struct {
	Hash      []byte
	CheckTx   *abci.ResponseCheckTx
	DeliverTx *abci.ResponseDeliverTx
	Height    int64
}

// OK reports whether the tx was accepted and committed.
func (r *BroadcastResult) OK() bool {
	return r.CheckTx.IsOK() && r.DeliverTx != nil && r.DeliverTx.IsOK()
}

type deliveredTx struct {
	height int64
	res    *abci.ResponseDeliverTx
}

// TxMempool keeps CheckTx-valid transactions in arrival order until a block
// includes them. Ledger txs carry no fee, so there is no priority: blocks
// are cut first in, first out.
type TxMempool struct {
	logger  log.Logger
	metrics *Metrics
	config  *config.MempoolConfig
	app     abciclient.Client

	// txsAvailable fires once for each height when the mempool is not empty
	txsAvailable         chan struct{}
	notifiedTxsAvailable bool

	// height defines the last block height process during Update()
	height int64

	// cache holds the keys of recently seen txs so that duplicates never
	// reach the application.
	cache *lru.Cache

	// txs maps types.TxKey to types.Tx, iterating in insertion order.
	txs *linkedhashmap.Map

	// waiters are BroadcastTxCommit callers blocked until their tx is
	// delivered.
	waitersMtx sync.Mutex
	waiters    map[types.TxKey][]chan deliveredTx

	// CheckTx holds the read lock. A caller must grab the write lock via
	// Lock when updating the mempool via Update().
	mtx sync.RWMutex

	// guards txs and notifiedTxsAvailable, which CheckTx writes under the
	// read lock
	storeMtx sync.Mutex
}

func NewTxMempool(
	logger log.Logger,
	cfg *config.MempoolConfig,
	app abciclient.Client,
	height int64,
	options ...TxMempoolOption,
) *TxMempool {
	txmp := &TxMempool{
		logger:  logger,
		config:  cfg,
		app:     app,
		height:  height,
		metrics: NopMetrics(),
		txs:     linkedhashmap.New(),
		waiters: make(map[types.TxKey][]chan deliveredTx),
	}

	if cfg.CacheSize > 0 {
		// only fails for a non-positive size
		txmp.cache, _ = lru.New(cfg.CacheSize)
	}

	for _, opt := range options {
		opt(txmp)
	}

	return txmp
}

// WithMetrics sets the mempool's metrics collector.
func WithMetrics(metrics *Metrics) TxMempoolOption {
	return func(txmp *TxMempool) { txmp.metrics = metrics }
}

// Lock obtains a write-lock on the mempool. A caller must be sure to explicitly
// release the lock when finished.
func (txmp *TxMempool) Lock() {
	txmp.mtx.Lock()
}

// Unlock releases a write-lock on the mempool.
func (txmp *TxMempool) Unlock() {
	txmp.mtx.Unlock()
}

// Size returns the number of valid transactions in the mempool. It is
// thread-safe.
func (txmp *TxMempool) Size() int {
	txmp.storeMtx.Lock()
	defer txmp.storeMtx.Unlock()
	return txmp.txs.Size()
}

// EnableTxsAvailable enables the mempool to trigger events when transactions
// are available on a block by block basis.
func (txmp *TxMempool) EnableTxsAvailable() {
	txmp.mtx.Lock()
	defer txmp.mtx.Unlock()

	txmp.txsAvailable = make(chan struct{}, 1)
}

// TxsAvailable returns a channel which fires once for every height, and only
// when transactions are available in the mempool. It is thread-safe.
func (txmp *TxMempool) TxsAvailable() <-chan struct{} {
	return txmp.txsAvailable
}

// CheckTx validates tx against the application and, when it is accepted,
// adds it to the mempool. It returns an error if:
//
// - the tx exceeds the configured maximum size;
// - the mempool is full;
// - the tx was seen recently;
// - the application call itself fails.
//
// A tx the application rejects is reported through the response code, not
// the error, and is dropped from the cache so it may be resubmitted.
func (txmp *TxMempool) CheckTx(ctx context.Context, tx types.Tx) (*abci.ResponseCheckTx, error) {
	txmp.mtx.RLock()
	defer txmp.mtx.RUnlock()

	if txSize := len(tx); txSize > txmp.config.MaxTxBytes {
		txmp.metrics.RejectedTxs.Add(1)
		return nil, ErrTxTooLarge{
			Max:    txmp.config.MaxTxBytes,
			Actual: txSize,
		}
	}

	if size := txmp.Size(); size >= txmp.config.Size {
		txmp.metrics.RejectedTxs.Add(1)
		return nil, ErrMempoolIsFull{NumTxs: size, MaxTxs: txmp.config.Size}
	}

	if err := txmp.app.Error(); err != nil {
		return nil, err
	}

	txKey := tx.Key()
	if !txmp.pushCache(txKey) {
		txmp.metrics.RejectedTxs.Add(1)
		return nil, ErrTxInCache
	}

	res, err := txmp.app.CheckTx(ctx, &abci.RequestCheckTx{Tx: tx})
	if err != nil {
		txmp.removeCache(txKey)
		return nil, err
	}

	if res.IsErr() {
		txmp.logger.Info(
			"rejected bad transaction",
			"tx", fmt.Sprintf("%X", tx.Hash()),
			"code", res.Code,
			"log", res.Log,
		)
		txmp.metrics.FailedTxs.Add(1)
		txmp.removeCache(txKey)
		return res, nil
	}

	txmp.storeMtx.Lock()
	txmp.txs.Put(txKey, tx)
	size := txmp.txs.Size()
	txmp.notifyTxsAvailable()
	txmp.storeMtx.Unlock()

	txmp.metrics.TxSizeBytes.Observe(float64(len(tx)))
	txmp.metrics.Size.Set(float64(size))
	txmp.logger.Debug("inserted good transaction", "tx", fmt.Sprintf("%X", tx.Hash()), "num_txs", size)
	return res, nil
}

// BroadcastTxCommit submits tx through CheckTx and then blocks until a block
// containing it is committed, ctx is done, or the broadcast timeout expires.
func (txmp *TxMempool) BroadcastTxCommit(ctx context.Context, tx types.Tx) (*BroadcastResult, error) {
	txKey := tx.Key()
	result := &BroadcastResult{Hash: tx.Hash()}

	// register before CheckTx so a block cut right after insertion is not
	// missed
	ch := txmp.addWaiter(txKey)
	defer txmp.removeWaiter(txKey, ch)

	res, err := txmp.CheckTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	result.CheckTx = res
	if res.IsErr() {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, txmp.config.BroadcastTimeout)
	defer cancel()

	select {
	case delivered := <-ch:
		result.DeliverTx = delivered.res
		result.Height = delivered.height
		return result, nil
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out waiting for a block: %w", err)
		}
		return result, ErrTxNotCommitted{Hash: result.Hash, Err: err}
	}
}

// Flush empties the mempool and resets the cache.
func (txmp *TxMempool) Flush() {
	txmp.mtx.RLock()
	defer txmp.mtx.RUnlock()

	txmp.storeMtx.Lock()
	txmp.txs.Clear()
	txmp.storeMtx.Unlock()

	if txmp.cache != nil {
		txmp.cache.Purge()
	}
	txmp.metrics.Size.Set(0)
}

// ReapMaxTxs returns a list of transactions within the provided number of
// transactions bound, oldest first.
//
// NOTE:
// - Transactions returned are not removed from the mempool.
func (txmp *TxMempool) ReapMaxTxs(max int) types.Txs {
	txmp.mtx.RLock()
	defer txmp.mtx.RUnlock()

	txmp.storeMtx.Lock()
	defer txmp.storeMtx.Unlock()

	numTxs := txmp.txs.Size()
	if max < 0 || max > numTxs {
		max = numTxs
	}

	txs := make(types.Txs, 0, max)
	it := txmp.txs.Iterator()
	for len(txs) < max && it.Next() {
		txs = append(txs, it.Value().(types.Tx))
	}
	return txs
}

// Update removes the txs of a committed block from the mempool and wakes
// any BroadcastTxCommit callers waiting on them. Txs that failed remain
// resubmittable; committed ones stay in the cache.
//
// NOTE:
// - The caller must explicitly acquire a write-lock.
func (txmp *TxMempool) Update(
	blockHeight int64,
	blockTxs types.Txs,
	deliverTxResponses []*abci.ResponseDeliverTx,
) error {
	if len(blockTxs) != len(deliverTxResponses) {
		return fmt.Errorf("got %d txs but %d DeliverTx responses", len(blockTxs), len(deliverTxResponses))
	}

	txmp.height = blockHeight

	for i, tx := range blockTxs {
		txKey := tx.Key()
		if deliverTxResponses[i].IsOK() {
			// add the valid committed transaction to the cache (if missing)
			_ = txmp.pushCache(txKey)
		} else {
			txmp.removeCache(txKey)
		}

		txmp.storeMtx.Lock()
		txmp.txs.Remove(txKey)
		txmp.storeMtx.Unlock()

		txmp.deliver(txKey, deliveredTx{height: blockHeight, res: deliverTxResponses[i]})
	}

	txmp.storeMtx.Lock()
	txmp.notifiedTxsAvailable = false
	size := txmp.txs.Size()
	if size > 0 {
		txmp.notifyTxsAvailable()
	}
	txmp.storeMtx.Unlock()

	txmp.metrics.Size.Set(float64(size))
	return nil
}

func (txmp *TxMempool) pushCache(key types.TxKey) bool {
	if txmp.cache == nil {
		return true
	}
	// ContainsOrAdd reports whether the key was already present.
	ok, _ := txmp.cache.ContainsOrAdd(key, struct{}{})
	return !ok
}

func (txmp *TxMempool) removeCache(key types.TxKey) {
	if txmp.cache != nil {
		txmp.cache.Remove(key)
	}
}

func (txmp *TxMempool) addWaiter(key types.TxKey) chan deliveredTx {
	ch := make(chan deliveredTx, 1)
	txmp.waitersMtx.Lock()
	txmp.waiters[key] = append(txmp.waiters[key], ch)
	txmp.waitersMtx.Unlock()
	return ch
}

func (txmp *TxMempool) removeWaiter(key types.TxKey, ch chan deliveredTx) {
	txmp.waitersMtx.Lock()
	defer txmp.waitersMtx.Unlock()

	chans := txmp.waiters[key]
	for i, c := range chans {
		if c == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(txmp.waiters, key)
	} else {
		txmp.waiters[key] = chans
	}
}

func (txmp *TxMempool) deliver(key types.TxKey, d deliveredTx) {
	txmp.waitersMtx.Lock()
	defer txmp.waitersMtx.Unlock()

	for _, ch := range txmp.waiters[key] {
		// buffered; each waiter receives at most one delivery
		select {
		case ch <- d:
		default:
		}
	}
	delete(txmp.waiters, key)
}

// notifyTxsAvailable requires storeMtx.
func (txmp *TxMempool) notifyTxsAvailable() {
	if txmp.txsAvailable != nil && !txmp.notifiedTxsAvailable {
		// channel cap is 1, so this will send once
		txmp.notifiedTxsAvailable = true

		select {
		case txmp.txsAvailable <- struct{}{}:
		default:
		}
	}
}

// Height returns the height of the last block passed to Update.
func (txmp *TxMempool) Height() int64 {
	txmp.mtx.RLock()
	defer txmp.mtx.RUnlock()
	return txmp.height
}
