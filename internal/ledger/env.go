package ledger

import (
	"fmt"
	"time"

	"github.com/emirpasic/gods/sets/linkedhashset"

	"github.com/tendermint/intentd/internal/store"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
	"github.com/tendermint/intentd/vm"
)

// blockInfo is the chain metadata exposed to sandboxed code.
type blockInfo struct {
	chainID string
	height  int64
	time    time.Time
}

func (b blockInfo) BlockHeight() int64   { return b.height }
func (b blockInfo) BlockTime() time.Time { return b.time }
func (b blockInfo) ChainID() string      { return b.chainID }

// txEnv runs transaction code. Reads and writes go through the overlay of
// the transaction, so nothing reaches the store unless the diff commits.
type txEnv struct {
	blockInfo
	overlay *store.Overlay
	tx      *types.Transaction
	txHash  []byte
	loader  *vm.Loader
	logger  log.Logger

	verifiers *linkedhashset.Set // of types.Address
	created   *linkedhashset.Set // of types.Address, by init_account
	accounts  uint64
}

var _ vm.Env = (*txEnv)(nil)

func newTxEnv(
	info blockInfo,
	overlay *store.Overlay,
	tx *types.Transaction,
	txHash []byte,
	loader *vm.Loader,
	logger log.Logger,
) *txEnv {
	return &txEnv{
		blockInfo: info,
		overlay:   overlay,
		tx:        tx,
		txHash:    txHash,
		loader:    loader,
		logger:    logger,
		verifiers: linkedhashset.New(),
		created:   linkedhashset.New(),
	}
}

func (e *txEnv) Read(key types.Key) ([]byte, bool, error) { return e.overlay.Read(key) }

func (e *txEnv) Write(key types.Key, value []byte) error { return e.overlay.Write(key, value) }

func (e *txEnv) Delete(key types.Key) error { return e.overlay.Delete(key) }

func (e *txEnv) IterPrefix(prefix string) ([]store.KV, error) { return e.overlay.IterPrefix(prefix) }

func (e *txEnv) ReadPre(types.Key) ([]byte, bool, error)  { return nil, false, ErrTxOnly }
func (e *txEnv) ReadPost(types.Key) ([]byte, bool, error) { return nil, false, ErrTxOnly }

func (e *txEnv) InsertVerifier(addr types.Address) error {
	e.verifiers.Add(addr)
	return nil
}

// InitAccount creates an established address whose validity predicate is
// vpCode. The code must load.
func (e *txEnv) InitAccount(vpCode []byte) (types.Address, error) {
	if _, err := e.loader.Load(vpCode); err != nil {
		return "", fmt.Errorf("invalid validity predicate: %v", err)
	}
	for {
		addr := types.EstablishedAddress(e.txHash, e.accounts)
		e.accounts++
		_, exists, err := e.overlay.Read(types.VPKey(addr))
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}
		if err := e.overlay.Write(types.VPKey(addr), vpCode); err != nil {
			return "", err
		}
		e.created.Add(addr)
		return addr, nil
	}
}

func (e *txEnv) TxSignedBy(pubKey []byte) (bool, error) { return e.tx.IsSignedBy(pubKey), nil }

func (e *txEnv) Log(msg string) { e.logger.Debug("tx log", "msg", msg) }

func (e *txEnv) initialized(addr types.Address) bool { return e.created.Contains(addr) }

func (e *txEnv) verifierList() []types.Address {
	out := make([]types.Address, 0, e.verifiers.Size())
	for _, v := range e.verifiers.Values() {
		out = append(out, v.(types.Address))
	}
	return out
}

// vpEnv runs a validity predicate against a frozen diff. Plain reads see
// the pre-state; every mutation is refused.
type vpEnv struct {
	blockInfo
	pre    store.Reader
	post   store.Reader
	tx     *types.Transaction
	logger log.Logger
}

var _ vm.Env = (*vpEnv)(nil)

func newVPEnv(info blockInfo, pre store.Reader, diff *store.Diff, tx *types.Transaction, logger log.Logger) *vpEnv {
	return &vpEnv{
		blockInfo: info,
		pre:       pre,
		post:      store.NewPostState(pre, diff),
		tx:        tx,
		logger:    logger,
	}
}

func (e *vpEnv) Read(key types.Key) ([]byte, bool, error) { return e.pre.Read(key) }

func (e *vpEnv) Write(types.Key, []byte) error { return ErrReadOnly }

func (e *vpEnv) Delete(types.Key) error { return ErrReadOnly }

func (e *vpEnv) IterPrefix(prefix string) ([]store.KV, error) { return e.pre.IterPrefix(prefix) }

func (e *vpEnv) ReadPre(key types.Key) ([]byte, bool, error) { return e.pre.Read(key) }

func (e *vpEnv) ReadPost(key types.Key) ([]byte, bool, error) { return e.post.Read(key) }

func (e *vpEnv) InsertVerifier(types.Address) error { return ErrReadOnly }

func (e *vpEnv) InitAccount([]byte) (types.Address, error) { return "", ErrReadOnly }

func (e *vpEnv) TxSignedBy(pubKey []byte) (bool, error) { return e.tx.IsSignedBy(pubKey), nil }

func (e *vpEnv) Log(msg string) { e.logger.Debug("vp log", "msg", msg) }
