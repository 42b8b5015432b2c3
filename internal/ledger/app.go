package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	abci "github.com/tendermint/intentd/abci/types"
	"github.com/tendermint/intentd/internal/store"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
	"github.com/tendermint/intentd/version"
	"github.com/tendermint/intentd/vm"
)

// Query paths.
const (
	QueryPathStore    = "store"
	QueryPathDryRunTx = "dry_run_tx"
)

// ProofOpSMT is the proof op type of a sparse Merkle membership proof.
const ProofOpSMT = "smt:v"

var _ abci.Application = (*App)(nil)

// App is the ledger state machine. It applies transactions to the store
// through the validity pipeline.
//
// App is not safe for concurrent use. Callers go through a local client,
// which serialises every call.
type App struct {
	abci.BaseApplication

	logger  log.Logger
	store   *store.Store
	vm      *vm.VM
	loader  *vm.Loader
	metrics *Metrics

	chainID string
	block   blockInfo
}

// Option sets an optional parameter on the App.
type Option func(*App)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(app *App) { app.metrics = metrics }
}

// WithChainID sets the chain ID reported to sandboxed code before
// InitChain has run, as is the case after a restart.
func WithChainID(chainID string) Option {
	return func(app *App) { app.chainID = chainID }
}

// NewApp returns a ledger over st. Loaded modules are cached, up to
// cacheSize of them.
func NewApp(
	logger log.Logger,
	st *store.Store,
	params vm.Params,
	cacheSize int,
	options ...Option,
) (*App, error) {
	if err := params.ValidateBasic(); err != nil {
		return nil, err
	}
	loader, err := vm.NewLoader(cacheSize, Natives())
	if err != nil {
		return nil, err
	}
	app := &App{
		logger:  logger,
		store:   st,
		vm:      vm.NewVM(params, logger.With("module", "vm")),
		loader:  loader,
		metrics: NopMetrics(),
	}
	for _, opt := range options {
		opt(app)
	}
	last, _ := st.LastState()
	app.block = blockInfo{chainID: app.chainID, height: last.Height, time: last.Time}
	return app, nil
}

// Loader returns the module loader shared by every execution.
func (app *App) Loader() *vm.Loader { return app.loader }

func (app *App) Info(_ context.Context, req *abci.RequestInfo) (*abci.ResponseInfo, error) {
	res := &abci.ResponseInfo{
		Data:    "intentd",
		Version: version.Version,
	}
	if last, ok := app.store.LastState(); ok {
		res.LastBlockHeight = last.Height
		res.LastBlockAppHash = last.Root.Bytes()
	}
	return res, nil
}

// InitChain writes the genesis accounts and commits them as block 0.
func (app *App) InitChain(_ context.Context, req *abci.RequestInitChain) (*abci.ResponseInitChain, error) {
	if _, ok := app.store.LastState(); ok {
		return nil, errors.New("chain is already initialized")
	}
	genDoc, err := types.GenesisDocFromJSON(req.AppStateBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	if req.ChainID != "" && req.ChainID != genDoc.ChainID {
		return nil, fmt.Errorf("chain ID mismatch: %s != %s", req.ChainID, genDoc.ChainID)
	}
	app.chainID = genDoc.ChainID

	if err := app.store.BeginBlock(0, genDoc.GenesisTime); err != nil {
		return nil, err
	}
	app.block = blockInfo{chainID: app.chainID, height: 0, time: genDoc.GenesisTime}

	overlay := app.store.NewOverlay()
	if err := app.writeGenesis(overlay, genDoc); err != nil {
		return nil, err
	}
	diff, err := overlay.Diff()
	if err != nil {
		return nil, err
	}
	if _, err := app.store.Commit(diff); err != nil {
		return nil, err
	}
	root, err := app.store.CommitBlock()
	if err != nil {
		return nil, err
	}
	app.logger.Info("initialized chain", "chain_id", app.chainID, "accounts", len(genDoc.Accounts), "root", root)
	return &abci.ResponseInitChain{AppHash: root.Bytes()}, nil
}

func (app *App) writeGenesis(o *store.Overlay, genDoc *types.GenesisDoc) error {
	for _, acc := range genDoc.Accounts {
		code := acc.VPCode
		if len(code) == 0 {
			var err error
			if code, err = ProgramCode(acc.VP); err != nil {
				return fmt.Errorf("genesis account %s: %w", acc.Address, err)
			}
		}
		if _, err := app.loader.Load(code); err != nil {
			return fmt.Errorf("genesis account %s: %w", acc.Address, err)
		}
		if err := o.Write(types.VPKey(acc.Address), code); err != nil {
			return err
		}
		if len(acc.PubKey) > 0 {
			if err := o.Write(types.PubKeyKey(acc.Address), acc.PubKey); err != nil {
				return err
			}
		}
		for token, amount := range acc.Balances {
			if err := o.Write(types.BalanceKey(token, acc.Address), types.EncodeU64(amount)); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckTx rejects txs that can never execute. It does not run them.
func (app *App) CheckTx(_ context.Context, req *abci.RequestCheckTx) (*abci.ResponseCheckTx, error) {
	tx, err := types.DecodeTransaction(req.Tx)
	if err == nil {
		err = tx.ValidateBasic()
	}
	if err == nil {
		_, err = app.loader.Load(tx.Code)
	}
	if err != nil {
		return &abci.ResponseCheckTx{Code: codeForError(err), Log: err.Error()}, nil
	}
	return &abci.ResponseCheckTx{Code: CodeTypeOK, GasWanted: int64(app.vm.Params().GasLimit)}, nil
}

func (app *App) BeginBlock(_ context.Context, req *abci.RequestBeginBlock) (*abci.ResponseBeginBlock, error) {
	if err := app.store.BeginBlock(req.Height, req.Time); err != nil {
		return nil, err
	}
	app.block = blockInfo{chainID: app.chainID, height: req.Height, time: req.Time}
	return &abci.ResponseBeginBlock{}, nil
}

// DeliverTx runs a tx through the pipeline and commits its diff if every
// predicate accepts it.
func (app *App) DeliverTx(_ context.Context, req *abci.RequestDeliverTx) (*abci.ResponseDeliverTx, error) {
	res := app.applyTx(req.Tx, true)
	app.metrics.Txs.With("state", res.State.String()).Add(1)
	if res.Err != nil {
		app.logger.Debug("tx rejected", "hash", types.Tx(req.Tx).Hash(), "err", res.Err)
	}
	return &abci.ResponseDeliverTx{
		Code:    res.Code(),
		Data:    types.Tx(req.Tx).Hash(),
		Log:     res.Log(),
		GasUsed: int64(res.GasUsed),
		State:   res.State.String(),
		Events:  txEvents(req.Tx, res),
	}, nil
}

func txEvents(tx types.Tx, res *TxResult) []abci.Event {
	events := []abci.Event{{
		Type: "tx",
		Attributes: []abci.EventAttribute{
			{Key: "hash", Value: hex.EncodeToString(tx.Hash())},
			{Key: "state", Value: res.State.String()},
		},
	}}
	if res.State != TxCommitted {
		return events
	}
	diff := abci.Event{Type: "diff"}
	for _, e := range res.Diff.Entries {
		op := "write"
		if e.Deleted {
			op = "delete"
		}
		diff.Attributes = append(diff.Attributes, abci.EventAttribute{Key: e.Key.String(), Value: op})
	}
	return append(events, diff)
}

func (app *App) EndBlock(_ context.Context, req *abci.RequestEndBlock) (*abci.ResponseEndBlock, error) {
	if req.Height != app.block.height {
		return nil, fmt.Errorf("end of block %d during block %d", req.Height, app.block.height)
	}
	return &abci.ResponseEndBlock{}, nil
}

// Commit persists the block and returns the new root.
func (app *App) Commit(_ context.Context) (*abci.ResponseCommit, error) {
	root, err := app.store.CommitBlock()
	if err != nil {
		return nil, err
	}
	app.metrics.Height.Set(float64(app.block.height))
	app.logger.Info("committed block", "height", app.block.height, "root", root)
	return &abci.ResponseCommit{Data: root.Bytes(), Height: app.block.height}, nil
}

// Query serves the store path, whose data is a key, and the dry_run_tx
// path, whose data is a tx to validate without committing.
func (app *App) Query(_ context.Context, req *abci.RequestQuery) (*abci.ResponseQuery, error) {
	switch req.Path {
	case QueryPathStore:
		return app.queryStore(req), nil
	case QueryPathDryRunTx:
		res := app.applyTx(req.Data, false)
		return &abci.ResponseQuery{
			Code:    res.Code(),
			Log:     res.Log(),
			Info:    res.State.String(),
			Height:  app.store.Height(),
			GasUsed: int64(res.GasUsed),
		}, nil
	}
	return &abci.ResponseQuery{
		Code: CodeTypeUnknownPath,
		Log:  fmt.Sprintf("unknown query path %q", req.Path),
	}, nil
}

func (app *App) queryStore(req *abci.RequestQuery) *abci.ResponseQuery {
	res := &abci.ResponseQuery{Key: req.Data, Height: app.store.Height()}
	key, err := types.ParseKey(string(req.Data))
	if err != nil {
		res.Code, res.Log = CodeTypeEncodingError, err.Error()
		return res
	}
	if !req.Prove {
		value, found, err := app.store.Read(key)
		switch {
		case err != nil:
			res.Code, res.Log = CodeTypeUnknownError, err.Error()
		case found:
			res.Value, res.Log = value, "exists"
		default:
			res.Log = "does not exist"
		}
		return res
	}

	value, proof, err := app.store.Prove(key)
	switch {
	case errors.Is(err, store.ErrKeyNotFound):
		res.Log = "does not exist"
	case err != nil:
		res.Code, res.Log = CodeTypeUnknownError, err.Error()
	default:
		res.Value, res.Log = value, "exists"
		res.ProofOps = &abci.ProofOps{Ops: []abci.ProofOp{{
			Type: ProofOpSMT,
			Key:  key.Bytes(),
			Data: proof.Encode(),
		}}}
	}
	return res
}
