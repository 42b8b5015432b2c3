package ledger

import (
	"fmt"
	"strings"

	"github.com/emirpasic/gods/sets/linkedhashset"

	"github.com/tendermint/intentd/internal/store"
	"github.com/tendermint/intentd/types"
	"github.com/tendermint/intentd/vm"
)

// Rejection is the veto of one validity predicate.
type Rejection struct {
	Address types.Address
	Reason  string
}

// TxResult is the outcome of a transaction through the pipeline.
type TxResult struct {
	State      TxState
	Err        error
	GasUsed    uint64
	Diff       *store.Diff
	Touched    []types.Address
	Rejections []Rejection
	// Root is the working root once the diff is committed.
	Root store.Hash
}

func (r *TxResult) Code() uint32 { return codeForError(r.Err) }

func (r *TxResult) Log() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r *TxResult) reject(err error) *TxResult {
	r.State = TxRejected
	r.Err = err
	return r
}

// applyTx runs tx through the pipeline. When commit is false the diff is
// validated and then discarded.
func (app *App) applyTx(rawTx types.Tx, commit bool) *TxResult {
	res := &TxResult{State: TxReceived}

	tx, err := types.DecodeTransaction(rawTx)
	if err != nil {
		return res.reject(err)
	}
	if err := tx.ValidateBasic(); err != nil {
		return res.reject(err)
	}

	// Executing
	res.State = TxExecuting
	mod, err := app.loader.Load(tx.Code)
	if err != nil {
		return res.reject(err)
	}
	overlay := app.store.NewOverlay()
	env := newTxEnv(app.block, overlay, tx, rawTx.Hash(), app.loader, app.logger)
	out, err := app.vm.Execute(mod, env, tx.Data)
	res.GasUsed = out.GasUsed
	app.metrics.TxGasUsed.Observe(float64(out.GasUsed))
	if err != nil {
		return res.reject(err)
	}

	// DiffProduced
	diff, err := overlay.Diff()
	if err != nil {
		return res.reject(err)
	}
	res.State = TxDiffProduced
	res.Diff = diff

	verifiers := env.verifierList()
	signers := tx.Signers()
	touched := linkedhashset.New()
	for _, owner := range diff.Owners() {
		touched.Add(owner)
	}
	allKeys := linkedhashset.New()
	for _, v := range verifiers {
		touched.Add(v)
		allKeys.Add(v)
	}
	for _, s := range signers {
		touched.Add(s)
		allKeys.Add(s)
	}
	for _, v := range touched.Values() {
		res.Touched = append(res.Touched, v.(types.Address))
	}

	// PredicateChecking
	res.State = TxPredicateChecking
	var (
		created   []types.Address
		approvals int
	)
	for _, addr := range res.Touched {
		keys := diff.Keys()
		if !allKeys.Contains(addr) {
			keys = ownedKeys(keys, addr)
		}
		gas, isNew, reason := app.checkPredicate(addr, tx, diff, keys, verifiers)
		res.GasUsed += gas
		app.metrics.PredicateRuns.With("accepted", fmt.Sprint(reason == "")).Add(1)
		switch {
		case reason != "":
			res.Rejections = append(res.Rejections, Rejection{Address: addr, Reason: reason})
		case isNew:
			created = append(created, addr)
		default:
			approvals++
		}
	}
	// New accounts have no predicate of their own yet. An existing account
	// has to approve them, and an implicit account also needs the signature
	// of the key it derives from.
	for _, addr := range created {
		switch {
		case approvals == 0:
			res.Rejections = append(res.Rejections, Rejection{Address: addr, Reason: ErrUnapprovedAccount.Error()})
		case addr.IsBech32() && !env.initialized(addr) && !containsAddress(signers, addr):
			res.Rejections = append(res.Rejections, Rejection{Address: addr, Reason: ErrUnsignedImplicit.Error()})
		}
	}
	if len(res.Rejections) > 0 {
		reasons := make([]string, len(res.Rejections))
		for i, r := range res.Rejections {
			reasons[i] = fmt.Sprintf("%s: %s", r.Address, r.Reason)
		}
		return res.reject(fmt.Errorf("%w: %s", ErrPredicateRejected, strings.Join(reasons, "; ")))
	}

	if !commit {
		res.Root = app.store.Root()
		return res
	}
	root, err := app.store.Commit(diff)
	if err != nil {
		return res.reject(err)
	}
	res.State = TxCommitted
	res.Root = root
	return res
}

// checkPredicate evaluates the validity predicate of addr and returns the
// gas it used and a non-empty reason when it vetoes the diff. isNew is set
// for an account the diff creates; its approval is left to the caller.
func (app *App) checkPredicate(
	addr types.Address,
	tx *types.Transaction,
	diff *store.Diff,
	keys []types.Key,
	verifiers []types.Address,
) (gas uint64, isNew bool, reason string) {
	vpKey := types.VPKey(addr)
	code, found, err := app.store.Read(vpKey)
	if err != nil {
		return 0, false, err.Error()
	}
	if !found || len(code) == 0 {
		// The predicate of a new account only governs later diffs.
		if e, ok := diff.Get(vpKey); ok && !e.Deleted && len(e.New) > 0 {
			return 0, true, ""
		}
		return 0, false, ErrMissingVP.Error()
	}

	mod, err := app.loader.Load(code)
	if err != nil {
		return 0, false, err.Error()
	}
	env := newVPEnv(app.block, app.store, diff, tx, app.logger.With("vp", addr))
	out, err := app.vm.Execute(mod, env, encodeVPInput(tx.Data, addr, keys, verifiers))
	switch {
	case err != nil:
		return out.GasUsed, false, err.Error()
	case !vm.IsTrue(out.Output):
		return out.GasUsed, false, "rejected"
	}
	return out.GasUsed, false, ""
}

func containsAddress(addrs []types.Address, addr types.Address) bool {
	for _, a := range addrs {
		if a == addr {
			return true
		}
	}
	return false
}

func ownedKeys(keys []types.Key, addr types.Address) []types.Key {
	out := keys[:0:0]
	for _, k := range keys {
		if k.Owner == addr {
			out = append(out, k)
		}
	}
	return out
}
