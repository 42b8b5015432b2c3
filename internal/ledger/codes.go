package ledger

import (
	"errors"

	"github.com/tendermint/intentd/internal/store"
	"github.com/tendermint/intentd/types"
	"github.com/tendermint/intentd/vm"
)

// Response codes carried on CheckTx, DeliverTx and Query responses.
const (
	CodeTypeOK                uint32 = 0
	CodeTypeEncodingError     uint32 = 1
	CodeTypeTrap              uint32 = 2
	CodeTypeResourceExhausted uint32 = 3
	CodeTypeHostCall          uint32 = 4
	CodeTypePredicateRejected uint32 = 5
	CodeTypeStorageConflict   uint32 = 6
	CodeTypeUnknownPath       uint32 = 7
	CodeTypeUnknownError      uint32 = 8
)

var (
	// ErrPredicateRejected is returned when at least one validity predicate
	// vetoes a diff.
	ErrPredicateRejected = errors.New("validity predicate rejected")
	// ErrMissingVP rejects a diff touching an address that has no validity
	// predicate and does not create one.
	ErrMissingVP = errors.New("missing validity predicate")
	// ErrUnapprovedAccount rejects the creation of an account that no
	// existing account approves.
	ErrUnapprovedAccount = errors.New("account creation not approved by an existing account")
	// ErrUnsignedImplicit rejects the creation of an implicit account by a
	// transaction its key did not sign.
	ErrUnsignedImplicit = errors.New("implicit account created without its key's signature")
	// ErrReadOnly is returned by mutating host functions inside predicates.
	ErrReadOnly = errors.New("storage is read-only in validity predicates")
	// ErrTxOnly is returned by predicate-only host functions inside
	// transactions.
	ErrTxOnly = errors.New("not available to transactions")
)

// TxState is the position of a transaction in the validity pipeline.
type TxState uint8

const (
	TxReceived TxState = iota
	TxExecuting
	TxDiffProduced
	TxPredicateChecking
	TxCommitted
	TxRejected
)

func (s TxState) String() string {
	switch s {
	case TxReceived:
		return "received"
	case TxExecuting:
		return "executing"
	case TxDiffProduced:
		return "diff_produced"
	case TxPredicateChecking:
		return "predicate_checking"
	case TxCommitted:
		return "committed"
	case TxRejected:
		return "rejected"
	}
	return "unknown"
}

// codeForError maps an error to its response code.
func codeForError(err error) uint32 {
	switch {
	case err == nil:
		return CodeTypeOK
	case errors.Is(err, types.ErrInvalidTx):
		return CodeTypeEncodingError
	case errors.Is(err, vm.ErrResourceExhausted):
		return CodeTypeResourceExhausted
	case errors.Is(err, vm.ErrHostCall):
		return CodeTypeHostCall
	case errors.Is(err, vm.ErrTrap):
		return CodeTypeTrap
	case errors.Is(err, ErrPredicateRejected):
		return CodeTypePredicateRejected
	case errors.Is(err, store.ErrStorageConflict):
		return CodeTypeStorageConflict
	}
	return CodeTypeUnknownError
}
