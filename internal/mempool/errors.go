package mempool

import (
	"errors"
	"fmt"
)

// ErrTxInCache is returned to the client if we saw tx earlier
var ErrTxInCache = errors.New("tx already exists in cache")

// ErrTxTooLarge defines an error when a transaction is too big to be sent in a
// message to other peers.
type ErrTxTooLarge struct {
	Max    int
	Actual int
}

func (e ErrTxTooLarge) Error() string {
	return fmt.Sprintf("Tx too large. Max size is %d, but got %d", e.Max, e.Actual)
}

// ErrMempoolIsFull defines an error where the mempool has reached its
// configured transaction limit.
type ErrMempoolIsFull struct {
	NumTxs int
	MaxTxs int
}

func (e ErrMempoolIsFull) Error() string {
	return fmt.Sprintf("mempool is full: number of txs %d (max: %d)", e.NumTxs, e.MaxTxs)
}

// ErrTxNotCommitted is returned by BroadcastTxCommit when the wait for a
// CheckTx-valid tx ends before a block includes it. The tx stays in the
// mempool and may still commit.
type ErrTxNotCommitted struct {
	Hash []byte
	Err  error
}

func (e ErrTxNotCommitted) Error() string {
	return fmt.Sprintf("tx %X not committed yet: %v", e.Hash, e.Err)
}

func (e ErrTxNotCommitted) Unwrap() error { return e.Err }
