// Package abcicli provides clients for the block interface.
//
// Only the local client exists: the ledger runs in process, and a single
// mutex is locked during each call. That mutex is what gives every
// transaction a single linear pre-state.
package abcicli
