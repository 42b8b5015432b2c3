package types

import (
	"time"
)

type RequestInfo struct {
	Version string
}

type ResponseInfo struct {
	Data             string
	Version          string
	LastBlockHeight  int64
	LastBlockAppHash []byte
}

type RequestInitChain struct {
	Time          time.Time
	ChainID       string
	AppStateBytes []byte // JSON genesis document
	InitialHeight int64
}

type ResponseInitChain struct {
	AppHash []byte
}

type RequestQuery struct {
	Data   []byte
	Path   string
	Height int64
	Prove  bool
}

type ResponseQuery struct {
	Code     uint32
	Log      string
	Info     string
	Key      []byte
	Value    []byte
	ProofOps *ProofOps
	Height   int64
	GasUsed  int64
}

// ProofOp is an encoded Merkle proof of Key under the app hash.
type ProofOp struct {
	Type string
	Key  []byte
	Data []byte
}

type ProofOps struct {
	Ops []ProofOp
}

type RequestCheckTx struct {
	Tx []byte
}

type ResponseCheckTx struct {
	Code      uint32
	Data      []byte
	Log       string
	GasWanted int64
}

type RequestBeginBlock struct {
	Height int64
	Time   time.Time
}

type ResponseBeginBlock struct {
	Events []Event
}

type RequestDeliverTx struct {
	Tx []byte
}

type ResponseDeliverTx struct {
	Code    uint32
	Data    []byte
	Log     string
	GasUsed int64
	// State is the final pipeline state of the transaction.
	State  string
	Events []Event
}

type RequestEndBlock struct {
	Height int64
}

type ResponseEndBlock struct {
	Events []Event
}

type ResponseCommit struct {
	// Data is the app hash after the block.
	Data   []byte
	Height int64
}

// Event carries indexable key-value attributes, such as the keys changed
// by a transaction.
type Event struct {
	Type       string
	Attributes []EventAttribute
}

type EventAttribute struct {
	Key   string
	Value string
}
