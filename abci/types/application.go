package types

import (
	"context"
)

// Application is the block interface between the block producer and the
// ledger state machine. Calls arrive serialised: the producer and the
// mempool drive it through a local client holding a single mutex.
//
// Tx-level failures are reported through response codes. A non-nil error
// means the application itself is broken.
type Application interface {
	// Info/Query Connection
	Info(context.Context, *RequestInfo) (*ResponseInfo, error)
	Query(context.Context, *RequestQuery) (*ResponseQuery, error)

	// Mempool Connection
	CheckTx(context.Context, *RequestCheckTx) (*ResponseCheckTx, error)

	// Block Connection
	InitChain(context.Context, *RequestInitChain) (*ResponseInitChain, error)
	BeginBlock(context.Context, *RequestBeginBlock) (*ResponseBeginBlock, error)
	DeliverTx(context.Context, *RequestDeliverTx) (*ResponseDeliverTx, error)
	EndBlock(context.Context, *RequestEndBlock) (*ResponseEndBlock, error)
	Commit(context.Context) (*ResponseCommit, error)
}

//-------------------------------------------------------
// BaseApplication is a base form of Application

var _ Application = (*BaseApplication)(nil)

type BaseApplication struct{}

func NewBaseApplication() *BaseApplication {
	return &BaseApplication{}
}

func (BaseApplication) Info(_ context.Context, req *RequestInfo) (*ResponseInfo, error) {
	return &ResponseInfo{}, nil
}

func (BaseApplication) CheckTx(_ context.Context, req *RequestCheckTx) (*ResponseCheckTx, error) {
	return &ResponseCheckTx{Code: CodeTypeOK}, nil
}

func (BaseApplication) DeliverTx(_ context.Context, req *RequestDeliverTx) (*ResponseDeliverTx, error) {
	return &ResponseDeliverTx{Code: CodeTypeOK}, nil
}

func (BaseApplication) Commit(_ context.Context) (*ResponseCommit, error) {
	return &ResponseCommit{}, nil
}

func (BaseApplication) Query(_ context.Context, req *RequestQuery) (*ResponseQuery, error) {
	return &ResponseQuery{Code: CodeTypeOK}, nil
}

func (BaseApplication) InitChain(_ context.Context, req *RequestInitChain) (*ResponseInitChain, error) {
	return &ResponseInitChain{}, nil
}

func (BaseApplication) BeginBlock(_ context.Context, req *RequestBeginBlock) (*ResponseBeginBlock, error) {
	return &ResponseBeginBlock{}, nil
}

func (BaseApplication) EndBlock(_ context.Context, req *RequestEndBlock) (*ResponseEndBlock, error) {
	return &ResponseEndBlock{}, nil
}
