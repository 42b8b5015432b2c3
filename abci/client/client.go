package abcicli

import (
	"github.com/tendermint/intentd/abci/types"
	"github.com/tendermint/intentd/libs/service"
)

// Client defines the interface for a block interface client.
//
// NOTE these are client errors. Application-related errors are reflected
// in responses via error codes.
type Client interface {
	service.Service
	types.Application

	Error() error
}
