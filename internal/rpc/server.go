// Package rpc serves the node's client API over gRPC: intents and topic
// subscriptions go to the gossip layer, txs to the mempool.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/internal/gossip"
	"github.com/tendermint/intentd/internal/mempool"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/libs/service"
	"github.com/tendermint/intentd/types"
)

// MessageHandler handles RPC messages; *gossip.Gossiper is one.
type MessageHandler interface {
	HandleRPC(ctx context.Context, msg *types.RPCMessage) (string, error)
}

// Broadcaster submits txs; *mempool.TxMempool is one.
type Broadcaster interface {
	BroadcastTxCommit(ctx context.Context, tx types.Tx) (*mempool.BroadcastResult, error)
}

// ServerOption sets an optional parameter on the Server.
type ServerOption func(*Server)

// WithListener serves on ln instead of listening on the configured
// address.
func WithListener(ln net.Listener) ServerOption {
	return func(s *Server) { s.listener = ln }
}

// Server is the gRPC server of the intent service.
type Server struct {
	*service.BaseService
	logger log.Logger

	cfg      *config.RPCConfig
	handler  MessageHandler
	txs      Broadcaster
	listener net.Listener
	server   *grpc.Server
}

var _ IntentServiceServer = (*Server)(nil)

func NewServer(
	logger log.Logger,
	cfg *config.RPCConfig,
	handler MessageHandler,
	txs Broadcaster,
	options ...ServerOption,
) *Server {
	s := &Server{
		logger:  logger,
		cfg:     cfg,
		handler: handler,
		txs:     txs,
	}
	s.BaseService = service.NewBaseService(logger, "RPCServer", s)
	for _, opt := range options {
		opt(s)
	}
	return s
}

// OnStart starts the gRPC service.
func (s *Server) OnStart(ctx context.Context) error {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.cfg.ListenAddress)
		if err != nil {
			return err
		}
		s.listener = ln
	}

	s.server = grpc.NewServer(
		grpc.ForceServerCodec(codec{}),
		grpc.MaxRecvMsgSize(s.cfg.MaxRecvMsgSize),
		grpc.UnaryInterceptor(s.logRequests),
	)
	RegisterIntentServiceServer(s.server, s)

	s.logger.Info("Listening", "addr", s.listener.Addr())
	go func() {
		go func() {
			<-ctx.Done()
			s.server.GracefulStop()
		}()

		if err := s.server.Serve(s.listener); err != nil {
			s.logger.Error("error serving gRPC server", "err", err)
		}
	}()
	return nil
}

// OnStop stops the gRPC server.
func (s *Server) OnStop() { s.server.Stop() }

// Addr returns the address the server listens on, once started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) SendMessage(ctx context.Context, msg *types.RPCMessage) (*types.RPCResponse, error) {
	if s.handler == nil {
		return nil, status.Error(codes.Unimplemented, "gossip is disabled")
	}
	result, err := s.handler.HandleRPC(ctx, msg)
	if err != nil {
		return nil, toStatus(err)
	}
	return &types.RPCResponse{Result: result}, nil
}

func (s *Server) BroadcastTx(ctx context.Context, req *types.TxRequest) (*types.TxResponse, error) {
	if len(req.Tx) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty tx")
	}
	res, err := s.txs.BroadcastTxCommit(ctx, req.Tx)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &types.TxResponse{Hash: res.Hash, Height: res.Height}
	if res.DeliverTx != nil {
		out.Code, out.Log = res.DeliverTx.Code, res.DeliverTx.Log
	} else {
		out.Code, out.Log = res.CheckTx.Code, res.CheckTx.Log
	}
	return out, nil
}

func (s *Server) logRequests(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	start := time.Now()
	res, err := handler(ctx, req)
	s.logger.Debug("served request", "method", info.FullMethod, "duration", time.Since(start), "err", err)
	return res, err
}

// toStatus maps node errors to gRPC status codes.
func toStatus(err error) error {
	var (
		tooLarge mempool.ErrTxTooLarge
		full     mempool.ErrMempoolIsFull
	)
	code := codes.Internal
	switch {
	case errors.Is(err, types.ErrEmptyMessage),
		errors.Is(err, types.ErrInvalidIntent),
		errors.Is(err, types.ErrInvalidIntentSignature),
		errors.As(err, &tooLarge):
		code = codes.InvalidArgument
	case errors.Is(err, gossip.ErrTopicNotAllowed):
		code = codes.PermissionDenied
	case errors.Is(err, gossip.ErrNotRunning):
		code = codes.Unavailable
	case errors.Is(err, mempool.ErrTxInCache):
		code = codes.AlreadyExists
	case errors.As(err, &full):
		code = codes.ResourceExhausted
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}

// Dial connects to an intent service at addr.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return conn, nil
}
