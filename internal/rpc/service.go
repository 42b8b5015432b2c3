package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/tendermint/intentd/types"
)

const serviceName = "intentd.rpc.IntentService"

// IntentServiceServer is the server API of the intent service.
type IntentServiceServer interface {
	// SendMessage publishes an intent, joins a topic or relays a DKG
	// message, and returns a short status.
	SendMessage(context.Context, *types.RPCMessage) (*types.RPCResponse, error)
	// BroadcastTx submits a tx and waits for it to be committed.
	BroadcastTx(context.Context, *types.TxRequest) (*types.TxResponse, error)
}

// RegisterIntentServiceServer registers srv with s.
func RegisterIntentServiceServer(s *grpc.Server, srv IntentServiceServer) {
	s.RegisterService(&intentServiceDesc, srv)
}

var intentServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*IntentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendMessage", Handler: sendMessageHandler},
		{MethodName: "BroadcastTx", Handler: broadcastTxHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "intentd/rpc/service.proto",
}

func sendMessageHandler(
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(types.RPCMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntentServiceServer).SendMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SendMessage"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IntentServiceServer).SendMessage(ctx, req.(*types.RPCMessage))
	}
	return interceptor(ctx, in, info, handler)
}

func broadcastTxHandler(
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(types.TxRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntentServiceServer).BroadcastTx(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/BroadcastTx"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IntentServiceServer).BroadcastTx(ctx, req.(*types.TxRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls the intent service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) SendMessage(ctx context.Context, in *types.RPCMessage, opts ...grpc.CallOption) (*types.RPCResponse, error) {
	out := new(types.RPCResponse)
	opts = append([]grpc.CallOption{grpc.ForceCodec(codec{})}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/SendMessage", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) BroadcastTx(ctx context.Context, in *types.TxRequest, opts ...grpc.CallOption) (*types.TxResponse, error) {
	out := new(types.TxResponse)
	opts = append([]grpc.CallOption{grpc.ForceCodec(codec{})}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/BroadcastTx", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
