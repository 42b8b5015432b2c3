package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	abci "github.com/tendermint/intentd/abci/types"
	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/internal/gossip"
	"github.com/tendermint/intentd/internal/mempool"
	"github.com/tendermint/intentd/internal/test/factory"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
)

type handler struct {
	got []*types.RPCMessage
}

func (h *handler) HandleRPC(_ context.Context, msg *types.RPCMessage) (string, error) {
	h.got = append(h.got, msg)
	switch {
	case msg.Subscribe != nil && msg.Subscribe.Topic == "forbidden":
		return "", gossip.ErrTopicNotAllowed
	case msg.Subscribe != nil:
		return "subscribed to " + msg.Subscribe.Topic, nil
	case msg.Intent != nil:
		return "intent published", nil
	}
	return "", types.ErrEmptyMessage
}

type broadcaster struct {
	err error
}

func (b *broadcaster) BroadcastTxCommit(_ context.Context, tx types.Tx) (*mempool.BroadcastResult, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &mempool.BroadcastResult{
		Hash:      tx.Hash(),
		CheckTx:   &abci.ResponseCheckTx{},
		DeliverTx: &abci.ResponseDeliverTx{Code: 0, Log: "committed"},
		Height:    4,
	}, nil
}

func startServer(t *testing.T, h MessageHandler, b Broadcaster) *Client {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(log.TestingLogger(), config.TestRPCConfig(), h, b, WithListener(lis))
	require.NoError(t, srv.Start(ctx))
	require.Equal(t, lis.Addr(), srv.Addr())

	conn, err := Dial(ctx, "bufnet", grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
		return lis.Dial()
	}))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestSendMessage(t *testing.T) {
	h := &handler{}
	client := startServer(t, h, &broadcaster{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := factory.NewUser("alice")
	intent := factory.Intent(alice, "xan", 10, "btc", 1, "asset_v0", time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC))

	res, err := client.SendMessage(ctx, &types.RPCMessage{Intent: &types.IntentMessage{Intent: intent, Topic: "asset_v0"}})
	require.NoError(t, err)
	assert.Equal(t, "intent published", res.Result)

	res, err = client.SendMessage(ctx, &types.RPCMessage{Subscribe: &types.SubscribeTopicMessage{Topic: "nft"}})
	require.NoError(t, err)
	assert.Equal(t, "subscribed to nft", res.Result)

	// the handler sees exactly what the client sent
	require.Len(t, h.got, 2)
	assert.Equal(t, intent.Marshal(), h.got[0].Intent.Intent.Marshal())
	assert.Equal(t, "nft", h.got[1].Subscribe.Topic)

	_, err = client.SendMessage(ctx, &types.RPCMessage{Subscribe: &types.SubscribeTopicMessage{Topic: "forbidden"}})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestSendMessageEmpty(t *testing.T) {
	client := startServer(t, &handler{}, &broadcaster{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// an empty message fails to decode on the server
	_, err := client.SendMessage(ctx, &types.RPCMessage{})
	require.Error(t, err)
	assert.NotEqual(t, codes.OK, status.Code(err))
}

func TestSendMessageWithoutGossip(t *testing.T) {
	client := startServer(t, nil, &broadcaster{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.SendMessage(ctx, &types.RPCMessage{Subscribe: &types.SubscribeTopicMessage{Topic: "nft"}})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestBroadcastTx(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := startServer(t, &handler{}, &broadcaster{})
	tx := types.Tx("transfer")
	res, err := client.BroadcastTx(ctx, &types.TxRequest{Tx: tx})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.Code)
	assert.Equal(t, "committed", res.Log)
	assert.EqualValues(t, 4, res.Height)
	assert.Equal(t, tx.Hash(), res.Hash)

	_, err = client.BroadcastTx(ctx, &types.TxRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	testCases := map[string]struct {
		err  error
		code codes.Code
	}{
		"duplicate": {mempool.ErrTxInCache, codes.AlreadyExists},
		"full":      {mempool.ErrMempoolIsFull{NumTxs: 1, MaxTxs: 1}, codes.ResourceExhausted},
		"too large": {mempool.ErrTxTooLarge{Max: 1, Actual: 2}, codes.InvalidArgument},
		"timeout":   {context.DeadlineExceeded, codes.DeadlineExceeded},
	}
	for name, tc := range testCases {
		client := startServer(t, &handler{}, &broadcaster{err: tc.err})
		_, err := client.BroadcastTx(ctx, &types.TxRequest{Tx: tx})
		assert.Equal(t, tc.code, status.Code(err), name)
	}
}
