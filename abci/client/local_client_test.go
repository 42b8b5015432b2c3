package abcicli

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/intentd/abci/types"
	"github.com/tendermint/intentd/libs/log"
)

// countingApp fails the test if two calls ever overlap.
type countingApp struct {
	types.BaseApplication
	t       *testing.T
	mtx     sync.Mutex
	active  int
	txCount int
}

func (app *countingApp) DeliverTx(_ context.Context, req *types.RequestDeliverTx) (*types.ResponseDeliverTx, error) {
	app.mtx.Lock()
	app.active++
	if app.active > 1 {
		app.t.Error("concurrent DeliverTx")
	}
	app.mtx.Unlock()

	app.txCount++

	app.mtx.Lock()
	app.active--
	app.mtx.Unlock()
	return &types.ResponseDeliverTx{Code: types.CodeTypeOK}, nil
}

func TestLocalClientSerialisesCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := &countingApp{t: t}
	client := NewLocalClient(log.TestingLogger(), nil, app)
	require.NoError(t, client.Start(ctx))
	t.Cleanup(func() { _ = client.Stop() })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := client.DeliverTx(ctx, &types.RequestDeliverTx{Tx: []byte("tx")})
			assert.NoError(t, err)
			assert.True(t, res.IsOK())
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, app.txCount)

	res, err := client.Query(ctx, &types.RequestQuery{Path: "store"})
	require.NoError(t, err)
	assert.True(t, res.IsOK())
}
