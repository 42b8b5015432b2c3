package producer

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	abciclient "github.com/tendermint/intentd/abci/client"
	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/internal/ledger"
	"github.com/tendermint/intentd/internal/mempool"
	"github.com/tendermint/intentd/internal/store"
	"github.com/tendermint/intentd/internal/test/factory"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
	"github.com/tendermint/intentd/vm"
)

var (
	alice       = factory.NewUser("alice")
	bob         = factory.NewUser("bob")
	genesisTime = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
)

type testNode struct {
	store    *store.Store
	client   abciclient.Client
	mempool  *mempool.TxMempool
	producer *Producer
}

func newTestNode(t *testing.T, db dbm.DB) *testNode {
	t.Helper()

	genDoc := factory.NewGenesis(factory.DefaultTestChainID, genesisTime).
		AddToken("xan").
		AddUser(alice, map[types.Address]uint64{"xan": 100}).
		AddUser(bob, nil).
		Doc()

	logger := log.TestingLogger()
	st, err := store.NewStore(db)
	require.NoError(t, err)
	app, err := ledger.NewApp(logger, st, vm.DefaultParams(), 16, ledger.WithChainID(genDoc.ChainID))
	require.NoError(t, err)

	client := abciclient.NewLocalClient(logger, nil, app)
	mp := mempool.NewTxMempool(logger, config.TestMempoolConfig(), client, 0)

	clock := genesisTime
	p := New(logger, config.TestProducerConfig(), client, mp, genDoc, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	return &testNode{store: st, client: client, mempool: mp, producer: p}
}

func transferTx(amount uint64) types.Tx {
	data := types.EncodeTransfers([]types.Transfer{{
		Source: alice.Address, Target: bob.Address, Token: "xan", Amount: amount,
	}})
	return factory.Tx(ledger.TxTransferCode, data, genesisTime, alice)
}

func balance(t *testing.T, st *store.Store, owner types.Address) uint64 {
	t.Helper()
	bz, _, err := st.Read(types.BalanceKey("xan", owner))
	require.NoError(t, err)
	amt, err := types.DecodeU64(bz)
	require.NoError(t, err)
	return amt
}

func TestHandshakeInitializesOnce(t *testing.T) {
	ctx := context.Background()
	db := dbm.NewMemDB()

	n := newTestNode(t, db)
	require.NoError(t, n.producer.Handshake(ctx))
	require.EqualValues(t, 0, n.producer.Height())
	genesisRoot := n.producer.AppHash()
	require.NotEmpty(t, genesisRoot)

	_, err := n.producer.ProduceBlock(ctx)
	require.NoError(t, err)
	require.NoError(t, n.store.Close())

	// a restarted node picks up the last block instead of re-running genesis
	n = newTestNode(t, db)
	require.NoError(t, n.producer.Handshake(ctx))
	assert.EqualValues(t, 1, n.producer.Height())
}

func TestProduceBlock(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, dbm.NewMemDB())
	require.NoError(t, n.producer.Handshake(ctx))
	root := n.producer.AppHash()

	for _, amt := range []uint64{10, 20, 1000} {
		res, err := n.mempool.CheckTx(ctx, transferTx(amt))
		require.NoError(t, err)
		require.True(t, res.IsOK(), res.Log)
	}

	block, err := n.producer.ProduceBlock(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, block.Height)
	require.Len(t, block.Txs, 3)
	assert.True(t, block.Results[0].IsOK(), block.Results[0].Log)
	assert.True(t, block.Results[1].IsOK(), block.Results[1].Log)
	assert.True(t, block.Results[2].IsErr(), "overdraft must be rejected")

	assert.NotEqual(t, root, block.AppHash)
	assert.Equal(t, block.AppHash, n.store.Root().Bytes())
	assert.Equal(t, uint64(70), balance(t, n.store, alice.Address))
	assert.Equal(t, uint64(30), balance(t, n.store, bob.Address))
	assert.Equal(t, 0, n.mempool.Size())

	// empty blocks still advance the height
	block, err = n.producer.ProduceBlock(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, block.Height)
	assert.Empty(t, block.Txs)
}

func TestProducerServiceCommitsBroadcastTx(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := newTestNode(t, dbm.NewMemDB())
	require.NoError(t, n.producer.Start(ctx))

	res, err := n.mempool.BroadcastTxCommit(ctx, transferTx(5))
	require.NoError(t, err)
	require.True(t, res.OK(), res.DeliverTx.Log)
	assert.EqualValues(t, 1, res.Height)
	assert.Equal(t, uint64(95), balance(t, n.store, alice.Address))

	cancel()
	n.producer.Wait()
}
