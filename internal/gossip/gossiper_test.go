package gossip

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/go-kit/kit/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/internal/test/factory"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
)

var (
	alice = factory.NewUser("alice")
	bob   = factory.NewUser("bob")
	now   = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
)

// labelCounter counts additions per label value across With calls.
type labelCounter struct {
	mtx    sync.Mutex
	counts map[string]float64
	label  string
}

func newLabelCounter() *labelCounter { return &labelCounter{counts: make(map[string]float64)} }

func (c *labelCounter) With(labelValues ...string) metrics.Counter {
	label := ""
	if len(labelValues) == 2 {
		label = labelValues[1]
	}
	return &labelCounterView{parent: c, label: label}
}

func (c *labelCounter) Add(delta float64) { c.add(c.label, delta) }

func (c *labelCounter) add(label string, delta float64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.counts[label] += delta
}

func (c *labelCounter) get(label string) float64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.counts[label]
}

type labelCounterView struct {
	parent *labelCounter
	label  string
}

func (v *labelCounterView) With(labelValues ...string) metrics.Counter {
	return v.parent.With(labelValues...)
}

func (v *labelCounterView) Add(delta float64) { v.parent.add(v.label, delta) }

func newMemoryGossiper(t *testing.T, ctx context.Context, net *MemoryNetwork, id string, cfg *config.GossipConfig, opts ...Option) *Gossiper {
	t.Helper()
	g := NewGossiper(log.TestingLogger().With("node", id), cfg, net.Transport(id), opts...)
	require.NoError(t, g.Start(ctx))
	return g
}

func receive(t *testing.T, g *Gossiper) *types.Intent {
	t.Helper()
	select {
	case in := <-g.Intents():
		return in
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for intent")
		return nil
	}
}

func TestGossipIntentReachesAllSubscribers(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	net, err := NewMemoryNetwork(ctx, log.TestingLogger())
	require.NoError(t, err)

	cfg := config.TestGossipConfig()
	a := newMemoryGossiper(t, ctx, net, "a", cfg)
	b := newMemoryGossiper(t, ctx, net, "b", cfg)
	require.Equal(t, []string{"asset_v0"}, a.Topics())

	intent := factory.Intent(alice, "xan", 10, "btc", 1, "asset_v0", now)
	require.NoError(t, a.PublishIntent(ctx, "", intent))

	// the publisher's own matchmaker sees the intent as well
	for _, g := range []*Gossiper{a, b} {
		got := receive(t, g)
		assert.Equal(t, intent.ID(), got.ID())
		assert.Equal(t, intent.Marshal(), got.Marshal())
	}

	cancel()
	a.Wait()
	b.Wait()
}

func TestGossipDropsBadMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	net, err := NewMemoryNetwork(ctx, log.TestingLogger())
	require.NoError(t, err)

	failures := newLabelCounter()
	m := NopMetrics()
	m.DeliveryFailures = failures

	g := newMemoryGossiper(t, ctx, net, "a", config.TestGossipConfig(), WithMetrics(m))
	raw := net.Transport("raw")

	// garbage
	require.NoError(t, raw.Publish(ctx, "asset_v0", []byte{0xff, 0xff}))

	// forged signature
	forged := factory.Intent(alice, "xan", 10, "btc", 1, "asset_v0", now)
	forged.AmountSell = 1000
	require.NoError(t, raw.Publish(ctx, "asset_v0", (&types.GossipMessage{Intent: forged}).Marshal()))

	// unsigned
	unsigned := factory.Intent(bob, "btc", 1, "xan", 10, "asset_v0", now)
	unsigned.Signature = nil
	require.NoError(t, raw.Publish(ctx, "asset_v0", (&types.GossipMessage{Intent: unsigned}).Marshal()))

	// a good one still gets through afterwards
	good := factory.Intent(bob, "btc", 1, "xan", 10, "asset_v0", now)
	require.NoError(t, raw.Publish(ctx, "asset_v0", (&types.GossipMessage{Intent: good}).Marshal()))

	assert.Equal(t, good.ID(), receive(t, g).ID())
	assert.Equal(t, float64(1), failures.get("decode"))
	assert.Equal(t, float64(1), failures.get("signature"))
	assert.Equal(t, float64(1), failures.get("invalid"))
}

func TestPublishIntentVerifiesSignature(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	net, err := NewMemoryNetwork(ctx, log.TestingLogger())
	require.NoError(t, err)
	g := newMemoryGossiper(t, ctx, net, "a", config.TestGossipConfig())

	intent := factory.Intent(alice, "xan", 10, "btc", 1, "asset_v0", now)
	intent.AmountBuy = 2
	err = g.PublishIntent(ctx, "", intent)
	require.ErrorIs(t, err, types.ErrInvalidIntentSignature)

	// publishing on a new topic joins it
	intent = factory.Intent(alice, "xan", 10, "btc", 1, "asset_v1", now)
	require.NoError(t, g.PublishIntent(ctx, "", intent))
	assert.Equal(t, []string{"asset_v0", "asset_v1"}, g.Topics())
}

func TestSubscriptionFilter(t *testing.T) {
	testCases := map[string]struct {
		cfg     func(*config.GossipConfig)
		allowed []string
		denied  []string
	}{
		"none": {
			cfg:     func(*config.GossipConfig) {},
			allowed: []string{"asset_v0", "anything"},
		},
		"regex": {
			cfg:     func(c *config.GossipConfig) { c.TopicRegex = "^asset_v[0-9]+$" },
			allowed: []string{"asset_v0", "asset_v12"},
			denied:  []string{"nft", "asset_v"},
		},
		"whitelist": {
			cfg:     func(c *config.GossipConfig) { c.TopicWhitelist = []string{"asset_v0", "nft"} },
			allowed: []string{"asset_v0", "nft"},
			denied:  []string{"asset_v1"},
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cfg := config.TestGossipConfig()
			cfg.Topics = nil
			tc.cfg(cfg)
			filter, err := NewSubscriptionFilter(cfg)
			require.NoError(t, err)

			net, err := NewMemoryNetwork(ctx, log.TestingLogger())
			require.NoError(t, err)
			g := newMemoryGossiper(t, ctx, net, "a", cfg, WithSubscriptionFilter(filter))

			for _, topic := range tc.allowed {
				assert.NoError(t, g.SubscribeTopic(topic), topic)
			}
			for _, topic := range tc.denied {
				assert.ErrorIs(t, g.SubscribeTopic(topic), ErrTopicNotAllowed, topic)
			}
		})
	}

	_, err := NewSubscriptionFilter(&config.GossipConfig{TopicRegex: "(["})
	require.Error(t, err)
}

func TestHandleRPC(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	net, err := NewMemoryNetwork(ctx, log.TestingLogger())
	require.NoError(t, err)

	var dkg []string
	g := newMemoryGossiper(t, ctx, net, "a", config.TestGossipConfig(),
		WithDkgHandler(func(m *types.DkgMessage) { dkg = append(dkg, m.Data) }))

	res, err := g.HandleRPC(ctx, &types.RPCMessage{Subscribe: &types.SubscribeTopicMessage{Topic: "nft"}})
	require.NoError(t, err)
	assert.Equal(t, "subscribed to nft", res)
	assert.Contains(t, g.Topics(), "nft")

	intent := factory.Intent(alice, "xan", 10, "btc", 1, "asset_v0", now)
	res, err = g.HandleRPC(ctx, &types.RPCMessage{Intent: &types.IntentMessage{Intent: intent, Topic: "asset_v0"}})
	require.NoError(t, err)
	assert.Equal(t, "intent published", res)
	assert.Equal(t, intent.ID(), receive(t, g).ID())

	res, err = g.HandleRPC(ctx, &types.RPCMessage{Dkg: &types.DkgMessage{Data: "round-1"}})
	require.NoError(t, err)
	assert.Equal(t, "dkg message received", res)
	assert.Equal(t, []string{"round-1"}, dkg)

	_, err = g.HandleRPC(ctx, &types.RPCMessage{})
	assert.ErrorIs(t, err, types.ErrEmptyMessage)
	_, err = g.HandleRPC(ctx, &types.RPCMessage{Intent: &types.IntentMessage{Topic: "asset_v0"}})
	assert.ErrorIs(t, err, types.ErrEmptyMessage)
}

func TestSubscribeRequiresRunningGossiper(t *testing.T) {
	net := &MemoryNetwork{}
	g := NewGossiper(log.NewNopLogger(), config.TestGossipConfig(), net.Transport("a"))
	err := g.SubscribeTopic("asset_v0")
	require.True(t, errors.Is(err, ErrNotRunning))
}

func TestLibp2pTransport(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping libp2p network test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	newTransport := func() *Libp2pTransport {
		tr, err := NewLibp2pTransport(log.TestingLogger(), types.GenNodeKey(), "/ip4/127.0.0.1/tcp/0", nil)
		require.NoError(t, err)
		return tr
	}
	a, b := newTransport(), newTransport()
	defer a.Close()
	defer b.Close()
	require.NotEqual(t, a.ID(), b.ID())
	require.NotEmpty(t, a.Addrs())

	require.NoError(t, b.Connect(ctx, a.Addrs()[0].String()))

	cfg := config.TestGossipConfig()
	ga := NewGossiper(log.TestingLogger(), cfg, a)
	gb := NewGossiper(log.TestingLogger(), cfg, b)
	require.NoError(t, ga.Start(ctx))
	require.NoError(t, gb.Start(ctx))

	intent := factory.Intent(alice, "xan", 10, "btc", 1, "asset_v0", now)

	// the mesh forms on the router heartbeat; keep publishing until b hears it
	require.Eventually(t, func() bool {
		if err := ga.PublishIntent(ctx, "", intent); err != nil {
			return false
		}
		select {
		case got := <-gb.Intents():
			return got.ID() == intent.ID()
		case <-time.After(500 * time.Millisecond):
			return false
		}
	}, 15*time.Second, 100*time.Millisecond)
}
