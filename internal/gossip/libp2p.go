package gossip

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/types"
)

// Libp2pTransport runs GossipSub over a libp2p host.
type Libp2pTransport struct {
	logger log.Logger
	host   host.Host
	ps     *pubsub.PubSub
	cancel context.CancelFunc

	mtx    sync.Mutex
	topics map[string]*pubsub.Topic
	closed bool
}

var _ Transport = (*Libp2pTransport)(nil)

// NewLibp2pTransport creates a host identified by nodeKey and listening on
// listenAddr, a multiaddr such as /ip4/0.0.0.0/tcp/26656. When filter is
// non-nil, GossipSub also applies it to the subscriptions of remote peers.
func NewLibp2pTransport(
	logger log.Logger,
	nodeKey types.NodeKey,
	listenAddr string,
	filter pubsub.SubscriptionFilter,
) (*Libp2pTransport, error) {
	privKey, err := crypto.UnmarshalEd25519PrivateKey(nodeKey.PrivKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("converting node key: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrStrings(listenAddr),
	)
	if err != nil {
		return nil, fmt.Errorf("creating libp2p host: %w", err)
	}

	var opts []pubsub.Option
	if filter != nil {
		opts = append(opts, pubsub.WithSubscriptionFilter(filter))
	}

	// the router lives as long as the transport
	ctx, cancel := context.WithCancel(context.Background())
	ps, err := pubsub.NewGossipSub(ctx, h, opts...)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("creating gossipsub router: %w", err)
	}

	t := &Libp2pTransport{
		logger: logger,
		host:   h,
		ps:     ps,
		cancel: cancel,
		topics: make(map[string]*pubsub.Topic),
	}
	for _, addr := range t.Addrs() {
		logger.Info("gossip host listening", "addr", addr.String())
	}
	return t, nil
}

func (t *Libp2pTransport) ID() string { return t.host.ID().Pretty() }

// Addrs returns the dialable addresses of the host, including the
// /p2p/<id> suffix.
func (t *Libp2pTransport) Addrs() []ma.Multiaddr {
	addrs, err := peer.AddrInfoToP2pAddrs(&peer.AddrInfo{ID: t.host.ID(), Addrs: t.host.Addrs()})
	if err != nil {
		return nil
	}
	return addrs
}

// Connect dials a peer given its full multiaddr.
func (t *Libp2pTransport) Connect(ctx context.Context, addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("invalid peer address %q: %w", addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("invalid peer address %q: %w", addr, err)
	}
	if err := t.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("connecting to %s: %w", info.ID.Pretty(), err)
	}
	t.logger.Info("connected to peer", "peer", info.ID.Pretty())
	return nil
}

func (t *Libp2pTransport) Join(topic string) error {
	_, err := t.topic(topic)
	return err
}

func (t *Libp2pTransport) topic(name string) (*pubsub.Topic, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}
	if tp, ok := t.topics[name]; ok {
		return tp, nil
	}
	tp, err := t.ps.Join(name)
	if err != nil {
		return nil, fmt.Errorf("joining topic %s: %w", name, err)
	}
	t.topics[name] = tp
	return tp, nil
}

func (t *Libp2pTransport) Publish(ctx context.Context, topic string, data []byte) error {
	tp, err := t.topic(topic)
	if err != nil {
		return err
	}
	return tp.Publish(ctx, data)
}

func (t *Libp2pTransport) Subscribe(_ context.Context, topic string) (Subscription, error) {
	tp, err := t.topic(topic)
	if err != nil {
		return nil, err
	}
	sub, err := tp.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return &libp2pSubscription{topic: topic, sub: sub}, nil
}

func (t *Libp2pTransport) Close() error {
	t.mtx.Lock()
	if t.closed {
		t.mtx.Unlock()
		return nil
	}
	t.closed = true
	for _, tp := range t.topics {
		// fails only while subscriptions are still open
		_ = tp.Close()
	}
	t.mtx.Unlock()

	t.cancel()
	return t.host.Close()
}

type libp2pSubscription struct {
	topic string
	sub   *pubsub.Subscription
}

func (s *libp2pSubscription) Next(ctx context.Context) (*Message, error) {
	msg, err := s.sub.Next(ctx)
	if err != nil {
		return nil, err
	}
	return &Message{Topic: s.topic, From: msg.ReceivedFrom.Pretty(), Data: msg.Data}, nil
}

func (s *libp2pSubscription) Cancel() { s.sub.Cancel() }
