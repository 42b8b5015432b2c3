package gossip

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/libs/pubsub"
)

// MemoryNetwork is an in-process broadcast network. Every transport
// created from it sees the messages of every other.
type MemoryNetwork struct {
	logger log.Logger
	server *pubsub.Server
}

// NewMemoryNetwork starts the network. It shuts down when ctx is done.
func NewMemoryNetwork(ctx context.Context, logger log.Logger) (*MemoryNetwork, error) {
	server := pubsub.NewServer(logger.With("module", "memnet"))
	if err := server.Start(ctx); err != nil {
		return nil, err
	}
	return &MemoryNetwork{logger: logger, server: server}, nil
}

// Transport returns a new endpoint on the network named id.
func (n *MemoryNetwork) Transport(id string) *MemoryTransport {
	return &MemoryTransport{net: n, id: id, joined: make(map[string]bool)}
}

type memoryPayload struct {
	from string
	data []byte
}

// MemoryTransport is one node's endpoint on a MemoryNetwork.
type MemoryTransport struct {
	net *MemoryNetwork
	id  string

	mtx    sync.Mutex
	joined map[string]bool
	subs   []*memorySubscription
	closed bool
}

var _ Transport = (*MemoryTransport)(nil)

func (t *MemoryTransport) ID() string { return t.id }

func (t *MemoryTransport) Join(topic string) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.joined[topic] = true
	return nil
}

func (t *MemoryTransport) Publish(ctx context.Context, topic string, data []byte) error {
	if err := t.Join(topic); err != nil {
		return err
	}
	payload := memoryPayload{from: t.id, data: append([]byte(nil), data...)}
	return t.net.server.Publish(ctx, topic, payload)
}

func (t *MemoryTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := t.Join(topic); err != nil {
		return nil, err
	}
	// a client may hold a single subscription per topic, so each one gets
	// its own client ID
	clientID := t.id + "/" + uuid.NewString()
	sub, err := t.net.server.Subscribe(ctx, clientID, topic, pubsub.DefaultBufferCapacity)
	if err != nil {
		return nil, err
	}

	ms := &memorySubscription{server: t.net.server, clientID: clientID, topic: topic, sub: sub}
	t.mtx.Lock()
	t.subs = append(t.subs, ms)
	t.mtx.Unlock()
	return ms, nil
}

func (t *MemoryTransport) Close() error {
	t.mtx.Lock()
	t.closed = true
	subs := t.subs
	t.subs = nil
	t.mtx.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	return nil
}

type memorySubscription struct {
	server   *pubsub.Server
	clientID string
	topic    string
	sub      *pubsub.Subscription
	once     sync.Once
}

func (s *memorySubscription) Next(ctx context.Context) (*Message, error) {
	select {
	case msg := <-s.sub.Out():
		p := msg.Data().(memoryPayload)
		return &Message{Topic: s.topic, From: p.from, Data: p.data}, nil
	case <-s.sub.Canceled():
		return nil, s.sub.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *memorySubscription) Cancel() {
	s.once.Do(func() {
		// the subscription may already be gone with the server
		_ = s.server.Unsubscribe(context.Background(), s.clientID, s.topic)
	})
}
