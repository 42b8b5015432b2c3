package gossip

import (
	"context"
	"errors"
)

// ErrTransportClosed is returned by operations on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// Message is a payload received on a topic.
type Message struct {
	Topic string
	From  string
	Data  []byte
}

// Subscription delivers the messages of one topic.
type Subscription interface {
	// Next blocks until a message arrives, ctx is done or the
	// subscription is cancelled.
	Next(ctx context.Context) (*Message, error)
	Cancel()
}

// Transport is a topic based broadcast network. Messages a node publishes
// are delivered to its own subscriptions as well.
type Transport interface {
	// ID identifies the local node on the network.
	ID() string
	Join(topic string) error
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}
