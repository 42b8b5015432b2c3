package pubsub

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrUnsubscribed is returned by Err when a client unsubscribes.
	ErrUnsubscribed = errors.New("client unsubscribed")

	// ErrOutOfCapacity is returned by Err when a client is not pulling messages
	// fast enough. Note the client's subscription will be terminated.
	ErrOutOfCapacity = errors.New("client is not pulling messages fast enough")

	// ErrServerStopped is returned by Err when the server shuts down.
	ErrServerStopped = errors.New("pubsub server is stopped")
)

// A Subscription represents a client subscription to a single topic. It
// carries a buffered channel onto which messages are published, and a channel
// which is closed when the subscription is terminated along with the reason.
type Subscription struct {
	id       string
	clientID string
	topic    string
	out      chan Message

	canceled chan struct{}
	once     sync.Once
	mtx      sync.RWMutex
	err      error
}

func newSubscription(clientID, topic string, outCapacity int) *Subscription {
	return &Subscription{
		id:       uuid.NewString(),
		clientID: clientID,
		topic:    topic,
		out:      make(chan Message, outCapacity),
		canceled: make(chan struct{}),
	}
}

// Out returns a channel onto which messages are published. The channel is
// never closed; select on Canceled to detect termination.
func (s *Subscription) Out() <-chan Message { return s.out }

// ID returns the unique identifier of the subscription.
func (s *Subscription) ID() string { return s.id }

// Topic returns the topic the subscription listens on.
func (s *Subscription) Topic() string { return s.topic }

// Canceled returns a channel that's closed when the subscription is
// terminated and supposed to be used in a select statement.
func (s *Subscription) Canceled() <-chan struct{} {
	return s.canceled
}

// Err returns nil if the channel returned by Canceled is not yet closed.
// Otherwise it returns the reason: ErrUnsubscribed, ErrOutOfCapacity or
// ErrServerStopped.
func (s *Subscription) Err() error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.err
}

func (s *Subscription) cancel(err error) {
	s.once.Do(func() {
		s.mtx.Lock()
		s.err = err
		s.mtx.Unlock()
		close(s.canceled)
	})
}

// Message is a published payload as observed by one subscription.
type Message struct {
	subID string
	topic string
	data  interface{}
}

// SubscriptionID returns the unique identifier for the subscription
// that produced this message.
func (msg Message) SubscriptionID() string { return msg.subID }

// Topic returns the topic the message was published on.
func (msg Message) Topic() string { return msg.topic }

// Data returns the original data published.
func (msg Message) Data() interface{} { return msg.data }
