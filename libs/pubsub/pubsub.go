// Package pubsub implements an in-process, topic-based pub-sub server.
//
// Clients subscribe to a topic by name and receive every message published
// on that topic afterwards. Each subscription has a bounded buffer. A client
// that does not drain its buffer is terminated with ErrOutOfCapacity, so a
// slow subscriber never blocks the publisher.
//
//	sub, err := s.Subscribe(ctx, "matchmaker", "asset_v0", 100)
//	for {
//		select {
//		case msg := <-sub.Out():
//			// handle msg.Data()
//		case <-sub.Canceled():
//			return sub.Err()
//		}
//	}
package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/libs/service"
)

var (
	// ErrSubscriptionNotFound is returned when a client tries to unsubscribe
	// from not existing subscription.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrAlreadySubscribed is returned when a client tries to subscribe twice or
	// more to the same topic.
	ErrAlreadySubscribed = errors.New("already subscribed")
)

// DefaultBufferCapacity is the capacity of a subscription's out channel
// when the caller does not pick one.
const DefaultBufferCapacity = 100

type operation int

const (
	opSub operation = iota
	opPub
	opUnsub
)

type cmd struct {
	op       operation
	sub      *Subscription
	clientID string
	topic    string
	data     interface{}
	done     chan struct{}
}

// Server allows clients to subscribe and unsubscribe to topics and publishes
// messages to them. All state changes go through a single loop goroutine.
type Server struct {
	*service.BaseService

	cmds    chan cmd
	cmdsCap int

	mtx  sync.RWMutex
	subs map[string]map[string]*Subscription // clientID -> topic -> subscription
}

// Option sets a parameter for the server.
type Option func(*Server)

// BufferCapacity allows you to specify capacity for the internal server's
// queue. Publishers block once the queue is full.
func BufferCapacity(cap int) Option {
	return func(s *Server) {
		if cap > 0 {
			s.cmdsCap = cap
		}
	}
}

// NewServer returns a new server. The server must be started before use.
func NewServer(logger log.Logger, options ...Option) *Server {
	s := &Server{
		subs: make(map[string]map[string]*Subscription),
	}
	s.BaseService = service.NewBaseService(logger, "PubSub", s)

	for _, option := range options {
		option(s)
	}
	s.cmds = make(chan cmd, s.cmdsCap)

	return s
}

// Subscribe creates a subscription of clientID to topic with an out buffer
// of the given capacity (DefaultBufferCapacity when <= 0).
func (s *Server) Subscribe(ctx context.Context, clientID, topic string, capacity int) (*Subscription, error) {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}

	s.mtx.Lock()
	if _, ok := s.subs[clientID][topic]; ok {
		s.mtx.Unlock()
		return nil, ErrAlreadySubscribed
	}
	sub := newSubscription(clientID, topic, capacity)
	if s.subs[clientID] == nil {
		s.subs[clientID] = make(map[string]*Subscription)
	}
	s.subs[clientID][topic] = sub
	s.mtx.Unlock()

	if err := s.send(ctx, cmd{op: opSub, sub: sub}); err != nil {
		s.forget(clientID, topic)
		return nil, err
	}
	return sub, nil
}

// Unsubscribe removes the subscription of clientID to topic.
func (s *Server) Unsubscribe(ctx context.Context, clientID, topic string) error {
	if !s.forget(clientID, topic) {
		return ErrSubscriptionNotFound
	}
	return s.send(ctx, cmd{op: opUnsub, clientID: clientID, topic: topic})
}

// Publish publishes data on topic. It returns once the message has been
// handed to every current subscriber of the topic.
func (s *Server) Publish(ctx context.Context, topic string, data interface{}) error {
	return s.send(ctx, cmd{op: opPub, topic: topic, data: data})
}

// NumClients returns the number of clients with at least one subscription.
func (s *Server) NumClients() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.subs)
}

func (s *Server) forget(clientID, topic string) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.subs[clientID][topic]; !ok {
		return false
	}
	delete(s.subs[clientID], topic)
	if len(s.subs[clientID]) == 0 {
		delete(s.subs, clientID)
	}
	return true
}

func (s *Server) send(ctx context.Context, c cmd) error {
	c.done = make(chan struct{})
	select {
	case s.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.Quit():
		return ErrServerStopped
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.Quit():
		return ErrServerStopped
	}
}

// OnStart implements service.Implementation by starting the server loop.
func (s *Server) OnStart(ctx context.Context) error {
	go s.loop(ctx)
	return nil
}

// OnStop implements service.Implementation.
func (s *Server) OnStop() {}

func (s *Server) loop(ctx context.Context) {
	// topic -> subscription id -> subscription
	topics := make(map[string]map[string]*Subscription)

	defer func() {
		for _, subs := range topics {
			for _, sub := range subs {
				sub.cancel(ErrServerStopped)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.cmds:
			switch c.op {
			case opSub:
				if topics[c.sub.topic] == nil {
					topics[c.sub.topic] = make(map[string]*Subscription)
				}
				topics[c.sub.topic][c.sub.id] = c.sub

			case opUnsub:
				for id, sub := range topics[c.topic] {
					if sub.clientID == c.clientID {
						sub.cancel(ErrUnsubscribed)
						delete(topics[c.topic], id)
					}
				}
				if len(topics[c.topic]) == 0 {
					delete(topics, c.topic)
				}

			case opPub:
				for id, sub := range topics[c.topic] {
					select {
					case sub.out <- Message{subID: id, topic: c.topic, data: c.data}:
					default:
						sub.cancel(ErrOutOfCapacity)
						delete(topics[c.topic], id)
						s.forget(sub.clientID, c.topic)
					}
				}
			}
			close(c.done)
		}
	}
}
