// Package gossip spreads signed intents between nodes over named topics and
// hands the intents it receives to local consumers such as the matchmaker.
//
// Delivery is best effort. Messages that fail to decode or verify are
// logged, counted and dropped; duplicates are not filtered here.
package gossip

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/creachadair/taskgroup"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/libs/service"
	"github.com/tendermint/intentd/types"
)

var (
	// ErrTopicNotAllowed is returned when the subscription filter rejects
	// a topic.
	ErrTopicNotAllowed = errors.New("topic not allowed by subscription filter")

	ErrNotRunning = errors.New("gossiper is not running")
)

// DkgHandler receives the DKG messages relayed through the RPC endpoint.
type DkgHandler func(*types.DkgMessage)

// Option sets an optional parameter on the Gossiper.
type Option func(*Gossiper)

// WithMetrics sets the gossiper's metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(g *Gossiper) { g.metrics = m }
}

// WithSubscriptionFilter restricts the topics the node may join.
func WithSubscriptionFilter(f SubscriptionFilter) Option {
	return func(g *Gossiper) {
		if f != nil {
			g.filter = f
		}
	}
}

// WithDkgHandler replaces the default handler, which only logs.
func WithDkgHandler(h DkgHandler) Option {
	return func(g *Gossiper) { g.dkg = h }
}

// Gossiper manages topic subscriptions on a Transport.
type Gossiper struct {
	*service.BaseService
	logger log.Logger

	transport Transport
	filter    SubscriptionFilter
	metrics   *Metrics
	dkg       DkgHandler
	topics    []string

	intents chan *types.Intent

	mtx   sync.Mutex
	ctx   context.Context
	subs  map[string]Subscription
	tasks *taskgroup.Group
}

// NewGossiper creates a gossiper joining the topics of cfg on start.
func NewGossiper(logger log.Logger, cfg *config.GossipConfig, transport Transport, options ...Option) *Gossiper {
	g := &Gossiper{
		logger:    logger,
		transport: transport,
		filter:    allowAll{},
		metrics:   NopMetrics(),
		topics:    cfg.Topics,
		intents:   make(chan *types.Intent, cfg.IntentBufferSize),
		subs:      make(map[string]Subscription),
	}
	g.dkg = func(msg *types.DkgMessage) {
		g.logger.Info("received dkg message", "size", len(msg.Data))
	}
	g.BaseService = service.NewBaseService(logger, "Gossiper", g)
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Intents returns the channel on which received intents are delivered.
func (g *Gossiper) Intents() <-chan *types.Intent { return g.intents }

// OnStart joins the configured topics.
func (g *Gossiper) OnStart(ctx context.Context) error {
	g.mtx.Lock()
	g.ctx = ctx
	g.tasks = taskgroup.New(nil)
	g.mtx.Unlock()

	for _, topic := range g.topics {
		if err := g.SubscribeTopic(topic); err != nil {
			return err
		}
	}
	return nil
}

// OnStop cancels every subscription and waits for the receive loops.
func (g *Gossiper) OnStop() {
	g.mtx.Lock()
	for topic, sub := range g.subs {
		sub.Cancel()
		delete(g.subs, topic)
	}
	tasks := g.tasks
	g.mtx.Unlock()

	if tasks != nil {
		_ = tasks.Wait()
	}
	if err := g.transport.Close(); err != nil {
		g.logger.Error("closing transport", "err", err)
	}
}

// SubscribeTopic joins topic and starts handing its intents on. Joining a
// topic twice is a no-op.
func (g *Gossiper) SubscribeTopic(topic string) error {
	if topic == "" {
		return errors.New("empty topic")
	}
	if !g.filter.CanSubscribe(topic) {
		return fmt.Errorf("%w: %s", ErrTopicNotAllowed, topic)
	}

	g.mtx.Lock()
	defer g.mtx.Unlock()

	if g.ctx == nil || g.ctx.Err() != nil {
		return ErrNotRunning
	}
	if _, ok := g.subs[topic]; ok {
		return nil
	}

	sub, err := g.transport.Subscribe(g.ctx, topic)
	if err != nil {
		return err
	}
	g.subs[topic] = sub
	g.metrics.Topics.Set(float64(len(g.subs)))

	ctx := g.ctx
	g.tasks.Go(func() error {
		g.receiveLoop(ctx, topic, sub)
		return nil
	})
	g.logger.Info("subscribed to topic", "topic", topic)
	return nil
}

// Topics returns the subscribed topics in sorted order.
func (g *Gossiper) Topics() []string {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	topics := make([]string, 0, len(g.subs))
	for t := range g.subs {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// PublishIntent checks the intent's signature and broadcasts it on topic,
// joining the topic first if needed. An empty topic means the intent's own.
func (g *Gossiper) PublishIntent(ctx context.Context, topic string, intent *types.Intent) error {
	if err := intent.ValidateBasic(); err != nil {
		return err
	}
	if err := intent.VerifySignature(); err != nil {
		return err
	}
	if topic == "" {
		topic = intent.Topic
	}
	if err := g.SubscribeTopic(topic); err != nil {
		return err
	}

	msg := &types.GossipMessage{Intent: intent}
	if err := g.transport.Publish(ctx, topic, msg.Marshal()); err != nil {
		return fmt.Errorf("publishing intent: %w", err)
	}
	g.metrics.IntentsPublished.Add(1)
	g.logger.Debug("published intent", "topic", topic, "intent", intent.ID())
	return nil
}

// HandleRPC dispatches a message received on the RPC endpoint and returns
// a short status string for the caller.
func (g *Gossiper) HandleRPC(ctx context.Context, msg *types.RPCMessage) (string, error) {
	switch {
	case msg.Intent != nil:
		if msg.Intent.Intent == nil {
			return "", types.ErrEmptyMessage
		}
		if err := g.PublishIntent(ctx, msg.Intent.Topic, msg.Intent.Intent); err != nil {
			return "", err
		}
		return "intent published", nil

	case msg.Subscribe != nil:
		if err := g.SubscribeTopic(msg.Subscribe.Topic); err != nil {
			return "", err
		}
		return "subscribed to " + msg.Subscribe.Topic, nil

	case msg.Dkg != nil:
		g.dkg(msg.Dkg)
		return "dkg message received", nil

	default:
		return "", types.ErrEmptyMessage
	}
}

func (g *Gossiper) receiveLoop(ctx context.Context, topic string, sub Subscription) {
	logger := g.logger.With("topic", topic)
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("subscription closed", "err", err)
			}
			return
		}

		intent, reason, err := decodeIntent(msg.Data)
		if err != nil {
			g.metrics.DeliveryFailures.With("reason", reason).Add(1)
			logger.Debug("dropping gossip message", "from", msg.From, "reason", reason, "err", err)
			continue
		}

		g.metrics.IntentsReceived.With("topic", topic).Add(1)
		select {
		case g.intents <- intent:
		case <-ctx.Done():
			return
		}
	}
}

func decodeIntent(bz []byte) (*types.Intent, string, error) {
	var msg types.GossipMessage
	if err := msg.Unmarshal(bz); err != nil {
		return nil, "decode", err
	}
	if err := msg.Intent.ValidateBasic(); err != nil {
		return nil, "invalid", err
	}
	if err := msg.Intent.VerifySignature(); err != nil {
		return nil, "signature", err
	}
	return msg.Intent, "", nil
}
