package gossip

import (
	"fmt"
	"regexp"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/tendermint/intentd/config"
)

// SubscriptionFilter decides which topics a node may join.
type SubscriptionFilter interface {
	CanSubscribe(topic string) bool
}

type allowAll struct{}

func (allowAll) CanSubscribe(string) bool { return true }

// NewSubscriptionFilter builds the filter described by cfg: a regex when
// topic_regex is set, else an allowlist when topic_whitelist is non-empty.
// It returns nil when neither is configured.
//
// The filters are GossipSub's own, so the same value can be handed to the
// libp2p router to screen remote subscriptions.
func NewSubscriptionFilter(cfg *config.GossipConfig) (pubsub.SubscriptionFilter, error) {
	switch {
	case cfg.TopicRegex != "":
		re, err := regexp.Compile(cfg.TopicRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid topic regex: %w", err)
		}
		return pubsub.NewRegexpSubscriptionFilter(re), nil
	case len(cfg.TopicWhitelist) > 0:
		return pubsub.NewAllowlistSubscriptionFilter(cfg.TopicWhitelist...), nil
	default:
		return nil, nil
	}
}
