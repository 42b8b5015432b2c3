package matchmaker

import (
	"sort"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/patrickmn/go-cache"

	"github.com/tendermint/intentd/types"
)

// WorkingSet holds the pending intents of each topic in arrival order,
// together with the IDs of every intent it ever accepted.
//
// With a positive TTL an intent that stays unmatched for longer than the
// TTL is expired and dropped on the next scan. Expired intents stay in the
// seen set, so they are not queued again when gossiped a second time.
type WorkingSet struct {
	mtx sync.Mutex

	queues map[string]*linkedhashmap.Map // topic -> intent ID -> *types.Intent
	seen   *cache.Cache                  // every accepted ID
	live   *cache.Cache                  // pending IDs, expiring after ttl
	ttl    time.Duration
}

// NewWorkingSet returns an empty working set. A zero ttl keeps intents
// until they are matched.
func NewWorkingSet(ttl time.Duration) *WorkingSet {
	expiration := cache.NoExpiration
	if ttl > 0 {
		expiration = ttl
	}
	// no janitor; expired entries are removed by Prune
	return &WorkingSet{
		queues: make(map[string]*linkedhashmap.Map),
		seen:   cache.New(cache.NoExpiration, 0),
		live:   cache.New(expiration, 0),
		ttl:    ttl,
	}
}

// Seen reports whether an intent with this ID was accepted before.
func (ws *WorkingSet) Seen(id string) bool {
	_, ok := ws.seen.Get(id)
	return ok
}

// MarkSeen records the intent as accepted without queueing it. It returns
// false if it was seen already.
func (ws *WorkingSet) MarkSeen(intent *types.Intent) bool {
	return ws.seen.Add(intent.ID(), struct{}{}, cache.NoExpiration) == nil
}

// Add queues intent at the end of its topic. It returns false and leaves
// the set unchanged if the intent was seen before.
func (ws *WorkingSet) Add(intent *types.Intent) bool {
	if !ws.MarkSeen(intent) {
		return false
	}

	ws.mtx.Lock()
	defer ws.mtx.Unlock()

	q, ok := ws.queues[intent.Topic]
	if !ok {
		q = linkedhashmap.New()
		ws.queues[intent.Topic] = q
	}
	id := intent.ID()
	q.Put(id, intent)
	ws.live.SetDefault(id, struct{}{})
	return true
}

// Remove drops the given intents from their queues. Their IDs stay seen.
func (ws *WorkingSet) Remove(intents ...*types.Intent) {
	ws.mtx.Lock()
	defer ws.mtx.Unlock()

	for _, in := range intents {
		id := in.ID()
		if q, ok := ws.queues[in.Topic]; ok {
			q.Remove(id)
			if q.Empty() {
				delete(ws.queues, in.Topic)
			}
		}
		ws.live.Delete(id)
	}
}

// Pending returns the live intents of topic in arrival order.
func (ws *WorkingSet) Pending(topic string) []*types.Intent {
	ws.mtx.Lock()
	defer ws.mtx.Unlock()

	q, ok := ws.queues[topic]
	if !ok {
		return nil
	}
	out := make([]*types.Intent, 0, q.Size())
	it := q.Iterator()
	for it.Next() {
		if _, live := ws.live.Get(it.Key().(string)); live {
			out = append(out, it.Value().(*types.Intent))
		}
	}
	return out
}

// Len returns the number of intents queued across all topics, expired
// ones included until the next Prune.
func (ws *WorkingSet) Len() int {
	ws.mtx.Lock()
	defer ws.mtx.Unlock()

	n := 0
	for _, q := range ws.queues {
		n += q.Size()
	}
	return n
}

// Topics returns the topics with queued intents, sorted.
func (ws *WorkingSet) Topics() []string {
	ws.mtx.Lock()
	defer ws.mtx.Unlock()

	topics := make([]string, 0, len(ws.queues))
	for t := range ws.queues {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Prune drops expired intents and returns how many were dropped.
func (ws *WorkingSet) Prune() int {
	if ws.ttl <= 0 {
		return 0
	}
	ws.live.DeleteExpired()

	ws.mtx.Lock()
	defer ws.mtx.Unlock()

	pruned := 0
	for topic, q := range ws.queues {
		for _, k := range q.Keys() {
			if _, live := ws.live.Get(k.(string)); !live {
				q.Remove(k)
				pruned++
			}
		}
		if q.Empty() {
			delete(ws.queues, topic)
		}
	}
	return pruned
}
