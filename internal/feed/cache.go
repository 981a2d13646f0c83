package feed

import (
	"sync"

	"github.com/google/uuid"
	"github.com/newthinker/feedd/internal/core"
)

// DefaultSubscriberBuffer bounds the per-subscriber queue. A slow
// subscriber loses its oldest queued snapshots, never the publisher's
// time.
const DefaultSubscriberBuffer = 8

// Cache holds the latest published snapshot and pushes updates to
// subscribers. Readers never trigger a fetch; publication is owned by
// the orchestrator. Published snapshots are treated as immutable.
type Cache struct {
	mu      sync.RWMutex
	current core.Snapshot
	subs    map[string]chan core.Snapshot
	bufSize int
}

// Subscription is a live feed of published snapshots. The channel is
// closed on Close.
type Subscription struct {
	ID string
	C  <-chan core.Snapshot

	cache *Cache
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.cache.unsubscribe(s.ID)
}

// NewCache creates a cache serving the empty initial state. bufSize < 1
// falls back to DefaultSubscriberBuffer.
func NewCache(bufSize int) *Cache {
	if bufSize < 1 {
		bufSize = DefaultSubscriberBuffer
	}
	return &Cache{
		current: core.EmptySnapshot(),
		subs:    make(map[string]chan core.Snapshot),
		bufSize: bufSize,
	}
}

// Get returns the last published snapshot. Never blocks on network.
func (c *Cache) Get() core.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Clone()
}

// Publish replaces the current snapshot and fans it out. Publications
// are total-ordered: every subscriber observes them in call order.
func (c *Cache) Publish(snap core.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = snap
	for _, ch := range c.subs {
		c.offer(ch, snap.Clone())
	}
}

// offer enqueues without ever blocking: on a full queue the oldest
// entry is dropped to make room.
func (c *Cache) offer(ch chan core.Snapshot, snap core.Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Subscribe attaches a new subscriber. The subscriber immediately
// receives the snapshot current at subscription time, then every
// subsequent publication.
func (c *Cache) Subscribe() *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan core.Snapshot, c.bufSize)
	ch <- c.current.Clone()
	c.subs[id] = ch

	return &Subscription{ID: id, C: ch, cache: c}
}

func (c *Cache) unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the number of attached subscribers.
func (c *Cache) SubscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}
