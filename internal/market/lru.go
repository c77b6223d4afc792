package market

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"

	"github.com/pennypulse/pennypulse/internal/models"
)

const lruShards = 16

// barLRU is the in-process memory tier: a sharded LRU with a hard entry cap
// and per-entry TTL. The cap is enforced on insert; expiry never relies on GC.
// Sharding keeps the analyzer's bulk reads off the cycle loop's hot locks.
type barLRU struct {
	shards [lruShards]*lruShard
}

type lruShard struct {
	mu      sync.Mutex
	cap     int
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type lruEntry struct {
	key     string
	bars    []models.Bar
	expires time.Time
}

func newBarLRU(maxEntries int) *barLRU {
	perShard := maxEntries / lruShards
	if perShard < 1 {
		perShard = 1
	}
	c := &barLRU{}
	for i := range c.shards {
		c.shards[i] = &lruShard{
			cap:     perShard,
			entries: make(map[string]*list.Element),
			order:   list.New(),
		}
	}
	return c
}

func (c *barLRU) shard(key string) *lruShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%lruShards]
}

// Get returns the cached bars, or false on miss or expiry. Expired entries are
// removed eagerly so the cap reflects live data.
func (c *barLRU) Get(key string, now time.Time) ([]models.Bar, bool) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*lruEntry)
	if now.After(entry.expires) {
		s.order.Remove(el)
		delete(s.entries, key)
		return nil, false
	}
	s.order.MoveToFront(el)
	return entry.bars, true
}

// Put inserts or refreshes an entry, evicting the shard's LRU tail at cap.
func (c *barLRU) Put(key string, bars []models.Bar, ttl time.Duration, now time.Time) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		entry := el.Value.(*lruEntry)
		entry.bars = bars
		entry.expires = now.Add(ttl)
		s.order.MoveToFront(el)
		return
	}

	for len(s.entries) >= s.cap {
		tail := s.order.Back()
		if tail == nil {
			break
		}
		s.order.Remove(tail)
		delete(s.entries, tail.Value.(*lruEntry).key)
	}

	el := s.order.PushFront(&lruEntry{key: key, bars: bars, expires: now.Add(ttl)})
	s.entries[key] = el
}

// Len counts live entries across shards.
func (c *barLRU) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
