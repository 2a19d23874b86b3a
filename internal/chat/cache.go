package chat

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache maps conversation id to its Timeline, holding at most a fixed number
// of conversations. When a new key is inserted at capacity the
// least-recently-touched conversation is evicted. Get, Put and GetOrCreate
// all count as a touch, so background push traffic into a conversation that
// is not on screen still keeps it warm.
//
// Cache contents are advisory: an evicted conversation is simply rebuilt
// from a fresh initial page load the next time it is selected.
type Cache struct {
	entries *lru.Cache[string, *Timeline]
}

// NewCache creates a cache holding at most capacity conversations.
func NewCache(capacity int) (*Cache, error) {
	entries, err := lru.New[string, *Timeline](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Get returns the timeline for id, touching it, or ok=false if absent.
func (c *Cache) Get(id string) (*Timeline, bool) {
	return c.entries.Get(id)
}

// Put inserts or overwrites the timeline for id, touching it. Inserting a
// new key at capacity evicts the least-recently-touched entry.
func (c *Cache) Put(id string, t *Timeline) {
	c.entries.Add(id, t)
}

// GetOrCreate returns the timeline for id, creating an empty one if absent.
func (c *Cache) GetOrCreate(id string) *Timeline {
	if t, ok := c.entries.Get(id); ok {
		return t
	}
	t := NewTimeline()
	c.entries.Add(id, t)
	return t
}

// Len returns the number of cached conversations.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Keys returns cached conversation ids, least-recently-touched first.
func (c *Cache) Keys() []string {
	return c.entries.Keys()
}
