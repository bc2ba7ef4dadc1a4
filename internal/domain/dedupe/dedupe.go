package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50000

// entry is one remembered request outcome.
type entry[V any] struct {
	id    string
	value V
}

// Cache maps request ids to the result of their first successful
// execution. In bounded mode the oldest id is evicted first.
type Cache[V any] struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = oldest
	maxSize int
	size    atomic.Int64
}

// New creates a cache with configuration options.
func New[V any](opts ...Option) *Cache[V] {
	s := settings{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(&s)
	}
	return &Cache[V]{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: s.maxSize,
	}
}

// Lookup returns the remembered result for id.
func (c *Cache[V]) Lookup(_ context.Context, id string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		return el.Value.(*entry[V]).value, true
	}
	var zero V
	return zero, false
}

// Remember stores the result for id. An id already present keeps its
// first result.
func (c *Cache[V]) Remember(_ context.Context, id string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; ok {
		return
	}
	if c.maxSize > 0 && c.order.Len() >= c.maxSize {
		c.evictOldest()
	}
	c.items[id] = c.order.PushBack(&entry[V]{id: id, value: v})
	c.size.Add(1)
}

// Forget drops id so a later request with it executes again.
func (c *Cache[V]) Forget(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[id]; ok {
		c.order.Remove(el)
		delete(c.items, id)
		c.size.Add(-1)
	}
}

// evictOldest must be called with c.mu held.
func (c *Cache[V]) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.items, front.Value.(*entry[V]).id)
	c.size.Add(-1)
}

// Size returns the number of remembered ids.
func (c *Cache[V]) Size() int64 {
	return c.size.Load()
}
