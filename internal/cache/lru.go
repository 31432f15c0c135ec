package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache holds at most maxSize entries, each for ttl after its last Set.
// A non-positive ttl turns Set into a no-op, so every Get misses.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	index   map[string]*list.Element
	order   *list.List // front is most recently used
	now     func() time.Time
}

type entry[T any] struct {
	key     string
	value   T
	expires time.Time
}

func (e *entry[T]) expiredAt(t time.Time) bool {
	return t.After(e.expires)
}

func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		index:   map[string]*list.Element{},
		order:   list.New(),
		now:     time.Now,
	}
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	el, ok := c.index[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[T])
	if e.expiredAt(c.now()) {
		c.unlink(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores value under key and restarts its ttl.
func (c *LRUCache[T]) Set(key string, value T) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: key, value: value, expires: c.now().Add(c.ttl)}
	if el, ok := c.index[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(e)
	for c.order.Len() > c.maxSize {
		c.unlink(c.order.Back())
	}
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.unlink(el)
	}
}

// CleanExpired drops every expired entry and reports how many went.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry[T]).expiredAt(now) {
			c.unlink(el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache[T]) unlink(el *list.Element) {
	delete(c.index, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}
