package cache

import (
	"sync"
	"time"
)

// TTL is an in-memory map whose entries expire after ttl without access.
type TTL[V any] struct {
	mu    sync.Mutex
	items map[string]item[V]
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

type item[V any] struct {
	val V
	exp time.Time
}

// New returns a TTL map and starts a background sweep every ttl/2. Call Close to stop it.
func New[V any](ttl time.Duration) *TTL[V] {
	c := &TTL[V]{items: make(map[string]item[V]), ttl: ttl, now: time.Now, stop: make(chan struct{})}
	go c.cleanup()
	return c
}

func (c *TTL[V]) cleanup() {
	interval := c.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-tick.C:
			c.Sweep()
		}
	}
}

// Sweep removes expired entries.
func (c *TTL[V]) Sweep() {
	c.mu.Lock()
	now := c.now()
	for k, v := range c.items {
		if v.exp.Before(now) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}

// Get returns the value for key if present and not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok || it.exp.Before(c.now()) {
		var zero V
		return zero, false
	}
	return it.val, true
}

// Set stores the value for key with the cache TTL.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	c.items[key] = item[V]{val: value, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// GetOrCreate returns the live value for key, creating it with mk when absent or expired.
// Every call extends the entry's expiry.
func (c *TTL[V]) GetOrCreate(key string, mk func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	it, ok := c.items[key]
	if !ok || it.exp.Before(now) {
		it = item[V]{val: mk()}
	}
	it.exp = now.Add(c.ttl)
	c.items[key] = it
	return it.val
}

// Delete removes the key.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included until the next sweep.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close stops the background sweep.
func (c *TTL[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}
