// Package memory provides in-process implementations of the cache, lock, and
// signal bus ports. They back single-node deployments and tests; multi-node
// deployments use the redis package instead.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is a TTL-bounded in-process byte cache. Expired entries are dropped
// lazily on read.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]entry), now: time.Now}
}

// WithClock overrides the cache clock. Test hook.
func (c *Cache) WithClock(clock func() time.Time) *Cache {
	c.now = clock
	return c
}

// Set stores value under key for ttl. A non-positive ttl falls back to the
// default entity TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = domain.DefaultCacheTTL
	}
	cp := make([]byte, len(value))
	copy(cp, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: cp, expiresAt: c.now().Add(ttl)}
	return nil
}

// Get returns the cached value or ErrNotFound on a miss or expired entry.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, domain.ErrNotFound
	}
	cp := make([]byte, len(e.value))
	copy(cp, e.value)
	return cp, nil
}

// Delete removes the given keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

// LockManager serializes access per key within a single process.
type LockManager struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]time.Time), now: time.Now}
}

// Acquire obtains the lock for key or returns ErrLockHeld when another holder
// owns it and its TTL has not lapsed. The returned unlock function is safe to
// call more than once.
func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiry, ok := m.held[key]; ok && now.Before(expiry) {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = now.Add(ttl)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.held, key)
		})
	}
	return unlock, nil
}

// Bus is an in-process signal bus. Subscribers receive every payload
// published to their channel after they subscribed; slow subscribers drop
// messages rather than block publishers.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan []byte)}
}

// Publish delivers payload to every current subscriber of channel.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	subs := append([]chan []byte(nil), b.subs[channel]...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel. The channel
// is closed when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		subs := b.subs[channel]
		for i, s := range subs {
			if s == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
