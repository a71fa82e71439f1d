package domain

import (
	"context"
	"time"
)

// Cache TTL defaults. Highly mutable aggregates (highest bid, bid counts)
// use the short TTL; entity lookups use the default.
const (
	DefaultCacheTTL   = 5 * time.Minute
	AggregateCacheTTL = 30 * time.Second
)

// EntityCache is a TTL-bounded byte cache used by the read-through store
// decorators. Get returns ErrNotFound on a miss or expired entry.
type EntityCache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}

// LockManager provides mutual exclusion keyed by string. Per-item bid
// placement is serialized through it so the strictly-greater-than invariant
// cannot be broken by interleaved bids.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned unlock
	// function is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus carries auction lifecycle events (auction_created, bid_placed,
// auction_ended, winner_confirmed) to in-process and external subscribers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Event is the JSON payload published on the signal bus.
type Event struct {
	Type      string    `json:"type"`
	ItemID    string    `json:"item_id,omitempty"`
	BidID     string    `json:"bid_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Amount    *Amount   `json:"amount,omitempty"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Signal bus channels.
const (
	ChannelAuctions = "auctions"
	ChannelBids     = "bids"
	ChannelWinners  = "winners"
)
