// Package cached provides read-through caching decorators for the store
// interfaces. Entity lookups are cached for the default TTL; highly mutable
// aggregates (highest bid, bid counts) use the short aggregate TTL. Writes
// pass through and invalidate the affected keys.
package cached

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

func itemKey(id string) string     { return "item:" + id }
func userKey(id string) string     { return "user:" + id }
func usernameKey(u string) string  { return "user:name:" + u }
func bidKey(id string) string      { return "bid:" + id }
func highestKey(item string) string { return "bid:highest:" + item }
func countKey(item string) string  { return "bid:count:" + item }

// readThrough fetches key from the cache, falling back to load and caching
// the result for ttl. Cache failures degrade to the backing store.
func readThrough[T any](ctx context.Context, c domain.EntityCache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var out T
	if raw, err := c.Get(ctx, key); err == nil {
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
	}
	out, err := load(ctx)
	if err != nil {
		return out, err
	}
	if raw, err := json.Marshal(out); err == nil {
		_ = c.Set(ctx, key, raw, ttl)
	}
	return out, nil
}

// ItemStore decorates a domain.ItemStore with entity caching.
type ItemStore struct {
	domain.ItemStore
	cache domain.EntityCache
}

// NewItemStore wraps next with a read-through cache.
func NewItemStore(next domain.ItemStore, cache domain.EntityCache) *ItemStore {
	return &ItemStore{ItemStore: next, cache: cache}
}

func (s *ItemStore) GetByID(ctx context.Context, id string) (domain.Item, error) {
	return readThrough(ctx, s.cache, itemKey(id), domain.DefaultCacheTTL, func(ctx context.Context) (domain.Item, error) {
		return s.ItemStore.GetByID(ctx, id)
	})
}

func (s *ItemStore) Update(ctx context.Context, item domain.Item) error {
	if err := s.ItemStore.Update(ctx, item); err != nil {
		return err
	}
	return s.invalidate(ctx, item.ID)
}

func (s *ItemStore) Delete(ctx context.Context, id string) error {
	if err := s.ItemStore.Delete(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *ItemStore) invalidate(ctx context.Context, id string) error {
	if err := s.cache.Delete(ctx, itemKey(id)); err != nil {
		return fmt.Errorf("cached: invalidate item %s: %w", id, err)
	}
	return nil
}

// UserStore decorates a domain.UserStore with entity caching.
type UserStore struct {
	domain.UserStore
	cache domain.EntityCache
}

// NewUserStore wraps next with a read-through cache.
func NewUserStore(next domain.UserStore, cache domain.EntityCache) *UserStore {
	return &UserStore{UserStore: next, cache: cache}
}

func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	return readThrough(ctx, s.cache, userKey(id), domain.DefaultCacheTTL, func(ctx context.Context) (domain.User, error) {
		return s.UserStore.GetByID(ctx, id)
	})
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return readThrough(ctx, s.cache, usernameKey(username), domain.DefaultCacheTTL, func(ctx context.Context) (domain.User, error) {
		return s.UserStore.GetByUsername(ctx, username)
	})
}

func (s *UserStore) Update(ctx context.Context, u domain.User) error {
	if err := s.UserStore.Update(ctx, u); err != nil {
		return err
	}
	return s.invalidate(ctx, u)
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	u, err := s.UserStore.GetByID(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err := s.UserStore.Delete(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, u)
}

func (s *UserStore) AdjustReputation(ctx context.Context, id string, delta float64, reason string) (domain.User, error) {
	u, err := s.UserStore.AdjustReputation(ctx, id, delta, reason)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.invalidate(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s *UserStore) invalidate(ctx context.Context, u domain.User) error {
	keys := []string{userKey(u.ID)}
	if u.Username != "" {
		keys = append(keys, usernameKey(u.Username))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("cached: invalidate user %s: %w", u.ID, err)
	}
	return nil
}

// BidStore decorates a domain.BidStore. Single bids cache for the entity
// TTL; the per-item highest bid and count use the aggregate TTL since they
// churn with every bid.
type BidStore struct {
	domain.BidStore
	cache domain.EntityCache
}

// NewBidStore wraps next with a read-through cache.
func NewBidStore(next domain.BidStore, cache domain.EntityCache) *BidStore {
	return &BidStore{BidStore: next, cache: cache}
}

func (s *BidStore) GetByID(ctx context.Context, id string) (domain.Bid, error) {
	return readThrough(ctx, s.cache, bidKey(id), domain.DefaultCacheTTL, func(ctx context.Context) (domain.Bid, error) {
		return s.BidStore.GetByID(ctx, id)
	})
}

func (s *BidStore) Highest(ctx context.Context, itemID string) (domain.Bid, error) {
	return readThrough(ctx, s.cache, highestKey(itemID), domain.AggregateCacheTTL, func(ctx context.Context) (domain.Bid, error) {
		return s.BidStore.Highest(ctx, itemID)
	})
}

func (s *BidStore) CountByItem(ctx context.Context, itemID string) (int64, error) {
	return readThrough(ctx, s.cache, countKey(itemID), domain.AggregateCacheTTL, func(ctx context.Context) (int64, error) {
		return s.BidStore.CountByItem(ctx, itemID)
	})
}

func (s *BidStore) Create(ctx context.Context, bid domain.Bid) error {
	if err := s.BidStore.Create(ctx, bid); err != nil {
		return err
	}
	return s.invalidate(ctx, bid)
}

func (s *BidStore) Update(ctx context.Context, bid domain.Bid) error {
	if err := s.BidStore.Update(ctx, bid); err != nil {
		return err
	}
	return s.invalidate(ctx, bid)
}

func (s *BidStore) Delete(ctx context.Context, id string) error {
	bid, err := s.BidStore.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.BidStore.Delete(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, bid)
}

func (s *BidStore) MarkOutbid(ctx context.Context, itemID, winningBidID string) error {
	if err := s.BidStore.MarkOutbid(ctx, itemID, winningBidID); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, highestKey(itemID), countKey(itemID)); err != nil {
		return fmt.Errorf("cached: invalidate item bids %s: %w", itemID, err)
	}
	return nil
}

func (s *BidStore) invalidate(ctx context.Context, bid domain.Bid) error {
	if err := s.cache.Delete(ctx, bidKey(bid.ID), highestKey(bid.ItemID), countKey(bid.ItemID)); err != nil {
		return fmt.Errorf("cached: invalidate bid %s: %w", bid.ID, err)
	}
	return nil
}
