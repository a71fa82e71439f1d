package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// ItemStore is an in-memory domain.ItemStore.
type ItemStore struct {
	mu    sync.RWMutex
	items map[string]domain.Item
	now   func() time.Time
}

// NewItemStore creates an empty ItemStore.
func NewItemStore() *ItemStore {
	return &ItemStore{items: make(map[string]domain.Item), now: time.Now}
}

// WithClock overrides the store clock. Test hook.
func (s *ItemStore) WithClock(clock func() time.Time) *ItemStore {
	s.now = clock
	return s
}

func (s *ItemStore) Create(ctx context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; ok {
		return fmt.Errorf("store: item %s: %w", item.ID, domain.ErrAlreadyExists)
	}
	s.items[item.ID] = cloneItem(item)
	return nil
}

func (s *ItemStore) GetByID(ctx context.Context, id string) (domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok || item.DeletedAt != nil {
		return domain.Item{}, fmt.Errorf("store: item %s: %w", id, domain.ErrNotFound)
	}
	return cloneItem(item), nil
}

func (s *ItemStore) Update(ctx context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[item.ID]
	if !ok || existing.DeletedAt != nil {
		return fmt.Errorf("store: item %s: %w", item.ID, domain.ErrNotFound)
	}
	s.items[item.ID] = cloneItem(item)
	return nil
}

func (s *ItemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok || item.DeletedAt != nil {
		return fmt.Errorf("store: item %s: %w", id, domain.ErrNotFound)
	}
	now := s.now().UTC()
	item.DeletedAt = &now
	s.items[id] = item
	return nil
}

func (s *ItemStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Item, error) {
	return s.filtered(opts, func(domain.Item) bool { return true })
}

func (s *ItemStore) ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Item, error) {
	return s.filtered(opts, func(i domain.Item) bool { return i.SellerID == sellerID })
}

func (s *ItemStore) ListByStatus(ctx context.Context, status domain.ItemStatus, opts domain.ListOpts) ([]domain.Item, error) {
	return s.filtered(opts, func(i domain.Item) bool { return i.Status == status })
}

func (s *ItemStore) ListByCategory(ctx context.Context, category string, opts domain.ListOpts) ([]domain.Item, error) {
	return s.filtered(opts, func(i domain.Item) bool { return i.Category == category })
}

func (s *ItemStore) ListEndingWithin(ctx context.Context, now time.Time, window time.Duration, opts domain.ListOpts) ([]domain.Item, error) {
	cutoff := now.Add(window)
	out := s.collect(func(i domain.Item) bool {
		return i.Status == domain.ItemStatusActive && i.AuctionEnd.After(now) && !i.AuctionEnd.After(cutoff)
	})
	sort.Slice(out, func(a, b int) bool { return out[a].AuctionEnd.Before(out[b].AuctionEnd) })
	return paginate(out, opts), nil
}

func (s *ItemStore) ListEndedSince(ctx context.Context, since time.Time, statuses []domain.ItemStatus, opts domain.ListOpts) ([]domain.Item, error) {
	want := make(map[domain.ItemStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	now := s.now()
	out := s.collect(func(i domain.Item) bool {
		return want[i.Status] && !i.AuctionEnd.Before(since) && !i.AuctionEnd.After(now)
	})
	sort.Slice(out, func(a, b int) bool { return out[a].AuctionEnd.Before(out[b].AuctionEnd) })
	return paginate(out, opts), nil
}

func (s *ItemStore) filtered(opts domain.ListOpts, keep func(domain.Item) bool) ([]domain.Item, error) {
	out := s.collect(keep)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

// collect returns clones of every live item matching keep, unordered.
func (s *ItemStore) collect(keep func(domain.Item) bool) []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Item
	for _, item := range s.items {
		if item.DeletedAt == nil && keep(item) {
			out = append(out, cloneItem(item))
		}
	}
	return out
}

func cloneItem(i domain.Item) domain.Item {
	cp := i
	cp.Tags = append([]string(nil), i.Tags...)
	if i.CurrentBid != nil {
		bid := *i.CurrentBid
		cp.CurrentBid = &bid
	}
	return cp
}
