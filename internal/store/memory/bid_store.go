package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// BidStore is an in-memory domain.BidStore.
type BidStore struct {
	mu   sync.RWMutex
	bids map[string]domain.Bid
}

// NewBidStore creates an empty BidStore.
func NewBidStore() *BidStore {
	return &BidStore{bids: make(map[string]domain.Bid)}
}

func (s *BidStore) Create(ctx context.Context, bid domain.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bids[bid.ID]; ok {
		return fmt.Errorf("store: bid %s: %w", bid.ID, domain.ErrAlreadyExists)
	}
	if bid.IdempotencyKey != "" {
		for _, existing := range s.bids {
			if existing.IdempotencyKey == bid.IdempotencyKey {
				return fmt.Errorf("store: idempotency key %s: %w", bid.IdempotencyKey, domain.ErrAlreadyExists)
			}
		}
	}
	s.bids[bid.ID] = cloneBid(bid)
	return nil
}

func (s *BidStore) GetByID(ctx context.Context, id string) (domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bid, ok := s.bids[id]
	if !ok {
		return domain.Bid{}, fmt.Errorf("store: bid %s: %w", id, domain.ErrNotFound)
	}
	return cloneBid(bid), nil
}

func (s *BidStore) GetByIdempotencyKey(ctx context.Context, key string) (domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, bid := range s.bids {
		if bid.IdempotencyKey != "" && bid.IdempotencyKey == key {
			return cloneBid(bid), nil
		}
	}
	return domain.Bid{}, fmt.Errorf("store: idempotency key %s: %w", key, domain.ErrNotFound)
}

func (s *BidStore) Update(ctx context.Context, bid domain.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bids[bid.ID]; !ok {
		return fmt.Errorf("store: bid %s: %w", bid.ID, domain.ErrNotFound)
	}
	s.bids[bid.ID] = cloneBid(bid)
	return nil
}

func (s *BidStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bids[id]; !ok {
		return fmt.Errorf("store: bid %s: %w", id, domain.ErrNotFound)
	}
	delete(s.bids, id)
	return nil
}

func (s *BidStore) ListByItem(ctx context.Context, itemID string, opts domain.ListOpts) ([]domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Bid
	for _, bid := range s.bids {
		if bid.ItemID == itemID {
			out = append(out, cloneBid(bid))
		}
	}
	sortByAmountDesc(out)
	return paginate(out, opts), nil
}

func (s *BidStore) ListByBidder(ctx context.Context, bidderID string, opts domain.ListOpts) ([]domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Bid
	for _, bid := range s.bids {
		if bid.BidderID == bidderID {
			out = append(out, cloneBid(bid))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

func (s *BidStore) Highest(ctx context.Context, itemID string) (domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []domain.Bid
	for _, bid := range s.bids {
		if bid.ItemID != itemID {
			continue
		}
		if bid.Status == domain.BidStatusOutbid || bid.Status == domain.BidStatusRefunded {
			continue
		}
		candidates = append(candidates, cloneBid(bid))
	}
	if len(candidates) == 0 {
		return domain.Bid{}, fmt.Errorf("store: highest bid for item %s: %w", itemID, domain.ErrNotFound)
	}
	sortByAmountDesc(candidates)
	return candidates[0], nil
}

func (s *BidStore) CountByItem(ctx context.Context, itemID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, bid := range s.bids {
		if bid.ItemID == itemID {
			n++
		}
	}
	return n, nil
}

func (s *BidStore) MarkOutbid(ctx context.Context, itemID, winningBidID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, bid := range s.bids {
		if bid.ItemID != itemID || id == winningBidID {
			continue
		}
		if bid.Status == domain.BidStatusRefunded {
			continue
		}
		bid.Status = domain.BidStatusOutbid
		s.bids[id] = bid
	}
	return nil
}

// sortByAmountDesc orders bids by amount descending, ties broken by earliest
// CreatedAt. Amounts within one item share a currency, so the comparison
// cannot fail; a mismatch sorts arbitrarily rather than panicking.
func sortByAmountDesc(bids []domain.Bid) {
	sort.Slice(bids, func(i, j int) bool {
		cmp, err := bids[i].Amount.Cmp(bids[j].Amount)
		if err != nil || cmp == 0 {
			return bids[i].CreatedAt.Before(bids[j].CreatedAt)
		}
		return cmp > 0
	})
}

func cloneBid(b domain.Bid) domain.Bid {
	cp := b
	if b.AmountUSD != nil {
		usd := *b.AmountUSD
		cp.AmountUSD = &usd
	}
	if b.ConfirmedAt != nil {
		ts := *b.ConfirmedAt
		cp.ConfirmedAt = &ts
	}
	return cp
}
