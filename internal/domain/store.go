package domain

import (
	"context"
	"time"
)

// Pagination clamp bounds. Every store implementation applies Clamp before
// touching its backend.
const (
	MinPageLimit     = 1
	MaxPageLimit     = 100
	DefaultPageLimit = 20
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// Clamp normalizes opts into [1,100] for Limit and >= 0 for Offset. A zero
// Limit becomes the default page size.
func (o ListOpts) Clamp() ListOpts {
	if o.Limit == 0 {
		o.Limit = DefaultPageLimit
	}
	if o.Limit < MinPageLimit {
		o.Limit = MinPageLimit
	}
	if o.Limit > MaxPageLimit {
		o.Limit = MaxPageLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// UserStore persists users. Delete is a soft delete; deleted users are
// excluded from reads.
type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	Update(ctx context.Context, u User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOpts) ([]User, error)

	// AdjustReputation applies an audited delta with a mandatory reason,
	// clamping the resulting score to [0,100] and recording a ReputationEvent.
	AdjustReputation(ctx context.Context, id string, delta float64, reason string) (User, error)
	ReputationHistory(ctx context.Context, id string, opts ListOpts) ([]ReputationEvent, error)
}

// ItemStore persists auction items with status/seller/category indexes.
// Delete is a soft delete.
type ItemStore interface {
	Create(ctx context.Context, item Item) error
	GetByID(ctx context.Context, id string) (Item, error)
	Update(ctx context.Context, item Item) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOpts) ([]Item, error)
	ListBySeller(ctx context.Context, sellerID string, opts ListOpts) ([]Item, error)
	ListByStatus(ctx context.Context, status ItemStatus, opts ListOpts) ([]Item, error)
	ListByCategory(ctx context.Context, category string, opts ListOpts) ([]Item, error)

	// ListEndingWithin returns active items whose auction end falls in
	// (now, now+window], ordered by soonest end first.
	ListEndingWithin(ctx context.Context, now time.Time, window time.Duration, opts ListOpts) ([]Item, error)

	// ListEndedSince returns items of the given statuses whose auction end
	// falls in [since, now]. Used by the background winner verifier.
	ListEndedSince(ctx context.Context, since time.Time, statuses []ItemStatus, opts ListOpts) ([]Item, error)
}

// BidStore persists bids with item and bidder indexes.
type BidStore interface {
	Create(ctx context.Context, bid Bid) error
	GetByID(ctx context.Context, id string) (Bid, error)
	GetByIdempotencyKey(ctx context.Context, key string) (Bid, error)
	Update(ctx context.Context, bid Bid) error

	// Delete removes a bid entirely. Only pending bids whose funding never
	// completed are deleted; settled history is immutable.
	Delete(ctx context.Context, id string) error

	// ListByItem orders bids by amount descending, ties broken by earliest
	// CreatedAt.
	ListByItem(ctx context.Context, itemID string, opts ListOpts) ([]Bid, error)
	ListByBidder(ctx context.Context, bidderID string, opts ListOpts) ([]Bid, error)

	// Highest returns the maximal-amount bid among non-outbid, non-refunded
	// bids for the item, or ErrNotFound when no such bid exists.
	Highest(ctx context.Context, itemID string) (Bid, error)
	CountByItem(ctx context.Context, itemID string) (int64, error)

	// MarkOutbid sets every non-refunded bid for itemID other than
	// winningBidID to outbid. Idempotent.
	MarkOutbid(ctx context.Context, itemID, winningBidID string) error
}
