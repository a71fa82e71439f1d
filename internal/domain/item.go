// Package domain defines the core entities, lifecycle rules, and the store,
// cache, and blockchain port interfaces of the Sapphire Exchange auction core.
// Concrete implementations live in their own packages and are injected
// explicitly; there is no ambient global state.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ItemStatus is the auction lifecycle state of an item.
type ItemStatus string

const (
	ItemStatusDraft     ItemStatus = "draft"
	ItemStatusActive    ItemStatus = "active"
	ItemStatusSold      ItemStatus = "sold"
	ItemStatusExpired   ItemStatus = "expired"
	ItemStatusCancelled ItemStatus = "cancelled"
)

// Field limits and timing constraints for auction items.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 2000
	MaxTagsPerItem       = 10
	MaxTagLength         = 20
	MinAuctionLeadTime   = 30 * time.Minute
)

// itemTransitions is the full transition table of the auction state machine.
// Once active, an item can only move forward.
var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemStatusDraft:  {ItemStatusActive, ItemStatusCancelled},
	ItemStatusActive: {ItemStatusSold, ItemStatusExpired, ItemStatusCancelled},
}

// CanTransitionTo reports whether the state machine allows moving from s to
// next. Terminal states allow nothing.
func (s ItemStatus) CanTransitionTo(next ItemStatus) bool {
	for _, allowed := range itemTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusDraft, ItemStatusActive, ItemStatusSold, ItemStatusExpired, ItemStatusCancelled:
		return true
	}
	return false
}

// Item is an auction listing. An item is created in draft, becomes active
// only after its initial snapshot is published to the content store, and is
// settled to sold or expired at auction end.
type Item struct {
	ID       string `json:"id"`
	SellerID string `json:"seller_id"`

	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Category    string   `json:"category,omitempty"`

	StartingPrice   Amount  `json:"starting_price"`
	CurrentBid      *Amount `json:"current_bid,omitempty"`
	CurrentBidderID string  `json:"current_bidder_id,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	AuctionEnd time.Time `json:"auction_end"`

	Status ItemStatus `json:"status"`

	// Per-auction wallet, deterministically derived from the seller's master
	// seed and the item ID. The private key is stored encrypted.
	AuctionAddress    string `json:"auction_address,omitempty"`
	AuctionPublicKey  string `json:"auction_public_key,omitempty"`
	AuctionPrivateKey string `json:"auction_private_key,omitempty"`
	WalletIndex       uint32 `json:"wallet_index,omitempty"`

	DataHash         string `json:"data_hash,omitempty"`
	ContentID        string `json:"content_id,omitempty"`
	ContentConfirmed bool   `json:"content_confirmed"`

	ConfirmedWinner   bool `json:"confirmed_winner"`
	ConfirmationCount int  `json:"confirmation_count"`

	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Ended reports whether the auction end time has passed.
func (i *Item) Ended(now time.Time) bool {
	return !now.Before(i.AuctionEnd)
}

// HighestPrice returns the amount a new bid must strictly exceed: the current
// bid if one exists, otherwise the starting price.
func (i *Item) HighestPrice() Amount {
	if i.CurrentBid != nil {
		return *i.CurrentBid
	}
	return i.StartingPrice
}

// itemHashFields is the canonical subset of item fields covered by DataHash.
// Wallet secrets and mutable bid state are deliberately excluded.
type itemHashFields struct {
	ID            string `json:"id"`
	SellerID      string `json:"seller_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	StartingPrice Amount `json:"starting_price"`
	AuctionEnd    string `json:"auction_end"`
	CreatedAt     string `json:"created_at"`
}

// CalculateDataHash computes the SHA-256 integrity hash over the canonical
// subset of item fields. The result is stable across storage round trips.
func (i *Item) CalculateDataHash() string {
	subset := itemHashFields{
		ID:            i.ID,
		SellerID:      i.SellerID,
		Title:         i.Title,
		Description:   i.Description,
		StartingPrice: i.StartingPrice,
		AuctionEnd:    i.AuctionEnd.UTC().Format(time.RFC3339Nano),
		CreatedAt:     i.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(subset)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
