package domain

import "time"

// BidStatus is the lifecycle state of a bid.
type BidStatus string

const (
	BidStatusPending   BidStatus = "pending"
	BidStatusConfirmed BidStatus = "confirmed"
	BidStatusOutbid    BidStatus = "outbid"
	BidStatusWon       BidStatus = "won"
	BidStatusRefunded  BidStatus = "refunded"
)

// Valid reports whether s is a known bid status.
func (s BidStatus) Valid() bool {
	switch s {
	case BidStatusPending, BidStatusConfirmed, BidStatusOutbid, BidStatusWon, BidStatusRefunded:
		return true
	}
	return false
}

// Bid is a single bid on an auction item. A bid is created pending, becomes
// confirmed once its value transfer succeeded and its record was published to
// the content store, and ends as outbid, won, or refunded. At settlement
// exactly one bid per item may be won; all other non-refunded bids are outbid.
type Bid struct {
	ID       string `json:"id"`
	ItemID   string `json:"item_id"`
	BidderID string `json:"bidder_id"`

	Amount    Amount  `json:"amount"`
	AmountUSD *Amount `json:"amount_usd,omitempty"`

	// TransactionHash is the 64-hex reference of the paired value transfer.
	TransactionHash string `json:"transaction_hash,omitempty"`
	ContentID       string `json:"content_id,omitempty"`

	// IdempotencyKey dedupes client retries of the non-idempotent place-bid
	// write. Assigned by the client; the ledger rejects a replay.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	Status      BidStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// BidRecord is the JSON shape of a bid as published to the content store.
type BidRecord struct {
	ItemID          string    `json:"item_id"`
	BidderID        string    `json:"bidder_id"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	TransactionHash string    `json:"transaction_hash"`
	Status          BidStatus `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// Record converts the bid to its published wire shape.
func (b *Bid) Record() BidRecord {
	return BidRecord{
		ItemID:          b.ItemID,
		BidderID:        b.BidderID,
		Amount:          b.Amount.Value,
		Currency:        b.Amount.Currency,
		TransactionHash: b.TransactionHash,
		Status:          b.Status,
		CreatedAt:       b.CreatedAt,
	}
}
