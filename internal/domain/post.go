package domain

import "time"

// AuctionSnapshot is the subset of item fields embedded in every published
// post. Snapshots are immutable once published; the current state of an
// auction is reconstructed by merging all discovered snapshots
// last-write-wins on UpdatedAt.
type AuctionSnapshot struct {
	ItemID   string `json:"item_id"`
	DataHash string `json:"sha_id,omitempty"`
	SellerID string `json:"seller_id"`

	Title       string `json:"title"`
	Description string `json:"description"`

	StartingPrice   Amount  `json:"starting_price"`
	CurrentBid      *Amount `json:"current_bid,omitempty"`
	CurrentBidderID string  `json:"current_bidder_id,omitempty"`

	AuctionEnd time.Time  `json:"auction_end"`
	Status     ItemStatus `json:"status"`

	AuctionWalletAddress   string `json:"auction_wallet_address,omitempty"`
	AuctionWalletPublicKey string `json:"auction_wallet_public_key,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`

	Winner            string  `json:"winner,omitempty"`
	WinningBid        *Amount `json:"winning_bid,omitempty"`
	ConfirmedWinner   bool    `json:"confirmed_winner,omitempty"`
	ConfirmationCount int     `json:"confirmation_count,omitempty"`
}

// ExpiringEntry summarizes an auction ending within the next 24 hours, for
// the bottom section of every published post.
type ExpiringEntry struct {
	ItemID          string    `json:"item_id"`
	Title           string    `json:"title"`
	AuctionEnd      time.Time `json:"auction_end"`
	CurrentBid      *Amount   `json:"current_bid,omitempty"`
	CurrentBidderID string    `json:"current_bidder_id,omitempty"`
	AuctionAddress  string    `json:"auction_address,omitempty"`
}

// PostVersion is the current post schema version.
const PostVersion = "1.0"

// Post is a content-addressed auction document. Posts link to earlier posts
// through explicit References rather than by scanning serialized JSON for
// ID-shaped substrings, so discovery never follows a false-positive match.
type Post struct {
	Version   string    `json:"version"`
	Sequence  uint32    `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
	PostedBy  string    `json:"posted_by"`

	Auction          AuctionSnapshot `json:"auction"`
	ExpiringAuctions []ExpiringEntry `json:"expiring_auctions"`

	// References lists content IDs of related posts (the previous snapshot of
	// this auction, recently seen posts). Discovery walks these links.
	References []string `json:"references,omitempty"`

	// PreviousPost chains inventory updates: the content ID of the post this
	// one supersedes, if any.
	PreviousPost string `json:"previous_post,omitempty"`
}
