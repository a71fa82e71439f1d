// Package ledger implements bid placement and the bid history of an auction.
// A bid is only confirmed once its value transfer succeeded and its record
// was published; a failure at either step leaves no confirmed bid behind.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sapphirelabs/sapphire-exchange/internal/content"
	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// bidLockTTL bounds how long a per-item bid lock may be held if a holder
// crashes before releasing it.
const bidLockTTL = 30 * time.Second

// BidMemo formats the transfer memo that ties a value transfer to its bid.
// The winner verifier parses this memo back out of deposit history.
func BidMemo(bidID string) string {
	return "bid:" + bidID
}

// ParseBidMemo extracts the bid ID from a transfer memo, reporting whether
// the memo is a bid memo at all.
func ParseBidMemo(memo string) (string, bool) {
	const prefix = "bid:"
	if len(memo) <= len(prefix) || memo[:len(prefix)] != prefix {
		return "", false
	}
	return memo[len(prefix):], true
}

// PlaceBidRequest carries everything needed to place one bid.
type PlaceBidRequest struct {
	ItemID   string
	BidderID string
	Amount   domain.Amount

	// BidderAddress is the wallet the deposit is drawn from.
	BidderAddress string

	// IdempotencyKey dedupes client retries. Optional; when set, a replayed
	// key returns the original bid instead of placing a second one.
	IdempotencyKey string
}

// Ledger places bids and serves bid history.
type Ledger struct {
	items     domain.ItemStore
	bids      domain.BidStore
	transfer  domain.ValueTransferPort
	publisher *content.Publisher
	locks     domain.LockManager
	bus       domain.SignalBus
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs a Ledger. The signal bus may be nil; events are then
// dropped.
func New(
	items domain.ItemStore,
	bids domain.BidStore,
	transfer domain.ValueTransferPort,
	publisher *content.Publisher,
	locks domain.LockManager,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Ledger {
	return &Ledger{
		items:     items,
		bids:      bids,
		transfer:  transfer,
		publisher: publisher,
		locks:     locks,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the ledger's clock. Test hook.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.now = clock
	return l
}

// PlaceBid validates, funds, publishes, and records a bid on an active
// auction. Placement per item is serialized through the lock manager so two
// concurrent bids cannot both pass the strictly-greater check. On success the
// bid is confirmed, the previous leader is marked outbid, and the item's
// current bid is advanced.
func (l *Ledger) PlaceBid(ctx context.Context, req PlaceBidRequest) (domain.Bid, error) {
	if req.ItemID == "" {
		return domain.Bid{}, domain.Validation("item_id", "required")
	}
	if req.BidderID == "" {
		return domain.Bid{}, domain.Validation("bidder_id", "required")
	}
	if req.BidderAddress == "" {
		return domain.Bid{}, domain.Validation("bidder_address", "required")
	}
	if req.Amount.IsZero() || req.Amount.IsNegative() {
		return domain.Bid{}, domain.Validation("amount", "must be positive")
	}

	if req.IdempotencyKey != "" {
		prior, err := l.bids.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			return prior, nil
		case !errors.Is(err, domain.ErrNotFound):
			return domain.Bid{}, fmt.Errorf("ledger: idempotency lookup: %w", err)
		}
	}

	unlock, err := l.locks.Acquire(ctx, "bid:"+req.ItemID, bidLockTTL)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("ledger: lock item %s: %w", req.ItemID, err)
	}
	defer unlock()

	item, err := l.items.GetByID(ctx, req.ItemID)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("ledger: load item %s: %w", req.ItemID, err)
	}

	now := l.now().UTC()
	if item.Status != domain.ItemStatusActive {
		return domain.Bid{}, &domain.StateConflictError{
			Entity: "item", ID: item.ID, State: string(item.Status), Op: "place_bid",
		}
	}
	if item.Ended(now) {
		return domain.Bid{}, &domain.StateConflictError{
			Entity: "item", ID: item.ID, State: "ended", Op: "place_bid",
		}
	}
	if item.SellerID == req.BidderID {
		return domain.Bid{}, domain.Validation("bidder_id", "seller cannot bid on own item")
	}

	floor := item.HighestPrice()
	higher, err := req.Amount.GreaterThan(floor)
	if err != nil {
		return domain.Bid{}, domain.Validation("amount", "currency %s does not match auction currency %s",
			req.Amount.Currency, floor.Currency)
	}
	if !higher {
		return domain.Bid{}, domain.Validation("amount", "must exceed current price %s %s",
			floor.Value, floor.Currency)
	}

	bid := domain.Bid{
		ID:             uuid.NewString(),
		ItemID:         item.ID,
		BidderID:       req.BidderID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		Status:         domain.BidStatusPending,
		CreatedAt:      now,
	}
	if err := l.bids.Create(ctx, bid); err != nil {
		return domain.Bid{}, fmt.Errorf("ledger: create bid: %w", err)
	}

	ref, err := l.transfer.SendValue(ctx, req.BidderAddress, item.AuctionAddress, req.Amount, BidMemo(bid.ID))
	if err != nil {
		l.logger.Warn("bid transfer failed",
			slog.String("bid_id", bid.ID),
			slog.String("item_id", item.ID),
			slog.Any("error", err))
		l.discardBid(ctx, bid.ID)
		return domain.Bid{}, fmt.Errorf("ledger: transfer deposit for bid %s: %w", bid.ID, err)
	}
	bid.TransactionHash = ref.Hash

	contentID, _, err := l.publisher.Publish(ctx, bid.Record(), map[string]string{
		content.TagDataType: "bid",
		"Item-Id":           item.ID,
	})
	if err != nil {
		l.logger.Warn("bid record publish failed",
			slog.String("bid_id", bid.ID),
			slog.String("item_id", item.ID),
			slog.Any("error", err))
		// The deposit already landed; send it back before the bid disappears.
		if _, rerr := l.transfer.SendValue(ctx, item.AuctionAddress, req.BidderAddress, req.Amount, "refund:"+bid.ID); rerr != nil {
			l.logger.Error("deposit refund failed, funds remain in auction wallet",
				slog.String("bid_id", bid.ID),
				slog.String("item_id", item.ID),
				slog.Any("error", rerr))
		}
		l.discardBid(ctx, bid.ID)
		return domain.Bid{}, fmt.Errorf("ledger: publish bid %s: %w", bid.ID, err)
	}
	bid.ContentID = contentID

	confirmedAt := l.now().UTC()
	bid.Status = domain.BidStatusConfirmed
	bid.ConfirmedAt = &confirmedAt
	if err := l.bids.Update(ctx, bid); err != nil {
		return domain.Bid{}, fmt.Errorf("ledger: confirm bid %s: %w", bid.ID, err)
	}
	if err := l.bids.MarkOutbid(ctx, item.ID, bid.ID); err != nil {
		return domain.Bid{}, fmt.Errorf("ledger: mark outbid for item %s: %w", item.ID, err)
	}

	item.CurrentBid = &bid.Amount
	item.CurrentBidderID = bid.BidderID
	item.UpdatedAt = confirmedAt
	if err := l.items.Update(ctx, item); err != nil {
		return domain.Bid{}, fmt.Errorf("ledger: advance item %s: %w", item.ID, err)
	}

	l.logger.Info("bid placed",
		slog.String("bid_id", bid.ID),
		slog.String("item_id", item.ID),
		slog.String("bidder_id", bid.BidderID),
		slog.String("amount", bid.Amount.Value),
		slog.String("currency", bid.Amount.Currency))
	l.emit(ctx, domain.Event{
		Type:      "bid_placed",
		ItemID:    item.ID,
		BidID:     bid.ID,
		UserID:    bid.BidderID,
		Amount:    &bid.Amount,
		Timestamp: confirmedAt,
	})

	return bid, nil
}

// discardBid removes a pending bid whose funding never completed. A leftover
// pending bid would otherwise surface from Highest and could settle as a
// winner nobody paid for.
func (l *Ledger) discardBid(ctx context.Context, bidID string) {
	if err := l.bids.Delete(ctx, bidID); err != nil {
		l.logger.Error("failed to remove unfunded bid",
			slog.String("bid_id", bidID),
			slog.Any("error", err))
	}
}

// Highest returns the leading bid of an item, or ErrNotFound.
func (l *Ledger) Highest(ctx context.Context, itemID string) (domain.Bid, error) {
	return l.bids.Highest(ctx, itemID)
}

// History returns the bid history of an item, highest amount first.
func (l *Ledger) History(ctx context.Context, itemID string, opts domain.ListOpts) ([]domain.Bid, error) {
	return l.bids.ListByItem(ctx, itemID, opts)
}

// BidderHistory returns the bids placed by one bidder.
func (l *Ledger) BidderHistory(ctx context.Context, bidderID string, opts domain.ListOpts) ([]domain.Bid, error) {
	return l.bids.ListByBidder(ctx, bidderID, opts)
}

func (l *Ledger) emit(ctx context.Context, ev domain.Event) {
	if l.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := l.bus.Publish(ctx, domain.ChannelBids, payload); err != nil {
		l.logger.Warn("event publish failed", slog.String("type", ev.Type), slog.Any("error", err))
	}
}
