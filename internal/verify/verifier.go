package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
	"github.com/sapphirelabs/sapphire-exchange/internal/ledger"
)

// RequiredConfirmations is how many consecutive agreeing checks confirm a
// winner.
const RequiredConfirmations = 3

// Verifier independently re-derives auction winners from on-chain deposits
// and confirms them after RequiredConfirmations agreeing checks.
type Verifier struct {
	items    domain.ItemStore
	bids     domain.BidStore
	transfer domain.ValueTransferPort
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(
	items domain.ItemStore,
	bids domain.BidStore,
	transfer domain.ValueTransferPort,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Verifier {
	return &Verifier{
		items:    items,
		bids:     bids,
		transfer: transfer,
		bus:      bus,
		logger:   logger.With(slog.String("component", "verifier")),
	}
}

// VerifyWinner runs one verification check on a sold item. An agreeing check
// increments the confirmation count; once the count reaches
// RequiredConfirmations the winner is confirmed. A disagreeing check resets
// the count to zero, so confirmation requires consecutive agreement.
func (v *Verifier) VerifyWinner(ctx context.Context, itemID string) (domain.Item, error) {
	item, err := v.items.GetByID(ctx, itemID)
	if err != nil {
		return domain.Item{}, fmt.Errorf("verify: load item %s: %w", itemID, err)
	}
	if item.Status != domain.ItemStatusSold {
		return domain.Item{}, &domain.StateConflictError{
			Entity: "item", ID: itemID, State: string(item.Status), Op: "verify_winner",
		}
	}
	if item.ConfirmedWinner {
		return item, nil
	}

	derived, err := v.deriveWinner(ctx, &item)
	if err != nil {
		return domain.Item{}, err
	}

	if derived == item.CurrentBidderID && derived != "" {
		item.ConfirmationCount++
		if item.ConfirmationCount >= RequiredConfirmations {
			item.ConfirmedWinner = true
			v.logger.Info("winner confirmed",
				slog.String("item_id", item.ID),
				slog.String("winner_id", item.CurrentBidderID))
			v.emit(ctx, domain.Event{
				Type:      "winner_confirmed",
				ItemID:    item.ID,
				UserID:    item.CurrentBidderID,
				Timestamp: time.Now().UTC(),
			})
		}
	} else {
		v.logger.Warn("winner check disagreed",
			slog.String("item_id", item.ID),
			slog.String("recorded", item.CurrentBidderID),
			slog.String("derived", derived))
		item.ConfirmationCount = 0
	}

	item.UpdatedAt = time.Now().UTC()
	if err := v.items.Update(ctx, item); err != nil {
		return domain.Item{}, fmt.Errorf("verify: update item %s: %w", itemID, err)
	}
	return item, nil
}

// deriveWinner re-derives the winner from the auction wallet's deposit
// history: among deposits carrying a bid memo, the largest amount wins, ties
// broken by the earlier transfer. The bid the memo names resolves the
// bidder.
func (v *Verifier) deriveWinner(ctx context.Context, item *domain.Item) (string, error) {
	info, err := v.transfer.GetAccountInfo(ctx, item.AuctionAddress)
	if err != nil {
		return "", fmt.Errorf("verify: read auction wallet %s: %w", item.AuctionAddress, err)
	}

	var best *domain.TransactionRef
	for i := range info.Transactions {
		tx := info.Transactions[i]
		if tx.To != item.AuctionAddress {
			continue
		}
		if _, ok := ledger.ParseBidMemo(tx.Memo); !ok {
			continue
		}
		if best == nil {
			best = &info.Transactions[i]
			continue
		}
		cmp, err := tx.Amount.Cmp(best.Amount)
		if err != nil {
			continue
		}
		if cmp > 0 || (cmp == 0 && tx.Timestamp.Before(best.Timestamp)) {
			best = &info.Transactions[i]
		}
	}
	if best == nil {
		return "", nil
	}

	bidID, _ := ledger.ParseBidMemo(best.Memo)
	bid, err := v.bids.GetByID(ctx, bidID)
	if err != nil {
		// A deposit naming an unknown bid cannot agree with anything.
		v.logger.Warn("deposit references unknown bid",
			slog.String("item_id", item.ID), slog.String("bid_id", bidID))
		return "", nil
	}
	if bid.ItemID != item.ID {
		return "", nil
	}
	return bid.BidderID, nil
}

func (v *Verifier) emit(ctx context.Context, ev domain.Event) {
	if v.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := v.bus.Publish(ctx, domain.ChannelWinners, payload); err != nil {
		v.logger.Warn("event publish failed", slog.String("type", ev.Type), slog.Any("error", err))
	}
}
