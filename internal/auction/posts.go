package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sapphirelabs/sapphire-exchange/internal/content"
	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// snapshot converts the item into its published post shape.
func snapshot(item *domain.Item) domain.AuctionSnapshot {
	return domain.AuctionSnapshot{
		ItemID:                 item.ID,
		DataHash:               item.DataHash,
		SellerID:               item.SellerID,
		Title:                  item.Title,
		Description:            item.Description,
		StartingPrice:          item.StartingPrice,
		CurrentBid:             item.CurrentBid,
		CurrentBidderID:        item.CurrentBidderID,
		AuctionEnd:             item.AuctionEnd,
		Status:                 item.Status,
		AuctionWalletAddress:   item.AuctionAddress,
		AuctionWalletPublicKey: item.AuctionPublicKey,
		UpdatedAt:              item.UpdatedAt,
		Winner:                 winnerOf(item),
		WinningBid:             winningBidOf(item),
		ConfirmedWinner:        item.ConfirmedWinner,
		ConfirmationCount:      item.ConfirmationCount,
	}
}

func winnerOf(item *domain.Item) string {
	if item.Status == domain.ItemStatusSold {
		return item.CurrentBidderID
	}
	return ""
}

func winningBidOf(item *domain.Item) *domain.Amount {
	if item.Status == domain.ItemStatusSold {
		return item.CurrentBid
	}
	return nil
}

// publishSnapshot publishes the item's current state as a post and returns
// the new content ID. The post links the item's previous snapshot through
// References so discovery can walk the chain.
func (s *Service) publishSnapshot(ctx context.Context, item *domain.Item) (string, error) {
	now := s.now().UTC()
	sequence, err := s.sequences.Next(ctx, item.SellerID, s.cfg.SequenceWallet, now)
	if err != nil {
		return "", err
	}
	if s.cfg.FundingWallet != "" {
		if err := s.sequences.Claim(ctx, s.cfg.FundingWallet, s.cfg.SequenceWallet, sequence, s.cfg.ClaimAmount); err != nil {
			// An unclaimed sequence risks a same-day collision but never
			// blocks the publish itself.
			s.logger.Warn("sequence claim failed", slog.Any("error", err))
		}
	}

	expiring, err := s.expiringEntries(ctx, item.ID)
	if err != nil {
		s.logger.Warn("expiring section unavailable", slog.Any("error", err))
		expiring = nil
	}

	post := domain.Post{
		Version:          domain.PostVersion,
		Sequence:         sequence,
		CreatedAt:        now,
		PostedBy:         s.cfg.PostedBy,
		Auction:          snapshot(item),
		ExpiringAuctions: expiring,
	}
	if item.ContentID != "" {
		post.References = []string{item.ContentID}
		post.PreviousPost = item.ContentID
	}

	contentID, _, err := s.publisher.Publish(ctx, post, map[string]string{
		content.TagDataType: "auction_post",
		"Item-Id":           item.ID,
		"Sequence":          fmt.Sprintf("%d", sequence),
	})
	if err != nil {
		return "", err
	}
	return contentID, nil
}

// republish publishes a fresh snapshot and advances the item's content
// pointer.
func (s *Service) republish(ctx context.Context, item *domain.Item) error {
	contentID, err := s.publishSnapshot(ctx, item)
	if err != nil {
		return err
	}
	item.ContentID = contentID
	item.ContentConfirmed = true
	if err := s.items.Update(ctx, *item); err != nil {
		return fmt.Errorf("auction: advance content pointer for %s: %w", item.ID, err)
	}
	return nil
}

// expiringEntries builds the expiring-auctions section: active auctions other
// than selfID ending within the window, soonest first.
func (s *Service) expiringEntries(ctx context.Context, selfID string) ([]domain.ExpiringEntry, error) {
	items, err := s.items.ListEndingWithin(ctx, s.now().UTC(), ExpiringWindow,
		domain.ListOpts{Limit: maxExpiringEntries})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.ExpiringEntry, 0, len(items))
	for _, item := range items {
		if item.ID == selfID {
			continue
		}
		entries = append(entries, domain.ExpiringEntry{
			ItemID:          item.ID,
			Title:           item.Title,
			AuctionEnd:      item.AuctionEnd,
			CurrentBid:      item.CurrentBid,
			CurrentBidderID: item.CurrentBidderID,
			AuctionAddress:  item.AuctionAddress,
		})
	}
	return entries, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func marshalEvent(ev domain.Event) ([]byte, error) {
	return json.Marshal(ev)
}
