// Package auction implements the auction lifecycle: listing creation with a
// deterministic per-auction wallet, bid placement, settlement at auction end,
// and cancellation with refunds. Every state change is mirrored to the
// content store as an immutable post.
package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sapphirelabs/sapphire-exchange/internal/content"
	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
	"github.com/sapphirelabs/sapphire-exchange/internal/ledger"
	"github.com/sapphirelabs/sapphire-exchange/internal/seq"
	"github.com/sapphirelabs/sapphire-exchange/internal/wallet"
)

// ExpiringWindow is how far ahead the expiring-auctions section of a post
// looks.
const ExpiringWindow = 24 * time.Hour

// maxExpiringEntries caps the expiring-auctions section of a post.
const maxExpiringEntries = 25

// settleLockTTL bounds the settlement lock per item.
const settleLockTTL = time.Minute

// Reputation deltas applied at settlement.
const (
	repSellerSold    = 2.0
	repWinnerSold    = 1.0
	repSellerExpired = 0.0
)

// Notifier receives human-readable auction event messages. Implementations
// live in the notify package; a nil Notifier drops messages.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Config carries the service's publishing identity.
type Config struct {
	// MasterSeed is the 32-byte seed auction wallets derive from.
	MasterSeed []byte
	// PostedBy is the marketplace identity stamped on published posts.
	PostedBy string
	// SequenceWallet is the address whose history allocates post sequences.
	SequenceWallet string
	// FundingWallet pays the dust transfers that claim post sequences. When
	// empty, sequences are derived but never claimed.
	FundingWallet string
	// ClaimAmount is the dust value of a sequence-claim transfer.
	ClaimAmount domain.Amount
}

// Service drives the auction state machine.
type Service struct {
	cfg       Config
	items     domain.ItemStore
	users     domain.UserStore
	bids      domain.BidStore
	ledger    *ledger.Ledger
	publisher *content.Publisher
	deriver   *wallet.Deriver
	keystore  *wallet.Keystore
	sequences *seq.Generator
	locks     domain.LockManager
	bus       domain.SignalBus
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// Deps bundles the service's collaborators.
type Deps struct {
	Items     domain.ItemStore
	Users     domain.UserStore
	Bids      domain.BidStore
	Ledger    *ledger.Ledger
	Publisher *content.Publisher
	Deriver   *wallet.Deriver
	Keystore  *wallet.Keystore
	Sequences *seq.Generator
	Locks     domain.LockManager
	Bus       domain.SignalBus
	Notifier  Notifier
	Logger    *slog.Logger
}

// New constructs the auction Service.
func New(cfg Config, d Deps) (*Service, error) {
	if len(cfg.MasterSeed) != wallet.SeedLength {
		return nil, fmt.Errorf("auction: master seed must be %d bytes, got %d", wallet.SeedLength, len(cfg.MasterSeed))
	}
	return &Service{
		cfg:       cfg,
		items:     d.Items,
		users:     d.Users,
		bids:      d.Bids,
		ledger:    d.Ledger,
		publisher: d.Publisher,
		deriver:   d.Deriver,
		keystore:  d.Keystore,
		sequences: d.Sequences,
		locks:     d.Locks,
		bus:       d.Bus,
		notifier:  d.Notifier,
		logger:    d.Logger.With(slog.String("component", "auction")),
		now:       time.Now,
	}, nil
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.now = clock
	return s
}

// CreateAuctionRequest carries a new listing.
type CreateAuctionRequest struct {
	SellerID      string
	Title         string
	Description   string
	Tags          []string
	Category      string
	StartingPrice domain.Amount
	AuctionEnd    time.Time
}

// CreateAuction validates the listing, derives its auction wallet, publishes
// the initial post, and activates the item. The item only becomes active
// after the post publish succeeded; a publish failure leaves the item in
// draft.
func (s *Service) CreateAuction(ctx context.Context, req CreateAuctionRequest) (domain.Item, error) {
	now := s.now().UTC()
	if err := s.validateListing(req, now); err != nil {
		return domain.Item{}, err
	}
	seller, err := s.users.GetByID(ctx, req.SellerID)
	if err != nil {
		return domain.Item{}, fmt.Errorf("auction: load seller %s: %w", req.SellerID, err)
	}

	itemID := uuid.NewString()
	aw, err := s.deriver.DeriveAuctionWallet(s.cfg.MasterSeed, itemID)
	if err != nil {
		return domain.Item{}, fmt.Errorf("auction: derive wallet: %w", err)
	}
	encryptedKey, err := s.keystore.Encrypt(aw.PrivateKey)
	if err != nil {
		return domain.Item{}, fmt.Errorf("auction: encrypt auction key: %w", err)
	}

	item := domain.Item{
		ID:                itemID,
		SellerID:          seller.ID,
		Title:             req.Title,
		Description:       req.Description,
		Tags:              append([]string(nil), req.Tags...),
		Category:          req.Category,
		StartingPrice:     req.StartingPrice,
		CreatedAt:         now,
		UpdatedAt:         now,
		AuctionEnd:        req.AuctionEnd.UTC(),
		Status:            domain.ItemStatusDraft,
		AuctionAddress:    aw.Address,
		AuctionPublicKey:  aw.PublicKey,
		AuctionPrivateKey: encryptedKey,
		WalletIndex:       aw.WalletIndex,
	}
	item.DataHash = item.CalculateDataHash()

	if err := s.items.Create(ctx, item); err != nil {
		return domain.Item{}, fmt.Errorf("auction: create item: %w", err)
	}

	contentID, err := s.publishSnapshot(ctx, &item)
	if err != nil {
		// The draft stays behind for a later retry; it never went active.
		return domain.Item{}, fmt.Errorf("auction: publish listing %s: %w", itemID, err)
	}

	item.ContentID = contentID
	item.ContentConfirmed = true
	item.Status = domain.ItemStatusActive
	item.UpdatedAt = s.now().UTC()
	if err := s.items.Update(ctx, item); err != nil {
		return domain.Item{}, fmt.Errorf("auction: activate item %s: %w", itemID, err)
	}

	// Listing joins the seller's inventory.
	seller.Inventory = append(seller.Inventory, item.ID)
	seller.UpdatedAt = item.UpdatedAt
	if err := s.users.Update(ctx, seller); err != nil {
		return domain.Item{}, fmt.Errorf("auction: update seller inventory: %w", err)
	}

	s.logger.Info("auction created",
		slog.String("item_id", item.ID),
		slog.String("seller_id", seller.ID),
		slog.String("auction_address", item.AuctionAddress),
		slog.Time("auction_end", item.AuctionEnd))
	s.emit(ctx, domain.ChannelAuctions, domain.Event{
		Type:      "auction_created",
		ItemID:    item.ID,
		UserID:    seller.ID,
		Status:    string(item.Status),
		Timestamp: item.UpdatedAt,
	})
	s.notify(ctx, fmt.Sprintf("New auction: %q by %s, ends %s",
		item.Title, seller.Username, item.AuctionEnd.Format(time.RFC3339)))

	return item, nil
}

// PlaceBid places a bid through the ledger, then republishes the auction
// snapshot so off-node readers see the new leader.
func (s *Service) PlaceBid(ctx context.Context, req ledger.PlaceBidRequest) (domain.Bid, error) {
	bid, err := s.ledger.PlaceBid(ctx, req)
	if err != nil {
		return domain.Bid{}, err
	}

	item, err := s.items.GetByID(ctx, bid.ItemID)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("auction: reload item %s: %w", bid.ItemID, err)
	}
	if err := s.republish(ctx, &item); err != nil {
		// The bid itself is already confirmed; a stale snapshot corrects
		// itself on the next publish.
		s.logger.Warn("snapshot republish failed",
			slog.String("item_id", item.ID), slog.Any("error", err))
	}
	return bid, nil
}

// EndAuction settles an ended auction: sold when a confirmed bid exists,
// expired otherwise. Settlement is serialized per item and idempotent in the
// sense that a second call fails with a state conflict.
func (s *Service) EndAuction(ctx context.Context, itemID string) (domain.Item, error) {
	unlock, err := s.locks.Acquire(ctx, "settle:"+itemID, settleLockTTL)
	if err != nil {
		return domain.Item{}, fmt.Errorf("auction: lock settlement of %s: %w", itemID, err)
	}
	defer unlock()

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return domain.Item{}, fmt.Errorf("auction: load item %s: %w", itemID, err)
	}
	now := s.now().UTC()
	if item.Status != domain.ItemStatusActive {
		return domain.Item{}, &domain.StateConflictError{
			Entity: "item", ID: itemID, State: string(item.Status), Op: "end_auction",
		}
	}
	if !item.Ended(now) {
		return domain.Item{}, &domain.StateConflictError{
			Entity: "item", ID: itemID, State: "running", Op: "end_auction",
		}
	}

	winning, err := s.bids.Highest(ctx, itemID)
	switch {
	case err == nil:
		if err := s.settleSold(ctx, &item, winning, now); err != nil {
			return domain.Item{}, err
		}
	case isNotFound(err):
		item.Status = domain.ItemStatusExpired
		item.UpdatedAt = now
		if err := s.items.Update(ctx, item); err != nil {
			return domain.Item{}, fmt.Errorf("auction: expire item %s: %w", itemID, err)
		}
		s.logger.Info("auction expired without bids", slog.String("item_id", itemID))
	default:
		return domain.Item{}, fmt.Errorf("auction: find winning bid for %s: %w", itemID, err)
	}

	if err := s.republish(ctx, &item); err != nil {
		s.logger.Warn("final snapshot publish failed",
			slog.String("item_id", item.ID), slog.Any("error", err))
	}

	s.emit(ctx, domain.ChannelAuctions, domain.Event{
		Type:      "auction_ended",
		ItemID:    item.ID,
		UserID:    item.CurrentBidderID,
		Status:    string(item.Status),
		Timestamp: item.UpdatedAt,
	})
	return item, nil
}

// settleSold finalizes a sale: marks the winning bid won, hands the item to
// the winner's inventory, and rewards both parties.
func (s *Service) settleSold(ctx context.Context, item *domain.Item, winning domain.Bid, now time.Time) error {
	winning.Status = domain.BidStatusWon
	if err := s.bids.Update(ctx, winning); err != nil {
		return fmt.Errorf("auction: mark bid %s won: %w", winning.ID, err)
	}
	if err := s.bids.MarkOutbid(ctx, item.ID, winning.ID); err != nil {
		return fmt.Errorf("auction: mark losers for %s: %w", item.ID, err)
	}

	item.Status = domain.ItemStatusSold
	item.CurrentBid = &winning.Amount
	item.CurrentBidderID = winning.BidderID
	item.UpdatedAt = now
	if err := s.items.Update(ctx, *item); err != nil {
		return fmt.Errorf("auction: mark item %s sold: %w", item.ID, err)
	}

	if err := s.transferInventory(ctx, item.SellerID, winning.BidderID, item.ID, now); err != nil {
		return err
	}

	if _, err := s.users.AdjustReputation(ctx, item.SellerID, repSellerSold, "auction sold: "+item.ID); err != nil {
		s.logger.Warn("seller reputation adjust failed", slog.String("item_id", item.ID), slog.Any("error", err))
	}
	if _, err := s.users.AdjustReputation(ctx, winning.BidderID, repWinnerSold, "auction won: "+item.ID); err != nil {
		s.logger.Warn("winner reputation adjust failed", slog.String("item_id", item.ID), slog.Any("error", err))
	}

	s.logger.Info("auction sold",
		slog.String("item_id", item.ID),
		slog.String("winner_id", winning.BidderID),
		slog.String("amount", winning.Amount.Value),
		slog.String("currency", winning.Amount.Currency))
	s.notify(ctx, fmt.Sprintf("Auction %q sold for %s %s",
		item.Title, winning.Amount.Value, winning.Amount.Currency))
	return nil
}

// transferInventory moves itemID from the seller's inventory to the buyer's.
func (s *Service) transferInventory(ctx context.Context, sellerID, buyerID, itemID string, now time.Time) error {
	seller, err := s.users.GetByID(ctx, sellerID)
	if err != nil {
		return fmt.Errorf("auction: load seller %s: %w", sellerID, err)
	}
	buyer, err := s.users.GetByID(ctx, buyerID)
	if err != nil {
		return fmt.Errorf("auction: load buyer %s: %w", buyerID, err)
	}

	kept := seller.Inventory[:0]
	for _, id := range seller.Inventory {
		if id != itemID {
			kept = append(kept, id)
		}
	}
	seller.Inventory = kept
	seller.UpdatedAt = now
	buyer.Inventory = append(buyer.Inventory, itemID)
	buyer.UpdatedAt = now

	if err := s.users.Update(ctx, seller); err != nil {
		return fmt.Errorf("auction: update seller inventory: %w", err)
	}
	if err := s.users.Update(ctx, buyer); err != nil {
		return fmt.Errorf("auction: update buyer inventory: %w", err)
	}
	return nil
}

// CancelAuction cancels a draft or bid-free active auction. Once a deposit
// has been confirmed the auction is committed and must run to settlement.
func (s *Service) CancelAuction(ctx context.Context, itemID string) (domain.Item, error) {
	unlock, err := s.locks.Acquire(ctx, "settle:"+itemID, settleLockTTL)
	if err != nil {
		return domain.Item{}, fmt.Errorf("auction: lock settlement of %s: %w", itemID, err)
	}
	defer unlock()

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return domain.Item{}, fmt.Errorf("auction: load item %s: %w", itemID, err)
	}
	if !item.Status.CanTransitionTo(domain.ItemStatusCancelled) {
		return domain.Item{}, &domain.StateConflictError{
			Entity: "item", ID: itemID, State: string(item.Status), Op: "cancel_auction",
		}
	}

	deposited, err := s.hasDepositedBids(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if deposited {
		return domain.Item{}, &domain.StateConflictError{
			Entity: "item", ID: itemID, State: "active_with_bids", Op: "cancel_auction",
		}
	}

	now := s.now().UTC()
	item.Status = domain.ItemStatusCancelled
	item.CurrentBid = nil
	item.CurrentBidderID = ""
	item.UpdatedAt = now
	if err := s.items.Update(ctx, item); err != nil {
		return domain.Item{}, fmt.Errorf("auction: cancel item %s: %w", itemID, err)
	}

	if err := s.republish(ctx, &item); err != nil {
		s.logger.Warn("cancellation snapshot publish failed",
			slog.String("item_id", item.ID), slog.Any("error", err))
	}

	s.logger.Info("auction cancelled", slog.String("item_id", itemID))
	s.emit(ctx, domain.ChannelAuctions, domain.Event{
		Type:      "auction_cancelled",
		ItemID:    item.ID,
		Status:    string(item.Status),
		Timestamp: now,
	})
	return item, nil
}

// hasDepositedBids reports whether any bid on the item carries a confirmed
// deposit, counting bids that were later outbid.
func (s *Service) hasDepositedBids(ctx context.Context, itemID string) (bool, error) {
	bids, err := s.bids.ListByItem(ctx, itemID, domain.ListOpts{Limit: domain.MaxPageLimit})
	if err != nil {
		return false, fmt.Errorf("auction: list bids for %s: %w", itemID, err)
	}
	for _, bid := range bids {
		switch bid.Status {
		case domain.BidStatusConfirmed, domain.BidStatusOutbid, domain.BidStatusWon:
			return true, nil
		}
	}
	return false, nil
}

// Get returns one item. The stored integrity hash is recomputed on every
// read; a mismatch means the immutable listing fields were altered after
// creation and surfaces as an IntegrityError.
func (s *Service) Get(ctx context.Context, itemID string) (domain.Item, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if item.DataHash != "" {
		if actual := item.CalculateDataHash(); actual != item.DataHash {
			return domain.Item{}, &domain.IntegrityError{
				ContentID: item.ID, Expected: item.DataHash, Actual: actual,
			}
		}
	}
	return item, nil
}

// ListActive returns active auctions.
func (s *Service) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Item, error) {
	return s.items.ListByStatus(ctx, domain.ItemStatusActive, opts)
}

// ListExpiring returns active auctions ending within the expiring window,
// soonest first.
func (s *Service) ListExpiring(ctx context.Context, opts domain.ListOpts) ([]domain.Item, error) {
	return s.items.ListEndingWithin(ctx, s.now().UTC(), ExpiringWindow, opts)
}

// SettleDue ends every active auction whose end time has passed. It returns
// how many auctions were settled; per-item failures are logged and skipped
// so one stuck auction cannot block the rest.
func (s *Service) SettleDue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	settled := 0
	for {
		due, err := s.items.ListByStatus(ctx, domain.ItemStatusActive, domain.ListOpts{Limit: domain.MaxPageLimit})
		if err != nil {
			return settled, fmt.Errorf("auction: list active: %w", err)
		}
		progress := false
		for _, item := range due {
			if !item.Ended(now) {
				continue
			}
			if _, err := s.EndAuction(ctx, item.ID); err != nil {
				s.logger.Warn("settle failed", slog.String("item_id", item.ID), slog.Any("error", err))
				continue
			}
			settled++
			progress = true
		}
		if !progress {
			return settled, nil
		}
	}
}

func (s *Service) validateListing(req CreateAuctionRequest, now time.Time) error {
	if req.SellerID == "" {
		return domain.Validation("seller_id", "required")
	}
	if req.Title == "" {
		return domain.Validation("title", "required")
	}
	if len(req.Title) > domain.MaxTitleLength {
		return domain.Validation("title", "must be at most %d characters, got %d", domain.MaxTitleLength, len(req.Title))
	}
	if len(req.Description) > domain.MaxDescriptionLength {
		return domain.Validation("description", "must be at most %d characters, got %d", domain.MaxDescriptionLength, len(req.Description))
	}
	if len(req.Tags) > domain.MaxTagsPerItem {
		return domain.Validation("tags", "at most %d tags, got %d", domain.MaxTagsPerItem, len(req.Tags))
	}
	for _, tag := range req.Tags {
		if tag == "" || len(tag) > domain.MaxTagLength {
			return domain.Validation("tags", "each tag must be 1-%d characters", domain.MaxTagLength)
		}
	}
	if req.StartingPrice.IsZero() || req.StartingPrice.IsNegative() {
		return domain.Validation("starting_price", "must be positive")
	}
	if req.AuctionEnd.Before(now.Add(domain.MinAuctionLeadTime)) {
		return domain.Validation("auction_end", "must be at least %s in the future", domain.MinAuctionLeadTime)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, channel string, ev domain.Event) {
	if s.bus == nil {
		return
	}
	payload, err := marshalEvent(ev)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.Warn("event publish failed", slog.String("type", ev.Type), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, message); err != nil {
		s.logger.Warn("notification failed", slog.Any("error", err))
	}
}
