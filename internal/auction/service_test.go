package auction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	cachemem "github.com/sapphirelabs/sapphire-exchange/internal/cache/memory"
	"github.com/sapphirelabs/sapphire-exchange/internal/chain"
	"github.com/sapphirelabs/sapphire-exchange/internal/content"
	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
	"github.com/sapphirelabs/sapphire-exchange/internal/ledger"
	"github.com/sapphirelabs/sapphire-exchange/internal/seq"
	storemem "github.com/sapphirelabs/sapphire-exchange/internal/store/memory"
	"github.com/sapphirelabs/sapphire-exchange/internal/wallet"
)

type fixture struct {
	svc      *Service
	items    *storemem.ItemStore
	users    *storemem.UserStore
	bids     *storemem.BidStore
	transfer *chain.MemoryLedger
	store    *content.MemoryStore
	notes    *recordingNotifier
	now      time.Time
	setNow   func(time.Time)
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Send(ctx context.Context, message string) error {
	n.messages = append(n.messages, message)
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now

	items := storemem.NewItemStore().WithClock(func() time.Time { return *clock })
	users := storemem.NewUserStore()
	bids := storemem.NewBidStore()
	transfer := chain.NewMemoryLedger("NANO")
	store := content.NewMemoryStore()
	store.SetBalance("publisher", 10.0)
	notes := &recordingNotifier{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := content.NewPublisher(store, content.Config{Account: "publisher"}, logger)
	locks := cachemem.NewLockManager()
	bus := cachemem.NewBus()

	led := ledger.New(items, bids, transfer, pub, locks, bus, logger).
		WithClock(func() time.Time { return *clock })

	ks, err := wallet.NewKeystore("test-password")
	if err != nil {
		t.Fatalf("NewKeystore: %v", err)
	}

	svc, err := New(Config{
		MasterSeed:     bytes.Repeat([]byte{0x42}, wallet.SeedLength),
		PostedBy:       "sapphire-exchange",
		SequenceWallet: "seq-wallet",
		FundingWallet:  "market-fund",
		ClaimAmount:    domain.MustAmount("0.000001", "NANO"),
	}, Deps{
		Items:     items,
		Users:     users,
		Bids:      bids,
		Ledger:    led,
		Publisher: pub,
		Deriver:   wallet.NewDeriver(),
		Keystore:  ks,
		Sequences: seq.NewGenerator(transfer),
		Locks:     locks,
		Bus:       bus,
		Notifier:  notes,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc.WithClock(func() time.Time { return *clock })

	f := &fixture{
		svc: svc, items: items, users: users, bids: bids,
		transfer: transfer, store: store, notes: notes, now: now,
	}
	f.setNow = func(ts time.Time) { *clock = ts; f.now = ts }

	for _, u := range []domain.User{
		{ID: "seller", Username: "seller", ReputationScore: 50, CreatedAt: now},
		{ID: "buyer", Username: "buyer", ReputationScore: 50,
			Addresses: map[string]string{"NANO": "addr-buyer"}, CreatedAt: now},
		{ID: "rival", Username: "rival", ReputationScore: 50,
			Addresses: map[string]string{"NANO": "addr-rival"}, CreatedAt: now},
	} {
		if err := users.Create(context.Background(), u); err != nil {
			t.Fatalf("create user %s: %v", u.ID, err)
		}
	}
	transfer.Credit("addr-buyer", domain.MustAmount("100", "NANO"))
	transfer.Credit("addr-rival", domain.MustAmount("100", "NANO"))
	transfer.Credit("market-fund", domain.MustAmount("1", "NANO"))
	return f
}

func validListing(f *fixture) CreateAuctionRequest {
	return CreateAuctionRequest{
		SellerID:      "seller",
		Title:         "vintage radio",
		Description:   "a fine radio",
		Tags:          []string{"vintage", "audio"},
		Category:      "electronics",
		StartingPrice: domain.MustAmount("1.0", "NANO"),
		AuctionEnd:    f.now.Add(2 * time.Hour),
	}
}

func TestCreateAuctionActivatesAndPublishes(t *testing.T) {
	f := newFixture(t)

	item, err := f.svc.CreateAuction(context.Background(), validListing(f))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if item.Status != domain.ItemStatusActive {
		t.Fatalf("status = %s, want active", item.Status)
	}
	if item.AuctionAddress == "" || item.AuctionPublicKey == "" || item.AuctionPrivateKey == "" {
		t.Fatalf("wallet fields missing: %+v", item)
	}
	if item.WalletIndex != wallet.WalletIndex(item.ID) {
		t.Fatalf("WalletIndex = %d, want %d", item.WalletIndex, wallet.WalletIndex(item.ID))
	}
	if item.DataHash != item.CalculateDataHash() {
		t.Fatal("DataHash does not match the canonical subset")
	}
	if item.ContentID == "" || !item.ContentConfirmed {
		t.Fatalf("initial post not recorded: %+v", item)
	}

	// Published post carries the snapshot.
	raw, err := f.store.Retrieve(context.Background(), item.ContentID)
	if err != nil {
		t.Fatalf("Retrieve post: %v", err)
	}
	var post domain.Post
	if err := json.Unmarshal(raw, &post); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if post.Version != domain.PostVersion {
		t.Fatalf("post version = %s, want %s", post.Version, domain.PostVersion)
	}
	if post.Auction.ItemID != item.ID {
		t.Fatalf("post item = %s, want %s", post.Auction.ItemID, item.ID)
	}

	seller, err := f.users.GetByID(context.Background(), "seller")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(seller.Inventory) != 1 || seller.Inventory[0] != item.ID {
		t.Fatalf("seller inventory = %v, want [%s]", seller.Inventory, item.ID)
	}
	if len(f.notes.messages) == 0 {
		t.Fatal("no notification sent")
	}
}

func TestCreateAuctionValidation(t *testing.T) {
	f := newFixture(t)
	base := validListing(f)

	cases := []struct {
		name   string
		mutate func(*CreateAuctionRequest)
	}{
		{"empty title", func(r *CreateAuctionRequest) { r.Title = "" }},
		{"title too long", func(r *CreateAuctionRequest) { r.Title = strRepeat("x", domain.MaxTitleLength+1) }},
		{"description too long", func(r *CreateAuctionRequest) { r.Description = strRepeat("x", domain.MaxDescriptionLength+1) }},
		{"too many tags", func(r *CreateAuctionRequest) {
			r.Tags = make([]string, domain.MaxTagsPerItem+1)
			for i := range r.Tags {
				r.Tags[i] = "t"
			}
		}},
		{"tag too long", func(r *CreateAuctionRequest) { r.Tags = []string{strRepeat("x", domain.MaxTagLength+1)} }},
		{"zero price", func(r *CreateAuctionRequest) { r.StartingPrice = domain.MustAmount("0", "NANO") }},
		{"end too soon", func(r *CreateAuctionRequest) { r.AuctionEnd = f.now.Add(29 * time.Minute) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			req.Tags = append([]string(nil), base.Tags...)
			tc.mutate(&req)
			if _, err := f.svc.CreateAuction(context.Background(), req); !domain.IsValidation(err) {
				t.Fatalf("error = %v, want validation error", err)
			}
		})
	}
}

func TestCreateAuctionPublishFailureStaysDraft(t *testing.T) {
	f := newFixture(t)
	f.store.FailNextPublish(&domain.TimeoutError{Op: "publish"})

	if _, err := f.svc.CreateAuction(context.Background(), validListing(f)); err == nil {
		t.Fatal("CreateAuction succeeded despite publish failure")
	}

	drafts, err := f.items.ListByStatus(context.Background(), domain.ItemStatusDraft, domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("draft count = %d, want 1 (item retained for retry)", len(drafts))
	}
	active, err := f.items.ListByStatus(context.Background(), domain.ItemStatusActive, domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(active) != 0 {
		t.Fatal("item went active despite publish failure")
	}
}

func TestEndAuctionSold(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.CreateAuction(context.Background(), validListing(f))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}

	if _, err := f.svc.PlaceBid(context.Background(), ledger.PlaceBidRequest{
		ItemID: item.ID, BidderID: "buyer", BidderAddress: "addr-buyer",
		Amount: domain.MustAmount("2.0", "NANO"),
	}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	f.setNow(item.AuctionEnd.Add(time.Minute))
	settled, err := f.svc.EndAuction(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("EndAuction: %v", err)
	}
	if settled.Status != domain.ItemStatusSold {
		t.Fatalf("status = %s, want sold", settled.Status)
	}
	if settled.CurrentBidderID != "buyer" {
		t.Fatalf("winner = %s, want buyer", settled.CurrentBidderID)
	}

	won, err := f.bids.Highest(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Highest: %v", err)
	}
	if won.Status != domain.BidStatusWon {
		t.Fatalf("winning bid status = %s, want won", won.Status)
	}

	// Item moved to the buyer's inventory, reputations adjusted.
	buyer, _ := f.users.GetByID(context.Background(), "buyer")
	if len(buyer.Inventory) != 1 || buyer.Inventory[0] != item.ID {
		t.Fatalf("buyer inventory = %v, want [%s]", buyer.Inventory, item.ID)
	}
	seller, _ := f.users.GetByID(context.Background(), "seller")
	if len(seller.Inventory) != 0 {
		t.Fatalf("seller inventory = %v, want empty", seller.Inventory)
	}
	if seller.ReputationScore != 52 {
		t.Fatalf("seller reputation = %v, want 52", seller.ReputationScore)
	}
	if buyer.ReputationScore != 51 {
		t.Fatalf("buyer reputation = %v, want 51", buyer.ReputationScore)
	}

	// Settling again conflicts.
	if _, err := f.svc.EndAuction(context.Background(), item.ID); !domain.IsStateConflict(err) {
		t.Fatalf("second EndAuction = %v, want state conflict", err)
	}
}

func TestEndAuctionIgnoresUnfundedBid(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.CreateAuction(context.Background(), validListing(f))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}

	if _, err := f.svc.PlaceBid(context.Background(), ledger.PlaceBidRequest{
		ItemID: item.ID, BidderID: "buyer", BidderAddress: "addr-buyer",
		Amount: domain.MustAmount("12", "NANO"),
	}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	// A higher bid whose deposit transfer fails must not become the winner.
	f.transfer.FailNextTransfer(&domain.NetworkError{Op: "send", Err: errors.New("node unreachable")})
	if _, err := f.svc.PlaceBid(context.Background(), ledger.PlaceBidRequest{
		ItemID: item.ID, BidderID: "rival", BidderAddress: "addr-rival",
		Amount: domain.MustAmount("15", "NANO"),
	}); err == nil {
		t.Fatal("PlaceBid succeeded without funds")
	}

	f.setNow(item.AuctionEnd.Add(time.Minute))
	settled, err := f.svc.EndAuction(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("EndAuction: %v", err)
	}
	if settled.Status != domain.ItemStatusSold {
		t.Fatalf("status = %s, want sold", settled.Status)
	}
	if settled.CurrentBidderID != "buyer" {
		t.Fatalf("winner = %s, want the funded bidder", settled.CurrentBidderID)
	}
	if settled.CurrentBid == nil || settled.CurrentBid.Value != "12" {
		t.Fatalf("winning amount = %+v, want the funded 12", settled.CurrentBid)
	}
}

func TestEndAuctionExpiredWithoutBids(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.CreateAuction(context.Background(), validListing(f))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}

	f.setNow(item.AuctionEnd.Add(time.Minute))
	settled, err := f.svc.EndAuction(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("EndAuction: %v", err)
	}
	if settled.Status != domain.ItemStatusExpired {
		t.Fatalf("status = %s, want expired", settled.Status)
	}
}

func TestEndAuctionBeforeEndRejected(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.CreateAuction(context.Background(), validListing(f))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if _, err := f.svc.EndAuction(context.Background(), item.ID); !domain.IsStateConflict(err) {
		t.Fatalf("EndAuction on running auction = %v, want state conflict", err)
	}
}

func TestCancelAuctionWithoutBids(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.CreateAuction(context.Background(), validListing(f))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}

	cancelled, err := f.svc.CancelAuction(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("CancelAuction: %v", err)
	}
	if cancelled.Status != domain.ItemStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	// A cancelled auction cannot be cancelled again.
	if _, err := f.svc.CancelAuction(context.Background(), item.ID); !domain.IsStateConflict(err) {
		t.Fatalf("second CancelAuction = %v, want state conflict", err)
	}
}

func TestCancelAuctionWithConfirmedBidsRejected(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.CreateAuction(context.Background(), validListing(f))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}

	if _, err := f.svc.PlaceBid(context.Background(), ledger.PlaceBidRequest{
		ItemID: item.ID, BidderID: "buyer", BidderAddress: "addr-buyer",
		Amount: domain.MustAmount("2.0", "NANO"),
	}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if _, err := f.svc.PlaceBid(context.Background(), ledger.PlaceBidRequest{
		ItemID: item.ID, BidderID: "rival", BidderAddress: "addr-rival",
		Amount: domain.MustAmount("3.0", "NANO"),
	}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	// A deposit is committed; the auction must run to settlement. Bids that
	// were outbid still count, their deposits are in the auction wallet too.
	if _, err := f.svc.CancelAuction(context.Background(), item.ID); !domain.IsStateConflict(err) {
		t.Fatalf("CancelAuction with confirmed bids = %v, want state conflict", err)
	}

	reloaded, err := f.items.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != domain.ItemStatusActive {
		t.Fatalf("status = %s, want auction left active", reloaded.Status)
	}
	if reloaded.CurrentBid == nil || reloaded.CurrentBid.Value != "3.0" {
		t.Fatalf("current bid = %+v, want 3.0 untouched", reloaded.CurrentBid)
	}
}

func TestSettleDueSettlesOnlyEnded(t *testing.T) {
	f := newFixture(t)

	early, err := f.svc.CreateAuction(context.Background(), validListing(f))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	lateReq := validListing(f)
	lateReq.Title = "slow burner"
	lateReq.AuctionEnd = f.now.Add(48 * time.Hour)
	late, err := f.svc.CreateAuction(context.Background(), lateReq)
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}

	f.setNow(early.AuctionEnd.Add(time.Minute))
	n, err := f.svc.SettleDue(context.Background())
	if err != nil {
		t.Fatalf("SettleDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("settled %d auctions, want 1", n)
	}

	got, _ := f.items.GetByID(context.Background(), late.ID)
	if got.Status != domain.ItemStatusActive {
		t.Fatalf("late auction status = %s, want still active", got.Status)
	}
}

func TestPlaceBidRepublishesSnapshot(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.CreateAuction(context.Background(), validListing(f))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	firstPost := item.ContentID

	if _, err := f.svc.PlaceBid(context.Background(), ledger.PlaceBidRequest{
		ItemID: item.ID, BidderID: "buyer", BidderAddress: "addr-buyer",
		Amount: domain.MustAmount("2.0", "NANO"),
	}); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	reloaded, err := f.items.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.ContentID == firstPost {
		t.Fatal("content pointer did not advance after bid")
	}

	raw, err := f.store.Retrieve(context.Background(), reloaded.ContentID)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	var post domain.Post
	if err := json.Unmarshal(raw, &post); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if post.PreviousPost != firstPost {
		t.Fatalf("PreviousPost = %s, want %s", post.PreviousPost, firstPost)
	}
	if len(post.References) == 0 || post.References[0] != firstPost {
		t.Fatalf("References = %v, want link to %s", post.References, firstPost)
	}
	if post.Auction.CurrentBid == nil || post.Auction.CurrentBid.Value != "2.0" {
		t.Fatalf("snapshot current bid = %+v, want 2.0", post.Auction.CurrentBid)
	}
}

func TestGetDetectsTamperedListing(t *testing.T) {
	f := newFixture(t)

	item, err := f.svc.CreateAuction(context.Background(), validListing(f))
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), item.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Alter a hash-covered field behind the service's back.
	item.Title = "definitely not a vintage radio"
	if err := f.items.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, err = f.svc.Get(context.Background(), item.ID)
	var ie *domain.IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("Get = %v, want IntegrityError", err)
	}
}

func strRepeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
