package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

func TestUserStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()

	u := domain.User{ID: "u1", Username: "alice", CreatedAt: time.Now()}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, u); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate Create = %v, want ErrAlreadyExists", err)
	}
	if err := s.Create(ctx, domain.User{ID: "u2", Username: "ALICE"}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("case-insensitive duplicate username = %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetByUsername(ctx, "Alice")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("GetByUsername ID = %s, want u1", got.ID)
	}

	if err := s.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.GetByID(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID after delete = %v, want ErrNotFound", err)
	}
}

func TestUserStoreAdjustReputation(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()
	if err := s.Create(ctx, domain.User{ID: "u1", Username: "alice", ReputationScore: 95}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	u, err := s.AdjustReputation(ctx, "u1", 10, "auction completed")
	if err != nil {
		t.Fatalf("AdjustReputation: %v", err)
	}
	if u.ReputationScore != 100 {
		t.Fatalf("score = %v, want clamp to 100", u.ReputationScore)
	}

	u, err = s.AdjustReputation(ctx, "u1", -250, "fraud report")
	if err != nil {
		t.Fatalf("AdjustReputation: %v", err)
	}
	if u.ReputationScore != 0 {
		t.Fatalf("score = %v, want clamp to 0", u.ReputationScore)
	}

	if _, err := s.AdjustReputation(ctx, "u1", 5, ""); !domain.IsValidation(err) {
		t.Fatalf("empty reason error = %v, want validation error", err)
	}

	history, err := s.ReputationHistory(ctx, "u1", domain.ListOpts{})
	if err != nil {
		t.Fatalf("ReputationHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Reason != "fraud report" {
		t.Fatalf("history[0].Reason = %q, want newest first", history[0].Reason)
	}
}

func TestItemStoreQueries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewItemStore().WithClock(func() time.Time { return now })

	mk := func(id, seller, category string, status domain.ItemStatus, end time.Time, created time.Time) domain.Item {
		return domain.Item{
			ID: id, SellerID: seller, Title: "t", Category: category,
			StartingPrice: domain.MustAmount("1.0", "NANO"),
			Status:        status, AuctionEnd: end, CreatedAt: created,
		}
	}
	items := []domain.Item{
		mk("i1", "s1", "art", domain.ItemStatusActive, now.Add(10*time.Minute), now.Add(-3*time.Hour)),
		mk("i2", "s1", "art", domain.ItemStatusActive, now.Add(2*time.Hour), now.Add(-2*time.Hour)),
		mk("i3", "s2", "books", domain.ItemStatusExpired, now.Add(-time.Hour), now.Add(-time.Hour)),
		mk("i4", "s2", "books", domain.ItemStatusSold, now.Add(-30*time.Minute), now),
	}
	for _, item := range items {
		if err := s.Create(ctx, item); err != nil {
			t.Fatalf("Create %s: %v", item.ID, err)
		}
	}

	bySeller, err := s.ListBySeller(ctx, "s1", domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListBySeller: %v", err)
	}
	if len(bySeller) != 2 {
		t.Fatalf("ListBySeller = %d items, want 2", len(bySeller))
	}

	ending, err := s.ListEndingWithin(ctx, now, time.Hour, domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListEndingWithin: %v", err)
	}
	if len(ending) != 1 || ending[0].ID != "i1" {
		t.Fatalf("ListEndingWithin = %+v, want only i1", ids(ending))
	}

	ended, err := s.ListEndedSince(ctx, now.Add(-2*time.Hour),
		[]domain.ItemStatus{domain.ItemStatusExpired, domain.ItemStatusSold}, domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListEndedSince: %v", err)
	}
	if len(ended) != 2 || ended[0].ID != "i3" || ended[1].ID != "i4" {
		t.Fatalf("ListEndedSince = %v, want [i3 i4] by end time", ids(ended))
	}
}

func TestItemStorePaginationClamp(t *testing.T) {
	ctx := context.Background()
	s := NewItemStore()
	for i := 0; i < 150; i++ {
		item := domain.Item{
			ID:            string(rune('a'+i/26)) + string(rune('a'+i%26)),
			Title:         "t",
			StartingPrice: domain.MustAmount("1.0", "NANO"),
			Status:        domain.ItemStatusDraft,
			CreatedAt:     time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := s.Create(ctx, item); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := s.List(ctx, domain.ListOpts{Limit: 500})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != domain.MaxPageLimit {
		t.Fatalf("List with limit 500 returned %d, want clamp to %d", len(got), domain.MaxPageLimit)
	}

	got, err = s.List(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != domain.DefaultPageLimit {
		t.Fatalf("List with zero limit returned %d, want default %d", len(got), domain.DefaultPageLimit)
	}
}

func TestBidStoreOrderingAndHighest(t *testing.T) {
	ctx := context.Background()
	s := NewBidStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	bids := []domain.Bid{
		{ID: "b1", ItemID: "i1", BidderID: "u1", Amount: domain.MustAmount("1.5", "NANO"), Status: domain.BidStatusOutbid, CreatedAt: base},
		{ID: "b2", ItemID: "i1", BidderID: "u2", Amount: domain.MustAmount("2.0", "NANO"), Status: domain.BidStatusConfirmed, CreatedAt: base.Add(time.Minute)},
		{ID: "b3", ItemID: "i1", BidderID: "u3", Amount: domain.MustAmount("2.0", "NANO"), Status: domain.BidStatusConfirmed, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "b4", ItemID: "i2", BidderID: "u1", Amount: domain.MustAmount("9.0", "NANO"), Status: domain.BidStatusConfirmed, CreatedAt: base},
	}
	for _, b := range bids {
		if err := s.Create(ctx, b); err != nil {
			t.Fatalf("Create %s: %v", b.ID, err)
		}
	}

	list, err := s.ListByItem(ctx, "i1", domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByItem: %v", err)
	}
	want := []string{"b2", "b3", "b1"}
	for i, id := range want {
		if list[i].ID != id {
			t.Fatalf("ListByItem order = %v, want %v", bidIDs(list), want)
		}
	}

	highest, err := s.Highest(ctx, "i1")
	if err != nil {
		t.Fatalf("Highest: %v", err)
	}
	if highest.ID != "b2" {
		t.Fatalf("Highest = %s, want b2 (earliest of the tied top bids)", highest.ID)
	}

	if _, err := s.Highest(ctx, "i-none"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Highest on empty item = %v, want ErrNotFound", err)
	}
}

func TestBidStoreMarkOutbid(t *testing.T) {
	ctx := context.Background()
	s := NewBidStore()

	bids := []domain.Bid{
		{ID: "b1", ItemID: "i1", Amount: domain.MustAmount("1.0", "NANO"), Status: domain.BidStatusConfirmed},
		{ID: "b2", ItemID: "i1", Amount: domain.MustAmount("2.0", "NANO"), Status: domain.BidStatusConfirmed},
		{ID: "b3", ItemID: "i1", Amount: domain.MustAmount("0.5", "NANO"), Status: domain.BidStatusRefunded},
	}
	for _, b := range bids {
		if err := s.Create(ctx, b); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	if err := s.MarkOutbid(ctx, "i1", "b2"); err != nil {
		t.Fatalf("MarkOutbid: %v", err)
	}
	// Idempotent.
	if err := s.MarkOutbid(ctx, "i1", "b2"); err != nil {
		t.Fatalf("MarkOutbid repeat: %v", err)
	}

	checks := map[string]domain.BidStatus{
		"b1": domain.BidStatusOutbid,
		"b2": domain.BidStatusConfirmed,
		"b3": domain.BidStatusRefunded,
	}
	for id, want := range checks {
		got, err := s.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID %s: %v", id, err)
		}
		if got.Status != want {
			t.Fatalf("%s status = %s, want %s", id, got.Status, want)
		}
	}
}

func TestBidStoreIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	s := NewBidStore()

	b := domain.Bid{ID: "b1", ItemID: "i1", Amount: domain.MustAmount("1.0", "NANO"), IdempotencyKey: "k1", Status: domain.BidStatusPending}
	if err := s.Create(ctx, b); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dup := domain.Bid{ID: "b2", ItemID: "i1", Amount: domain.MustAmount("2.0", "NANO"), IdempotencyKey: "k1", Status: domain.BidStatusPending}
	if err := s.Create(ctx, dup); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate key Create = %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetByIdempotencyKey(ctx, "k1")
	if err != nil {
		t.Fatalf("GetByIdempotencyKey: %v", err)
	}
	if got.ID != "b1" {
		t.Fatalf("GetByIdempotencyKey = %s, want b1", got.ID)
	}
	if _, err := s.GetByIdempotencyKey(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing key = %v, want ErrNotFound", err)
	}
}

func ids(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func bidIDs(bids []domain.Bid) []string {
	out := make([]string, len(bids))
	for i, b := range bids {
		out[i] = b.ID
	}
	return out
}
