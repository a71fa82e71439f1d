package cached

import (
	"context"
	"testing"
	"time"

	cachemem "github.com/sapphirelabs/sapphire-exchange/internal/cache/memory"
	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
	storemem "github.com/sapphirelabs/sapphire-exchange/internal/store/memory"
)

func TestItemStoreReadThrough(t *testing.T) {
	ctx := context.Background()
	backing := storemem.NewItemStore()
	cache := cachemem.NewCache()
	s := NewItemStore(backing, cache)

	item := domain.Item{
		ID: "i1", SellerID: "s1", Title: "t",
		StartingPrice: domain.MustAmount("1.0", "NANO"),
		Status:        domain.ItemStatusActive,
		CreatedAt:     time.Now(),
	}
	if err := s.Create(ctx, item); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// First read populates the cache.
	if _, err := s.GetByID(ctx, "i1"); err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	// A write bypassing the decorator goes stale until the TTL; a reader now
	// sees the cached copy.
	stale := item
	stale.Title = "changed underneath"
	if err := backing.Update(ctx, stale); err != nil {
		t.Fatalf("backing Update: %v", err)
	}
	got, err := s.GetByID(ctx, "i1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "t" {
		t.Fatalf("Title = %q, want cached %q", got.Title, "t")
	}

	// A write through the decorator invalidates.
	stale.Title = "updated properly"
	if err := s.Update(ctx, stale); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = s.GetByID(ctx, "i1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "updated properly" {
		t.Fatalf("Title = %q, want fresh read after invalidation", got.Title)
	}
}

func TestUserStoreInvalidatesBothKeys(t *testing.T) {
	ctx := context.Background()
	backing := storemem.NewUserStore()
	cache := cachemem.NewCache()
	s := NewUserStore(backing, cache)

	u := domain.User{ID: "u1", Username: "alice", CreatedAt: time.Now()}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Warm both cache keys.
	if _, err := s.GetByID(ctx, "u1"); err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if _, err := s.GetByUsername(ctx, "alice"); err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}

	if _, err := s.AdjustReputation(ctx, "u1", 5, "test"); err != nil {
		t.Fatalf("AdjustReputation: %v", err)
	}

	got, err := s.GetByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ReputationScore != 5 {
		t.Fatalf("score = %v, want fresh 5 after invalidation", got.ReputationScore)
	}
}

func TestBidStoreAggregateInvalidation(t *testing.T) {
	ctx := context.Background()
	backing := storemem.NewBidStore()
	cache := cachemem.NewCache()
	s := NewBidStore(backing, cache)

	first := domain.Bid{
		ID: "b1", ItemID: "i1", BidderID: "u1",
		Amount: domain.MustAmount("1.0", "NANO"),
		Status: domain.BidStatusConfirmed, CreatedAt: time.Now(),
	}
	if err := s.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Highest(ctx, "i1")
	if err != nil {
		t.Fatalf("Highest: %v", err)
	}
	if got.ID != "b1" {
		t.Fatalf("Highest = %s, want b1", got.ID)
	}

	// A new bid through the decorator invalidates the cached aggregate.
	second := first
	second.ID = "b2"
	second.Amount = domain.MustAmount("2.0", "NANO")
	if err := s.Create(ctx, second); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err = s.Highest(ctx, "i1")
	if err != nil {
		t.Fatalf("Highest: %v", err)
	}
	if got.ID != "b2" {
		t.Fatalf("Highest = %s, want b2 after invalidation", got.ID)
	}

	n, err := s.CountByItem(ctx, "i1")
	if err != nil {
		t.Fatalf("CountByItem: %v", err)
	}
	if n != 2 {
		t.Fatalf("CountByItem = %d, want 2", n)
	}
}
