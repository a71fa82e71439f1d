package verify

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/content"
	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func publishPost(t *testing.T, store *content.MemoryStore, post domain.Post) string {
	t.Helper()
	data, err := content.CanonicalJSON(post)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	id, err := store.Publish(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	return id
}

func snap(itemID string, updated time.Time, bidder string) domain.AuctionSnapshot {
	return domain.AuctionSnapshot{
		ItemID:          itemID,
		SellerID:        "seller",
		Title:           "t",
		StartingPrice:   domain.MustAmount("1.0", "NANO"),
		CurrentBidderID: bidder,
		Status:          domain.ItemStatusActive,
		UpdatedAt:       updated,
	}
}

func TestDiscoverWalksReferences(t *testing.T) {
	store := content.NewMemoryStore()
	store.SetBalance("pub", 1)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	oldest := publishPost(t, store, domain.Post{
		Version: domain.PostVersion, Auction: snap("i1", base, ""),
	})
	middle := publishPost(t, store, domain.Post{
		Version: domain.PostVersion, Auction: snap("i1", base.Add(time.Hour), "u1"),
		References: []string{oldest}, PreviousPost: oldest,
	})
	newest := publishPost(t, store, domain.Post{
		Version: domain.PostVersion, Auction: snap("i1", base.Add(2*time.Hour), "u2"),
		References: []string{middle}, PreviousPost: middle,
	})

	agg := NewAggregator(store, discard())
	posts, err := agg.Discover(context.Background(), newest)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("discovered %d posts, want 3", len(posts))
	}

	merged := Aggregate(posts)
	if merged["i1"].CurrentBidderID != "u2" {
		t.Fatalf("merged bidder = %s, want u2 (latest UpdatedAt)", merged["i1"].CurrentBidderID)
	}
}

func TestDiscoverSurvivesCycles(t *testing.T) {
	store := content.NewMemoryStore()
	store.SetBalance("pub", 1)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := publishPost(t, store, domain.Post{
		Version: domain.PostVersion, Auction: snap("i1", base, ""),
	})
	// Second post references the first; re-discovering via both creates the
	// shared-ancestor shape a visited set must handle.
	second := publishPost(t, store, domain.Post{
		Version: domain.PostVersion, Auction: snap("i2", base, ""),
		References: []string{first, first},
	})
	third := publishPost(t, store, domain.Post{
		Version: domain.PostVersion, Auction: snap("i3", base, ""),
		References: []string{first, second},
	})

	agg := NewAggregator(store, discard())
	posts, err := agg.Discover(context.Background(), third)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("discovered %d posts, want each visited once", len(posts))
	}
}

func TestDiscoverSkipsMissingAndMalformedReferences(t *testing.T) {
	store := content.NewMemoryStore()
	store.SetBalance("pub", 1)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// A validly-shaped ID that was never published.
	ghost := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	root := publishPost(t, store, domain.Post{
		Version: domain.PostVersion, Auction: snap("i1", base, ""),
		References: []string{ghost, "not-a-content-id"},
	})

	agg := NewAggregator(store, discard())
	posts, err := agg.Discover(context.Background(), root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("discovered %d posts, want 1", len(posts))
	}
}

func TestDiscoverRejectsMalformedRoot(t *testing.T) {
	agg := NewAggregator(content.NewMemoryStore(), discard())
	if _, err := agg.Discover(context.Background(), "nope"); !domain.IsValidation(err) {
		t.Fatalf("Discover = %v, want validation error", err)
	}
}

func TestAggregateKeepsExistingOnEqualTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	posts := []domain.Post{
		{Auction: snap("i1", ts, "first")},
		{Auction: snap("i1", ts, "second")},
	}
	merged := Aggregate(posts)
	if merged["i1"].CurrentBidderID != "first" {
		t.Fatalf("merged bidder = %s, want first (replay must not flip state)", merged["i1"].CurrentBidderID)
	}
}

func TestAggregateKeepsExistingOnMissingTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// A later snapshot without a timestamp must not displace dated state.
	merged := Aggregate([]domain.Post{
		{Auction: snap("i1", ts, "dated")},
		{Auction: snap("i1", time.Time{}, "undated")},
	})
	if merged["i1"].CurrentBidderID != "dated" {
		t.Fatalf("merged bidder = %s, want dated kept", merged["i1"].CurrentBidderID)
	}

	// Nor may a dated snapshot displace undated state already merged; with a
	// timestamp missing there is no order to decide by.
	merged = Aggregate([]domain.Post{
		{Auction: snap("i1", time.Time{}, "undated")},
		{Auction: snap("i1", ts, "dated")},
	})
	if merged["i1"].CurrentBidderID != "undated" {
		t.Fatalf("merged bidder = %s, want undated kept", merged["i1"].CurrentBidderID)
	}
}

func TestAggregateIgnoresEmptyItemIDs(t *testing.T) {
	merged := Aggregate([]domain.Post{{Auction: domain.AuctionSnapshot{}}})
	if len(merged) != 0 {
		t.Fatalf("merged %d snapshots, want 0", len(merged))
	}
}
