// Package verify reconstructs auction state from published posts and runs
// independent winner verification. Confirmation is conservative: a winner is
// only confirmed after three consecutive agreeing checks, and any
// disagreement resets the count.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// maxDiscoveryNodes bounds the reference walk so a malicious post chain
// cannot hold discovery forever.
const maxDiscoveryNodes = 1000

// Aggregator discovers post chains in the content store and merges their
// auction snapshots into current state.
type Aggregator struct {
	store  domain.ContentStorePort
	logger *slog.Logger
}

// NewAggregator creates an Aggregator over the given content store.
func NewAggregator(store domain.ContentStorePort, logger *slog.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger.With(slog.String("component", "aggregator"))}
}

// Discover walks the reference graph starting at rootID breadth-first and
// returns every reachable post. Each post is visited once; IDs that fail
// validation or retrieval are skipped, and an unparsable document ends that
// branch without failing the walk.
func (a *Aggregator) Discover(ctx context.Context, rootID string) ([]domain.Post, error) {
	if !a.store.ValidateID(rootID) {
		return nil, domain.Validation("content_id", "malformed id %q", rootID)
	}

	visited := map[string]bool{rootID: true}
	queue := []string{rootID}
	var posts []domain.Post

	for visitedCount := 0; len(queue) > 0 && visitedCount < maxDiscoveryNodes; visitedCount++ {
		if err := ctx.Err(); err != nil {
			return posts, err
		}
		id := queue[0]
		queue = queue[1:]

		raw, err := a.store.Retrieve(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				a.logger.Debug("referenced post missing", slog.String("content_id", id))
				continue
			}
			return posts, fmt.Errorf("verify: retrieve post %s: %w", id, err)
		}

		var post domain.Post
		if err := json.Unmarshal(raw, &post); err != nil {
			a.logger.Warn("unparsable post skipped", slog.String("content_id", id))
			continue
		}
		posts = append(posts, post)

		for _, ref := range append(post.References, post.PreviousPost) {
			if ref == "" || visited[ref] || !a.store.ValidateID(ref) {
				continue
			}
			visited[ref] = true
			queue = append(queue, ref)
		}
	}
	return posts, nil
}

// Aggregate merges snapshots per item, last write wins on UpdatedAt. When
// two snapshots carry the same UpdatedAt, or either side is missing its
// timestamp, the earlier-seen one is kept, so a replayed or damaged document
// never flips established state.
func Aggregate(posts []domain.Post) map[string]domain.AuctionSnapshot {
	merged := make(map[string]domain.AuctionSnapshot)
	for _, post := range posts {
		snap := post.Auction
		if snap.ItemID == "" {
			continue
		}
		existing, ok := merged[snap.ItemID]
		switch {
		case !ok:
			merged[snap.ItemID] = snap
		case existing.UpdatedAt.IsZero() || snap.UpdatedAt.IsZero():
			// Without both timestamps there is no order to decide by.
		case snap.UpdatedAt.After(existing.UpdatedAt):
			merged[snap.ItemID] = snap
		}
	}
	return merged
}

// Resolve discovers from rootID and returns the merged current state of
// every auction reachable from it.
func (a *Aggregator) Resolve(ctx context.Context, rootID string) (map[string]domain.AuctionSnapshot, error) {
	posts, err := a.Discover(ctx, rootID)
	if err != nil {
		return nil, err
	}
	return Aggregate(posts), nil
}
