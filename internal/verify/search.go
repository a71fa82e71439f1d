package verify

import (
	"context"
	"sort"
	"time"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// PostFilter narrows a discovered post chain. Zero values leave the
// corresponding dimension unconstrained.
type PostFilter struct {
	// MinSequence and MaxSequence bound the post sequence number, inclusive.
	// MaxSequence of 0 means no upper bound.
	MinSequence uint32
	MaxSequence uint32

	// Since and Until bound CreatedAt, inclusive.
	Since time.Time
	Until time.Time

	// PostedBy, when set, keeps only posts signed by that identity.
	PostedBy string
}

func (f PostFilter) matches(post domain.Post) bool {
	if post.Sequence < f.MinSequence {
		return false
	}
	if f.MaxSequence > 0 && post.Sequence > f.MaxSequence {
		return false
	}
	if !f.Since.IsZero() && post.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && post.CreatedAt.After(f.Until) {
		return false
	}
	if f.PostedBy != "" && post.PostedBy != f.PostedBy {
		return false
	}
	return true
}

// Search discovers the chain rooted at rootID and returns the posts matching
// filter, ordered by sequence ascending then CreatedAt ascending.
func (a *Aggregator) Search(ctx context.Context, rootID string, filter PostFilter) ([]domain.Post, error) {
	posts, err := a.Discover(ctx, rootID)
	if err != nil {
		return nil, err
	}

	matched := posts[:0]
	for _, post := range posts {
		if filter.matches(post) {
			matched = append(matched, post)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Sequence != matched[j].Sequence {
			return matched[i].Sequence < matched[j].Sequence
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}
