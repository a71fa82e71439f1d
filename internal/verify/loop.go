package verify

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// Background verification cadence.
const (
	// DefaultInterval is how often the loop scans for unconfirmed winners.
	DefaultInterval = 5 * time.Minute
	// DefaultLookback is how far back ended auctions are re-checked.
	DefaultLookback = 24 * time.Hour
	// maxConcurrentChecks bounds parallel winner checks per sweep.
	maxConcurrentChecks = 4
)

// Loop periodically re-verifies winners of recently sold auctions.
type Loop struct {
	verifier *Verifier
	items    domain.ItemStore
	interval time.Duration
	lookback time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewLoop creates a background verification loop. Non-positive interval or
// lookback fall back to the defaults.
func NewLoop(verifier *Verifier, items domain.ItemStore, interval, lookback time.Duration, logger *slog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Loop{
		verifier: verifier,
		items:    items,
		interval: interval,
		lookback: lookback,
		logger:   logger.With(slog.String("component", "verify_loop")),
		now:      time.Now,
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
// Cancellation is the only way Run returns; sweep failures are logged and
// the loop keeps going.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if err := l.Sweep(ctx); err != nil && ctx.Err() == nil {
			l.logger.Warn("verification sweep failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs one verification pass over sold auctions that ended within the
// lookback window and still lack a confirmed winner.
func (l *Loop) Sweep(ctx context.Context) error {
	since := l.now().UTC().Add(-l.lookback)
	items, err := l.items.ListEndedSince(ctx, since,
		[]domain.ItemStatus{domain.ItemStatusSold}, domain.ListOpts{Limit: domain.MaxPageLimit})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)
	for _, item := range items {
		if item.ConfirmedWinner {
			continue
		}
		g.Go(func() error {
			if _, err := l.verifier.VerifyWinner(gctx, item.ID); err != nil {
				l.logger.Warn("winner check failed",
					slog.String("item_id", item.ID), slog.Any("error", err))
			}
			return nil
		})
	}
	return g.Wait()
}
