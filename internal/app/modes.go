package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sapphirelabs/sapphire-exchange/internal/server"
	"github.com/sapphirelabs/sapphire-exchange/internal/server/handler"
	"github.com/sapphirelabs/sapphire-exchange/internal/server/ws"
)

// defaultSettleInterval sweeps due auctions once a minute when the config
// leaves the interval unset.
const defaultSettleInterval = time.Minute

// ServeMode runs the marketplace: the HTTP + WebSocket API (when enabled),
// the settlement sweeper, and the winner verification loop (when enabled).
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.Bus, a.logger)
		g.Go(func() error {
			err := hub.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})

		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		}, server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Auctions: handler.NewAuctionHandler(deps.Auctions, deps.Ledger, a.logger),
			Users:    handler.NewUserHandler(deps.Users, a.logger),
		}, hub, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return a.settleLoop(ctx, deps)
	})

	if a.cfg.Verify.Enabled {
		g.Go(func() error {
			err := deps.VerifyLoop.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// VerifyMode runs only the background winner verification loop.
func (a *App) VerifyMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting verify mode")
	err := deps.VerifyLoop.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// settleLoop periodically settles auctions whose end time has passed.
func (a *App) settleLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Auction.SettleInterval.Duration
	if interval <= 0 {
		interval = defaultSettleInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			settled, err := deps.Auctions.SettleDue(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "settlement sweep failed", slog.Any("error", err))
				continue
			}
			if settled > 0 {
				a.logger.InfoContext(ctx, "settlement sweep complete", slog.Int("settled", settled))
			}
		}
	}
}
