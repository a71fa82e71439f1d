package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sapphirelabs/sapphire-exchange/internal/app"
	"github.com/sapphirelabs/sapphire-exchange/internal/auction"
	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
	"github.com/sapphirelabs/sapphire-exchange/internal/ledger"
)

// opTimeout bounds every one-shot CLI operation.
const opTimeout = 2 * time.Minute

// withDeps wires the full dependency graph, runs op, and prints its result.
func withDeps(cmd *cobra.Command, op func(ctx context.Context, deps *app.Dependencies) (domain.Result, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
	defer cancel()

	deps, cleanup, err := app.Wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := op(ctx, deps)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func newCreateAuctionCmd() *cobra.Command {
	var (
		seller      string
		title       string
		description string
		tags        []string
		category    string
		price       string
		end         string
	)

	cmd := &cobra.Command{
		Use:   "create-auction",
		Short: "Create and activate a new auction listing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			auctionEnd, err := time.Parse(time.RFC3339, end)
			if err != nil {
				return fmt.Errorf("parse --end: %w", err)
			}
			startingPrice, err := domain.NewAmount(price, cfg.Auction.Currency)
			if err != nil {
				return err
			}

			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) (domain.Result, error) {
				item, err := deps.Auctions.CreateAuction(ctx, auction.CreateAuctionRequest{
					SellerID:      seller,
					Title:         title,
					Description:   description,
					Tags:          tags,
					Category:      category,
					StartingPrice: startingPrice,
					AuctionEnd:    auctionEnd,
				})
				if err != nil {
					return domain.Result{}, err
				}
				return domain.OK("auction created", item), nil
			})
		},
	}

	cmd.Flags().StringVar(&seller, "seller", "", "seller user ID")
	cmd.Flags().StringVar(&title, "title", "", "listing title")
	cmd.Flags().StringVar(&description, "description", "", "listing description")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "listing tags")
	cmd.Flags().StringVar(&category, "category", "", "listing category")
	cmd.Flags().StringVar(&price, "price", "", "starting price in the marketplace currency")
	cmd.Flags().StringVar(&end, "end", "", "auction end time (RFC 3339)")
	cmd.MarkFlagRequired("seller")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("price")
	cmd.MarkFlagRequired("end")
	return cmd
}

func newPlaceBidCmd() *cobra.Command {
	var (
		itemID         string
		bidder         string
		amount         string
		from           string
		idempotencyKey string
	)

	cmd := &cobra.Command{
		Use:   "place-bid",
		Short: "Place a bid on an active auction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bidAmount, err := domain.NewAmount(amount, cfg.Auction.Currency)
			if err != nil {
				return err
			}

			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) (domain.Result, error) {
				bid, err := deps.Auctions.PlaceBid(ctx, ledger.PlaceBidRequest{
					ItemID:         itemID,
					BidderID:       bidder,
					Amount:         bidAmount,
					BidderAddress:  from,
					IdempotencyKey: idempotencyKey,
				})
				if err != nil {
					return domain.Result{}, err
				}
				return domain.OK("bid placed", bid), nil
			})
		},
	}

	cmd.Flags().StringVar(&itemID, "item", "", "auction item ID")
	cmd.Flags().StringVar(&bidder, "bidder", "", "bidder user ID")
	cmd.Flags().StringVar(&amount, "amount", "", "bid amount in the marketplace currency")
	cmd.Flags().StringVar(&from, "from", "", "bidder wallet address the deposit is drawn from")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "client retry dedupe key")
	cmd.MarkFlagRequired("item")
	cmd.MarkFlagRequired("bidder")
	cmd.MarkFlagRequired("amount")
	cmd.MarkFlagRequired("from")
	return cmd
}

func newEndAuctionCmd() *cobra.Command {
	var itemID string

	cmd := &cobra.Command{
		Use:   "end-auction",
		Short: "Settle an ended auction to sold or expired",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) (domain.Result, error) {
				item, err := deps.Auctions.EndAuction(ctx, itemID)
				if err != nil {
					return domain.Result{}, err
				}
				return domain.OK(fmt.Sprintf("auction settled: %s", item.Status), item), nil
			})
		},
	}

	cmd.Flags().StringVar(&itemID, "item", "", "auction item ID")
	cmd.MarkFlagRequired("item")
	return cmd
}

func newCancelAuctionCmd() *cobra.Command {
	var itemID string

	cmd := &cobra.Command{
		Use:   "cancel-auction",
		Short: "Cancel an auction and refund its bid deposits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) (domain.Result, error) {
				item, err := deps.Auctions.CancelAuction(ctx, itemID)
				if err != nil {
					return domain.Result{}, err
				}
				return domain.OK("auction cancelled", item), nil
			})
		},
	}

	cmd.Flags().StringVar(&itemID, "item", "", "auction item ID")
	cmd.MarkFlagRequired("item")
	return cmd
}

func newVerifyWinnerCmd() *cobra.Command {
	var itemID string

	cmd := &cobra.Command{
		Use:   "verify-winner",
		Short: "Run one winner verification check against the auction wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) (domain.Result, error) {
				item, err := deps.Verifier.VerifyWinner(ctx, itemID)
				if err != nil {
					return domain.Result{}, err
				}
				return domain.OK("verification check recorded", map[string]any{
					"item_id":            item.ID,
					"confirmed_winner":   item.ConfirmedWinner,
					"confirmation_count": item.ConfirmationCount,
					"current_bidder_id":  item.CurrentBidderID,
				}), nil
			})
		},
	}

	cmd.Flags().StringVar(&itemID, "item", "", "auction item ID")
	cmd.MarkFlagRequired("item")
	return cmd
}

func newBalancesCmd() *cobra.Command {
	var (
		userID string
		addrs  []string
	)

	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Query balances across all configured chains",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd, func(ctx context.Context, deps *app.Dependencies) (domain.Result, error) {
				addresses := make(map[string]string)
				if userID != "" {
					u, err := deps.Users.GetByID(ctx, userID)
					if err != nil {
						return domain.Result{}, err
					}
					for cur, addr := range u.Addresses {
						addresses[cur] = addr
					}
				}
				for _, pair := range addrs {
					cur, addr, ok := strings.Cut(pair, "=")
					if !ok {
						return domain.Result{}, fmt.Errorf("--addr %q is not CURRENCY=address", pair)
					}
					addresses[strings.ToUpper(cur)] = addr
				}
				if len(addresses) == 0 {
					return domain.Result{}, fmt.Errorf("provide --user or at least one --addr")
				}

				set := deps.Chains.AllBalances(ctx, addresses, 30*time.Second)
				data := map[string]any{"balances": set.Balances}
				if len(set.Errors) > 0 {
					failed := make(map[string]string, len(set.Errors))
					for cur, err := range set.Errors {
						failed[cur] = err.Error()
					}
					data["errors"] = failed
				}
				return domain.OK("balances fetched", data), nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID whose registered addresses are queried")
	cmd.Flags().StringSliceVar(&addrs, "addr", nil, "explicit CURRENCY=address pairs")
	return cmd
}
