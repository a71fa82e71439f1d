package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// BidStore implements domain.BidStore using PostgreSQL.
type BidStore struct {
	pool *pgxpool.Pool
}

var _ domain.BidStore = (*BidStore)(nil)

// NewBidStore creates a new BidStore backed by the given connection pool.
func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

// Create inserts a new bid. A duplicate ID or a reused non-empty idempotency
// key yields ErrAlreadyExists.
func (s *BidStore) Create(ctx context.Context, bid domain.Bid) error {
	usdValue, usdCurrency := splitAmountPtr(bid.AmountUSD)

	const query = `
		INSERT INTO bids (
			id, item_id, bidder_id,
			amount_value, amount_currency, amount_usd_value, amount_usd_currency,
			transaction_hash, content_id, idempotency_key,
			status, created_at, confirmed_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		bid.ID, bid.ItemID, bid.BidderID,
		bid.Amount.Value, bid.Amount.Currency, usdValue, usdCurrency,
		bid.TransactionHash, bid.ContentID, bid.IdempotencyKey,
		string(bid.Status), bid.CreatedAt, bid.ConfirmedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("postgres: create bid %s: %w", bid.ID, err)
	}
	return nil
}

// GetByID returns a bid by ID.
func (s *BidStore) GetByID(ctx context.Context, id string) (domain.Bid, error) {
	const query = `SELECT ` + bidSelectCols + ` FROM bids WHERE id = $1`

	bid, err := scanBidFromRow(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Bid{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Bid{}, fmt.Errorf("postgres: get bid %s: %w", id, err)
	}
	return bid, nil
}

// GetByIdempotencyKey returns the bid created under the given key.
func (s *BidStore) GetByIdempotencyKey(ctx context.Context, key string) (domain.Bid, error) {
	if key == "" {
		return domain.Bid{}, domain.ErrNotFound
	}
	const query = `SELECT ` + bidSelectCols + ` FROM bids WHERE idempotency_key = $1`

	bid, err := scanBidFromRow(s.pool.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Bid{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Bid{}, fmt.Errorf("postgres: get bid by idempotency key: %w", err)
	}
	return bid, nil
}

// Update replaces the stored bid.
func (s *BidStore) Update(ctx context.Context, bid domain.Bid) error {
	usdValue, usdCurrency := splitAmountPtr(bid.AmountUSD)

	const query = `
		UPDATE bids SET
			amount_value = $2, amount_currency = $3,
			amount_usd_value = $4, amount_usd_currency = $5,
			transaction_hash = $6, content_id = $7,
			status = $8, confirmed_at = $9
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		bid.ID, bid.Amount.Value, bid.Amount.Currency,
		usdValue, usdCurrency,
		bid.TransactionHash, bid.ContentID,
		string(bid.Status), bid.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update bid %s: %w", bid.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a bid row entirely.
func (s *BidStore) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM bids WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: delete bid %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByItem returns the item's bids ordered by amount descending, ties
// broken by earliest creation time.
func (s *BidStore) ListByItem(ctx context.Context, itemID string, opts domain.ListOpts) ([]domain.Bid, error) {
	const query = `SELECT ` + bidSelectCols + ` FROM bids
		WHERE item_id = $1
		ORDER BY amount_value::numeric DESC, created_at ASC, id ASC
		LIMIT $2 OFFSET $3`
	opts = opts.Clamp()
	return s.queryBids(ctx, query, itemID, opts.Limit, opts.Offset)
}

// ListByBidder returns the bidder's bids ordered by creation time.
func (s *BidStore) ListByBidder(ctx context.Context, bidderID string, opts domain.ListOpts) ([]domain.Bid, error) {
	const query = `SELECT ` + bidSelectCols + ` FROM bids
		WHERE bidder_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`
	opts = opts.Clamp()
	return s.queryBids(ctx, query, bidderID, opts.Limit, opts.Offset)
}

// Highest returns the maximal-amount bid among non-outbid, non-refunded bids.
func (s *BidStore) Highest(ctx context.Context, itemID string) (domain.Bid, error) {
	const query = `SELECT ` + bidSelectCols + ` FROM bids
		WHERE item_id = $1 AND status NOT IN ($2, $3)
		ORDER BY amount_value::numeric DESC, created_at ASC, id ASC
		LIMIT 1`

	bid, err := scanBidFromRow(s.pool.QueryRow(ctx, query, itemID,
		string(domain.BidStatusOutbid), string(domain.BidStatusRefunded)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Bid{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Bid{}, fmt.Errorf("postgres: highest bid for item %s: %w", itemID, err)
	}
	return bid, nil
}

// CountByItem returns the number of bids on the item.
func (s *BidStore) CountByItem(ctx context.Context, itemID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM bids WHERE item_id = $1`

	var count int64
	if err := s.pool.QueryRow(ctx, query, itemID).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count bids for item %s: %w", itemID, err)
	}
	return count, nil
}

// MarkOutbid sets every non-refunded bid on the item other than winningBidID
// to outbid. Idempotent.
func (s *BidStore) MarkOutbid(ctx context.Context, itemID, winningBidID string) error {
	const query = `UPDATE bids SET status = $3
		WHERE item_id = $1 AND id <> $2 AND status NOT IN ($3, $4)`

	_, err := s.pool.Exec(ctx, query, itemID, winningBidID,
		string(domain.BidStatusOutbid), string(domain.BidStatusRefunded))
	if err != nil {
		return fmt.Errorf("postgres: mark outbid for item %s: %w", itemID, err)
	}
	return nil
}

func (s *BidStore) queryBids(ctx context.Context, query string, args ...any) ([]domain.Bid, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query bids: %w", err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		bid, err := scanBidFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

// bidSelectCols lists the columns selected when reading bids.
const bidSelectCols = `id, item_id, bidder_id,
	amount_value, amount_currency, amount_usd_value, amount_usd_currency,
	transaction_hash, content_id, idempotency_key,
	status, created_at, confirmed_at`

func scanBidFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Bid, error) {
	var bid domain.Bid
	var status string
	var usdValue, usdCurrency *string

	err := scanner.Scan(
		&bid.ID, &bid.ItemID, &bid.BidderID,
		&bid.Amount.Value, &bid.Amount.Currency, &usdValue, &usdCurrency,
		&bid.TransactionHash, &bid.ContentID, &bid.IdempotencyKey,
		&status, &bid.CreatedAt, &bid.ConfirmedAt,
	)
	if err != nil {
		return domain.Bid{}, err
	}

	bid.Status = domain.BidStatus(status)
	if usdValue != nil && usdCurrency != nil {
		bid.AmountUSD = &domain.Amount{Value: *usdValue, Currency: *usdCurrency}
	}
	return bid, nil
}
