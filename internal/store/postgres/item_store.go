package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// ItemStore implements domain.ItemStore using PostgreSQL.
type ItemStore struct {
	pool *pgxpool.Pool
}

var _ domain.ItemStore = (*ItemStore)(nil)

// NewItemStore creates a new ItemStore backed by the given connection pool.
func NewItemStore(pool *pgxpool.Pool) *ItemStore {
	return &ItemStore{pool: pool}
}

// Create inserts a new auction item.
func (s *ItemStore) Create(ctx context.Context, item domain.Item) error {
	bidValue, bidCurrency := splitAmountPtr(item.CurrentBid)

	const query = `
		INSERT INTO items (
			id, seller_id, title, description, tags, category,
			starting_price_value, starting_price_currency,
			current_bid_value, current_bid_currency, current_bidder_id,
			created_at, updated_at, auction_end, status,
			auction_address, auction_public_key, auction_private_key, wallet_index,
			data_hash, content_id, content_confirmed,
			confirmed_winner, confirmation_count, deleted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8,
			$9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19,
			$20, $21, $22,
			$23, $24, $25
		)`

	_, err := s.pool.Exec(ctx, query,
		item.ID, item.SellerID, item.Title, item.Description, item.Tags, item.Category,
		item.StartingPrice.Value, item.StartingPrice.Currency,
		bidValue, bidCurrency, item.CurrentBidderID,
		item.CreatedAt, item.UpdatedAt, item.AuctionEnd, string(item.Status),
		item.AuctionAddress, item.AuctionPublicKey, item.AuctionPrivateKey, int64(item.WalletIndex),
		item.DataHash, item.ContentID, item.ContentConfirmed,
		item.ConfirmedWinner, item.ConfirmationCount, item.DeletedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("postgres: create item %s: %w", item.ID, err)
	}
	return nil
}

// GetByID returns a non-deleted item by ID.
func (s *ItemStore) GetByID(ctx context.Context, id string) (domain.Item, error) {
	const query = `SELECT ` + itemSelectCols + ` FROM items
		WHERE id = $1 AND deleted_at IS NULL`

	item, err := scanItemFromRow(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Item{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("postgres: get item %s: %w", id, err)
	}
	return item, nil
}

// Update replaces the stored item.
func (s *ItemStore) Update(ctx context.Context, item domain.Item) error {
	bidValue, bidCurrency := splitAmountPtr(item.CurrentBid)

	const query = `
		UPDATE items SET
			title = $2, description = $3, tags = $4, category = $5,
			starting_price_value = $6, starting_price_currency = $7,
			current_bid_value = $8, current_bid_currency = $9, current_bidder_id = $10,
			updated_at = $11, auction_end = $12, status = $13,
			auction_address = $14, auction_public_key = $15,
			auction_private_key = $16, wallet_index = $17,
			data_hash = $18, content_id = $19, content_confirmed = $20,
			confirmed_winner = $21, confirmation_count = $22
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := s.pool.Exec(ctx, query,
		item.ID, item.Title, item.Description, item.Tags, item.Category,
		item.StartingPrice.Value, item.StartingPrice.Currency,
		bidValue, bidCurrency, item.CurrentBidderID,
		item.UpdatedAt, item.AuctionEnd, string(item.Status),
		item.AuctionAddress, item.AuctionPublicKey,
		item.AuctionPrivateKey, int64(item.WalletIndex),
		item.DataHash, item.ContentID, item.ContentConfirmed,
		item.ConfirmedWinner, item.ConfirmationCount,
	)
	if err != nil {
		return fmt.Errorf("postgres: update item %s: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete soft-deletes the item.
func (s *ItemStore) Delete(ctx context.Context, id string) error {
	const query = `UPDATE items SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: delete item %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns non-deleted items ordered by creation time.
func (s *ItemStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Item, error) {
	const query = `SELECT ` + itemSelectCols + ` FROM items
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2`
	opts = opts.Clamp()
	return s.queryItems(ctx, query, opts.Limit, opts.Offset)
}

// ListBySeller returns the seller's non-deleted items.
func (s *ItemStore) ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Item, error) {
	const query = `SELECT ` + itemSelectCols + ` FROM items
		WHERE seller_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`
	opts = opts.Clamp()
	return s.queryItems(ctx, query, sellerID, opts.Limit, opts.Offset)
}

// ListByStatus returns non-deleted items in the given lifecycle state.
func (s *ItemStore) ListByStatus(ctx context.Context, status domain.ItemStatus, opts domain.ListOpts) ([]domain.Item, error) {
	const query = `SELECT ` + itemSelectCols + ` FROM items
		WHERE status = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`
	opts = opts.Clamp()
	return s.queryItems(ctx, query, string(status), opts.Limit, opts.Offset)
}

// ListByCategory returns non-deleted items in the given category.
func (s *ItemStore) ListByCategory(ctx context.Context, category string, opts domain.ListOpts) ([]domain.Item, error) {
	const query = `SELECT ` + itemSelectCols + ` FROM items
		WHERE category = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`
	opts = opts.Clamp()
	return s.queryItems(ctx, query, category, opts.Limit, opts.Offset)
}

// ListEndingWithin returns active items whose auction end falls in
// (now, now+window], soonest first.
func (s *ItemStore) ListEndingWithin(ctx context.Context, now time.Time, window time.Duration, opts domain.ListOpts) ([]domain.Item, error) {
	const query = `SELECT ` + itemSelectCols + ` FROM items
		WHERE status = $1 AND auction_end > $2 AND auction_end <= $3
			AND deleted_at IS NULL
		ORDER BY auction_end ASC, id ASC
		LIMIT $4 OFFSET $5`
	opts = opts.Clamp()
	return s.queryItems(ctx, query,
		string(domain.ItemStatusActive), now, now.Add(window),
		opts.Limit, opts.Offset,
	)
}

// ListEndedSince returns items of the given statuses whose auction end falls
// in [since, now].
func (s *ItemStore) ListEndedSince(ctx context.Context, since time.Time, statuses []domain.ItemStatus, opts domain.ListOpts) ([]domain.Item, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	const query = `SELECT ` + itemSelectCols + ` FROM items
		WHERE status = ANY($1) AND auction_end >= $2 AND auction_end <= NOW()
			AND deleted_at IS NULL
		ORDER BY auction_end ASC, id ASC
		LIMIT $3 OFFSET $4`
	opts = opts.Clamp()
	return s.queryItems(ctx, query, names, since, opts.Limit, opts.Offset)
}

func (s *ItemStore) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItemFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// itemSelectCols lists the columns selected when reading items.
const itemSelectCols = `id, seller_id, title, description, tags, category,
	starting_price_value, starting_price_currency,
	current_bid_value, current_bid_currency, current_bidder_id,
	created_at, updated_at, auction_end, status,
	auction_address, auction_public_key, auction_private_key, wallet_index,
	data_hash, content_id, content_confirmed,
	confirmed_winner, confirmation_count, deleted_at`

func scanItemFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Item, error) {
	var item domain.Item
	var status string
	var bidValue, bidCurrency *string
	var walletIndex int64

	err := scanner.Scan(
		&item.ID, &item.SellerID, &item.Title, &item.Description,
		&item.Tags, &item.Category,
		&item.StartingPrice.Value, &item.StartingPrice.Currency,
		&bidValue, &bidCurrency, &item.CurrentBidderID,
		&item.CreatedAt, &item.UpdatedAt, &item.AuctionEnd, &status,
		&item.AuctionAddress, &item.AuctionPublicKey,
		&item.AuctionPrivateKey, &walletIndex,
		&item.DataHash, &item.ContentID, &item.ContentConfirmed,
		&item.ConfirmedWinner, &item.ConfirmationCount, &item.DeletedAt,
	)
	if err != nil {
		return domain.Item{}, err
	}

	item.Status = domain.ItemStatus(status)
	item.WalletIndex = uint32(walletIndex)
	if bidValue != nil && bidCurrency != nil {
		item.CurrentBid = &domain.Amount{Value: *bidValue, Currency: *bidCurrency}
	}
	return item, nil
}

func splitAmountPtr(a *domain.Amount) (value, currency *string) {
	if a == nil {
		return nil, nil
	}
	return &a.Value, &a.Currency
}
