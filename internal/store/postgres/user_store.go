package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

var _ domain.UserStore = (*UserStore)(nil)

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts a new user. Username uniqueness is case-insensitive among
// non-deleted users.
func (s *UserStore) Create(ctx context.Context, u domain.User) error {
	addresses, inventory, err := marshalUserJSON(u)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO users (
			id, username, addresses, reputation_score, inventory,
			created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.pool.Exec(ctx, query,
		u.ID, u.Username, addresses, u.ReputationScore, inventory,
		u.CreatedAt, u.UpdatedAt, u.DeletedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("postgres: create user %s: %w", u.ID, err)
	}
	return nil
}

// GetByID returns a non-deleted user by ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT ` + userSelectCols + ` FROM users
		WHERE id = $1 AND deleted_at IS NULL`

	u, err := scanUserFromRow(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

// GetByUsername returns a non-deleted user by case-insensitive username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	const query = `SELECT ` + userSelectCols + ` FROM users
		WHERE LOWER(username) = LOWER($1) AND deleted_at IS NULL`

	u, err := scanUserFromRow(s.pool.QueryRow(ctx, query, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("postgres: get user by username %q: %w", username, err)
	}
	return u, nil
}

// Update replaces the stored user.
func (s *UserStore) Update(ctx context.Context, u domain.User) error {
	addresses, inventory, err := marshalUserJSON(u)
	if err != nil {
		return err
	}

	const query = `
		UPDATE users SET
			username = $2, addresses = $3, reputation_score = $4,
			inventory = $5, updated_at = $6
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := s.pool.Exec(ctx, query,
		u.ID, u.Username, addresses, u.ReputationScore, inventory, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("postgres: update user %s: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete soft-deletes the user.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	const query = `UPDATE users SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: delete user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns non-deleted users ordered by creation time.
func (s *UserStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.User, error) {
	opts = opts.Clamp()
	const query = `SELECT ` + userSelectCols + ` FROM users
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUserFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// AdjustReputation applies delta inside a transaction, clamps the result to
// [0,100], and records a reputation event carrying the mandatory reason.
func (s *UserStore) AdjustReputation(ctx context.Context, id string, delta float64, reason string) (domain.User, error) {
	if reason == "" {
		return domain.User{}, domain.Validation("reason", "must not be empty")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("postgres: begin reputation tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const selectQuery = `SELECT ` + userSelectCols + ` FROM users
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE`

	u, err := scanUserFromRow(tx.QueryRow(ctx, selectQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("postgres: lock user %s: %w", id, err)
	}

	score := u.ReputationScore + delta
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	const updateQuery = `UPDATE users SET reputation_score = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	if err := tx.QueryRow(ctx, updateQuery, id, score).Scan(&u.UpdatedAt); err != nil {
		return domain.User{}, fmt.Errorf("postgres: update reputation %s: %w", id, err)
	}

	const eventQuery = `
		INSERT INTO reputation_events (user_id, delta, reason, score, created_at)
		VALUES ($1, $2, $3, $4, NOW())`
	if _, err := tx.Exec(ctx, eventQuery, id, delta, reason, score); err != nil {
		return domain.User{}, fmt.Errorf("postgres: record reputation event %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.User{}, fmt.Errorf("postgres: commit reputation tx: %w", err)
	}

	u.ReputationScore = score
	return u, nil
}

// ReputationHistory returns reputation events for the user, newest first.
func (s *UserStore) ReputationHistory(ctx context.Context, id string, opts domain.ListOpts) ([]domain.ReputationEvent, error) {
	opts = opts.Clamp()
	const query = `SELECT user_id, delta, reason, score, created_at
		FROM reputation_events
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, id, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: reputation history %s: %w", id, err)
	}
	defer rows.Close()

	var events []domain.ReputationEvent
	for rows.Next() {
		var ev domain.ReputationEvent
		if err := rows.Scan(&ev.UserID, &ev.Delta, &ev.Reason, &ev.Score, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan reputation event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// userSelectCols lists the columns selected when reading users.
const userSelectCols = `id, username, addresses, reputation_score, inventory,
	created_at, updated_at, deleted_at`

func scanUserFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.User, error) {
	var u domain.User
	var addresses, inventory []byte

	err := scanner.Scan(
		&u.ID, &u.Username, &addresses, &u.ReputationScore, &inventory,
		&u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	if len(addresses) > 0 {
		if err := json.Unmarshal(addresses, &u.Addresses); err != nil {
			return domain.User{}, fmt.Errorf("decode addresses: %w", err)
		}
	}
	if len(inventory) > 0 {
		if err := json.Unmarshal(inventory, &u.Inventory); err != nil {
			return domain.User{}, fmt.Errorf("decode inventory: %w", err)
		}
	}
	return u, nil
}

func marshalUserJSON(u domain.User) (addresses, inventory []byte, err error) {
	if u.Addresses == nil {
		u.Addresses = map[string]string{}
	}
	if u.Inventory == nil {
		u.Inventory = []string{}
	}
	addresses, err = json.Marshal(u.Addresses)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: encode addresses: %w", err)
	}
	inventory, err = json.Marshal(u.Inventory)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: encode inventory: %w", err)
	}
	return addresses, inventory, nil
}
