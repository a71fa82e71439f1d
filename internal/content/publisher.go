package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// MinPublishBalance is the minimum store-unit balance the publishing account
// must hold before a publish is attempted.
const MinPublishBalance = 0.05

// Standard tags attached to every published document.
const (
	TagContentType = "Content-Type"
	TagAppName     = "App-Name"
	TagDataType    = "Data-Type"
	AppName        = "Sapphire-Exchange"
)

// Config holds the publisher's account and balance threshold.
type Config struct {
	// Account is the publishing account address used for balance checks.
	Account string
	// MinBalance overrides MinPublishBalance when > 0.
	MinBalance float64
}

// Publisher publishes canonical JSON documents to an immutable
// content-addressed store and verifies retrieved content against expected
// hashes. It never retries on its own; retry policy belongs to the caller.
type Publisher struct {
	store      domain.ContentStorePort
	account    string
	minBalance float64
	logger     *slog.Logger
}

// NewPublisher creates a Publisher over the given store backend.
func NewPublisher(store domain.ContentStorePort, cfg Config, logger *slog.Logger) *Publisher {
	min := cfg.MinBalance
	if min <= 0 {
		min = MinPublishBalance
	}
	return &Publisher{
		store:      store,
		account:    cfg.Account,
		minBalance: min,
		logger:     logger.With(slog.String("component", "publisher")),
	}
}

// Store exposes the underlying backend, primarily for ID validation during
// post discovery.
func (p *Publisher) Store() domain.ContentStorePort { return p.store }

// Publish canonicalizes doc, checks the publishing account balance, submits
// the bytes with the given tags, and returns the content ID together with the
// canonical SHA-256 hash for the caller's own integrity tracking.
func (p *Publisher) Publish(ctx context.Context, doc any, tags map[string]string) (id, hash string, err error) {
	data, err := CanonicalJSON(doc)
	if err != nil {
		return "", "", err
	}
	hash = HashBytes(data)

	balance, err := p.store.Balance(ctx, p.account)
	if err != nil {
		return "", "", fmt.Errorf("content: balance check: %w", err)
	}
	if balance < p.minBalance {
		return "", "", &domain.InsufficientFundsError{
			Account:   p.account,
			Required:  strconv.FormatFloat(p.minBalance, 'f', -1, 64),
			Available: strconv.FormatFloat(balance, 'f', -1, 64),
		}
	}

	merged := map[string]string{
		TagContentType: "application/json",
		TagAppName:     AppName,
	}
	for k, v := range tags {
		merged[k] = v
	}

	id, err = p.store.Publish(ctx, data, merged)
	if err != nil {
		return "", "", fmt.Errorf("content: publish: %w", err)
	}

	p.logger.DebugContext(ctx, "document published",
		slog.String("content_id", id),
		slog.String("hash", hash),
		slog.Int("bytes", len(data)),
	)
	return id, hash, nil
}

// Retrieve fetches the document with the given content ID and decodes it
// into out. Missing content surfaces as domain.ErrNotFound.
func (p *Publisher) Retrieve(ctx context.Context, id string, out any) error {
	data, err := p.store.Retrieve(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("content: retrieve %s: %w", id, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("content: decode %s: %w", id, err)
	}
	return nil
}

// VerifyIntegrity retrieves the content, recomputes its canonical hash, and
// compares against expectedHash. A mismatch returns an IntegrityError along
// with false; corruption is never silently accepted.
func (p *Publisher) VerifyIntegrity(ctx context.Context, id, expectedHash string) (bool, error) {
	data, err := p.store.Retrieve(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, domain.ErrNotFound
		}
		return false, fmt.Errorf("content: retrieve %s: %w", id, err)
	}

	// Re-canonicalize so hashing is insensitive to storage-side key order.
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return false, fmt.Errorf("content: decode %s: %w", id, err)
	}
	actual, err := HashDocument(decoded)
	if err != nil {
		return false, err
	}

	if actual != expectedHash {
		return false, &domain.IntegrityError{ContentID: id, Expected: expectedHash, Actual: actual}
	}
	return true, nil
}
