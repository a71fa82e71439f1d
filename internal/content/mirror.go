package content

import (
	"context"
	"log/slog"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// Mirror is a ContentStorePort that publishes to a primary backend and
// copies each published document to a secondary one. The secondary write is
// best effort: a mirror failure is logged but never fails the publish, and
// reads fall back to the mirror when the primary has lost the document.
type Mirror struct {
	primary   domain.ContentStorePort
	secondary domain.ContentStorePort
	logger    *slog.Logger
}

var _ domain.ContentStorePort = (*Mirror)(nil)

// NewMirror wraps primary with a best-effort secondary copy.
func NewMirror(primary, secondary domain.ContentStorePort, logger *slog.Logger) *Mirror {
	return &Mirror{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With(slog.String("component", "content_mirror")),
	}
}

// Publish writes to the primary store, then copies to the secondary.
func (m *Mirror) Publish(ctx context.Context, data []byte, tags map[string]string) (string, error) {
	id, err := m.primary.Publish(ctx, data, tags)
	if err != nil {
		return "", err
	}

	if _, err := m.secondary.Publish(ctx, data, tags); err != nil {
		m.logger.WarnContext(ctx, "mirror publish failed",
			slog.String("content_id", id),
			slog.Any("error", err),
		)
	}
	return id, nil
}

// Retrieve reads from the primary store, falling back to the secondary when
// the primary reports the document missing.
func (m *Mirror) Retrieve(ctx context.Context, id string) ([]byte, error) {
	data, err := m.primary.Retrieve(ctx, id)
	if err == nil {
		return data, nil
	}

	fallback, ferr := m.secondary.Retrieve(ctx, id)
	if ferr != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "served content from mirror",
		slog.String("content_id", id),
	)
	return fallback, nil
}

// Balance reports the primary account's balance; the mirror never gates
// publishing.
func (m *Mirror) Balance(ctx context.Context, address string) (float64, error) {
	return m.primary.Balance(ctx, address)
}

// EstimateCost reports the primary store's publish cost.
func (m *Mirror) EstimateCost(ctx context.Context, size int) (float64, error) {
	return m.primary.EstimateCost(ctx, size)
}

// ValidateID delegates to the primary store.
func (m *Mirror) ValidateID(id string) bool {
	return m.primary.ValidateID(id)
}
