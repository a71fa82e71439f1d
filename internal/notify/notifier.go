// Package notify fans marketplace notifications out to operator channels.
// Auction lifecycle events (created, sold, expired, cancelled) are delivered
// to every configured sender; a failing channel never blocks the others.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one delivery channel for operator notifications.
type Sender interface {
	// Send delivers a notification with the given subject and body.
	Send(ctx context.Context, subject, body string) error
	// Name identifies the channel ("telegram", "discord").
	Name() string
}

// DefaultSubject heads messages sent through the plain Send path.
const DefaultSubject = "Sapphire Exchange"

// Notifier dispatches to all configured senders. Delivery errors are
// collected per sender so one unreachable channel cannot suppress the rest.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// New creates a Notifier delivering to the given senders. A Notifier with no
// senders is valid and drops everything silently.
func New(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Send delivers an auction event message under the default subject. It
// satisfies the notification hook of the auction service.
func (n *Notifier) Send(ctx context.Context, message string) error {
	return n.Notify(ctx, DefaultSubject, message)
}

// Notify delivers a message with an explicit subject to every sender.
func (n *Notifier) Notify(ctx context.Context, subject, body string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var failures []string
	for _, s := range n.senders {
		if err := s.Send(ctx, subject, body); err != nil {
			n.logger.ErrorContext(ctx, "notification sender failed",
				slog.String("sender", s.Name()),
				slog.Any("error", err),
			)
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification delivered",
			slog.String("sender", s.Name()),
			slog.String("subject", subject),
		)
	}

	if len(failures) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s",
			len(failures), strings.Join(failures, "; "))
	}
	return nil
}
