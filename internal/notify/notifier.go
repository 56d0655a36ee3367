// Package notify delivers trade notifications to operator channels. Every
// registered sender (Telegram, Discord) receives every message; delivery is
// best-effort and a failing channel never affects the trading cycle that
// produced the message.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// sendTimeout bounds a single delivery attempt across all senders.
const sendTimeout = 10 * time.Second

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification message.
	Send(ctx context.Context, text string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier fans a message out to all registered senders.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends text to every sender. Individual failures are logged and do
// not prevent delivery to the remaining senders.
func (n *Notifier) Notify(ctx context.Context, text string) {
	if len(n.senders) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	for _, s := range n.senders {
		if err := s.Send(ctx, text); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
		)
	}
}
