// Package notify tells operators about new markets, resolutions and fatal
// indexer errors over Telegram and Discord.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types an Alert can carry. notify.events in the config filters on them.
const (
	EventMarketCreated  = "market_created"
	EventMarketResolved = "market_resolved"
	EventError          = "error"
)

// Field is one labelled line of an Alert.
type Field struct {
	Name  string
	Value string
}

// Alert is a channel-neutral notification. Senders decide how to render it.
type Alert struct {
	Event  string
	Title  string
	Body   string
	Fields []Field
}

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, a Alert) error
	Name() string
}

// Notifier fans alerts out to every Sender, dropping event types outside the
// configured set.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every type.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify delivers a to every sender. Errors are always delivered, whatever
// the filter says.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if len(n.senders) == 0 {
		return nil
	}
	if a.Event != EventError && len(n.events) > 0 && !n.events[a.Event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", a.Event))
		return nil
	}

	var failed []string
	for _, s := range n.senders {
		if err := s.Send(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", a.Event),
				slog.String("error", err.Error()),
			)
			failed = append(failed, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", a.Title),
		)
	}

	if len(failed) > 0 {
		return fmt.Errorf("notify: %d of %d sender(s) failed: %s", len(failed), len(n.senders), strings.Join(failed, "; "))
	}
	return nil
}
