// Package notify defines the notification sink the sync engine emits
// cycle outcomes through, plus basic sink implementations. Presentation
// (desktop toasts, UI badges) lives behind the Notifier interface.
package notify

import (
	"context"
	"log"
	"os"
)

// Type classifies a notification.
type Type string

const (
	// TypeSuccess reports a completed sync cycle with its counts.
	TypeSuccess Type = "success"

	// TypeError reports a failed sync cycle with its error message.
	TypeError Type = "error"

	// TypeConflict reports a conflict awaiting manual resolution.
	TypeConflict Type = "conflict"
)

// Notification is one user-visible message.
type Notification struct {
	Type       Type   `json:"type"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	ProviderID string `json:"provider_id"`
}

// Notifier is the sink contract.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to a standard logger.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a logger-backed sink. A nil logger defaults to
// stderr.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, msg Notification) error {
	n.logger.Printf("%s [%s] %s: %s", msg.Type, msg.ProviderID, msg.Title, msg.Message)
	return nil
}

// Multi fans a notification out to several sinks. Errors from
// individual sinks do not stop the others; the first error is returned.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Discard is a Notifier that drops everything. Useful in tests.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(ctx context.Context, n Notification) error { return nil }
