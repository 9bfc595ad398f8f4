package mailer

import (
	"context"
	"errors"
	"log/slog"
)

// Message is a rendered outreach email ready for delivery
type Message struct {
	From     string
	FromName string
	To       string
	ToName   string
	Subject  string
	Text     string
	HTML     string
}

// Mailer delivers rendered messages. Failures are classified through
// DeliveryError so the scheduler can tell a retryable condition from a
// dead address.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// DeliveryError represents a delivery error with type information
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// IsTemporary reports whether the error is worth retrying. Unknown error
// types are treated as temporary so a flaky collaborator never burns a
// candidate's sequence.
func IsTemporary(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true
}

// LogMailer logs messages instead of delivering them. Used for dry runs and
// as the default when no SMTP relay is configured.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a log-only mailer
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg *Message) error {
	m.logger.Info("dry-run send",
		"to", msg.To,
		"subject", msg.Subject,
		"bytes", len(msg.Text),
	)
	return nil
}
