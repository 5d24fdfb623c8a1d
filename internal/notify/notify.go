// Package notify surfaces newly stored messages to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"smsgate/internal/domain"
)

// Log writes each notification as a structured log record.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, n domain.Notification) error {
	l.logger.Info("new message",
		"message_id", n.MessageID,
		"thread_id", n.ThreadID,
		"from", n.SenderName,
		"address", n.Address,
		"chars", len(n.Body),
		"avatar", len(n.Avatar) > 0,
	)
	return nil
}

// Named pairs a notifier with a name for logs.
type Named struct {
	Name     string
	Notifier domain.Notifier
}

// Multi fans a notification out to every backend. A failing or panicking
// backend does not stop the others.
type Multi struct {
	backends []Named
	logger   *slog.Logger
}

func NewMulti(logger *slog.Logger, backends ...Named) *Multi {
	return &Multi{backends: backends, logger: logger}
}

// Len returns the number of backends.
func (m *Multi) Len() int { return len(m.backends) }

// Notify returns the joined errors of all failing backends.
func (m *Multi) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, b := range m.backends {
		if err := m.notifyOne(ctx, b, n); err != nil {
			m.logger.Warn("notifier failed", "notifier", b.Name, "message_id", n.MessageID, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) notifyOne(ctx context.Context, b Named, n domain.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return b.Notifier.Notify(ctx, n)
}
