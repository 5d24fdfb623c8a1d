package domain

import "context"

// Notification describes a new inbound message to surface to the user.
type Notification struct {
	MessageID  int64
	Address    string
	SenderName string
	Body       string
	ThreadID   int64
	Avatar     []byte // optional image bytes
}

// Notifier surfaces notifications. Implementations report failures as errors
// and must not panic into the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
