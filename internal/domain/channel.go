package domain

import "context"

// Channel is a transport that delivers raw inbound SMS events.
type Channel interface {
	Name() string
	Start(ctx context.Context, queue EventQueue) error
	Stop() error
}
