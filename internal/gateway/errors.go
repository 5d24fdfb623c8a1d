package gateway

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when forwarding is attempted without a URL.
var ErrNotConfigured = errors.New("gateway URL is not configured")

// Error describes a failed forward. Exactly one of Err or StatusCode is set:
// Err for transport failures, StatusCode (with Body) for non-2xx replies.
type Error struct {
	Op         string // build | send | status | panic
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("gateway %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("gateway %s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
