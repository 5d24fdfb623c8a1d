package ingest

import "errors"

// State is a step of the ingestion state machine.
type State string

const (
	StateReceived   State = "received"
	StateDropped    State = "dropped"
	StateForwarding State = "forwarding"
	StateResolving  State = "resolving"
	StatePersisting State = "persisting"
	StateNotifying  State = "notifying"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Terminal reports whether no further step follows s.
func (s State) Terminal() bool {
	return s == StateDropped || s == StateDone || s == StateFailed
}

// Reason qualifies a dropped or storage-less outcome.
type Reason string

const (
	ReasonUnknownSender   Reason = "unknown_sender"
	ReasonKeyword         Reason = "keyword"
	ReasonBlockedSender   Reason = "blocked_sender"
	ReasonLoggingDisabled Reason = "logging_disabled"
)

// Errors recovered inside the pipeline. Each Outcome warning wraps one of
// them together with its cause.
var (
	ErrGateway            = errors.New("gateway forward failed")
	ErrConversationUpsert = errors.New("conversation upsert failed")
	ErrBadgeUpdate        = errors.New("badge update failed")
	ErrArchiveUpdate      = errors.New("archive update failed")
	ErrNotification       = errors.New("notification failed")

	// ErrInsert is fatal to the event: the message is lost.
	ErrInsert = errors.New("message insert failed")
)

// Outcome is the result of processing one event.
type Outcome struct {
	EventID   string
	State     State
	Reason    Reason
	Keyword   string // matched keyword when Reason is ReasonKeyword
	ThreadID  int64
	MessageID int64 // zero unless a message was stored
	Forwarded bool  // the gateway accepted the request
	Warnings  []error
	Err       error // set when State is StateFailed
}

// Stored reports whether a message row was created.
func (o Outcome) Stored() bool { return o.MessageID > 0 }
