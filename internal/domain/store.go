package domain

import "context"

// MessageStore persists messages and conversation summaries.
type MessageStore interface {
	// InsertMessage stores msg and returns the identifier it was assigned.
	InsertMessage(ctx context.Context, msg Message) (int64, error)

	// UpsertConversation creates or refreshes the summary for conv.ThreadID.
	// It never changes the archived flag.
	UpsertConversation(ctx context.Context, conv Conversation) error

	// CountUnreadConversations returns the number of conversations with unread messages.
	CountUnreadConversations(ctx context.Context) (int, error)

	SetArchived(ctx context.Context, threadID int64, archived bool) error
}

// BlockList answers whether a comparable address key is blocked.
type BlockList interface {
	Contains(ctx context.Context, key string) (bool, error)
}
