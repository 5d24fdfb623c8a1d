// Package store is the SQLite-backed message store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"smsgate/internal/domain"

	_ "modernc.org/sqlite"
)

// ErrConversationNotFound is returned by per-thread updates on an unknown thread.
var ErrConversationNotFound = errors.New("conversation not found")

// SQLiteStore implements domain.MessageStore and domain.BlockList.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies
// pending migrations.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway, and it keeps
	// per-conversation updates atomic without extra locking.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// InsertMessage stores msg and returns its new identifier. The owning
// conversation row is created in the same transaction if it does not exist,
// so a message is never orphaned even when the later summary upsert fails.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg domain.Message) (int64, error) {
	participants, err := json.Marshal(msg.Participants)
	if err != nil {
		return 0, fmt.Errorf("encode participants: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (thread_id, snippet, date, read, title, photo_ref, address)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ThreadID, msg.Body, msg.Date, msg.Read, msg.SenderName, msg.SenderPhotoRef, msg.SenderAddress,
	); err != nil {
		return 0, fmt.Errorf("ensure conversation %d: %w", msg.ThreadID, err)
	}

	var attachment any
	if msg.Attachment != "" {
		attachment = msg.Attachment
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (thread_id, body, type, status, participants, date, read, locked,
		                       attachment, sender_address, sender_name, sender_photo_ref, subscription_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ThreadID, msg.Body, int(msg.Direction), msg.Status, string(participants), msg.Date, msg.Read, msg.Locked,
		attachment, msg.SenderAddress, msg.SenderName, msg.SenderPhotoRef, msg.SubscriptionID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read message id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return id, nil
}

// UpsertConversation refreshes the summary of conv.ThreadID in one statement.
// The archived flag is left as it is.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, conv domain.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (thread_id, snippet, date, read, title, photo_ref, address, archived)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT(thread_id) DO UPDATE SET
			snippet    = excluded.snippet,
			date       = excluded.date,
			read       = excluded.read,
			title      = excluded.title,
			photo_ref  = excluded.photo_ref,
			address    = excluded.address,
			updated_at = CURRENT_TIMESTAMP`,
		conv.ThreadID, conv.Snippet, conv.Date, conv.Read, conv.Title, conv.PhotoRef, conv.Address,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation %d: %w", conv.ThreadID, err)
	}
	return nil
}

func (s *SQLiteStore) CountUnreadConversations(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE read = 0`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread conversations: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) SetArchived(ctx context.Context, threadID int64, archived bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET archived = ?, updated_at = CURRENT_TIMESTAMP WHERE thread_id = ?`,
		archived, threadID,
	)
	if err != nil {
		return fmt.Errorf("set archived on %d: %w", threadID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// MarkRead marks every message of a thread, and the thread itself, as read.
func (s *SQLiteStore) MarkRead(ctx context.Context, threadID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET read = 1 WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET read = 1 WHERE thread_id = ? AND read = 0`, threadID); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetConversation(ctx context.Context, threadID int64) (*domain.Conversation, error) {
	var c domain.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT thread_id, snippet, date, read, title, photo_ref, address, archived
		 FROM conversations WHERE thread_id = ?`, threadID,
	).Scan(&c.ThreadID, &c.Snippet, &c.Date, &c.Read, &c.Title, &c.PhotoRef, &c.Address, &c.Archived)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListOptions narrows ListConversations.
type ListOptions struct {
	Limit           int
	UnreadOnly      bool
	IncludeArchived bool
}

// ListConversations returns conversations, most recent first.
func (s *SQLiteStore) ListConversations(ctx context.Context, opts ListOptions) ([]domain.Conversation, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	query := `SELECT thread_id, snippet, date, read, title, photo_ref, address, archived
		 FROM conversations WHERE 1 = 1`
	if opts.UnreadOnly {
		query += ` AND read = 0`
	}
	if !opts.IncludeArchived {
		query += ` AND archived = 0`
	}
	query += ` ORDER BY date DESC, thread_id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, opts.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ThreadID, &c.Snippet, &c.Date, &c.Read, &c.Title, &c.PhotoRef, &c.Address, &c.Archived); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetMessages returns the last limit messages of a thread, oldest first.
func (s *SQLiteStore) GetMessages(ctx context.Context, threadID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, body, type, status, participants, date, read, locked,
		        attachment, sender_address, sender_name, sender_photo_ref, subscription_id
		 FROM messages WHERE thread_id = ?
		 ORDER BY date DESC, id DESC LIMIT ?`, threadID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var direction int
		var participants string
		var attachment sql.NullString
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Body, &direction, &m.Status, &participants,
			&m.Date, &m.Read, &m.Locked, &attachment, &m.SenderAddress, &m.SenderName,
			&m.SenderPhotoRef, &m.SubscriptionID); err != nil {
			return nil, err
		}
		m.Direction = domain.Direction(direction)
		m.Attachment = attachment.String
		if err := json.Unmarshal([]byte(participants), &m.Participants); err != nil {
			s.logger.Warn("cannot decode participants", "message_id", m.ID, "err", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Snapshot writes a consistent copy of the database to dest, which must not
// exist. Unlike copying the file it includes pages still in the WAL.
func (s *SQLiteStore) Snapshot(ctx context.Context, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("snapshot target %s already exists", dest)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for diagnostics.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
