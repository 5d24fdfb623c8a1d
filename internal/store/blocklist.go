package store

import (
	"context"
	"fmt"
	"time"

	"smsgate/internal/phone"
)

// BlockedNumber is one block-list entry.
type BlockedNumber struct {
	Key       string    `json:"key"`
	Number    string    `json:"number"`
	CreatedAt time.Time `json:"created_at"`
}

// Contains implements domain.BlockList. key must already be a phone.Comparable key.
func (s *SQLiteStore) Contains(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blocked_numbers WHERE key = ?`, key,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check block-list: %w", err)
	}
	return count > 0, nil
}

// Block adds number to the block-list. Blocking an already blocked number is a no-op.
func (s *SQLiteStore) Block(ctx context.Context, number string) error {
	key := phone.Comparable(number)
	if key == "" {
		return fmt.Errorf("cannot block empty number")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blocked_numbers (key, number, created_at) VALUES (?, ?, ?)`,
		key, number, time.Now(),
	)
	return err
}

// Unblock removes number from the block-list and reports whether it was present.
func (s *SQLiteStore) Unblock(ctx context.Context, number string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM blocked_numbers WHERE key = ?`, phone.Comparable(number),
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) ListBlocked(ctx context.Context) ([]BlockedNumber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, number, created_at FROM blocked_numbers ORDER BY created_at, key`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlockedNumber
	for rows.Next() {
		var b BlockedNumber
		if err := rows.Scan(&b.Key, &b.Number, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
