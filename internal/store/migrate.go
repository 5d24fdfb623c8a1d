package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// schemaVersion is the current expected schema version.
const schemaVersion = 2

type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of schema migrations, each applied once and
// tracked in schema_version.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: conversations, messages, blocked_numbers",
		SQL: `
		CREATE TABLE IF NOT EXISTS conversations (
			thread_id   INTEGER PRIMARY KEY,
			snippet     TEXT NOT NULL DEFAULT '',
			date        INTEGER NOT NULL DEFAULT 0,
			read        INTEGER NOT NULL DEFAULT 1,
			title       TEXT NOT NULL DEFAULT '',
			photo_ref   TEXT NOT NULL DEFAULT '',
			address     TEXT NOT NULL DEFAULT '',
			archived    INTEGER NOT NULL DEFAULT 0,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_date ON conversations(date);

		CREATE TABLE IF NOT EXISTS messages (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id        INTEGER NOT NULL REFERENCES conversations(thread_id) ON DELETE CASCADE,
			body             TEXT NOT NULL DEFAULT '',
			type             INTEGER NOT NULL,
			status           INTEGER NOT NULL DEFAULT -1,
			participants     TEXT NOT NULL DEFAULT '[]',
			date             INTEGER NOT NULL,
			read             INTEGER NOT NULL DEFAULT 0,
			locked           INTEGER NOT NULL DEFAULT 0,
			attachment       TEXT,
			sender_address   TEXT NOT NULL DEFAULT '',
			sender_name      TEXT NOT NULL DEFAULT '',
			sender_photo_ref TEXT NOT NULL DEFAULT '',
			subscription_id  INTEGER NOT NULL DEFAULT -1,
			created_at       DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, date);

		CREATE TABLE IF NOT EXISTS blocked_numbers (
			key         TEXT PRIMARY KEY,
			number      TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		`,
	},
	{
		Version:     2,
		Description: "v2: unread lookup index",
		SQL: `
		CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(thread_id, read);
		`,
	},
}

// RunMigrations applies all pending schema migrations.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	currentVersion := 0
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		logger.Info("applying migration",
			"version", m.Version,
			"description", m.Description,
		)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		for _, stmt := range splitSQL(m.SQL) {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration v%d statement failed: %w\nSQL: %s", m.Version, err, truncate(stmt, 200))
			}
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}

		logger.Info("migration applied", "version", m.Version)
	}

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for a fresh database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err != nil {
		return 0, nil
	}

	var version int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// splitSQL splits a multi-statement SQL string on semicolons.
func splitSQL(sql string) []string {
	var result []string
	for _, s := range strings.Split(sql, ";") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
