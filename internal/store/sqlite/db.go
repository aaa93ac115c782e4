package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers; transactions never deadlock on SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	return db, nil
}

// Migrate runs the idempotent schema for directchat. Timestamps are stored as
// unix nanoseconds.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id              TEXT PRIMARY KEY,
			fullname        TEXT NOT NULL,
			email           TEXT NOT NULL UNIQUE,
			hashed_password TEXT NOT NULL,
			profile_pic     TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS user_blocks (
			user_id    TEXT NOT NULL,
			blocked_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, blocked_id),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id          TEXT PRIMARY KEY,
			member_low  TEXT NOT NULL,
			member_high TEXT NOT NULL,
			created_at  INTEGER NOT NULL,
			UNIQUE (member_low, member_high)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			sender_id       TEXT NOT NULL,
			receiver_id     TEXT NOT NULL,
			type            TEXT NOT NULL,
			body            TEXT NOT NULL DEFAULT '',
			payload         TEXT,
			status          TEXT NOT NULL,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);`,
		// Refs carry no foreign key on message_id: a rejected request leaves its
		// ref behind until the janitor prunes it.
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			conversation_id TEXT NOT NULL,
			message_id      TEXT NOT NULL,
			seq             INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, message_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);`,
		`CREATE TABLE IF NOT EXISTS message_hidden (
			message_id TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver_status ON messages(receiver_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_conv_messages_seq ON conversation_messages(conversation_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
