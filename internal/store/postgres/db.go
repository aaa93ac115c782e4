package postgres

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the directchat schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id              TEXT         PRIMARY KEY,
			fullname        TEXT         NOT NULL,
			email           TEXT         NOT NULL UNIQUE,
			hashed_password TEXT         NOT NULL,
			profile_pic     TEXT         NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS user_blocks (
			user_id    TEXT        NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			blocked_id TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, blocked_id)
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id          TEXT        PRIMARY KEY,
			member_low  TEXT        NOT NULL,
			member_high TEXT        NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (member_low, member_high)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			seq             BIGSERIAL   PRIMARY KEY,
			id              TEXT        NOT NULL UNIQUE,
			conversation_id TEXT        NOT NULL REFERENCES conversations(id),
			sender_id       TEXT        NOT NULL,
			receiver_id     TEXT        NOT NULL,
			type            TEXT        NOT NULL,
			body            TEXT        NOT NULL DEFAULT '',
			payload         JSONB,
			status          TEXT        NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		)`,

		// No FK on message_id: refs of rejected requests dangle until pruned.
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			conversation_id TEXT   NOT NULL REFERENCES conversations(id),
			message_id      TEXT   NOT NULL,
			seq             BIGINT NOT NULL,
			PRIMARY KEY (conversation_id, message_id)
		)`,

		`CREATE TABLE IF NOT EXISTS message_hidden (
			message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL,
			PRIMARY KEY (message_id, user_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver_status ON messages(receiver_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_messages_seq ON conversation_messages(conversation_id, seq)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
