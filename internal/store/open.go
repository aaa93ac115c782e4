// Package store selects and opens the configured database backend.
package store

import (
	"database/sql"
	"fmt"

	"directchat/internal/config"
	"directchat/internal/domain"
	"directchat/internal/security"
	"directchat/internal/store/postgres"
	"directchat/internal/store/sqlite"
)

// Store bundles the repositories of one database handle.
type Store struct {
	DB            *sql.DB
	Driver        string
	Users         domain.UserRepository
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
}

// Open connects to the database selected by cfg.DBDriver. Migrations are not
// applied; call Migrate explicitly.
func Open(cfg *config.Config, enc *security.Encryptor) (*Store, error) {
	switch cfg.DBDriver {
	case "", "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Store{
			DB:            db,
			Driver:        "sqlite",
			Users:         sqlite.NewUserRepo(db),
			Conversations: sqlite.NewConversationRepo(db),
			Messages:      sqlite.NewMessageRepo(db, enc),
		}, nil
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		return &Store{
			DB:            db,
			Driver:        "postgres",
			Users:         postgres.NewUserRepo(db),
			Conversations: postgres.NewConversationRepo(db),
			Messages:      postgres.NewMessageRepo(db, enc),
		}, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

// Migrate applies the schema for the store's driver.
func (s *Store) Migrate() error {
	if s.Driver == "postgres" {
		return postgres.Migrate(s.DB)
	}
	return sqlite.Migrate(s.DB)
}

func (s *Store) Close() error {
	return s.DB.Close()
}
