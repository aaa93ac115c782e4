package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"directchat/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

const userColumns = `id, fullname, email, hashed_password, profile_pic, created_at`

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, fullname, email, hashed_password, profile_pic, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		u.ID,
		u.Fullname,
		u.Email,
		u.HashedPassword,
		u.ProfilePic,
		u.CreatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("insert user: %w", domain.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepo) ListExcept(ctx context.Context, id string) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id <> ? ORDER BY fullname ASC`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (r *UserRepo) IsBlocked(ctx context.Context, userID, blockedID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM user_blocks WHERE user_id = ? AND blocked_id = ?`, userID, blockedID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return true, nil
}

func (r *UserRepo) Block(ctx context.Context, userID, blockedID string) error {
	query := `INSERT OR IGNORE INTO user_blocks (user_id, blocked_id, created_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, blockedID, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

func (r *UserRepo) Unblock(ctx context.Context, userID, blockedID string) error {
	query := `DELETE FROM user_blocks WHERE user_id = ? AND blocked_id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID, blockedID); err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}
	return nil
}

func (r *UserRepo) ListBlocked(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT blocked_id FROM user_blocks WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan blocked: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepo) scanUser(row rowScanner) (*domain.User, error) {
	u := &domain.User{}
	var created int64
	err := row.Scan(
		&u.ID,
		&u.Fullname,
		&u.Email,
		&u.HashedPassword,
		&u.ProfilePic,
		&created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromNanos(created)
	return u, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
