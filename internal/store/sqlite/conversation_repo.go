package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"directchat/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *ConversationRepo) FindByMembers(ctx context.Context, a, b string) (*domain.Conversation, error) {
	return findConversation(ctx, r.db, domain.MemberPair(a, b))
}

func (r *ConversationRepo) Upsert(ctx context.Context, a, b string) (*domain.Conversation, error) {
	return upsertConversation(ctx, r.db, domain.MemberPair(a, b), time.Now())
}

func (r *ConversationRepo) PruneDanglingRefs(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM conversation_messages
		WHERE message_id NOT IN (SELECT id FROM messages)
	`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prune refs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func findConversation(ctx context.Context, q queryer, pair [2]string) (*domain.Conversation, error) {
	query := `
		SELECT id, member_low, member_high, created_at
		FROM conversations
		WHERE member_low = ? AND member_high = ?
	`
	c := &domain.Conversation{}
	var created int64
	err := q.QueryRowContext(ctx, query, pair[0], pair[1]).Scan(&c.ID, &c.Members[0], &c.Members[1], &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.CreatedAt = fromNanos(created)
	return c, nil
}

// upsertConversation is idempotent by members: the UNIQUE pair makes a
// concurrent second insert a no-op and both callers read the same row.
func upsertConversation(ctx context.Context, q queryer, pair [2]string, now time.Time) (*domain.Conversation, error) {
	query := `
		INSERT INTO conversations (id, member_low, member_high, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (member_low, member_high) DO NOTHING
	`
	if _, err := q.ExecContext(ctx, query, uuid.NewString(), pair[0], pair[1], now.UnixNano()); err != nil {
		return nil, fmt.Errorf("upsert conversation: %w", err)
	}
	c, err := findConversation(ctx, q, pair)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("upsert conversation: row missing after insert")
	}
	return c, nil
}
