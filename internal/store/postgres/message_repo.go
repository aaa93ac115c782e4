package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"directchat/internal/domain"
	"directchat/internal/security"
)

type MessageRepo struct {
	db  *sql.DB
	enc *security.Encryptor
}

func NewMessageRepo(db *sql.DB, enc *security.Encryptor) *MessageRepo {
	return &MessageRepo{db: db, enc: enc}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `
	m.id, m.sender_id, m.receiver_id, m.conversation_id, m.type, m.body, m.payload::text,
	m.status, m.created_at, m.updated_at,
	(SELECT string_agg(h.user_id, ',') FROM message_hidden h WHERE h.message_id = m.id)
`

func (r *MessageRepo) CreateInConversation(ctx context.Context, m *domain.Message) (*domain.Conversation, error) {
	body, err := r.enc.Seal(m.Body)
	if err != nil {
		return nil, fmt.Errorf("seal body: %w", err)
	}
	payload, err := domain.EncodePayload(m.Content)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	conv, err := upsertConversation(ctx, tx, domain.MemberPair(m.SenderID, m.ReceiverID), m.CreatedAt)
	if err != nil {
		return nil, err
	}

	var seq int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, type, body, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10)
		RETURNING seq
	`,
		m.ID, conv.ID, m.SenderID, m.ReceiverID, string(m.Type), body,
		nullableJSON(payload), string(m.Status), m.CreatedAt, m.UpdatedAt,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversation_messages (conversation_id, message_id, seq) VALUES ($1, $2, $3)`,
		conv.ID, m.ID, seq,
	); err != nil {
		return nil, fmt.Errorf("append message ref: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}
	m.ConversationID = conv.ID
	return conv, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	return r.getByID(ctx, r.db, id, false)
}

func (r *MessageRepo) getByID(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE m.id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	m, err := r.scanMessage(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *MessageRepo) ExistsBetween(ctx context.Context, a, b string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		)
	`, a, b).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("find message between: %w", err)
	}
	return exists, nil
}

func (r *MessageRepo) LatestBetween(ctx context.Context, viewerID, otherID string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages m
		WHERE ((m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1))
		  AND NOT EXISTS (SELECT 1 FROM message_hidden h WHERE h.message_id = m.id AND h.user_id = $1)
		  AND NOT (m.status = $3 AND m.receiver_id = $1)
		ORDER BY m.created_at DESC, m.seq DESC
		LIMIT 1
	`
	m, err := r.scanMessage(r.db.QueryRowContext(ctx, query, viewerID, otherID, string(domain.StatusPending)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *MessageRepo) TransitionStatus(ctx context.Context, id string, from, to domain.MessageStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update message status: %w", err)
	}
	return affectedOne(res)
}

func (r *MessageRepo) DeleteIfStatus(ctx context.Context, id string, status domain.MessageStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1 AND status = $2`, id, string(status))
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return affectedOne(res)
}

func (r *MessageRepo) MutatePoll(ctx context.Context, id string, fn domain.PollMutation) (*domain.Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m, err := r.getByID(ctx, tx, id, true)
	if err != nil || m == nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}

	payload, err := domain.EncodePayload(m.Content)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	m.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET payload = $1::jsonb, updated_at = $2 WHERE id = $3`,
		nullableJSON(payload), m.UpdatedAt, id,
	); err != nil {
		return nil, fmt.Errorf("update poll: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit poll: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) ListPendingFor(ctx context.Context, receiverID string) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.receiver_id = $1 AND m.status = $2
		ORDER BY m.created_at DESC, m.seq DESC
	`
	return r.list(ctx, query, receiverID, string(domain.StatusPending))
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID, viewerID string) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM conversation_messages cm
		JOIN messages m ON m.id = cm.message_id
		WHERE cm.conversation_id = $1
		  AND NOT EXISTS (SELECT 1 FROM message_hidden h WHERE h.message_id = m.id AND h.user_id = $2)
		  AND NOT (m.status = $3 AND m.receiver_id = $2)
		ORDER BY m.created_at ASC, cm.seq ASC
	`
	return r.list(ctx, query, conversationID, viewerID, string(domain.StatusPending))
}

func (r *MessageRepo) MarkSeen(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = $1, updated_at = NOW()
		WHERE conversation_id = $2 AND receiver_id = $3 AND status IN ($4, $5)
	`,
		string(domain.StatusSeen), conversationID, readerID,
		string(domain.StatusSent), string(domain.StatusDelivered),
	)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) HideForUser(ctx context.Context, conversationID, userID string) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO message_hidden (message_id, user_id)
		SELECT id, $1::text FROM messages WHERE conversation_id = $2
		ON CONFLICT DO NOTHING
	`, userID, conversationID); err != nil {
		return fmt.Errorf("hide messages: %w", err)
	}
	return nil
}

func (r *MessageRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	res := []*domain.Message{}
	for rows.Next() {
		m, err := r.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return res, nil
}

func (r *MessageRepo) scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m               domain.Message
		typ, status     string
		payload, hidden sql.NullString
	)
	err := row.Scan(
		&m.ID, &m.SenderID, &m.ReceiverID, &m.ConversationID, &typ, &m.Body, &payload,
		&status, &m.CreatedAt, &m.UpdatedAt, &hidden,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.Type = domain.MessageType(typ)
	m.Status = domain.MessageStatus(status)
	m.Body = r.enc.Open(m.Body)
	m.DeletedBy = []string{}
	if hidden.Valid && hidden.String != "" {
		m.DeletedBy = strings.Split(hidden.String, ",")
	}
	if payload.Valid {
		m.Content, err = domain.DecodePayload(m.Type, []byte(payload.String))
		if err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
