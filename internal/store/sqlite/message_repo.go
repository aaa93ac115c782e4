package sqlite

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

// MessageRepo persists messages. Bodies are sealed with the Encryptor before
// they reach the database; a nil Encryptor stores plaintext.
type MessageRepo struct {
	db  *sql.DB
	enc *security.Encryptor
}

func NewMessageRepo(db *sql.DB, enc *security.Encryptor) *MessageRepo {
	return &MessageRepo{db: db, enc: enc}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `
	m.id, m.sender_id, m.receiver_id, m.conversation_id, m.type, m.body, m.payload,
	m.status, m.created_at, m.updated_at,
	(SELECT group_concat(h.user_id) FROM message_hidden h WHERE h.message_id = m.id)
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

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, type, body, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID,
		conv.ID,
		m.SenderID,
		m.ReceiverID,
		string(m.Type),
		body,
		nullableJSON(payload),
		string(m.Status),
		m.CreatedAt.UnixNano(),
		m.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversation_messages (conversation_id, message_id, seq) VALUES (?, ?, ?)`,
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
	return r.getByID(ctx, r.db, id)
}

func (r *MessageRepo) getByID(ctx context.Context, q queryer, id string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE m.id = ?`
	m, err := r.scanMessage(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *MessageRepo) ExistsBetween(ctx context.Context, a, b string) (bool, error) {
	query := `
		SELECT 1 FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		LIMIT 1
	`
	var one int
	err := r.db.QueryRowContext(ctx, query, a, b, b, a).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find message between: %w", err)
	}
	return true, nil
}

func (r *MessageRepo) LatestBetween(ctx context.Context, viewerID, otherID string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages m
		WHERE ((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))
		  AND NOT EXISTS (SELECT 1 FROM message_hidden h WHERE h.message_id = m.id AND h.user_id = ?)
		  AND NOT (m.status = ? AND m.receiver_id = ?)
		ORDER BY m.created_at DESC, m.seq DESC
		LIMIT 1
	`
	m, err := r.scanMessage(r.db.QueryRowContext(ctx, query,
		viewerID, otherID, otherID, viewerID,
		viewerID, string(domain.StatusPending), viewerID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *MessageRepo) TransitionStatus(ctx context.Context, id string, from, to domain.MessageStatus) (bool, error) {
	query := `UPDATE messages SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, string(to), time.Now().UnixNano(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("update message status: %w", err)
	}
	return affectedOne(res)
}

func (r *MessageRepo) DeleteIfStatus(ctx context.Context, id string, status domain.MessageStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ? AND status = ?`, id, string(status))
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

	m, err := r.getByID(ctx, tx, id)
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
		`UPDATE messages SET payload = ?, updated_at = ? WHERE id = ?`,
		nullableJSON(payload), m.UpdatedAt.UnixNano(), id,
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
		WHERE m.receiver_id = ? AND m.status = ?
		ORDER BY m.created_at DESC, m.seq DESC
	`
	return r.list(ctx, query, receiverID, string(domain.StatusPending))
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID, viewerID string) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM conversation_messages cm
		JOIN messages m ON m.id = cm.message_id
		WHERE cm.conversation_id = ?
		  AND NOT EXISTS (SELECT 1 FROM message_hidden h WHERE h.message_id = m.id AND h.user_id = ?)
		  AND NOT (m.status = ? AND m.receiver_id = ?)
		ORDER BY m.created_at ASC, cm.seq ASC
	`
	return r.list(ctx, query, conversationID, viewerID, string(domain.StatusPending), viewerID)
}

func (r *MessageRepo) MarkSeen(ctx context.Context, conversationID, readerID string) (int64, error) {
	query := `
		UPDATE messages SET status = ?, updated_at = ?
		WHERE conversation_id = ? AND receiver_id = ? AND status IN (?, ?)
	`
	res, err := r.db.ExecContext(ctx, query,
		string(domain.StatusSeen), time.Now().UnixNano(),
		conversationID, readerID,
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
	query := `
		INSERT OR IGNORE INTO message_hidden (message_id, user_id)
		SELECT id, ? FROM messages WHERE conversation_id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, userID, conversationID); err != nil {
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

// scanMessage returns sql.ErrNoRows unwrapped so callers can map it to (nil, nil).
func (r *MessageRepo) scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m                domain.Message
		typ, status      string
		payload, hidden  sql.NullString
		created, updated int64
	)
	err := row.Scan(
		&m.ID,
		&m.SenderID,
		&m.ReceiverID,
		&m.ConversationID,
		&typ,
		&m.Body,
		&payload,
		&status,
		&created,
		&updated,
		&hidden,
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
	m.CreatedAt = fromNanos(created)
	m.UpdatedAt = fromNanos(updated)
	m.DeletedBy = splitIDs(hidden)
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

func splitIDs(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return []string{}
	}
	return strings.Split(s.String, ",")
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
