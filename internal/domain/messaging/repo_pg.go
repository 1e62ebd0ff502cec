package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telemed/telemed/internal/platform/db"
	"github.com/telemed/telemed/internal/platform/uploads"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const msgCols = `id, sender_id, receiver_id, text, attachment, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	var attachment []byte
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &attachment, &m.CreatedAt); err != nil {
		return nil, err
	}
	if len(attachment) > 0 {
		var att uploads.Attachment
		if err := json.Unmarshal(attachment, &att); err != nil {
			return nil, fmt.Errorf("decode attachment: %w", err)
		}
		m.Attachment = &att
	}
	return &m, nil
}

func (r *messageRepoPG) Append(ctx context.Context, m *Message) error {
	m.ID = uuid.New()

	var attachment []byte
	if m.Attachment != nil {
		var err error
		attachment, err = json.Marshal(m.Attachment)
		if err != nil {
			return fmt.Errorf("encode attachment: %w", err)
		}
	}

	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO message (id, sender_id, receiver_id, text, attachment)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		m.ID, m.SenderID, m.ReceiverID, m.Text, attachment).Scan(&m.CreatedAt)
}

func (r *messageRepoPG) ConversationBetween(ctx context.Context, a, b uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM message
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)`,
		a, b).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+msgCols+` FROM message
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC
		LIMIT $3 OFFSET $4`,
		a, b, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *messageRepoPG) LatestWith(ctx context.Context, a, b uuid.UUID) (*Message, error) {
	m, err := scanMessage(r.conn(ctx).QueryRow(ctx, `
		SELECT `+msgCols+` FROM message
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		a, b))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}
