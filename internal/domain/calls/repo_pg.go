package calls

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telemed/telemed/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type callLogRepoPG struct{ pool *pgxpool.Pool }

func NewCallLogRepoPG(pool *pgxpool.Pool) CallLogRepository {
	return &callLogRepoPG{pool: pool}
}

func (r *callLogRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const callCols = `id, caller_id, receiver_id, status, started_at, ended_at, duration_seconds`

func scanCallLog(row pgx.Row) (*CallLog, error) {
	var cl CallLog
	err := row.Scan(&cl.ID, &cl.CallerID, &cl.ReceiverID, &cl.Status,
		&cl.StartedAt, &cl.EndedAt, &cl.DurationSeconds)
	return &cl, err
}

func (r *callLogRepoPG) Create(ctx context.Context, cl *CallLog) error {
	cl.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO call_log (id, caller_id, receiver_id, status)
		VALUES ($1,$2,$3,$4)
		RETURNING started_at`,
		cl.ID, cl.CallerID, cl.ReceiverID, cl.Status).Scan(&cl.StartedAt)
}

func (r *callLogRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CallLog, error) {
	return scanCallLog(r.conn(ctx).QueryRow(ctx,
		`SELECT `+callCols+` FROM call_log WHERE id = $1`, id))
}

func (r *callLogRepoPG) Update(ctx context.Context, cl *CallLog) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE call_log
		SET status=$2, ended_at=$3, duration_seconds=$4
		WHERE id = $1`,
		cl.ID, cl.Status, cl.EndedAt, cl.DurationSeconds)
	return err
}

func (r *callLogRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*CallLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM call_log WHERE caller_id = $1 OR receiver_id = $1`,
		userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+callCols+` FROM call_log
		WHERE caller_id = $1 OR receiver_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*CallLog
	for rows.Next() {
		cl, err := scanCallLog(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, cl)
	}
	return items, total, rows.Err()
}
