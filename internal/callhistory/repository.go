package callhistory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jonhson0816/nelly-api/pkg/utils"
)

// NOTE: PostgresRepo assumes the following table exists:
//
//	call_history (
//	  id          uuid PRIMARY KEY,
//	  call_id     text NOT NULL,
//	  sender_id   text NOT NULL,
//	  receiver_id text NOT NULL,
//	  call_type   text NOT NULL,
//	  direction   text NOT NULL,
//	  status      text NOT NULL,
//	  duration    int  NOT NULL,
//	  note        text NOT NULL DEFAULT '',
//	  created_at  timestamptz NOT NULL
//	)
//
// with an index on (sender_id, created_at DESC). Rows are INSERT-only.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const insertRecord = `
INSERT INTO call_history (id, call_id, sender_id, receiver_id, call_type, direction, status, duration, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING
`

func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	if r.db == nil {
		return errors.New("callhistory: db not configured")
	}
	return insert(ctx, r.db, rec)
}

// AppendPair writes both perspectives atomically so a history never shows a
// call on one side only.
func (r *PostgresRepo) AppendPair(ctx context.Context, a, b Record) error {
	if r.db == nil {
		return errors.New("callhistory: db not configured")
	}
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if err := insert(ctx, tx, a); err != nil {
			return err
		}
		return insert(ctx, tx, b)
	})
}

func (r *PostgresRepo) ListForUser(ctx context.Context, userID string, before time.Time, limit int) ([]Record, error) {
	if r.db == nil {
		return nil, errors.New("callhistory: db not configured")
	}
	if before.IsZero() {
		before = time.Now().Add(time.Hour)
	}
	const q = `
SELECT id, call_id, sender_id, receiver_id, call_type, direction, status, duration, note, created_at
FROM call_history
WHERE sender_id = $1 AND created_at < $2
ORDER BY created_at DESC
LIMIT $3
`
	rows, err := r.db.QueryContext(ctx, q, userID, before, limit)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (r *PostgresRepo) ListRange(ctx context.Context, userID string, from, to time.Time) ([]Record, error) {
	if r.db == nil {
		return nil, errors.New("callhistory: db not configured")
	}
	const q = `
SELECT id, call_id, sender_id, receiver_id, call_type, direction, status, duration, note, created_at
FROM call_history
WHERE sender_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func insert(ctx context.Context, q utils.Queryer, rec Record) error {
	_, err := q.ExecContext(ctx, insertRecord,
		rec.ID,
		rec.CallID,
		rec.SenderID,
		rec.ReceiverID,
		string(rec.CallType),
		string(rec.Direction),
		string(rec.Status),
		rec.DurationSeconds,
		rec.Note,
		rec.CreatedAt,
	)
	return err
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	out := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.CallID,
			&rec.SenderID,
			&rec.ReceiverID,
			&rec.CallType,
			&rec.Direction,
			&rec.Status,
			&rec.DurationSeconds,
			&rec.Note,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
