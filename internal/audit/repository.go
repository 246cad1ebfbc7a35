package audit

import (
	"context"
	"database/sql"
	"errors"
)

// NOTE: PostgresRepo assumes:
//
//	audit_events (
//	  id            uuid PRIMARY KEY,
//	  type          text NOT NULL,
//	  actor_user_id text NOT NULL,
//	  actor_role    text NOT NULL DEFAULT '',
//	  ip_address    text NOT NULL DEFAULT '',
//	  message       text NOT NULL DEFAULT '',
//	  metadata      jsonb,
//	  created_at    timestamptz NOT NULL
//	)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	if r.db == nil {
		return errors.New("audit: db not configured")
	}
	const q = `
INSERT INTO audit_events (id, type, actor_user_id, actor_role, ip_address, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::jsonb, $8)
`
	_, err := r.db.ExecContext(ctx, q, e.ID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress, e.Message, e.Metadata, e.CreatedAt)
	return err
}
