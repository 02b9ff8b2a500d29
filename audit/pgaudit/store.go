package pgaudit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/qrmenu/menu-relay/audit"
)

var _ audit.Log = (*Store)(nil)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS credential_audit_log (
	id          UUID PRIMARY KEY,
	identity_id TEXT        NOT NULL,
	action      TEXT        NOT NULL,
	ip_address  TEXT        NOT NULL DEFAULT '',
	user_agent  TEXT        NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS credential_audit_log_identity_created
	ON credential_audit_log (identity_id, created_at DESC);
`

// Store writes audit records to Postgres.
type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "[pgaudit.Migrate]")
	}
	return nil
}

func (s *Store) Append(ctx context.Context, r audit.Record) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO credential_audit_log (id, identity_id, action, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.IdentityID, string(r.Action), r.IPAddress, r.UserAgent, r.Timestamp,
	)
	if err != nil {
		return errors.Wrap(err, "[pgaudit.Append]")
	}
	return nil
}

func (s *Store) ListRecent(ctx context.Context, identityID string, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		limit = audit.DefaultListLimit
	}
	rows, err := s.db.Query(ctx,
		`SELECT id::text, identity_id, action, ip_address, user_agent, created_at
		   FROM credential_audit_log
		  WHERE ($1 = '' OR identity_id = $1)
		  ORDER BY created_at DESC
		  LIMIT $2`,
		identityID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "[pgaudit.ListRecent]")
	}
	defer rows.Close()

	out := make([]audit.Record, 0)
	for rows.Next() {
		var (
			r      audit.Record
			action string
		)
		if err := rows.Scan(&r.ID, &r.IdentityID, &action, &r.IPAddress, &r.UserAgent, &r.Timestamp); err != nil {
			return nil, errors.Wrap(err, "[pgaudit.ListRecent] scan")
		}
		r.Action = audit.ActionType(action)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "[pgaudit.ListRecent] rows")
	}
	return out, nil
}
