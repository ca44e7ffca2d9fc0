package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"parishdesk.org/internal/audit"
)

// Store archives audit entries to Postgres. The in-memory audit log stays
// the query surface for the service; this table is the durable copy used
// for compliance exports and retention beyond process lifetime.
type Store struct {
	db *sql.DB
}

var _ audit.Archiver = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Append writes one audit entry. The id is the primary key, so redelivery
// of an already archived entry is a no-op rather than a duplicate row.
func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into audit_entries(id, user_id, action, resource, resource_id, permission_id, granted, reason, occurred_at)
		values ($1,$2,$3,$4,nullif($5,''),nullif($6,''),$7,nullif($8,''),$9)
		on conflict (id) do nothing
	`, e.ID, e.UserID, e.Action, e.Resource, e.ResourceID, e.PermissionID, e.Granted, e.Reason, e.OccurredAt)
	return err
}

// Query reads archived entries for operator tooling, newest first.
func (s *Store) Query(ctx context.Context, f audit.Filter, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, action, resource, coalesce(resource_id,''), coalesce(permission_id,''), granted, coalesce(reason,''), occurred_at
		from audit_entries
		where ($1 = '' or user_id = $1)
		  and ($2 = '' or resource = $2)
		order by occurred_at desc
		limit $3
	`, f.UserID, f.Resource, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Resource, &e.ResourceID, &e.PermissionID, &e.Granted, &e.Reason, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
