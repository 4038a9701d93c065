package repository

import (
	"context"
	"database/sql"

	"covid-dashboard/platform/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log to the database. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, username, action, outcome, ip, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID,
		sql.NullString{String: a.Username, Valid: a.Username != ""},
		a.Action, a.Outcome, a.IP,
		sql.NullString{String: a.Detail, Valid: a.Detail != ""},
		a.CreatedAt,
	)
	return err
}
