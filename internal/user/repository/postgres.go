package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"covid-dashboard/platform/internal/user/domain"
)

const uniqueViolation = "23505"

const selectUser = `SELECT id, username, email, phone, password_hash,
	session_id, session_token_hash, session_expires_at, created_at, updated_at
	FROM users WHERE username = $1`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByUsername returns the user with the given username, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var (
		u                           domain.User
		phone, sessionID, tokenHash sql.NullString
		expiresAt                   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, selectUser, username).Scan(
		&u.ID, &u.Username, &u.Email, &phone, &u.PasswordHash,
		&sessionID, &tokenHash, &expiresAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Phone = phone.String
	u.SessionID = sessionID.String
	u.SessionTokenHash = tokenHash.String
	if expiresAt.Valid {
		u.SessionExpiresAt = expiresAt.Time
	}
	return &u, nil
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
// A duplicate username yields ErrDuplicateUsername.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, phone, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Username, u.Email, sql.NullString{String: u.Phone, Valid: u.Phone != ""},
		u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateUsername
	}
	return err
}

// SetSession records the user's current session, replacing any previous one.
func (r *PostgresRepository) SetSession(ctx context.Context, userID, sessionID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET session_id = $2, session_token_hash = $3, session_expires_at = $4, updated_at = $5
		 WHERE id = $1`,
		userID, sessionID, tokenHash, expiresAt.UTC(), time.Now().UTC(),
	)
	return err
}

// ClearSession removes the user's session if it is still sessionID. A newer session, or a
// user without one, is left untouched.
func (r *PostgresRepository) ClearSession(ctx context.Context, userID, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET session_id = NULL, session_token_hash = NULL, session_expires_at = NULL, updated_at = $3
		 WHERE id = $1 AND session_id = $2`,
		userID, sessionID, time.Now().UTC(),
	)
	return err
}
