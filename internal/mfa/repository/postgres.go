package repository

import (
	"context"
	"database/sql"
	"errors"

	"covid-dashboard/platform/internal/mfa/domain"
)

// PostgresRepository implements mfa.ChallengeStore on the otp_challenges table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a challenge repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Put upserts the user's pending challenge and resets its attempt counter.
func (r *PostgresRepository) Put(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO otp_challenges (username, code_hash, attempts, expires_at, created_at)
		 VALUES ($1, $2, 0, $3, $4)
		 ON CONFLICT (username) DO UPDATE
		 SET code_hash = EXCLUDED.code_hash, attempts = 0, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`,
		c.Username, c.CodeHash, c.ExpiresAt.UTC(), c.CreatedAt.UTC(),
	)
	return err
}

// Get returns the pending challenge for username, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, username string) (*domain.Challenge, error) {
	var c domain.Challenge
	err := r.db.QueryRowContext(ctx,
		`SELECT username, code_hash, attempts, expires_at, created_at FROM otp_challenges WHERE username = $1`,
		username,
	).Scan(&c.Username, &c.CodeHash, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// RecordFailure increments the attempt counter. Returns 0 when no challenge is pending.
func (r *PostgresRepository) RecordFailure(ctx context.Context, username string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE otp_challenges SET attempts = attempts + 1 WHERE username = $1 RETURNING attempts`,
		username,
	).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return attempts, err
}

// Consume deletes the challenge if codeHash matches and reports whether a row was removed.
func (r *PostgresRepository) Consume(ctx context.Context, username, codeHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM otp_challenges WHERE username = $1 AND code_hash = $2`, username, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete removes the user's pending challenge.
func (r *PostgresRepository) Delete(ctx context.Context, username string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE username = $1`, username)
	return err
}
