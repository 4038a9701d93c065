package repository

import (
	"context"
	"errors"
	"time"

	"covid-dashboard/platform/internal/user/domain"
)

// ErrDuplicateUsername is returned by Create when the username is already registered.
var ErrDuplicateUsername = errors.New("username already exists")

// Repository defines persistence for users and their single current session.
type Repository interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// SetSession replaces whatever session the user had.
	SetSession(ctx context.Context, userID, sessionID, tokenHash string, expiresAt time.Time) error
	ClearSession(ctx context.Context, userID, sessionID string) error
}
