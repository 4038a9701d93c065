package domain

import (
	"errors"
	"time"
)

// User is a dashboard account. At most one session is attached to it at a time.
type User struct {
	ID           string
	Username     string
	Email        string
	Phone        string // optional; used when OTPs are delivered by SMS
	PasswordHash string

	// Current session, empty when logged out. The token itself is never stored.
	SessionID        string
	SessionTokenHash string
	SessionExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Username == "" {
		return errors.New("username is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// HasSession reports whether a session is recorded for the user.
func (u *User) HasSession() bool {
	return u.SessionID != "" && u.SessionTokenHash != ""
}

// SessionExpired reports whether the recorded session's expiry is at or before now.
func (u *User) SessionExpired(now time.Time) bool {
	return !now.Before(u.SessionExpiresAt)
}
