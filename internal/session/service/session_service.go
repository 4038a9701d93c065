// Package service checks and ends the single server-side session a user may hold.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"covid-dashboard/platform/internal/audit"
	"covid-dashboard/platform/internal/security"
	userdomain "covid-dashboard/platform/internal/user/domain"
)

var (
	// ErrInvalidSession covers every reason a presented session is not current:
	// bad signature, wrong user, superseded by a newer login, logged out or expired.
	ErrInvalidSession = errors.New("session expired or invalid")
	// ErrMissingFields is returned when username or token is blank.
	ErrMissingFields = errors.New("username and session token are required")
)

// UserRepo is the slice of the user repository the session service needs.
type UserRepo interface {
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
	ClearSession(ctx context.Context, userID, sessionID string) error
}

// SessionService validates and terminates sessions issued by the auth service.
type SessionService struct {
	users  UserRepo
	tokens *security.TokenProvider
	audit  audit.AuditLogger
	nowF   func() time.Time
}

// NewSessionService returns a SessionService. auditLogger may be nil.
func NewSessionService(users UserRepo, tokens *security.TokenProvider, auditLogger audit.AuditLogger) *SessionService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &SessionService{
		users:  users,
		tokens: tokens,
		audit:  auditLogger,
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

// Validate returns the time left on username's session when token is that session.
// An expired session is cleared from the user record before ErrInvalidSession is returned.
func (s *SessionService) Validate(ctx context.Context, username, token string) (time.Duration, error) {
	username = strings.TrimSpace(username)
	token = strings.TrimSpace(token)
	if username == "" || token == "" {
		return 0, ErrMissingFields
	}
	claims, err := s.tokens.ValidateSession(token)
	expired := errors.Is(err, security.ErrExpiredToken)
	if err != nil && !expired {
		s.audit.LogEvent(ctx, username, audit.ActionValidateSession, audit.OutcomeFailure, "bad token")
		return 0, ErrInvalidSession
	}
	if claims.Username != username {
		s.audit.LogEvent(ctx, username, audit.ActionValidateSession, audit.OutcomeFailure, "subject mismatch")
		return 0, ErrInvalidSession
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	if user == nil || !user.HasSession() || user.SessionID != claims.SessionID ||
		!security.SessionTokenHashEqual(token, user.SessionTokenHash) {
		s.audit.LogEvent(ctx, username, audit.ActionValidateSession, audit.OutcomeFailure, "not the current session")
		return 0, ErrInvalidSession
	}
	now := s.nowF()
	if expired || user.SessionExpired(now) {
		if err := s.users.ClearSession(ctx, user.ID, user.SessionID); err != nil {
			return 0, err
		}
		s.audit.LogEvent(ctx, username, audit.ActionSessionExpired, audit.OutcomeSuccess, "session "+user.SessionID)
		return 0, ErrInvalidSession
	}
	s.audit.LogEvent(ctx, username, audit.ActionValidateSession, audit.OutcomeSuccess, "")
	return user.SessionExpiresAt.Sub(now), nil
}

// Logout clears username's session. When token is non-empty it must be the current
// session's token; a mismatch leaves the newer session alone and still succeeds.
// Logging out a user without a session is a no-op.
func (s *SessionService) Logout(ctx context.Context, username, token string) error {
	username = strings.TrimSpace(username)
	token = strings.TrimSpace(token)
	if username == "" {
		return ErrMissingFields
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if user == nil || !user.HasSession() {
		s.audit.LogEvent(ctx, username, audit.ActionLogout, audit.OutcomeSuccess, "no session")
		return nil
	}
	if token != "" && !security.SessionTokenHashEqual(token, user.SessionTokenHash) {
		s.audit.LogEvent(ctx, username, audit.ActionLogout, audit.OutcomeFailure, "stale token")
		return nil
	}
	if err := s.users.ClearSession(ctx, user.ID, user.SessionID); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, username, audit.ActionLogout, audit.OutcomeSuccess, "")
	return nil
}
