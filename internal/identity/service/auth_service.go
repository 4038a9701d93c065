// Package service implements account signup and the two-step login that ends in a session token.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"covid-dashboard/platform/internal/audit"
	"covid-dashboard/platform/internal/mfa"
	mfadomain "covid-dashboard/platform/internal/mfa/domain"
	"covid-dashboard/platform/internal/security"
	userdomain "covid-dashboard/platform/internal/user/domain"
	userrepo "covid-dashboard/platform/internal/user/repository"
)

// Sentinel errors for auth service; handler maps them to HTTP status codes.
var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrOTPDelivery        = errors.New("failed to deliver one-time code")
	ErrInvalidOTP         = errors.New("invalid or expired one-time code")
)

// ValidationError reports a malformed request. Its message is safe to show to the user.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// SignupInput is the data needed to create an account.
type SignupInput struct {
	Username string
	Password string
	Email    string
	Phone    string
}

// SessionResult is the outcome of a successful VerifyOTP.
type SessionResult struct {
	Username  string
	Token     string
	ExpiresAt time.Time
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	SetSession(ctx context.Context, userID, sessionID, tokenHash string, expiresAt time.Time) error
}

// AuthService implements signup, login step 1 (password, then OTP delivery) and step 2
// (OTP verification, then session issuance).
type AuthService struct {
	users      UserRepo
	challenges mfa.ChallengeStore
	sender     mfa.Sender
	hasher     *security.Hasher
	tokens     *security.TokenProvider
	audit      audit.AuditLogger
	otpTTL     time.Duration
	nowF       func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
// auditLogger may be nil. otpTTL <= 0 uses mfa.DefaultChallengeTTL.
func NewAuthService(
	users UserRepo,
	challenges mfa.ChallengeStore,
	sender mfa.Sender,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	auditLogger audit.AuditLogger,
	otpTTL time.Duration,
) *AuthService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if otpTTL <= 0 {
		otpTTL = mfa.DefaultChallengeTTL
	}
	return &AuthService{
		users:      users,
		challenges: challenges,
		sender:     sender,
		hasher:     hasher,
		tokens:     tokens,
		audit:      auditLogger,
		otpTTL:     otpTTL,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// Signup creates an account. The username is the login key and must be unique.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*userdomain.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(strings.ToLower(in.Email))
	phone := strings.TrimSpace(in.Phone)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.audit.LogEvent(ctx, username, audit.ActionSignup, audit.OutcomeFailure, "username taken")
		return nil, ErrUsernameTaken
	}
	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		Phone:        phone,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateUsername) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	s.audit.LogEvent(ctx, username, audit.ActionSignup, audit.OutcomeSuccess, "")
	return user, nil
}

// Login checks the password and sends a fresh one-time code, replacing any pending one.
// It returns the canonical username the code was issued for.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", &ValidationError{Msg: "Username and password are required"}
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if user == nil {
		_ = s.hasher.CompareDummy(password)
		s.audit.LogEvent(ctx, username, audit.ActionLogin, audit.OutcomeFailure, "unknown user")
		return "", ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.audit.LogEvent(ctx, username, audit.ActionLogin, audit.OutcomeFailure, "bad password")
		return "", ErrInvalidCredentials
	}

	otp, err := mfa.GenerateOTP()
	if err != nil {
		return "", err
	}
	now := s.nowF()
	challenge := &mfadomain.Challenge{
		Username:  user.Username,
		CodeHash:  mfa.HashOTP(otp),
		ExpiresAt: now.Add(s.otpTTL),
		CreatedAt: now,
	}
	if err := s.challenges.Put(ctx, challenge); err != nil {
		return "", err
	}
	to := mfa.Recipient{Username: user.Username, Email: user.Email, Phone: user.Phone}
	if err := s.sender.Send(ctx, to, otp); err != nil {
		log.Printf("auth: otp delivery for %s failed: %v", user.Username, err)
		if derr := s.challenges.Delete(ctx, user.Username); derr != nil {
			log.Printf("auth: drop undelivered challenge for %s: %v", user.Username, derr)
		}
		s.audit.LogEvent(ctx, user.Username, audit.ActionOTPSent, audit.OutcomeFailure, err.Error())
		return "", fmt.Errorf("%w: %v", ErrOTPDelivery, err)
	}
	s.audit.LogEvent(ctx, user.Username, audit.ActionLogin, audit.OutcomeSuccess, "otp sent")
	return user.Username, nil
}

// VerifyOTP redeems the pending code and issues a session token. The new session replaces
// any session the user already had, so at most one is valid at a time.
func (s *AuthService) VerifyOTP(ctx context.Context, username, otp string) (*SessionResult, error) {
	username = strings.TrimSpace(username)
	otp = strings.TrimSpace(otp)
	if username == "" || otp == "" {
		return nil, &ValidationError{Msg: "Username and OTP are required"}
	}
	challenge, err := s.challenges.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if challenge == nil {
		s.audit.LogEvent(ctx, username, audit.ActionVerifyOTP, audit.OutcomeFailure, "no pending code")
		return nil, ErrInvalidOTP
	}
	if challenge.Expired(s.nowF()) {
		if err := s.challenges.Delete(ctx, username); err != nil {
			return nil, err
		}
		s.audit.LogEvent(ctx, username, audit.ActionVerifyOTP, audit.OutcomeFailure, "code expired")
		return nil, ErrInvalidOTP
	}
	if !mfa.ValidOTPFormat(otp) || !mfa.OTPEqual(otp, challenge.CodeHash) {
		attempts, err := s.challenges.RecordFailure(ctx, username)
		if err != nil {
			return nil, err
		}
		if attempts >= mfa.MaxAttempts {
			if err := s.challenges.Delete(ctx, username); err != nil {
				return nil, err
			}
		}
		s.audit.LogEvent(ctx, username, audit.ActionVerifyOTP, audit.OutcomeFailure, fmt.Sprintf("wrong code (attempt %d)", attempts))
		return nil, ErrInvalidOTP
	}
	consumed, err := s.challenges.Consume(ctx, username, challenge.CodeHash)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrInvalidOTP
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidOTP
	}
	sessionID := uuid.New().String()
	token, expiresAt, err := s.tokens.IssueSession(sessionID, user.Username)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetSession(ctx, user.ID, sessionID, security.HashSessionToken(token), expiresAt); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, user.Username, audit.ActionVerifyOTP, audit.OutcomeSuccess, "session "+sessionID)
	return &SessionResult{Username: user.Username, Token: token, ExpiresAt: expiresAt}, nil
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,64}$`)

func validateUsername(username string) error {
	if username == "" {
		return &ValidationError{Msg: "Username is required"}
	}
	if !usernamePattern.MatchString(username) {
		return &ValidationError{Msg: "Username must be 3-64 characters of letters, digits, '.', '_' or '-'"}
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Msg: "Email is required"}
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return &ValidationError{Msg: "Invalid email format"}
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return &ValidationError{Msg: "Password must be at least 8 characters"}
	}
	if len(password) > 72 {
		return &ValidationError{Msg: "Password must be at most 72 bytes"}
	}
	return nil
}
