// Package sessionmanager owns the dashboard client's authenticated-user lifecycle:
// two-step login, periodic validation against the auth backend, forced logout when the
// backend revokes or expires the session, and explicit logout.
//
// A Manager is constructed once and handed to whatever needs to read the login state or
// drive login and logout; there is no package-level instance.
package sessionmanager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"covid-dashboard/platform/internal/authclient"
	"covid-dashboard/platform/internal/session/domain"
)

// DefaultPollInterval is the period between session validity checks.
const DefaultPollInterval = 10 * time.Second

// DefaultRequestTimeout bounds each backend call made by the manager.
const DefaultRequestTimeout = 10 * time.Second

// Reasons attached to events that end or refuse a session.
const (
	ReasonExpired = "Session expired. Please login again."
	ReasonLogout  = "Logged out."
)

var (
	// ErrCredentialRejected matches a backend refusal of username/password.
	ErrCredentialRejected = errors.New("credentials rejected")
	// ErrChallengeRejected matches a backend refusal of the one-time code.
	ErrChallengeRejected = errors.New("one-time code rejected")
	// ErrAlreadyAuthenticated is returned by Login while a session is current.
	ErrAlreadyAuthenticated = errors.New("already authenticated; log out first")
	// ErrClosed is returned by VerifyCode after Close.
	ErrClosed = errors.New("session: manager closed")
)

// RejectedError carries the backend's message verbatim. errors.Is matches Kind.
type RejectedError struct {
	Kind    error
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *RejectedError) Unwrap() error { return e.Kind }

// Backend is the auth service the manager talks to. *authclient.Client implements it.
type Backend interface {
	Login(ctx context.Context, username, password string) (*authclient.LoginResult, error)
	VerifyOTP(ctx context.Context, username, otp string) (*authclient.VerifyResult, error)
	ValidateSession(ctx context.Context, username, sessionToken string) (*authclient.ValidateResult, error)
	Logout(ctx context.Context, username, sessionToken string) error
}

// Store persists the current session record. Access is synchronous and local; the
// manager calls it with its lock held.
type Store interface {
	Load() (*domain.Session, error)
	Save(s *domain.Session) error
	Clear() error
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval sets the period between validity checks. Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRequestTimeout bounds each backend call. Non-positive values are ignored.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Manager holds at most one backend-confirmed session and keeps it honest by polling.
type Manager struct {
	backend  Backend
	store    Store
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	state   State
	session *domain.Session
	pending string // username awaiting a one-time code
	// generation changes whenever the current session is replaced or dropped;
	// poll results carrying an older generation are discarded.
	generation uint64
	stopPoll   context.CancelFunc
	closed     bool

	subMu     sync.Mutex
	subs      map[int]func(Event)
	nextSubID int

	wg sync.WaitGroup
}

// New returns a Manager in StateLoggedOut. Call Resume once at process start.
func New(backend Backend, store Store, opts ...Option) *Manager {
	m := &Manager{
		backend:  backend,
		store:    store,
		interval: DefaultPollInterval,
		timeout:  DefaultRequestTimeout,
		state:    StateLoggedOut,
		subs:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentUser returns the authenticated username, if any.
func (m *Manager) CurrentUser() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated || m.session == nil {
		return "", false
	}
	return m.session.Username, true
}

// IsAuthenticated reports whether a confirmed session is current.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateAuthenticated
}

// PendingUser returns the username awaiting a one-time code while in StateAwaitingCode.
func (m *Manager) PendingUser() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAwaitingCode {
		return "", false
	}
	return m.pending, true
}

// Resume adopts the persisted session if the backend still accepts it.
// Any failure to confirm it, including a transport error, clears it.
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateLoggedOut {
		m.mu.Unlock()
		return nil
	}
	stored, err := m.store.Load()
	switch {
	case err != nil:
		log.Printf("session: discarding unreadable stored session: %v", err)
		m.clearStoreLocked()
		stored = nil
	case stored != nil && !stored.Complete():
		log.Printf("session: discarding incomplete stored session")
		m.clearStoreLocked()
		stored = nil
	}
	gen := m.generation
	m.mu.Unlock()
	if stored == nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	res, err := m.backend.ValidateSession(callCtx, stored.Username, stored.SessionToken)
	cancel()

	m.mu.Lock()
	if m.generation != gen || m.state != StateLoggedOut {
		// A login started or completed while we were validating; it wins.
		m.mu.Unlock()
		return nil
	}
	if err != nil || res == nil || !res.Valid {
		if err != nil {
			log.Printf("session: resume validation for %s failed: %v", stored.Username, err)
		}
		m.clearStoreLocked()
		m.emitLocked(Event{Previous: StateLoggedOut, State: StateLoggedOut, Username: stored.Username, Reason: ReasonExpired})
		m.mu.Unlock()
		m.deliver()
		return nil
	}
	m.adoptLocked(stored)
	m.mu.Unlock()
	m.deliver()
	return nil
}

// Login performs step one: the backend checks the password and sends a one-time code.
// No session exists until VerifyCode succeeds.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	m.mu.Lock()
	if m.state == StateAuthenticated {
		m.mu.Unlock()
		return ErrAlreadyAuthenticated
	}
	m.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	res, err := m.backend.Login(callCtx, username, password)
	cancel()

	m.mu.Lock()
	if m.state == StateAuthenticated {
		// Another path established a session meanwhile; leave it alone.
		m.mu.Unlock()
		if err != nil {
			return classifyLoginErr(err)
		}
		return ErrAlreadyAuthenticated
	}
	prev := m.state
	if err != nil {
		if prev == StateAwaitingCode {
			m.pending = ""
			m.state = StateLoggedOut
			m.emitLocked(Event{Previous: prev, State: StateLoggedOut})
		}
		m.mu.Unlock()
		m.deliver()
		return classifyLoginErr(err)
	}
	m.generation++
	m.pending = res.Username
	m.state = StateAwaitingCode
	m.emitLocked(Event{Previous: prev, State: StateAwaitingCode, Username: res.Username})
	m.mu.Unlock()
	m.deliver()
	return nil
}

// CancelChallenge abandons a pending one-time code and returns to StateLoggedOut.
func (m *Manager) CancelChallenge() {
	m.mu.Lock()
	if m.state != StateAwaitingCode {
		m.mu.Unlock()
		return
	}
	m.pending = ""
	m.state = StateLoggedOut
	m.emitLocked(Event{Previous: StateAwaitingCode, State: StateLoggedOut})
	m.mu.Unlock()
	m.deliver()
}

// VerifyCode performs step two. On success the issued session replaces any previous one,
// is persisted, and polling starts.
func (m *Manager) VerifyCode(ctx context.Context, username, code string) error {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	res, err := m.backend.VerifyOTP(callCtx, username, code)
	cancel()
	if err != nil {
		return classifyVerifyErr(err)
	}
	sess := &domain.Session{Username: res.Username, SessionToken: res.Credential()}
	if sess.Username == "" {
		sess.Username = username
	}
	if !sess.Complete() {
		return &RejectedError{Kind: ErrChallengeRejected, Message: "backend issued no session token"}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err := m.store.Save(sess); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("session: persist: %w", err)
	}
	m.adoptLocked(sess)
	m.mu.Unlock()
	m.deliver()
	return nil
}

// Logout ends the session locally first, then tells the backend on a best-effort basis.
// Calling it while logged out does nothing.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateLoggedOut:
		m.mu.Unlock()
		return nil
	case StateAwaitingCode:
		m.pending = ""
		m.state = StateLoggedOut
		m.emitLocked(Event{Previous: StateAwaitingCode, State: StateLoggedOut, Reason: ReasonLogout})
		m.mu.Unlock()
		m.deliver()
		return nil
	}
	sess := m.session
	m.dropLocked(ReasonLogout)
	storeErr := m.clearStoreLocked()
	m.mu.Unlock()
	m.deliver()

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.backend.Logout(callCtx, sess.Username, sess.SessionToken); err != nil {
		log.Printf("session: backend logout for %s failed: %v", sess.Username, err)
	}
	return storeErr
}

// Close stops polling and waits for the poller to exit. The manager keeps its state
// but will not start new pollers.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.stopPollingLocked()
	m.mu.Unlock()
	m.wg.Wait()
}

// pollOnce validates the current session once.
func (m *Manager) pollOnce(ctx context.Context) {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()
	m.poll(ctx, gen)
}

func (m *Manager) poll(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if m.state != StateAuthenticated || m.generation != gen || m.session == nil {
		m.mu.Unlock()
		return
	}
	sess := *m.session
	m.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	res, err := m.backend.ValidateSession(callCtx, sess.Username, sess.SessionToken)
	cancel()

	invalid := false
	switch {
	case err == nil && res != nil && res.Valid:
	case err == nil:
		invalid = true
	case authclient.IsUnauthorized(err):
		invalid = true
	default:
		if ctx.Err() == nil {
			log.Printf("session: validation for %s inconclusive: %v", sess.Username, err)
		}
		return
	}
	if !invalid {
		return
	}

	m.mu.Lock()
	if m.state != StateAuthenticated || m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.dropLocked(ReasonExpired)
	m.clearStoreLocked()
	m.mu.Unlock()
	log.Printf("session: session for %s is no longer valid", sess.Username)
	m.deliver()
}

func (m *Manager) pollLoop(ctx context.Context, gen uint64) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx, gen)
		}
	}
}

// adoptLocked makes sess current and (re)starts polling. Caller holds m.mu.
func (m *Manager) adoptLocked(sess *domain.Session) {
	prev := m.state
	m.stopPollingLocked()
	m.generation++
	c := *sess
	m.session = &c
	m.pending = ""
	m.state = StateAuthenticated
	if !m.closed {
		ctx, cancel := context.WithCancel(context.Background())
		m.stopPoll = cancel
		m.wg.Add(1)
		go m.pollLoop(ctx, m.generation)
	}
	m.emitLocked(Event{Previous: prev, State: StateAuthenticated, Username: c.Username})
}

// dropLocked stops polling and forgets the in-memory session. Caller holds m.mu
// and clears the store before releasing it.
func (m *Manager) dropLocked(reason string) {
	prev := m.state
	username := ""
	if m.session != nil {
		username = m.session.Username
	}
	m.stopPollingLocked()
	m.generation++
	m.session = nil
	m.pending = ""
	m.state = StateLoggedOut
	m.emitLocked(Event{Previous: prev, State: StateLoggedOut, Username: username, Reason: reason})
}

func (m *Manager) stopPollingLocked() {
	if m.stopPoll != nil {
		m.stopPoll()
		m.stopPoll = nil
	}
}

// clearStoreLocked removes the stored record. Caller holds m.mu, so a session saved by a
// concurrent VerifyCode is never wiped by an older transition.
func (m *Manager) clearStoreLocked() error {
	err := m.store.Clear()
	if err != nil {
		log.Printf("session: clear stored session: %v", err)
	}
	return err
}

func classifyLoginErr(err error) error {
	var apiErr *authclient.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return &RejectedError{Kind: ErrCredentialRejected, Message: apiErr.Message}
	}
	return err
}

func classifyVerifyErr(err error) error {
	var apiErr *authclient.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return &RejectedError{Kind: ErrChallengeRejected, Message: apiErr.Message}
	}
	return err
}
