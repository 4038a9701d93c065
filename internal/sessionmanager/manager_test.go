package sessionmanager

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"covid-dashboard/platform/internal/authclient"
	"covid-dashboard/platform/internal/session/domain"
	"covid-dashboard/platform/internal/sessionstore"
)

type fakeBackend struct {
	mu sync.Mutex

	loginFn    func(username, password string) (*authclient.LoginResult, error)
	verifyFn   func(username, otp string) (*authclient.VerifyResult, error)
	validateFn func(ctx context.Context, username, token string) (*authclient.ValidateResult, error)
	logoutErr  error

	validateCalls int
	logoutCalls   []string
}

func (f *fakeBackend) Login(ctx context.Context, username, password string) (*authclient.LoginResult, error) {
	if f.loginFn != nil {
		return f.loginFn(username, password)
	}
	return &authclient.LoginResult{Username: username, Message: "OTP sent"}, nil
}

func (f *fakeBackend) VerifyOTP(ctx context.Context, username, otp string) (*authclient.VerifyResult, error) {
	if f.verifyFn != nil {
		return f.verifyFn(username, otp)
	}
	return &authclient.VerifyResult{Username: username, SessionToken: "T-" + otp}, nil
}

func (f *fakeBackend) ValidateSession(ctx context.Context, username, token string) (*authclient.ValidateResult, error) {
	f.mu.Lock()
	f.validateCalls++
	fn := f.validateFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, username, token)
	}
	return &authclient.ValidateResult{Valid: true, Username: username, RemainingTime: 1800}, nil
}

func (f *fakeBackend) Logout(ctx context.Context, username, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls = append(f.logoutCalls, username+"/"+token)
	return f.logoutErr
}

func (f *fakeBackend) setValidate(fn func(ctx context.Context, username, token string) (*authclient.ValidateResult, error)) {
	f.mu.Lock()
	f.validateFn = fn
	f.mu.Unlock()
}

func (f *fakeBackend) validations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateCalls
}

// eventLog collects events delivered to a subscriber.
type eventLog struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func watch(m *Manager) *eventLog {
	l := &eventLog{ch: make(chan Event, 64)}
	m.Subscribe(func(ev Event) {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
		l.ch <- ev
	})
	return l
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) waitFor(t *testing.T, state State, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-l.ch:
			if ev.State == state {
				return ev
			}
		case <-deadline:
			t.Fatalf("no transition to %s within %v", state, timeout)
			return Event{}
		}
	}
}

func newManager(t *testing.T, b Backend, s Store, opts ...Option) *Manager {
	t.Helper()
	m := New(b, s, opts...)
	t.Cleanup(m.Close)
	return m
}

func signIn(t *testing.T, m *Manager, username, code string) {
	t.Helper()
	if err := m.Login(context.Background(), username, "pw1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.VerifyCode(context.Background(), username, code); err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
}

func TestLoginAndVerify(t *testing.T) {
	store := sessionstore.NewMemoryStore()
	m := newManager(t, &fakeBackend{}, store)
	events := watch(m)

	if err := m.Login(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if m.State() != StateAwaitingCode {
		t.Errorf("State = %s, want %s", m.State(), StateAwaitingCode)
	}
	if u, ok := m.PendingUser(); !ok || u != "alice" {
		t.Errorf("PendingUser = %q, %v; want alice, true", u, ok)
	}
	if m.IsAuthenticated() {
		t.Error("IsAuthenticated should be false before the code is verified")
	}
	if rec, _ := store.Load(); rec != nil {
		t.Errorf("store = %+v, want nothing before verify", rec)
	}

	if err := m.VerifyCode(context.Background(), "alice", "123456"); err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if u, ok := m.CurrentUser(); !ok || u != "alice" {
		t.Errorf("CurrentUser = %q, %v; want alice, true", u, ok)
	}
	rec, err := store.Load()
	if err != nil || rec == nil {
		t.Fatalf("store.Load = %v, %v", rec, err)
	}
	if rec.Username != "alice" || rec.SessionToken != "T-123456" {
		t.Errorf("stored = %+v, want alice/T-123456", rec)
	}

	got := events.all()
	if len(got) != 2 {
		t.Fatalf("events = %+v, want 2", got)
	}
	if got[0].State != StateAwaitingCode || got[1].State != StateAuthenticated || got[1].Username != "alice" {
		t.Errorf("events = %+v", got)
	}
}

func TestLogin_RejectedKeepsBackendMessage(t *testing.T) {
	b := &fakeBackend{
		loginFn: func(username, password string) (*authclient.LoginResult, error) {
			return nil, &authclient.APIError{Op: "login", StatusCode: http.StatusUnauthorized, Message: "Invalid username or password"}
		},
	}
	m := newManager(t, b, sessionstore.NewMemoryStore())

	err := m.Login(context.Background(), "alice", "bad")
	if !errors.Is(err, ErrCredentialRejected) {
		t.Fatalf("err = %v, want ErrCredentialRejected", err)
	}
	if err.Error() != "Invalid username or password" {
		t.Errorf("Error() = %q, want backend message", err.Error())
	}
	if m.State() != StateLoggedOut {
		t.Errorf("State = %s, want %s", m.State(), StateLoggedOut)
	}
}

func TestLogin_FailureFromAwaitingCodeReturnsToLoggedOut(t *testing.T) {
	b := &fakeBackend{}
	m := newManager(t, b, sessionstore.NewMemoryStore())
	if err := m.Login(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	b.loginFn = func(username, password string) (*authclient.LoginResult, error) {
		return nil, &authclient.APIError{Op: "login", StatusCode: http.StatusUnauthorized, Message: "Invalid username or password"}
	}
	if err := m.Login(context.Background(), "alice", "bad"); err == nil {
		t.Fatal("Login should fail")
	}
	if m.State() != StateLoggedOut {
		t.Errorf("State = %s, want %s", m.State(), StateLoggedOut)
	}
}

func TestLogin_TransportErrorIsNotRejection(t *testing.T) {
	b := &fakeBackend{
		loginFn: func(username, password string) (*authclient.LoginResult, error) {
			return nil, &authclient.TransportError{Op: "login", Err: errors.New("connection refused")}
		},
	}
	m := newManager(t, b, sessionstore.NewMemoryStore())
	err := m.Login(context.Background(), "alice", "pw1")
	if !errors.Is(err, authclient.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if errors.Is(err, ErrCredentialRejected) {
		t.Error("transport failure must not look like a rejection")
	}
}

func TestLogin_WhileAuthenticated(t *testing.T) {
	m := newManager(t, &fakeBackend{}, sessionstore.NewMemoryStore())
	signIn(t, m, "alice", "111111")

	if err := m.Login(context.Background(), "bob", "pw"); !errors.Is(err, ErrAlreadyAuthenticated) {
		t.Errorf("err = %v, want ErrAlreadyAuthenticated", err)
	}
	if u, _ := m.CurrentUser(); u != "alice" {
		t.Errorf("CurrentUser = %q, want alice", u)
	}
}

func TestVerifyCode_Rejected(t *testing.T) {
	b := &fakeBackend{
		verifyFn: func(username, otp string) (*authclient.VerifyResult, error) {
			return nil, &authclient.APIError{Op: "verify otp", StatusCode: http.StatusUnauthorized, Message: "Invalid OTP"}
		},
	}
	store := sessionstore.NewMemoryStore()
	m := newManager(t, b, store)
	_ = m.Login(context.Background(), "alice", "pw1")

	err := m.VerifyCode(context.Background(), "alice", "000000")
	if !errors.Is(err, ErrChallengeRejected) {
		t.Fatalf("err = %v, want ErrChallengeRejected", err)
	}
	if err.Error() != "Invalid OTP" {
		t.Errorf("Error() = %q, want %q", err.Error(), "Invalid OTP")
	}
	if m.State() != StateAwaitingCode {
		t.Errorf("State = %s, want %s", m.State(), StateAwaitingCode)
	}
	if rec, _ := store.Load(); rec != nil {
		t.Errorf("store = %+v, want empty", rec)
	}
}

func TestVerifyCode_EmptyTokenIsRejection(t *testing.T) {
	b := &fakeBackend{
		verifyFn: func(username, otp string) (*authclient.VerifyResult, error) {
			return &authclient.VerifyResult{Username: username}, nil
		},
	}
	m := newManager(t, b, sessionstore.NewMemoryStore())
	if err := m.VerifyCode(context.Background(), "alice", "123456"); !errors.Is(err, ErrChallengeRejected) {
		t.Errorf("err = %v, want ErrChallengeRejected", err)
	}
	if m.IsAuthenticated() {
		t.Error("must not authenticate without a token")
	}
}

func TestVerifyCode_LegacyTokenField(t *testing.T) {
	b := &fakeBackend{
		verifyFn: func(username, otp string) (*authclient.VerifyResult, error) {
			return &authclient.VerifyResult{Username: username, Token: "LEGACY"}, nil
		},
	}
	store := sessionstore.NewMemoryStore()
	m := newManager(t, b, store)
	if err := m.VerifyCode(context.Background(), "alice", "123456"); err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	rec, _ := store.Load()
	if rec == nil || rec.SessionToken != "LEGACY" {
		t.Errorf("stored = %+v, want token LEGACY", rec)
	}
}

func TestVerifyCode_ReplacesExistingSession(t *testing.T) {
	store := sessionstore.NewMemoryStore()
	m := newManager(t, &fakeBackend{}, store)
	signIn(t, m, "alice", "111111")
	if err := m.VerifyCode(context.Background(), "alice", "222222"); err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	rec, _ := store.Load()
	if rec.SessionToken != "T-222222" {
		t.Errorf("SessionToken = %q, want T-222222", rec.SessionToken)
	}
}

func TestCancelChallenge(t *testing.T) {
	m := newManager(t, &fakeBackend{}, sessionstore.NewMemoryStore())
	_ = m.Login(context.Background(), "alice", "pw1")
	m.CancelChallenge()
	if m.State() != StateLoggedOut {
		t.Errorf("State = %s, want %s", m.State(), StateLoggedOut)
	}
	if _, ok := m.PendingUser(); ok {
		t.Error("PendingUser should be cleared")
	}
}

func TestResume_NoRecordMakesNoCall(t *testing.T) {
	b := &fakeBackend{}
	m := newManager(t, b, sessionstore.NewMemoryStore())
	if err := m.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if b.validations() != 0 {
		t.Errorf("validations = %d, want 0", b.validations())
	}
	if m.State() != StateLoggedOut {
		t.Errorf("State = %s, want %s", m.State(), StateLoggedOut)
	}
}

func TestResume_IncompleteRecordIsDiscarded(t *testing.T) {
	b := &fakeBackend{}
	store := sessionstore.NewMemoryStore()
	_ = store.Save(&domain.Session{Username: "alice"})
	m := newManager(t, b, store)

	if err := m.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if b.validations() != 0 {
		t.Errorf("validations = %d, want 0", b.validations())
	}
	if rec, _ := store.Load(); rec != nil {
		t.Errorf("store = %+v, want cleared", rec)
	}
}

func TestResume_ValidSessionIsAdopted(t *testing.T) {
	store := sessionstore.NewMemoryStore()
	_ = store.Save(&domain.Session{Username: "alice", SessionToken: "T1"})
	m := newManager(t, &fakeBackend{}, store)
	events := watch(m)

	if err := m.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if u, ok := m.CurrentUser(); !ok || u != "alice" {
		t.Errorf("CurrentUser = %q, %v; want alice, true", u, ok)
	}
	if got := events.all(); len(got) != 1 || got[0].State != StateAuthenticated {
		t.Errorf("events = %+v, want one Authenticated", got)
	}
}

func TestResume_InvalidOrUnreachableClears(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, username, token string) (*authclient.ValidateResult, error)
	}{
		{"invalid", func(ctx context.Context, u, tok string) (*authclient.ValidateResult, error) {
			return &authclient.ValidateResult{Valid: false}, nil
		}},
		{"unauthorized", func(ctx context.Context, u, tok string) (*authclient.ValidateResult, error) {
			return nil, &authclient.APIError{StatusCode: http.StatusUnauthorized, Message: "Session expired or invalid. Please login again."}
		}},
		{"unreachable", func(ctx context.Context, u, tok string) (*authclient.ValidateResult, error) {
			return nil, &authclient.TransportError{Op: "validate session", Err: errors.New("connection refused")}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := sessionstore.NewMemoryStore()
			_ = store.Save(&domain.Session{Username: "alice", SessionToken: "T1"})
			b := &fakeBackend{validateFn: tt.fn}
			m := newManager(t, b, store)
			events := watch(m)

			if err := m.Resume(context.Background()); err != nil {
				t.Fatalf("Resume: %v", err)
			}
			if m.State() != StateLoggedOut {
				t.Errorf("State = %s, want %s", m.State(), StateLoggedOut)
			}
			if rec, _ := store.Load(); rec != nil {
				t.Errorf("store = %+v, want cleared", rec)
			}
			got := events.all()
			if len(got) != 1 || got[0].Reason != ReasonExpired {
				t.Errorf("events = %+v, want one with reason %q", got, ReasonExpired)
			}
		})
	}
}

func TestPoll_InvalidForcesLogout(t *testing.T) {
	b := &fakeBackend{}
	store := sessionstore.NewMemoryStore()
	m := newManager(t, b, store)
	signIn(t, m, "alice", "111111")
	events := watch(m)

	b.setValidate(func(ctx context.Context, u, tok string) (*authclient.ValidateResult, error) {
		return &authclient.ValidateResult{Valid: false, Message: "Session expired or invalid. Please login again."}, nil
	})
	m.pollOnce(context.Background())

	if m.State() != StateLoggedOut {
		t.Fatalf("State = %s, want %s", m.State(), StateLoggedOut)
	}
	if rec, _ := store.Load(); rec != nil {
		t.Errorf("store = %+v, want cleared", rec)
	}
	got := events.all()
	if len(got) != 1 || got[0].Reason != ReasonExpired || got[0].Username != "alice" {
		t.Errorf("events = %+v", got)
	}
}

func TestPoll_TransientErrorKeepsSession(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"transport", &authclient.TransportError{Op: "validate session", Err: errors.New("timeout")}},
		{"server error", &authclient.APIError{Op: "validate session", StatusCode: http.StatusInternalServerError, Message: "boom"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{}
			store := sessionstore.NewMemoryStore()
			m := newManager(t, b, store)
			signIn(t, m, "alice", "111111")

			b.setValidate(func(ctx context.Context, u, tok string) (*authclient.ValidateResult, error) {
				return nil, tt.err
			})
			m.pollOnce(context.Background())
			m.pollOnce(context.Background())

			if !m.IsAuthenticated() {
				t.Error("session should survive an inconclusive check")
			}
			if rec, _ := store.Load(); rec == nil {
				t.Error("stored session should be kept")
			}
		})
	}
}

func TestPoll_ExpiryDetectedWithinOneInterval(t *testing.T) {
	b := &fakeBackend{}
	m := newManager(t, b, sessionstore.NewMemoryStore(), WithPollInterval(20*time.Millisecond))
	events := watch(m)
	signIn(t, m, "alice", "111111")

	b.setValidate(func(ctx context.Context, u, tok string) (*authclient.ValidateResult, error) {
		return nil, &authclient.APIError{StatusCode: http.StatusUnauthorized}
	})
	ev := events.waitFor(t, StateLoggedOut, 2*time.Second)
	if ev.Reason != ReasonExpired {
		t.Errorf("Reason = %q, want %q", ev.Reason, ReasonExpired)
	}
}

func TestPoll_StaleResultDoesNotEndNewSession(t *testing.T) {
	b := &fakeBackend{}
	store := sessionstore.NewMemoryStore()
	m := newManager(t, b, store)
	signIn(t, m, "alice", "111111")

	started := make(chan struct{})
	release := make(chan struct{})
	b.setValidate(func(ctx context.Context, u, tok string) (*authclient.ValidateResult, error) {
		close(started)
		<-release
		return &authclient.ValidateResult{Valid: false}, nil
	})

	done := make(chan struct{})
	go func() {
		m.pollOnce(context.Background())
		close(done)
	}()
	<-started

	b.setValidate(nil)
	if err := m.VerifyCode(context.Background(), "alice", "222222"); err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	close(release)
	<-done

	if !m.IsAuthenticated() {
		t.Fatal("stale validation result ended the replacement session")
	}
	if rec, _ := store.Load(); rec == nil || rec.SessionToken != "T-222222" {
		t.Errorf("stored = %+v, want T-222222", rec)
	}
}

func TestLogout_DuringInFlightPollDoesNotResurrect(t *testing.T) {
	b := &fakeBackend{}
	store := sessionstore.NewMemoryStore()
	m := newManager(t, b, store)
	signIn(t, m, "alice", "111111")
	events := watch(m)

	started := make(chan struct{})
	release := make(chan struct{})
	b.setValidate(func(ctx context.Context, u, tok string) (*authclient.ValidateResult, error) {
		close(started)
		<-release
		return &authclient.ValidateResult{Valid: false}, nil
	})

	done := make(chan struct{})
	go func() {
		m.pollOnce(context.Background())
		close(done)
	}()
	<-started

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	close(release)
	<-done

	if m.State() != StateLoggedOut {
		t.Errorf("State = %s, want %s", m.State(), StateLoggedOut)
	}
	got := events.all()
	if len(got) != 1 || got[0].Reason != ReasonLogout {
		t.Errorf("events = %+v, want a single logout", got)
	}
}

func TestLogout(t *testing.T) {
	b := &fakeBackend{}
	store := sessionstore.NewMemoryStore()
	m := newManager(t, b, store)
	signIn(t, m, "alice", "111111")
	events := watch(m)

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if m.IsAuthenticated() {
		t.Error("IsAuthenticated should be false")
	}
	if rec, _ := store.Load(); rec != nil {
		t.Errorf("store = %+v, want cleared", rec)
	}
	if len(b.logoutCalls) != 1 || b.logoutCalls[0] != "alice/T-111111" {
		t.Errorf("backend logout calls = %v", b.logoutCalls)
	}
	got := events.all()
	if len(got) != 1 || got[0].Reason != ReasonLogout {
		t.Errorf("events = %+v", got)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	b := &fakeBackend{}
	m := newManager(t, b, sessionstore.NewMemoryStore())
	signIn(t, m, "alice", "111111")

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if len(b.logoutCalls) != 1 {
		t.Errorf("backend logout calls = %d, want 1", len(b.logoutCalls))
	}
}

func TestLogout_BackendFailureIgnored(t *testing.T) {
	b := &fakeBackend{logoutErr: &authclient.TransportError{Op: "logout", Err: errors.New("down")}}
	store := sessionstore.NewMemoryStore()
	m := newManager(t, b, store)
	signIn(t, m, "alice", "111111")

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if m.IsAuthenticated() {
		t.Error("local session should be gone")
	}
}

func TestLogout_FromAwaitingCode(t *testing.T) {
	b := &fakeBackend{}
	m := newManager(t, b, sessionstore.NewMemoryStore())
	_ = m.Login(context.Background(), "alice", "pw1")
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if m.State() != StateLoggedOut {
		t.Errorf("State = %s, want %s", m.State(), StateLoggedOut)
	}
	if len(b.logoutCalls) != 0 {
		t.Errorf("backend logout calls = %v, want none", b.logoutCalls)
	}
}

func TestUnsubscribe(t *testing.T) {
	m := newManager(t, &fakeBackend{}, sessionstore.NewMemoryStore())
	calls := 0
	unsubscribe := m.Subscribe(func(Event) { calls++ })
	_ = m.Login(context.Background(), "alice", "pw1")
	unsubscribe()
	m.CancelChallenge()
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSubscriberMayCallManager(t *testing.T) {
	m := newManager(t, &fakeBackend{}, sessionstore.NewMemoryStore())
	var seen State
	m.Subscribe(func(ev Event) { seen = m.State() })
	signIn(t, m, "alice", "111111")
	if seen != StateAuthenticated {
		t.Errorf("state seen from subscriber = %s, want %s", seen, StateAuthenticated)
	}
}

func TestClose_StopsPolling(t *testing.T) {
	b := &fakeBackend{}
	m := New(b, sessionstore.NewMemoryStore(), WithPollInterval(10*time.Millisecond))
	signIn(t, m, "alice", "111111")
	time.Sleep(50 * time.Millisecond)
	m.Close()

	after := b.validations()
	time.Sleep(50 * time.Millisecond)
	if b.validations() != after {
		t.Errorf("validations grew from %d to %d after Close", after, b.validations())
	}
	if !m.IsAuthenticated() {
		t.Error("Close should not end the session")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateLoggedOut, "logged_out"},
		{StateAwaitingCode, "awaiting_code"},
		{StateAuthenticated, "authenticated"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

// gatedStore blocks the first Clear until release is closed.
type gatedStore struct {
	*sessionstore.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Clear() error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.MemoryStore.Clear()
}

func TestPoll_ExpiryDoesNotWipeNewerLogin(t *testing.T) {
	b := &fakeBackend{}
	store := &gatedStore{
		MemoryStore: sessionstore.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	m := newManager(t, b, store)
	signIn(t, m, "alice", "1")
	events := watch(m)

	b.setValidate(func(ctx context.Context, u, tok string) (*authclient.ValidateResult, error) {
		return &authclient.ValidateResult{Valid: false}, nil
	})
	polled := make(chan struct{})
	go func() {
		m.pollOnce(context.Background())
		close(polled)
	}()
	<-store.entered

	b.setValidate(nil)
	signedIn := make(chan error, 1)
	go func() {
		if err := m.Login(context.Background(), "alice", "pw1"); err != nil {
			signedIn <- err
			return
		}
		signedIn <- m.VerifyCode(context.Background(), "alice", "2")
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	<-polled
	if err := <-signedIn; err != nil {
		t.Fatalf("second sign-in: %v", err)
	}
	events.waitFor(t, StateAuthenticated, 2*time.Second)

	if !m.IsAuthenticated() {
		t.Fatalf("State = %s, want %s", m.State(), StateAuthenticated)
	}
	if rec, _ := store.Load(); rec == nil || rec.SessionToken != "T-2" {
		t.Errorf("stored = %+v, want T-2", rec)
	}
	got := events.all()
	want := []State{StateLoggedOut, StateAwaitingCode, StateAuthenticated}
	if len(got) != len(want) {
		t.Fatalf("events = %+v, want states %v", got, want)
	}
	for i, ev := range got {
		if ev.State != want[i] {
			t.Errorf("event %d State = %s, want %s", i, ev.State, want[i])
		}
	}
}

func TestResume_DoesNotOverrideLoginStartedMeanwhile(t *testing.T) {
	store := sessionstore.NewMemoryStore()
	_ = store.Save(&domain.Session{Username: "alice", SessionToken: "T1"})
	started := make(chan struct{})
	release := make(chan struct{})
	b := &fakeBackend{validateFn: func(ctx context.Context, u, tok string) (*authclient.ValidateResult, error) {
		close(started)
		<-release
		return &authclient.ValidateResult{Valid: true, Username: u, RemainingTime: 1800}, nil
	}}
	m := newManager(t, b, store)

	resumed := make(chan error, 1)
	go func() { resumed <- m.Resume(context.Background()) }()
	<-started
	if err := m.Login(context.Background(), "bob", "pw1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	close(release)
	if err := <-resumed; err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if m.State() != StateAwaitingCode {
		t.Errorf("State = %s, want %s", m.State(), StateAwaitingCode)
	}
	if u, ok := m.PendingUser(); !ok || u != "bob" {
		t.Errorf("PendingUser = %q, %v; want bob, true", u, ok)
	}
}

func TestVerifyCode_AfterCloseDoesNotPersist(t *testing.T) {
	store := sessionstore.NewMemoryStore()
	m := New(&fakeBackend{}, store)
	m.Close()

	if err := m.VerifyCode(context.Background(), "alice", "111111"); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if rec, _ := store.Load(); rec != nil {
		t.Errorf("stored = %+v, want nothing", rec)
	}
}

func TestSubscriberTransitionsArriveInOrder(t *testing.T) {
	m := newManager(t, &fakeBackend{}, sessionstore.NewMemoryStore())
	var states []State
	m.Subscribe(func(ev Event) {
		states = append(states, ev.State)
		if ev.State == StateAuthenticated {
			_ = m.Logout(context.Background())
		}
	})
	signIn(t, m, "alice", "111111")

	want := []State{StateAwaitingCode, StateAuthenticated, StateLoggedOut}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, states[i], want[i])
		}
	}
	if m.State() != StateLoggedOut {
		t.Errorf("State = %s, want %s", m.State(), StateLoggedOut)
	}
}
