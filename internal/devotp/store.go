// Package devotp keeps the last plain OTP per username so a developer can read it back
// (GET /dev/otp). It is only wired when OTP_DELIVERY=dev, which config rejects in production.
package devotp

import (
	"context"
	"log"
	"sync"
	"time"

	"covid-dashboard/platform/internal/mfa"
)

// Store holds plain OTP by username for dev-only retrieval. Not used in production.
type Store interface {
	// Put stores otp for username until expiresAt, replacing any earlier code.
	Put(ctx context.Context, username, otp string, expiresAt time.Time)
	// Get returns the otp for username if present and not expired. Returns ok false if missing or expired.
	Get(ctx context.Context, username string) (otp string, ok bool)
}

type entry struct {
	otp       string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores otp for username until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, username, otp string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[username] = entry{otp: otp, expiresAt: expiresAt}
}

// Get returns the otp for username if present and not expired.
func (s *MemoryStore) Get(ctx context.Context, username string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[username]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, username)
		s.mu.Unlock()
		return "", false
	}
	return e.otp, true
}

// Sender is an mfa.Sender that parks codes in a Store instead of delivering them.
type Sender struct {
	Store Store
	TTL   time.Duration
	nowF  func() time.Time
}

// NewSender returns a Sender writing to store with the given code lifetime.
func NewSender(store Store, ttl time.Duration) *Sender {
	if ttl <= 0 {
		ttl = mfa.DefaultChallengeTTL
	}
	return &Sender{Store: store, TTL: ttl, nowF: func() time.Time { return time.Now().UTC() }}
}

// Send implements mfa.Sender.
func (s *Sender) Send(ctx context.Context, to mfa.Recipient, otp string) error {
	s.Store.Put(ctx, to.Username, otp, s.nowF().Add(s.TTL))
	log.Printf("devotp: OTP for %s available at GET /dev/otp (DEV MODE ONLY)", to.Username)
	return nil
}
