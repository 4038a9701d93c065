package mfa

import (
	"context"
	"sync"
	"time"

	"covid-dashboard/platform/internal/mfa/domain"
)

// DefaultChallengeTTL is how long a one-time code can be answered.
const DefaultChallengeTTL = 5 * time.Minute

// MaxAttempts is the number of wrong codes after which a challenge is discarded.
const MaxAttempts = 5

// ChallengeStore holds pending challenges keyed by username.
type ChallengeStore interface {
	// Put stores c, replacing any pending challenge for the same username.
	Put(ctx context.Context, c *domain.Challenge) error
	// Get returns the pending challenge for username, or nil if none.
	Get(ctx context.Context, username string) (*domain.Challenge, error)
	// RecordFailure increments the attempt counter and returns the new count.
	RecordFailure(ctx context.Context, username string) (int, error)
	// Consume deletes the challenge only if its hash equals codeHash. It reports whether it did,
	// so a code can be redeemed at most once even under concurrent requests.
	Consume(ctx context.Context, username, codeHash string) (bool, error)
	Delete(ctx context.Context, username string) error
}

// MemoryChallengeStore is an in-process ChallengeStore for single-instance deployments and tests.
type MemoryChallengeStore struct {
	mu   sync.Mutex
	m    map[string]domain.Challenge
	nowF func() time.Time
}

// NewMemoryChallengeStore returns an empty store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		m:    make(map[string]domain.Challenge),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryChallengeStore) Put(ctx context.Context, c *domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.m[c.Username] = *c
	return nil
}

func (s *MemoryChallengeStore) Get(ctx context.Context, username string) (*domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[username]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryChallengeStore) RecordFailure(ctx context.Context, username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[username]
	if !ok {
		return 0, nil
	}
	c.Attempts++
	s.m[username] = c
	return c.Attempts, nil
}

func (s *MemoryChallengeStore) Consume(ctx context.Context, username, codeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[username]
	if !ok || c.CodeHash != codeHash {
		return false, nil
	}
	delete(s.m, username)
	return true, nil
}

func (s *MemoryChallengeStore) Delete(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, username)
	return nil
}

// sweepLocked drops expired challenges so abandoned logins do not accumulate.
func (s *MemoryChallengeStore) sweepLocked() {
	now := s.nowF()
	for k, c := range s.m {
		if c.Expired(now) {
			delete(s.m, k)
		}
	}
}
