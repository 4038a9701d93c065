package security

import "time"

// Issuer and audience used by NewTestTokenProvider.
const (
	TestIssuer   = "test-issuer"
	TestAudience = "test-audience"
)

// NewTestTokenProvider returns a TokenProvider on a fresh ES256 key with a 30 minute TTL.
// For unit tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	signer, err := GenerateEphemeralKey()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, signer.Public(), TestIssuer, TestAudience, 30*time.Minute), nil
}

// SetClock replaces the provider's time source. For tests only.
func (p *TokenProvider) SetClock(now func() time.Time) {
	p.nowF = now
}
