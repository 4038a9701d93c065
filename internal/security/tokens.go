package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, forged, or fails iss/aud checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when an otherwise valid token is past its exp.
	ErrExpiredToken = errors.New("token expired")
)

// SessionClaims are the claims of a dashboard session token.
// Subject is the username and ID (jti) is the server-side session id.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionToken is the result of validating a session token.
type SessionToken struct {
	SessionID string
	Username  string
	ExpiresAt time.Time
}

// TokenProvider issues and validates session JWTs using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	sessionTTL time.Duration
	nowF       func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on every check.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, sessionTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		sessionTTL: sessionTTL,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// SessionTTL returns the lifetime given to issued tokens.
func (p *TokenProvider) SessionTTL() time.Duration {
	return p.sessionTTL
}

// IssueSession issues a session JWT for username bound to sessionID.
// Returns the token string and its expiration time.
func (p *TokenProvider) IssueSession(sessionID, username string) (token string, expiresAt time.Time, err error) {
	now := p.nowF()
	expiresAt = now.Add(p.sessionTTL)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   username,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err = p.sign(claims)
	return token, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// ValidateSession parses and validates the token (signature, exp, nbf, iss, aud).
// An expired but otherwise genuine token yields ErrExpiredToken together with its claims,
// so the caller can clean up the session it names.
func (p *TokenProvider) ValidateSession(tokenString string) (*SessionToken, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.nowF),
	)
	var claims SessionClaims
	token, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && claims.ExpiresAt != nil && claims.ID != "" {
			return claimsToSession(&claims), ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claimsToSession(&claims), nil
}

func claimsToSession(c *SessionClaims) *SessionToken {
	return &SessionToken{
		SessionID: c.ID,
		Username:  c.Subject,
		ExpiresAt: c.ExpiresAt.Time,
	}
}
