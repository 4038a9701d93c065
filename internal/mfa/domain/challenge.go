package domain

import "time"

// Challenge is a pending one-time code for a user between login step 1 and step 2.
// A user has at most one pending challenge; a new login replaces it.
type Challenge struct {
	Username  string
	CodeHash  string
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the challenge can no longer be answered at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
