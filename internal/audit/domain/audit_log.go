package domain

import "time"

// AuditLog represents an auth event.
type AuditLog struct {
	ID        string
	Username  string // empty when the request named no user
	Action    string
	Outcome   string
	IP        string
	Detail    string
	CreatedAt time.Time
}
