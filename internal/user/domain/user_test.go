package domain

import (
	"testing"
	"time"
)

func TestUserValidate(t *testing.T) {
	valid := User{ID: "u1", Username: "alice", Email: "a@example.com", PasswordHash: "h"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(u *User)
	}{
		{"missing id", func(u *User) { u.ID = "" }},
		{"missing username", func(u *User) { u.Username = "" }},
		{"missing email", func(u *User) { u.Email = "" }},
		{"missing hash", func(u *User) { u.PasswordHash = "" }},
	}
	for _, tt := range tests {
		u := valid
		tt.mutate(&u)
		if err := u.Validate(); err == nil {
			t.Errorf("%s: Validate should fail", tt.name)
		}
	}
}

func TestUserSessionHelpers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := User{SessionID: "s1", SessionTokenHash: "h", SessionExpiresAt: now.Add(time.Minute)}
	if !u.HasSession() {
		t.Error("HasSession should be true")
	}
	if u.SessionExpired(now) {
		t.Error("session should not be expired before its expiry")
	}
	if !u.SessionExpired(now.Add(time.Minute)) {
		t.Error("session should be expired at its expiry")
	}
	if (&User{}).HasSession() {
		t.Error("zero user should have no session")
	}
}
