package security

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "secret123" {
		t.Fatalf("Hash = %q, want a bcrypt hash", hash)
	}
	if err := h.Compare(hash, "secret123"); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if err := h.Compare(hash, "wrong"); !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		t.Errorf("Compare wrong password err = %v, want mismatch", err)
	}
}

func TestHasher_CompareDummyAlwaysFails(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	if err := h.CompareDummy("covid-dashboard-dummy-password"); err == nil {
		t.Error("CompareDummy must never succeed")
	}
	if err := (&Hasher{}).CompareDummy("x"); err == nil {
		t.Error("CompareDummy on zero Hasher must fail")
	}
}

func TestNewHasher_Cost(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 12},
		{-1, 12},
		{2, bcrypt.MinCost},
		{10, 10},
	}
	for _, tt := range tests {
		if got := NewHasher(tt.in).Cost; got != tt.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSessionTokenHash(t *testing.T) {
	stored := HashSessionToken("tok-1")
	if len(stored) != 64 {
		t.Errorf("hash length = %d, want 64", len(stored))
	}
	if !SessionTokenHashEqual("tok-1", stored) {
		t.Error("SessionTokenHashEqual should match the same token")
	}
	if SessionTokenHashEqual("tok-2", stored) {
		t.Error("SessionTokenHashEqual should reject a different token")
	}
	if SessionTokenHashEqual("", "") {
		t.Error("SessionTokenHashEqual must reject an empty stored hash")
	}
}
