package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"covid-dashboard/platform/internal/db"
	"covid-dashboard/platform/internal/db/migrate"
	"covid-dashboard/platform/internal/mfa/domain"
)

func TestPostgresRepository_ChallengeLifecycle(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Skipf("Database connection failed (expected in test environment): %v", err)
	}
	defer conn.Close()
	if err := migrate.Run(dsn, migrate.DirectionUp); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	username := "it-" + uuid.New().String()[:8]
	defer repo.Delete(ctx, username)

	now := time.Now().UTC()
	if err := repo.Put(ctx, &domain.Challenge{Username: username, CodeHash: "h1", ExpiresAt: now.Add(time.Minute), CreatedAt: now}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n, err := repo.RecordFailure(ctx, username); err != nil || n != 1 {
		t.Fatalf("RecordFailure = %d, %v; want 1, nil", n, err)
	}
	// Put replaces the code and resets attempts.
	if err := repo.Put(ctx, &domain.Challenge{Username: username, CodeHash: "h2", ExpiresAt: now.Add(time.Minute), CreatedAt: now}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c, err := repo.Get(ctx, username)
	if err != nil || c == nil {
		t.Fatalf("Get = %v, %v", c, err)
	}
	if c.CodeHash != "h2" || c.Attempts != 0 {
		t.Errorf("challenge = (%q, %d), want (h2, 0)", c.CodeHash, c.Attempts)
	}

	if ok, _ := repo.Consume(ctx, username, "h1"); ok {
		t.Error("Consume with stale hash succeeded")
	}
	if ok, err := repo.Consume(ctx, username, "h2"); err != nil || !ok {
		t.Fatalf("Consume = %v, %v; want true, nil", ok, err)
	}
	if ok, _ := repo.Consume(ctx, username, "h2"); ok {
		t.Error("second Consume succeeded")
	}
	if n, err := repo.RecordFailure(ctx, username); err != nil || n != 0 {
		t.Errorf("RecordFailure after consume = %d, %v; want 0, nil", n, err)
	}
}
