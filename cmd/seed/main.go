// seed inserts development accounts for local testing.
// Idempotent: accounts that already exist are left untouched.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"covid-dashboard/platform/internal/config"
	"covid-dashboard/platform/internal/db"
	"covid-dashboard/platform/internal/security"
	"covid-dashboard/platform/internal/user/domain"
	userrepo "covid-dashboard/platform/internal/user/repository"
)

const devPassword = "password123"

type seedUser struct {
	id, username, email, phone string
}

var devUsers = []seedUser{
	{id: "dev-user-001", username: "dev", email: "dev@example.com", phone: "+15550100"},
	{id: "dev-user-002", username: "analyst", email: "analyst@example.com"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	hasher := security.NewHasher(cfg.BcryptCost)
	ctx := context.Background()

	passwordHash, err := hasher.Hash(devPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	for _, su := range devUsers {
		existing, err := users.GetByUsername(ctx, su.username)
		if err != nil {
			log.Fatalf("seed check %s: %v", su.username, err)
		}
		if existing != nil {
			log.Printf("Seed user %s already exists. Skipping.", su.username)
			continue
		}
		u := &domain.User{
			ID:           su.id,
			Username:     su.username,
			Email:        su.email,
			Phone:        su.phone,
			PasswordHash: passwordHash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("create %s: %v", su.username, err)
		}
		fmt.Printf("Login: %s / %s\n", su.username, devPassword)
	}
	log.Println("Seed completed successfully.")
}
