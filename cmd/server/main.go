package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"covid-dashboard/platform/internal/audit"
	auditrepo "covid-dashboard/platform/internal/audit/repository"
	"covid-dashboard/platform/internal/config"
	"covid-dashboard/platform/internal/db"
	"covid-dashboard/platform/internal/devotp"
	devotphandler "covid-dashboard/platform/internal/devotp/handler"
	healthhandler "covid-dashboard/platform/internal/health/handler"
	identityhandler "covid-dashboard/platform/internal/identity/handler"
	identityservice "covid-dashboard/platform/internal/identity/service"
	"covid-dashboard/platform/internal/mfa"
	"covid-dashboard/platform/internal/mfa/email"
	mfarepo "covid-dashboard/platform/internal/mfa/repository"
	"covid-dashboard/platform/internal/mfa/sms"
	"covid-dashboard/platform/internal/security"
	"covid-dashboard/platform/internal/server"
	"covid-dashboard/platform/internal/server/middleware"
	sessionhandler "covid-dashboard/platform/internal/session/handler"
	sessionservice "covid-dashboard/platform/internal/session/service"
	telemetryotel "covid-dashboard/platform/internal/telemetry/otel"
	userrepo "covid-dashboard/platform/internal/user/repository"
)

const serviceName = "covid-dashboard-auth"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("otel: shutdown: %v", err)
		}
	}()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	tokens, err := newTokenProvider(cfg)
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}

	metrics, err := telemetryotel.NewAuthMetrics(otel.Meter(serviceName))
	if err != nil {
		log.Fatalf("otel: metrics: %v", err)
	}
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(database), middleware.ClientIP).
		WithEmitter(telemetryotel.NewAuditEmitter(providers.LoggerProvider)).
		WithMetrics(metrics)

	users := userrepo.NewPostgresRepository(database)
	var devStore *devotp.MemoryStore
	sender, err := newSender(cfg, func() *devotp.MemoryStore {
		devStore = devotp.NewMemoryStore()
		return devStore
	})
	if err != nil {
		log.Fatalf("otp delivery: %v", err)
	}

	auth := identityservice.NewAuthService(users, newChallengeStore(cfg, database), sender,
		security.NewHasher(cfg.BcryptCost), tokens, auditLogger, cfg.OTPLifetime())
	sessions := sessionservice.NewSessionService(users, tokens, auditLogger)

	deps := server.Deps{
		Identity:          identityhandler.NewHandler(auth),
		Session:           sessionhandler.NewHandler(sessions),
		Health:            healthhandler.NewHandler(database),
		CORSOrigins:       cfg.CORSOrigins(),
		RateLimiter:       middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst),
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}
	if devStore != nil {
		deps.DevOTP = devotphandler.NewHandler(devStore)
		log.Println("dev OTP endpoint enabled at GET /dev/otp (DEV MODE ONLY)")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}

// newTokenProvider loads the configured signing key pair, or generates a throwaway ES256 key
// outside production so local runs need no key material. Tokens from an ephemeral key do not
// survive a restart.
func newTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey == "" && cfg.JWTPublicKey == "" {
		signer, err := security.GenerateEphemeralKey()
		if err != nil {
			return nil, err
		}
		log.Println("jwt: JWT_PRIVATE_KEY unset, using an ephemeral ES256 key")
		return security.NewTokenProvider(signer, signer.Public(), cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTimeout()), nil
	}
	priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTimeout()), nil
}

func newSender(cfg *config.Config, devStore func() *devotp.MemoryStore) (mfa.Sender, error) {
	switch cfg.OTPDelivery {
	case config.OTPDeliverySMS:
		if cfg.SMSLocalAPIKey == "" {
			return nil, errors.New("SMS_LOCAL_API_KEY is required when OTP_DELIVERY=sms")
		}
		return sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender), nil
	case config.OTPDeliveryDev:
		return devotp.NewSender(devStore(), cfg.OTPLifetime()), nil
	default:
		if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
			return nil, errors.New("SMTP_HOST and SMTP_FROM are required when OTP_DELIVERY=email")
		}
		return email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, cfg.OTPLifetime()), nil
	}
}

func newChallengeStore(cfg *config.Config, database *sql.DB) mfa.ChallengeStore {
	if cfg.OTPChallengeStore == config.ChallengeStoreMemory {
		return mfa.NewMemoryChallengeStore()
	}
	return mfarepo.NewPostgresRepository(database)
}
