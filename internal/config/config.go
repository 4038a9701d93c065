// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// OTP delivery channels accepted in OTP_DELIVERY.
const (
	OTPDeliveryEmail = "email"
	OTPDeliverySMS   = "sms"
	OTPDeliveryDev   = "dev"
)

// Pending challenge stores accepted in OTP_CHALLENGE_STORE.
const (
	ChallengeStorePostgres = "postgres"
	ChallengeStoreMemory   = "memory"
)

// Config holds auth backend configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SessionTimeoutMinutes is how long a verified session stays valid (default 30).
	SessionTimeoutMinutes int `mapstructure:"SESSION_TIMEOUT_MINUTES"`
	// OTPTTL is how long a pending one-time code may be verified (e.g. "5m").
	OTPTTL string `mapstructure:"OTP_TTL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file used to sign session tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim of session tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of session tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// OTPDelivery selects how one-time codes reach the user: email, sms or dev.
	// dev keeps codes in memory for GET /dev/otp and must not be used when Env is production.
	OTPDelivery string `mapstructure:"OTP_DELIVERY"`
	// OTPChallengeStore is where pending codes live: postgres (shared by replicas) or memory.
	OTPChallengeStore string `mapstructure:"OTP_CHALLENGE_STORE"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// SMSLocalAPIKey is the API key for SMS Local. Required when OTP_DELIVERY=sms.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// CORSAllowedOrigins is a comma-separated list of browser origins allowed to call the API.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// AuthRateLimit is the sustained per-client request rate (req/s) on auth endpoints.
	AuthRateLimit float64 `mapstructure:"AUTH_RATE_LIMIT"`
	// AuthRateBurst is the per-client burst allowance on auth endpoints.
	AuthRateBurst int `mapstructure:"AUTH_RATE_BURST"`
	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP. Enable only behind a proxy.
	TrustProxyHeaders bool `mapstructure:"TRUST_PROXY_HEADERS"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_TIMEOUT_MINUTES", 30)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "covid-dashboard-auth")
	v.SetDefault("JWT_AUDIENCE", "covid-dashboard")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTP_DELIVERY", OTPDeliveryEmail)
	v.SetDefault("OTP_CHALLENGE_STORE", ChallengeStorePostgres)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUTH_RATE_LIMIT", 5.0)
	v.SetDefault("AUTH_RATE_BURST", 10)
	v.SetDefault("TRUST_PROXY_HEADERS", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.SessionTimeoutMinutes <= 0 {
		return nil, errors.New("config: SESSION_TIMEOUT_MINUTES must be positive")
	}

	cfg.OTPDelivery = strings.ToLower(strings.TrimSpace(cfg.OTPDelivery))
	switch cfg.OTPDelivery {
	case OTPDeliveryEmail, OTPDeliverySMS, OTPDeliveryDev:
	default:
		return nil, errors.New("config: OTP_DELIVERY must be one of email, sms, dev")
	}
	if cfg.OTPDelivery == OTPDeliveryDev && cfg.IsProduction() {
		return nil, errors.New("config: OTP_DELIVERY=dev must not be used when APP_ENV=production")
	}
	cfg.OTPChallengeStore = strings.ToLower(strings.TrimSpace(cfg.OTPChallengeStore))
	switch cfg.OTPChallengeStore {
	case ChallengeStorePostgres, ChallengeStoreMemory:
	default:
		return nil, errors.New("config: OTP_CHALLENGE_STORE must be postgres or memory")
	}
	if cfg.IsProduction() && (cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "") {
		return nil, errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.AuthRateLimit < 0 || cfg.AuthRateBurst < 0 {
		return nil, errors.New("config: AUTH_RATE_LIMIT and AUTH_RATE_BURST must not be negative")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// SessionTimeout returns the session lifetime as a time.Duration.
func (c *Config) SessionTimeout() time.Duration {
	if c.SessionTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

// OTPLifetime parses OTPTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) OTPLifetime() time.Duration {
	d, err := time.ParseDuration(c.OTPTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// CORSOrigins returns the allowed origins from the comma-separated config.
func (c *Config) CORSOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// ClientConfig holds configuration for the dashboard's session client (dashctl and embedders).
type ClientConfig struct {
	// AuthBaseURL is the auth backend base URL (e.g. http://localhost:8080).
	AuthBaseURL string `mapstructure:"AUTH_BASE_URL"`
	// SessionPollInterval is the period between session validity checks (e.g. "10s").
	SessionPollInterval string `mapstructure:"SESSION_POLL_INTERVAL"`
	// RequestTimeout bounds each call to the auth backend (e.g. "10s").
	RequestTimeout string `mapstructure:"CLIENT_REQUEST_TIMEOUT"`
	// SessionStorePath is the file holding the persisted session; empty uses the user config dir.
	SessionStorePath string `mapstructure:"SESSION_STORE_PATH"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// LoadClient reads .env (if present) and the environment into a ClientConfig.
func LoadClient() (*ClientConfig, error) {
	v := newViper()

	v.SetDefault("AUTH_BASE_URL", "http://localhost:8080")
	v.SetDefault("SESSION_POLL_INTERVAL", "10s")
	v.SetDefault("CLIENT_REQUEST_TIMEOUT", "10s")
	v.SetDefault("SESSION_STORE_PATH", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.AuthBaseURL = strings.TrimRight(strings.TrimSpace(cfg.AuthBaseURL), "/")
	if cfg.AuthBaseURL == "" {
		return nil, errors.New("config: AUTH_BASE_URL must be set")
	}
	if d, err := time.ParseDuration(cfg.SessionPollInterval); err != nil || d <= 0 {
		return nil, errors.New("config: SESSION_POLL_INTERVAL must be a positive duration")
	}
	return &cfg, nil
}

// PollInterval parses SessionPollInterval. Returns 10s if unset or invalid.
func (c *ClientConfig) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.SessionPollInterval)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Timeout parses RequestTimeout. Returns 10s if unset or invalid.
func (c *ClientConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound
	v.AutomaticEnv()
	return v
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
