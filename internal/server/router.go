// Package server assembles the HTTP API: routes, middleware and tracing.
package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"covid-dashboard/platform/internal/authclient"
	devotphandler "covid-dashboard/platform/internal/devotp/handler"
	healthhandler "covid-dashboard/platform/internal/health/handler"
	identityhandler "covid-dashboard/platform/internal/identity/handler"
	"covid-dashboard/platform/internal/server/middleware"
	sessionhandler "covid-dashboard/platform/internal/session/handler"
)

const requestTimeout = 30 * time.Second

// Deps holds the handlers and settings the router needs.
type Deps struct {
	Identity *identityhandler.Handler
	Session  *sessionhandler.Handler
	Health   *healthhandler.Handler
	// DevOTP is mounted at GET /dev/otp when non-nil. Set only when OTP delivery is "dev".
	DevOTP *devotphandler.Handler

	// CORSOrigins lists browser origins allowed to call the API. "*" allows any origin
	// but then credentials are never allowed.
	CORSOrigins []string
	// RateLimiter throttles login, signup and verify-otp per client. Nil disables it.
	RateLimiter       *middleware.RateLimiter
	TrustProxyHeaders bool
}

// NewRouter returns the HTTP handler for the auth API, wrapped in otelhttp.
//
// Route → handler mapping:
//   - POST /api/auth/signup, /login, /verify-otp → internal/identity/handler (rate limited)
//   - POST /api/auth/validate-session, /logout   → internal/session/handler
//   - GET  /healthz                               → internal/health/handler
//   - GET  /dev/otp                               → internal/devotp/handler (dev only)
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.WithRequestIP(deps.TrustProxyHeaders))
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(cors.Handler(corsOptions(deps.CORSOrigins)))

	if deps.Health != nil {
		r.Get("/healthz", deps.Health.Healthz)
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware)
		}
		r.Post(authclient.PathSignup, deps.Identity.Signup)
		r.Post(authclient.PathLogin, deps.Identity.Login)
		r.Post(authclient.PathVerifyOTP, deps.Identity.VerifyOTP)
	})
	r.Post(authclient.PathValidateSession, deps.Session.Validate)
	r.Post(authclient.PathLogout, deps.Session.Logout)

	if deps.DevOTP != nil {
		r.Get("/dev/otp", deps.DevOTP.GetOTP)
	}

	return otelhttp.NewHandler(r, "auth-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func corsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           600,
	}
}
