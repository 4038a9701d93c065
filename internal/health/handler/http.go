// Package handler implements the readiness probe.
package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"covid-dashboard/platform/internal/platform/httpjson"
)

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler reports whether the server can reach its database.
type Handler struct {
	db Pinger
}

// NewHandler returns a health handler. db may be nil, in which case the check always passes.
func NewHandler(db Pinger) *Handler {
	return &Handler{db: db}
}

type statusResponse struct {
	Status string `json:"status"`
}

// Healthz handles GET /healthz: 200 {"status":"ok"} or 503 {"status":"unavailable"}.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			log.Printf("health: database ping failed: %v", err)
			httpjson.Write(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable"})
			return
		}
	}
	httpjson.Write(w, http.StatusOK, statusResponse{Status: "ok"})
}
