// Package handler exposes session validation and logout over JSON/HTTP.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"covid-dashboard/platform/internal/platform/httpjson"
	"covid-dashboard/platform/internal/session/service"
)

// InvalidSessionMessage is returned with every failed validation.
const InvalidSessionMessage = "Session expired or invalid. Please login again."

// SessionService is the session service as seen by the handler.
type SessionService interface {
	Validate(ctx context.Context, username, token string) (time.Duration, error)
	Logout(ctx context.Context, username, token string) error
}

// Handler serves the session endpoints.
type Handler struct {
	sessions SessionService
}

// NewHandler returns a Handler backed by sessions.
func NewHandler(sessions SessionService) *Handler {
	return &Handler{sessions: sessions}
}

type sessionRequest struct {
	Username     string `json:"username"`
	SessionToken string `json:"sessionToken"`
}

type validateResponse struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username,omitempty"`
	// RemainingTime is in whole seconds.
	RemainingTime int64  `json:"remainingTime,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Validate handles POST /api/auth/validate-session.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	remaining, err := h.sessions.Validate(r.Context(), req.Username, req.SessionToken)
	switch {
	case err == nil:
		httpjson.Write(w, http.StatusOK, validateResponse{
			Valid:         true,
			Username:      req.Username,
			RemainingTime: int64(remaining / time.Second),
		})
	case errors.Is(err, service.ErrMissingFields):
		httpjson.Error(w, http.StatusBadRequest, "Username and session token are required")
	case errors.Is(err, service.ErrInvalidSession):
		httpjson.Write(w, http.StatusUnauthorized, validateResponse{Valid: false, Message: InvalidSessionMessage})
	default:
		log.Printf("session: validate: %v", err)
		httpjson.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Logout handles POST /api/auth/logout. The session token is optional.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	err := h.sessions.Logout(r.Context(), req.Username, req.SessionToken)
	switch {
	case err == nil:
		httpjson.Write(w, http.StatusOK, httpjson.ErrorBody{Message: "Logged out successfully"})
	case errors.Is(err, service.ErrMissingFields):
		httpjson.Error(w, http.StatusBadRequest, "Username is required")
	default:
		log.Printf("session: logout: %v", err)
		httpjson.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
