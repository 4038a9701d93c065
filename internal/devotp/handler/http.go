// Package handler serves GET /dev/otp. Mounted only when OTP delivery is "dev".
package handler

import (
	"net/http"
	"strings"

	"covid-dashboard/platform/internal/devotp"
	"covid-dashboard/platform/internal/platform/httpjson"
)

// Handler reads parked codes back out of a devotp.Store.
type Handler struct {
	store devotp.Store
}

// NewHandler returns a Handler over store.
func NewHandler(store devotp.Store) *Handler {
	return &Handler{store: store}
}

type otpResponse struct {
	OTP string `json:"otp"`
}

// GetOTP returns the pending code for ?username=.
func (h *Handler) GetOTP(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		httpjson.Error(w, http.StatusBadRequest, "username is required")
		return
	}
	otp, ok := h.store.Get(r.Context(), username)
	if !ok {
		httpjson.Error(w, http.StatusNotFound, "No OTP pending for this user")
		return
	}
	httpjson.Write(w, http.StatusOK, otpResponse{OTP: otp})
}
