// Package handler exposes signup, login and OTP verification over JSON/HTTP.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"covid-dashboard/platform/internal/identity/service"
	"covid-dashboard/platform/internal/platform/httpjson"
	userdomain "covid-dashboard/platform/internal/user/domain"
)

// AuthService is the identity service as seen by the handler.
type AuthService interface {
	Signup(ctx context.Context, in service.SignupInput) (*userdomain.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	VerifyOTP(ctx context.Context, username, otp string) (*service.SessionResult, error)
}

// Handler serves the account endpoints.
type Handler struct {
	auth AuthService
}

// NewHandler returns a Handler backed by auth.
func NewHandler(auth AuthService) *Handler {
	return &Handler{auth: auth}
}

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Username string `json:"username"`
	OTP      string `json:"otp"`
}

type messageResponse struct {
	Message  string `json:"message"`
	Username string `json:"username,omitempty"`
}

type verifyResponse struct {
	Message      string `json:"message"`
	Username     string `json:"username"`
	Token        string `json:"token"`
	SessionToken string `json:"sessionToken"`
}

// Signup handles POST /api/auth/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	user, err := h.auth.Signup(r.Context(), service.SignupInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Phone:    req.Phone,
	})
	if err != nil {
		h.writeError(w, "signup", err)
		return
	}
	httpjson.Write(w, http.StatusCreated, messageResponse{Message: "User registered successfully", Username: user.Username})
}

// Login handles POST /api/auth/login: password check then OTP delivery.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	username, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, "login", err)
		return
	}
	httpjson.Write(w, http.StatusOK, messageResponse{Message: "OTP sent. Please verify to complete login.", Username: username})
}

// VerifyOTP handles POST /api/auth/verify-otp. The token is returned under both
// "token" and "sessionToken" for clients of either generation.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := h.auth.VerifyOTP(r.Context(), req.Username, req.OTP)
	if err != nil {
		h.writeError(w, "verify-otp", err)
		return
	}
	httpjson.Write(w, http.StatusOK, verifyResponse{
		Message:      "Login successful",
		Username:     res.Username,
		Token:        res.Token,
		SessionToken: res.Token,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		httpjson.Error(w, http.StatusBadRequest, verr.Msg)
	case errors.Is(err, service.ErrUsernameTaken):
		httpjson.Error(w, http.StatusConflict, "Username already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		httpjson.Error(w, http.StatusUnauthorized, "Invalid username or password")
	case errors.Is(err, service.ErrInvalidOTP):
		httpjson.Error(w, http.StatusUnauthorized, "Invalid or expired OTP")
	case errors.Is(err, service.ErrOTPDelivery):
		httpjson.Error(w, http.StatusInternalServerError, "Failed to send OTP. Please try again.")
	default:
		log.Printf("identity: %s: %v", op, err)
		httpjson.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
