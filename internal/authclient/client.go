// Package authclient calls the dashboard auth backend over JSON/HTTP.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error response is read into APIError.Message.
const maxErrorBody = 4 << 10

// Endpoint paths on the auth backend.
const (
	PathSignup          = "/api/auth/signup"
	PathLogin           = "/api/auth/login"
	PathVerifyOTP       = "/api/auth/verify-otp"
	PathValidateSession = "/api/auth/validate-session"
	PathLogout          = "/api/auth/logout"
)

// ErrTransport matches every *TransportError.
var ErrTransport = errors.New("auth backend unreachable")

// APIError is a non-2xx response from the backend. Message carries the backend's
// message verbatim so callers can display it.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
}

// TransportError is a failure to reach the backend or to read its response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransport) match any TransportError.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// IsUnauthorized reports whether err is an APIError with status 401 or 403.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// LoginResult is the step-1 response: the username to correlate step 2.
type LoginResult struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// VerifyResult is the step-2 response. Older backends send token, newer ones sessionToken.
type VerifyResult struct {
	Username     string `json:"username"`
	Token        string `json:"token"`
	SessionToken string `json:"sessionToken"`
	Message      string `json:"message"`
}

// Credential returns sessionToken, falling back to token.
func (r *VerifyResult) Credential() string {
	if r.SessionToken != "" {
		return r.SessionToken
	}
	return r.Token
}

// ValidateResult is the validate-session response.
type ValidateResult struct {
	Valid bool `json:"valid"`
	// RemainingTime is the session lifetime left, in seconds, when valid.
	RemainingTime int64  `json:"remainingTime"`
	Username      string `json:"username"`
	Message       string `json:"message"`
}

// Client talks to the auth backend at BaseURL.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client for baseURL. Requests are traced through otelhttp.
// timeout <= 0 uses a 15s default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, username, password, email, phone string) error {
	body := map[string]string{"username": username, "password": password, "email": email}
	if phone != "" {
		body["phone"] = phone
	}
	return c.post(ctx, "signup", PathSignup, body, nil)
}

// Login submits credentials. On success the backend sends a one-time code out of band.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.post(ctx, "login", PathLogin, map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Username == "" {
		out.Username = username
	}
	return &out, nil
}

// VerifyOTP submits the one-time code and returns the issued session token.
func (c *Client) VerifyOTP(ctx context.Context, username, otp string) (*VerifyResult, error) {
	var out VerifyResult
	err := c.post(ctx, "verify otp", PathVerifyOTP, map[string]string{
		"username": username,
		"otp":      otp,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Username == "" {
		out.Username = username
	}
	return &out, nil
}

// ValidateSession asks whether the session is still current. A 401 is returned as an
// *APIError even though its body carries {valid:false}.
func (c *Client) ValidateSession(ctx context.Context, username, sessionToken string) (*ValidateResult, error) {
	var out ValidateResult
	err := c.post(ctx, "validate session", PathValidateSession, map[string]string{
		"username":     username,
		"sessionToken": sessionToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout asks the backend to drop the user's session. sessionToken may be empty.
func (c *Client) Logout(ctx context.Context, username, sessionToken string) error {
	body := map[string]string{"username": username}
	if sessionToken != "" {
		body["sessionToken"] = sessionToken
	}
	return c.post(ctx, "logout", PathLogout, body, nil)
}

func (c *Client) post(ctx context.Context, op, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(b)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// errorMessage extracts {"message": "..."} from a JSON body, else returns the trimmed text.
func errorMessage(b []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(b))
}
