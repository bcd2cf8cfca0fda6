package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mystery-hunt-client/internal/domain"
)

const maxErrorBody = 64 << 10

// decodeError reads the backend's detail/message field, falling back to the
// raw body text and then the status line.
func decodeError(op string, resp *http.Response) *domain.APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &domain.APIError{Op: op, Status: resp.StatusCode}

	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		switch {
		case payload.Detail != "":
			apiErr.Detail = payload.Detail
		case payload.Message != "":
			apiErr.Detail = payload.Message
		}
	}
	if apiErr.Detail == "" {
		apiErr.Detail = strings.TrimSpace(string(raw))
	}
	if apiErr.Detail == "" {
		apiErr.Detail = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// transient reports whether a failed request may succeed when repeated.
// Transport errors and 5xx/429 responses qualify; auth and other 4xx do not.
func transient(err error) bool {
	if domain.IsAuth(err) {
		return false
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	return true
}

// checkToken rejects missing tokens and bearer JWTs that have already
// expired, so no request is made that cannot succeed. Opaque tokens pass.
func (c *Client) checkToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return domain.ErrMissingToken
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.Time.After(c.now()) {
		return &domain.AuthError{Reason: "token expired at " + claims.ExpiresAt.Time.Format(time.RFC3339)}
	}
	return nil
}
