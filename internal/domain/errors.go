package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrLevelNotFound is returned when a level is missing from the catalog.
	ErrLevelNotFound = errors.New("level not found")
	// ErrQuestionNotFound indicates a question ID is not part of the level.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrSubmissionInFlight is returned when a question already has an outstanding submission.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrSessionClosed is returned by operations on a torn-down level session.
	ErrSessionClosed = errors.New("level session closed")
	// ErrHandleNotFound indicates an asset handle was released or never issued.
	ErrHandleNotFound = errors.New("asset handle not found")
	// ErrMissingToken is returned before any network call when no bearer token is available.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrNoSnapshot indicates no last-known level snapshot is stored.
	ErrNoSnapshot = errors.New("no level snapshot")
)

// ValidationError is a client-side rejection that never reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// APIError is a non-2xx response from the backend. Detail holds the
// server's detail/message field or the raw body.
type APIError struct {
	Op     string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, e.Detail)
}

// AuthError means no retry can succeed without new credentials.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	return "authentication required: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAlreadyAnswered reports whether err is the server's duplicate-submission signal.
func IsAlreadyAnswered(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return strings.Contains(strings.ToLower(apiErr.Detail), "already answered")
	}
	return strings.Contains(strings.ToLower(err.Error()), "already answered")
}

// IsAuth reports whether err requires the user to log in again.
func IsAuth(err error) bool {
	if errors.Is(err, ErrMissingToken) {
		return true
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
	}
	return false
}

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
