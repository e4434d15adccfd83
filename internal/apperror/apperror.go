package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrReauthenticate marks auth-fatal failures: the stored credential is
	// gone or unusable and only a fresh OAuth login can recover.
	// A full sync stops at the first error of this kind.
	ErrReauthenticate = errors.New("re-authenticate")

	// ErrRateLimited is returned when the local daily request budget is spent.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstream covers non-2xx responses from the WHOOP API, transient
	// refresh failures and an open circuit breaker.
	ErrUpstream = errors.New("upstream error")
)

type AppError struct {
	Err        error  // actual error
	Message    string // Human-readable error message
	Field      string // Optional: field causing the error
	StatusCode int    // Optional: upstream HTTP status
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Reauthenticate builds an auth-fatal error. The message always ends with
// "user must re-authenticate" so logs and API clients see the same wording.
func Reauthenticate(reason string) *AppError {
	return &AppError{
		Err:     ErrReauthenticate,
		Message: reason + ": user must re-authenticate",
	}
}

func DailyLimit() *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: "Daily API rate limit reached (10,000/day). Try again tomorrow.",
	}
}

// Upstream wraps a non-2xx WHOOP API response.
func Upstream(status int, path, body string) *AppError {
	return &AppError{
		Err:        ErrUpstream,
		Message:    fmt.Sprintf("WHOOP API error %d on %s: %s", status, path, body),
		StatusCode: status,
	}
}

// RefreshFailed is a transient token refresh failure. The credential is kept.
func RefreshFailed(status int, body string) *AppError {
	return &AppError{
		Err:        ErrUpstream,
		Message:    fmt.Sprintf("Token refresh failed (%d): %s", status, body),
		StatusCode: status,
	}
}

func Unavailable(message string) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: message,
	}
}

// IsAuthFatal reports whether err requires a new OAuth login.
func IsAuthFatal(err error) bool {
	return errors.Is(err, ErrReauthenticate)
}
