package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyRegistered = errors.New("job already registered")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Error codes exposed at the HTTP boundary.
const (
	CodeConfiguration   = "provider_not_configured"
	CodeValidation      = "bad_request"
	CodeRateLimited     = "rate_limited"
	CodeContentRejected = "content_rejected"
	CodeTimeout         = "timeout"
	CodeBackend         = "provider_failure"
	CodePersistence     = "persistence_failure"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal"
)

// ConfigurationError reports a provider that cannot be used because its
// credential is missing or was refused.
type ConfigurationError struct {
	Provider string
	Err      error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: provider not configured", e.Provider)
	}
	return fmt.Sprintf("%s: provider not configured: %v", e.Provider, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError rejects a request before any remote call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RateLimitError is surfaced to the caller and never retried automatically.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("%s: rate limited", e.Provider)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %s", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ContentRejectedError means the content itself was refused by a safety
// filter, so another provider must not be tried.
type ContentRejectedError struct {
	Provider string
	Err      error
}

func (e *ContentRejectedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: content rejected", e.Provider)
	}
	return fmt.Sprintf("%s: content rejected: %v", e.Provider, e.Err)
}

func (e *ContentRejectedError) Unwrap() error { return e.Err }

// TimeoutError is raised by the scheduler when a job exceeds its wall-clock
// ceiling, whatever the backend reports.
type TimeoutError struct {
	JobID string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s timed out after %s", e.JobID, e.After)
}

// BackendError is a generic remote failure.
type BackendError struct {
	Provider string
	Err      error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: provider failure", e.Provider)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// PersistenceError reports that neither backing store accepted a record.
type PersistenceError struct {
	ID      string
	Durable error
	Local   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: durable: %v; local: %v", e.ID, e.Durable, e.Local)
}

func (e *PersistenceError) Unwrap() []error {
	var errs []error
	if e.Durable != nil {
		errs = append(errs, e.Durable)
	}
	if e.Local != nil {
		errs = append(errs, e.Local)
	}
	return errs
}

// ErrorCode maps err onto a stable code for API responses.
func ErrorCode(err error) string {
	var (
		configErr  *ConfigurationError
		validErr   *ValidationError
		rateErr    *RateLimitError
		contentErr *ContentRejectedError
		timeoutErr *TimeoutError
		backendErr *BackendError
		persistErr *PersistenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validErr):
		return CodeValidation
	case errors.As(err, &contentErr):
		return CodeContentRejected
	case errors.As(err, &rateErr):
		return CodeRateLimited
	case errors.As(err, &configErr):
		return CodeConfiguration
	case errors.As(err, &timeoutErr):
		return CodeTimeout
	case errors.As(err, &backendErr):
		return CodeBackend
	case errors.As(err, &persistErr):
		return CodePersistence
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
