// Package apierr maps provider HTTP failures onto the domain's typed errors.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mediagen/internal/domain"
)

// DefaultRetryAfter is suggested on a rate limit the vendor sent no usable
// Retry-After for.
const DefaultRetryAfter = 30 * time.Second

var safetyWords = []string{"safety", "nsfw", "inappropriate", "moderation", "content policy", "datainspectionfailed", "blocked"}

// IsSafetyMessage reports whether msg reads like a content filter refusal.
func IsSafetyMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, w := range safetyWords {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

// FromResponse classifies a non-2xx response. msg is the provider's error text
// (already extracted from the body when possible).
func FromResponse(provider string, status int, header http.Header, msg string) error {
	msg = strings.TrimSpace(msg)
	cause := fmt.Errorf("status %d", status)
	if msg != "" {
		cause = fmt.Errorf("status %d: %s", status, msg)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.ConfigurationError{Provider: provider, Err: cause}
	case status == http.StatusTooManyRequests:
		wait := RetryAfter(header, time.Now())
		if wait <= 0 {
			wait = DefaultRetryAfter
		}
		return &domain.RateLimitError{Provider: provider, RetryAfter: wait, Err: cause}
	case (status == http.StatusUnprocessableEntity || status == http.StatusBadRequest) && IsSafetyMessage(msg):
		return &domain.ContentRejectedError{Provider: provider, Err: cause}
	default:
		return &domain.BackendError{Provider: provider, Err: cause}
	}
}

// RetryAfter parses a Retry-After header given either in seconds or as an
// HTTP date. It returns zero when the header is absent or unparseable.
func RetryAfter(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

// Transport wraps a failed round trip as a BackendError unless the caller's
// context ended it.
func Transport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &domain.BackendError{Provider: provider, Err: err}
}
