package gitlab

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the tracker.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gitlab: API error (status %d): %s", e.StatusCode, e.Body)
}

// InvalidCredentials reports whether the tracker rejected the access token.
func (e *APIError) InvalidCredentials() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// NotFound reports whether the project or issue does not exist.
func (e *APIError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// RateLimited reports whether the tracker throttled the call. Rate limiting
// is an ordinary failure, not a crash: callers retry or surface it.
func (e *APIError) RateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// ServerError reports a tracker-side 5xx failure.
func (e *APIError) ServerError() bool { return e.StatusCode >= 500 }

// AsAPIError unwraps err to an *APIError if there is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
