package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// UpstreamError wraps a non-2xx response from an external call.
type UpstreamError struct {
	Status int         // Response status code
	URL    string      // Request URL
	Header http.Header // Response headers (may be nil)
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: status %d", e.URL, e.Status)
}

// RetryAfter returns the raw Retry-After header of the response, if any.
func (e *UpstreamError) RetryAfter() string {
	if e.Header == nil {
		return ""
	}
	return e.Header.Get("Retry-After")
}

// IsRateLimited reports whether err wraps an upstream 429 response.
func IsRateLimited(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Status == http.StatusTooManyRequests
}

// IsUpstreamStatus reports whether err wraps an upstream response with the
// given status code.
func IsUpstreamStatus(err error, status int) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Status == status
}

// AsUpstream returns the first *UpstreamError in err's chain.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
