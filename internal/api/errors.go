package api

import "fmt"

// APIError is a failure reported by (or on the way to) the exam backend.
// Detail carries the backend's reason text verbatim when one was provided.
type APIError struct {
	// Status is the HTTP status code, or 0 for transport-level failures
	// that never produced a response.
	Status int
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("network error: %s", e.Detail)
	}
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Detail)
}

// Transient reports whether retrying the same request could succeed.
// Transport failures, timeouts and server-side errors are transient;
// 4xx rejections (attempt finalized, exam unavailable, bad payload) are
// terminal for the current request.
func (e *APIError) Transient() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status == 408 || e.Status == 429:
		return true
	case e.Status >= 500:
		return true
	default:
		return false
	}
}
