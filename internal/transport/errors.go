package transport

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTransport   = errors.New("envelope transport failed")
	ErrRejected    = errors.New("envelope rejected by peer")
	ErrNoEndpoints = errors.New("no endpoints configured")
)

// StatusError is a non-2xx reply from a peer.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Code       string // peer reject code, when the body carried one
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (e *StatusError) Is(target error) bool {
	if target == ErrRejected {
		return !e.Retryable()
	}
	return target == ErrTransport
}
