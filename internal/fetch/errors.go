package fetch

import (
	"fmt"

	"github.com/loykin/apifetch/internal/retry"
)

// ErrAttemptsExhausted wraps the last error after every attempt failed.
var ErrAttemptsExhausted = retry.ErrExhausted

// ProtocolError reports a request that can never succeed: an unparseable URL, an
// unsupported scheme or a request that cannot be constructed. It is not retried.
type ProtocolError struct {
	URL string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error for %q: %v", e.URL, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// StatusError is an HTTP response with status >= 400.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %s", e.Method, e.URL, e.Status)
}
