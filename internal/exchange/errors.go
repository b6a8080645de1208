package exchange

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
)

// ErrorKind classifies API failures so callers can branch without string
// matching. Transport and RateLimited are retried inside the client; all
// other kinds bubble up.
type ErrorKind string

const (
	KindTransport   ErrorKind = "transport"    // network, timeout, connection reset
	KindRateLimited ErrorKind = "rate_limited" // 429
	KindAuth        ErrorKind = "auth"         // 401, 403
	KindValidation  ErrorKind = "validation"   // payload violates the wire schema
	KindNotFound    ErrorKind = "not_found"    // 404 / unknown resource
	KindServer      ErrorKind = "server"       // 5xx that survived retries
	KindRequest     ErrorKind = "request"      // other terminal 4xx
)

// APIError is a typed failure from the exchange API, carrying the HTTP
// status and the decoded server message when one was present.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Code    string // server-assigned error code, e.g. "market_not_found"
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("exchange: %s (status %d, code %s): %s", e.Kind, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("exchange: %s (status %d): %s", e.Kind, e.Status, e.Message)
}

// apiErrorFromStatus maps an HTTP status plus decoded body to a typed error.
func apiErrorFromStatus(status int, code, message string) *APIError {
	kind := KindRequest
	switch {
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status >= 500:
		kind = KindServer
	}
	return &APIError{Kind: kind, Status: status, Code: code, Message: message}
}

// IsNotFound reports whether err is a typed not-found failure.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Kind == KindNotFound
}

// retryableTransport reports whether a transport-level error is worth
// retrying: timeouts, connection resets, and refused connections are;
// anything else (bad URL, TLS misconfiguration) is not.
func retryableTransport(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
