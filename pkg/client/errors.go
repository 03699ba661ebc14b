package client

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds. Every failure returned by a Client operation matches exactly one
// of the first three via errors.Is, or one of the local conditions below.
var (
	// ErrRateLimited means the upstream throttled the request; retryable after backoff
	ErrRateLimited = errors.New("rate limited")

	// ErrTransport covers timeouts, refused connections, TLS failures and 5xx responses
	ErrTransport = errors.New("transport failure")

	// ErrUpstreamRejected means the endpoint understood the request and returned an error payload
	ErrUpstreamRejected = errors.New("upstream rejected")

	// ErrQueueFull is returned when the request queue is at capacity
	ErrQueueFull = errors.New("request queue full")

	// ErrClientClosed is returned for calls made after Close
	ErrClientClosed = errors.New("client closed")

	// ErrBlockNotFound is returned when the node answers with an empty block
	ErrBlockNotFound = errors.New("block not found")
)

// RPCError is a classified failure of a single upstream call
type RPCError struct {
	Kind       error
	Method     string
	StatusCode int
	// RetryAfter is the upstream's backoff guidance, zero when absent
	RetryAfter time.Duration
	// Body is the upstream payload, preserved verbatim
	Body string
	Err  error
}

func (e *RPCError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Method, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", truncate(e.Body, 256))
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *RPCError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetryable reports whether err may succeed if the call is repeated
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransport)
}

// retryAfter returns the backoff guidance carried by err, if any
func retryAfter(err error) time.Duration {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.RetryAfter
	}
	return 0
}

var rateLimitMarkers = []string{
	"rate limit",
	"frequency limit",
	"request rate exceeded",
	"too many requests",
}

// mentionsRateLimit reports whether an upstream message describes throttling
func mentionsRateLimit(body string) bool {
	lower := strings.ToLower(body)
	for _, m := range rateLimitMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
