// Package gwerrors defines the gateway's closed tagged-error taxonomy (spec §4.1/§7).
package gwerrors

import (
	"fmt"
	"time"
)

// NoTokenError indicates authentication failed or no credential was
// available for a provider. Retryable reports true for it, and
// Router.Dispatch moves on to the next candidate after it.
type NoTokenError struct {
	Provider string
	Reason   string
}

func (e *NoTokenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("no token for provider %q: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("no token for provider %q", e.Provider)
}

// RateLimitedError indicates an upstream 429. Surfaces without fallback for
// streams; may be retried by the router for non-streaming requests.
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("provider %q rate limited, retry after %s", e.Provider, e.RetryAfter)
}

// APIError is a non-success HTTP response; Body is preserved verbatim.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider %q returned HTTP %d: %s", e.Provider, e.Status, e.Body)
}

// ContextWindowExceededError classifies a 400 whose body matches a known
// context-window-exceeded pattern (spec §4.3).
type ContextWindowExceededError struct {
	Provider  string
	Message   string
	MaxTokens *int
}

func (e *ContextWindowExceededError) Error() string {
	return fmt.Sprintf("provider %q context window exceeded: %s", e.Provider, e.Message)
}

// StreamError indicates an invariant violation during SSE decoding, or an
// in-band upstream error event.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error: %s", e.Message)
}

// InvalidRequestError indicates validation failed before dispatch.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Message)
}

// AllFailedError indicates the router exhausted every candidate provider.
type AllFailedError struct {
	LastErr error
}

func (e *AllFailedError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("all providers failed, last error: %v", e.LastErr)
	}
	return "all providers failed"
}

func (e *AllFailedError) Unwrap() error { return e.LastErr }

// Retryable reports whether the router should try the next candidate
// provider for a non-streaming dispatch after receiving this error.
// RateLimited, API, NoToken and ContextWindowExceeded errors report true
// (NoToken and ContextWindowExceeded are terminal only for the provider
// that produced them); Stream, InvalidRequest, AllFailed and any other
// error report false. Router.Dispatch does not call it: it moves to the
// next candidate after any error.
func Retryable(err error) bool {
	switch err.(type) {
	case *RateLimitedError:
		return true
	case *APIError:
		return true
	case *NoTokenError:
		return true
	case *ContextWindowExceededError:
		return true
	default:
		return false
	}
}
