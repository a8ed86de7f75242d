package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/sony/gobreaker"
)

// Common errors returned by the fetcher.
var (
	// ErrFetchExhausted is returned when a GET keeps failing until all attempts are used.
	ErrFetchExhausted = errors.New("fetch exhausted")

	// ErrValidationExhausted is returned when an existence check never reached
	// a terminal status before all attempts were used.
	ErrValidationExhausted = errors.New("validation exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents transport-level errors (DNS, connect, timeout, reset).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassStatus represents a response with a status outside the accepted set.
	ErrorClassStatus ErrorClass = "status"

	// ErrorClassBreaker represents a request rejected by an open circuit breaker.
	ErrorClassBreaker ErrorClass = "breaker"

	// ErrorClassOther represents everything else. These are never retried.
	ErrorClassOther ErrorClass = "other"
)

// UnexpectedStatusError is returned for a response whose status code is not
// terminal for the call variant.
type UnexpectedStatusError struct {
	URL        string
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("got status code %d for %s", e.StatusCode, e.URL)
}

// ExhaustedError wraps the last observed failure once all attempts are used.
// Kind is ErrFetchExhausted or ErrValidationExhausted.
type ExhaustedError struct {
	Kind     error
	URL      string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v: %s after %d attempts: %v", e.Kind, e.URL, e.Attempts, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the exhaustion kind of this error.
func (e *ExhaustedError) Is(target error) bool {
	return target == e.Kind
}

// Classify categorizes an error for retry decisions and observability.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return ErrorClassOther
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorClassBreaker
	}

	var statusErr *UnexpectedStatusError
	if errors.As(err, &statusErr) {
		return ErrorClassStatus
	}

	// Per-attempt timeouts. The caller's own deadline is checked by the retry loop.
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrorClassNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassNetwork
	}

	return ErrorClassOther
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassNetwork, ErrorClassStatus:
		return true
	default:
		return false
	}
}
