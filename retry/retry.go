package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"
)

const (
	MaxRetries    = 3
	RetryBaseWait = 500 * time.Millisecond
)

// RetryableFunc represents a function that can be retried
type RetryableFunc func() error

// APIError interface for errors that contain HTTP status codes
type APIError interface {
	error
	StatusCode() int
}

// RecoverableError marks an error as worth retrying regardless of its type.
type RecoverableError struct {
	Err error
}

// NewRecoverableError wraps err so that Do retries it.
func NewRecoverableError(err error) *RecoverableError {
	return &RecoverableError{Err: err}
}

func (e *RecoverableError) Error() string {
	return e.Err.Error()
}

func (e *RecoverableError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether err should be retried: it is either marked
// recoverable or carries a retryable HTTP status code.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var recoverable *RecoverableError
	if errors.As(err, &recoverable) {
		return true
	}
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return ShouldRetry(apiErr.StatusCode())
	}
	return false
}

// ShouldRetry determines if the given status code should trigger a retry
func ShouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || // 429
		statusCode == http.StatusBadGateway || // 502
		statusCode == http.StatusServiceUnavailable || // 503
		statusCode == http.StatusGatewayTimeout // 504
}

type options struct {
	maxRetries int
	baseWait   time.Duration
}

// Option configures Do.
type Option func(*options)

// WithMaxRetries sets the total number of attempts.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

// WithBaseWait sets the wait before the first retry. Later waits double.
func WithBaseWait(d time.Duration) Option {
	return func(o *options) { o.baseWait = d }
}

// Do executes f, retrying recoverable errors with exponential backoff and
// jitter. Errors that are not recoverable are returned immediately.
func Do(ctx context.Context, f RetryableFunc, opts ...Option) error {
	o := options{maxRetries: MaxRetries, baseWait: RetryBaseWait}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxRetries < 1 {
		o.maxRetries = 1
	}

	var lastError error
	for attempt := 0; attempt < o.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with jitter
			backoff := time.Duration(float64(o.baseWait) * math.Pow(2, float64(attempt-1)))
			jitter := time.Duration(rand.Float64() * float64(backoff) * 0.1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		err := f()
		if err == nil {
			return nil
		}
		lastError = err
		if !IsRecoverable(err) {
			return err
		}
	}
	return lastError
}
