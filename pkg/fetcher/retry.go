package fetcher

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// BackoffFactor is the multiplier applied to the delay after each retry.
	BackoffFactor float64

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
// Delays run 2s, 8s, 32s, then stay capped at 60s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  2 * time.Second,
		BackoffFactor: 4.0,
		MaxDelay:      60 * time.Second,
	}
}

// Validate checks the retry configuration for impossible values.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0 (got %v)", c.InitialDelay)
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("backoff_factor must be >= 1 (got %v)", c.BackoffFactor)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max_delay must be >= initial_delay (got %v < %v)", c.MaxDelay, c.InitialDelay)
	}
	return nil
}

// Delay returns the wait before retry number n (1-based):
// min(InitialDelay * BackoffFactor^(n-1), MaxDelay).
func (c RetryConfig) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}

	delay := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(n-1))
	if delay >= float64(c.MaxDelay) || math.IsInf(delay, 0) {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

// retrier runs an attempt function until it succeeds, hits a non-retryable
// error, or uses up its attempts.
type retrier struct {
	config RetryConfig
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// do executes fn with exponential backoff. kind selects the exhaustion
// sentinel (ErrFetchExhausted or ErrValidationExhausted).
func (r *retrier) do(ctx context.Context, rawURL string, kind error, fn func() error) error {
	var lastErr error
	var lastClass ErrorClass

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.Info().
					Str("url", rawURL).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		lastClass = Classify(err)
		fetchErrorsTotal.WithLabelValues(string(lastClass)).Inc()

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		if !shouldRetry(lastClass) {
			return err
		}

		// If this was the last attempt, don't wait
		if attempt >= r.config.MaxAttempts {
			break
		}

		delay := r.config.Delay(attempt)
		fetchRetriesTotal.WithLabelValues(string(lastClass)).Inc()
		fetchRetryBackoffSeconds.WithLabelValues(string(lastClass)).Observe(delay.Seconds())

		r.logger.Debug().
			Err(err).
			Str("url", rawURL).
			Str("error_class", string(lastClass)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		if err := r.sleep(ctx, delay); err != nil {
			r.logger.Warn().
				Str("url", rawURL).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}

	fetchRetryExhaustedTotal.WithLabelValues(kind.Error()).Inc()
	r.logger.Warn().
		Err(lastErr).
		Str("url", rawURL).
		Str("error_class", string(lastClass)).
		Int("max_attempts", r.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return &ExhaustedError{
		Kind:     kind,
		URL:      rawURL,
		Attempts: r.config.MaxAttempts,
		Err:      lastErr,
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
