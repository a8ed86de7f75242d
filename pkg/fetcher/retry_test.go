package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", config.MaxAttempts)
	}
	if config.InitialDelay != 2*time.Second {
		t.Errorf("InitialDelay = %v, want 2s", config.InitialDelay)
	}
	if config.BackoffFactor != 4.0 {
		t.Errorf("BackoffFactor = %v, want 4.0", config.BackoffFactor)
	}
	if config.MaxDelay != 60*time.Second {
		t.Errorf("MaxDelay = %v, want 60s", config.MaxDelay)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestRetryConfig_Delay(t *testing.T) {
	tests := []struct {
		name   string
		config RetryConfig
		want   []time.Duration // delays for retries 1..len(want)
	}{
		{
			name:   "doubling capped at 10s",
			config: RetryConfig{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 10 * time.Second},
			want:   []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second},
		},
		{
			name:   "default policy",
			config: DefaultRetryConfig(),
			want:   []time.Duration{2 * time.Second, 8 * time.Second, 32 * time.Second, 60 * time.Second},
		},
		{
			name:   "factor of one is constant",
			config: RetryConfig{InitialDelay: 500 * time.Millisecond, BackoffFactor: 1, MaxDelay: time.Second},
			want:   []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond},
		},
		{
			name:   "huge exponent stays capped",
			config: RetryConfig{InitialDelay: time.Second, BackoffFactor: 1000, MaxDelay: time.Minute},
			want:   []time.Duration{time.Second, time.Minute, time.Minute, time.Minute, time.Minute, time.Minute, time.Minute, time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				if got := tt.config.Delay(i + 1); got != want {
					t.Errorf("Delay(%d) = %v, want %v", i+1, got, want)
				}
			}
		})
	}

	if got := DefaultRetryConfig().Delay(0); got != 0 {
		t.Errorf("Delay(0) = %v, want 0", got)
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RetryConfig
		wantErr bool
	}{
		{"valid", RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Minute}, false},
		{"zero delays", RetryConfig{MaxAttempts: 1, BackoffFactor: 1}, false},
		{"no attempts", RetryConfig{MaxAttempts: 0, InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Minute}, true},
		{"negative delay", RetryConfig{MaxAttempts: 3, InitialDelay: -time.Second, BackoffFactor: 2, MaxDelay: time.Minute}, true},
		{"shrinking backoff", RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, BackoffFactor: 0.5, MaxDelay: time.Minute}, true},
		{"max below initial", RetryConfig{MaxAttempts: 3, InitialDelay: time.Minute, BackoffFactor: 2, MaxDelay: time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// newTestRetrier returns a retrier whose sleeps are recorded instead of waited.
func newTestRetrier(cfg RetryConfig) (*retrier, *[]time.Duration) {
	var slept []time.Duration
	r := &retrier{
		config: cfg,
		logger: zerolog.Nop(),
		sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return ctx.Err()
		},
	}
	return r, &slept
}

func statusErr(code int) error {
	return &UnexpectedStatusError{URL: "http://example.org/a", StatusCode: code}
}

func TestRetrier_Success(t *testing.T) {
	r, slept := newTestRetrier(RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Minute})

	callCount := 0
	err := r.do(context.Background(), "http://example.org/a", ErrFetchExhausted, func() error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
	if len(*slept) != 0 {
		t.Errorf("Expected no backoff, got %v", *slept)
	}
}

func TestRetrier_SuccessAfterRetry(t *testing.T) {
	r, slept := newTestRetrier(RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Minute})

	callCount := 0
	err := r.do(context.Background(), "http://example.org/a", ErrFetchExhausted, func() error {
		callCount++
		if callCount < 3 {
			return statusErr(503)
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Errorf("backoff %d = %v, want %v", i+1, (*slept)[i], want[i])
		}
	}
}

func TestRetrier_Exhausted(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond, BackoffFactor: 3, MaxDelay: 50 * time.Millisecond}
	r, slept := newTestRetrier(cfg)

	callCount := 0
	err := r.do(context.Background(), "http://example.org/a", ErrValidationExhausted, func() error {
		callCount++
		return statusErr(500)
	})

	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
	if !errors.Is(err, ErrValidationExhausted) {
		t.Errorf("Expected ErrValidationExhausted, got %v", err)
	}
	if errors.Is(err, ErrFetchExhausted) {
		t.Error("validation exhaustion should not match ErrFetchExhausted")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected *ExhaustedError, got %T", err)
	}
	if exhausted.Attempts != 3 || exhausted.URL != "http://example.org/a" {
		t.Errorf("ExhaustedError = %+v", exhausted)
	}

	var last *UnexpectedStatusError
	if !errors.As(err, &last) || last.StatusCode != 500 {
		t.Errorf("Expected wrapped status 500, got %v", err)
	}

	// No wait after the final attempt
	want := []time.Duration{10 * time.Millisecond, 30 * time.Millisecond}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("slept %v, want %v", *slept, want)
	}
}

func TestRetrier_NonRetryableNoRetry(t *testing.T) {
	r, _ := newTestRetrier(RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Minute})

	callCount := 0
	testErr := errors.New("parse failure")
	err := r.do(context.Background(), "http://example.org/a", ErrFetchExhausted, func() error {
		callCount++
		return testErr
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for other errors), got %d", callCount)
	}
	if errors.Is(err, ErrFetchExhausted) {
		t.Error("Should not return ErrFetchExhausted when no retry was attempted")
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetrier_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r, _ := newTestRetrier(RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Minute})

	callCount := 0
	err := r.do(ctx, "http://example.org/a", ErrFetchExhausted, func() error {
		callCount++
		if callCount == 1 {
			cancel()
		}
		return statusErr(500)
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected wrapped context.Canceled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleepContext should return immediately when ctx is done")
	}
}
