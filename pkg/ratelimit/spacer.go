// Package ratelimit enforces a minimum spacing between outbound request dispatches.
//
// A Limiter is consulted once per dispatch (every attempt, retries included).
// Wait blocks the calling worker until its slot arrives; there is no queue
// beyond the callers already blocked in Wait.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// DefaultMinInterval is the default minimum spacing between dispatches.
const DefaultMinInterval = 100 * time.Millisecond

var dispatchWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "fetch_ratelimit_wait_seconds",
	Help:    "Time spent waiting for a dispatch slot by limiter backend",
	Buckets: []float64{0, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
}, []string{"backend"})

// Limiter gates request dispatch.
type Limiter interface {
	// Wait blocks until the caller may dispatch, or ctx is done.
	Wait(ctx context.Context) error
}

// Spacer guarantees at least Interval between consecutive dispatches within
// the process. Slots are reserved atomically, so concurrent workers never
// observe the same stale timestamp.
type Spacer struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// NewSpacer creates a spacer. An interval <= 0 disables spacing.
func NewSpacer(interval time.Duration) *Spacer {
	if interval <= 0 {
		return &Spacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Spacer{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Interval returns the configured minimum spacing.
func (s *Spacer) Interval() time.Duration {
	return s.interval
}

// Wait blocks until the next dispatch slot.
func (s *Spacer) Wait(ctx context.Context) error {
	start := time.Now()
	err := s.limiter.Wait(ctx)
	dispatchWaitSeconds.WithLabelValues("memory").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("wait for dispatch slot: %w", err)
	}
	return nil
}

var (
	sharedMu sync.Mutex
	shared   = map[time.Duration]*Spacer{}
)

// Shared returns the process-wide spacer for interval. Every caller asking for
// the same interval gets the same instance.
func Shared(interval time.Duration) *Spacer {
	if interval < 0 {
		interval = 0
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()

	s, ok := shared[interval]
	if !ok {
		s = NewSpacer(interval)
		shared[interval] = s
	}
	return s
}

// Unlimited is a Limiter that never waits.
var Unlimited Limiter = unlimited{}

type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}
