package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/resilient-fetch/pkg/fetcher"
	"github.com/Sternrassler/resilient-fetch/pkg/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultWorkers is the default size of the worker pool.
	DefaultWorkers = 4

	// MaxWorkers bounds the worker pool.
	MaxWorkers = 32

	// maxLoggedFailures is how many failed URLs are logged individually.
	maxLoggedFailures = 10

	// progressEvery controls how often progress is logged.
	progressEvery = 50
)

// Mode selects how a batch reacts to a failed URL.
type Mode int

const (
	// FailFast fails the whole batch when any URL fails.
	FailFast Mode = iota

	// ContinueOnError drops failed URLs and returns whatever succeeded.
	ContinueOnError
)

func (m Mode) String() string {
	switch m {
	case FailFast:
		return "fail_fast"
	case ContinueOnError:
		return "continue_on_error"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Variant selects which single-URL call a batch runs.
type Variant int

const (
	// VariantContent fetches page content (GET).
	VariantContent Variant = iota

	// VariantStatus checks existence (HEAD).
	VariantStatus
)

func (v Variant) String() string {
	switch v {
	case VariantContent:
		return "content"
	case VariantStatus:
		return "status"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Doer is the single-URL interface a batch dispatches to.
// *fetcher.Fetcher implements it.
type Doer interface {
	Get(ctx context.Context, rawURL string) (*fetcher.Page, error)
	Exists(ctx context.Context, rawURL string) (bool, error)
}

// Config holds batch configuration.
type Config struct {
	// Workers is the number of concurrent fetches (default 4, max 32)
	Workers int

	// Mode selects fail-fast or continue-on-error
	Mode Mode
}

// DefaultConfig returns the default batch configuration.
func DefaultConfig() Config {
	return Config{
		Workers: DefaultWorkers,
		Mode:    FailFast,
	}
}

// Pair is a result carried together with the URL that produced it.
type Pair[T any] struct {
	URL   string `json:"url"`
	Value T      `json:"value"`
}

// Failure records one URL that could not be fetched.
type Failure struct {
	URL string
	Err error
}

// BatchError is returned in FailFast mode when at least one URL failed.
// It unwraps to the first failure in completion order.
type BatchError struct {
	Failures []Failure
	Total    int
}

func (e *BatchError) Error() string {
	first := e.Failures[0]
	return fmt.Sprintf("batch failed (%d of %d urls): %s: %v", len(e.Failures), e.Total, first.URL, first.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Failures[0].Err
}

// Result is one entry of a Run batch. Page is set for VariantContent and
// Exists for VariantStatus.
type Result struct {
	URL    string
	Page   *fetcher.Page
	Exists bool
}

// Fetcher runs many single-URL fetches on a bounded worker pool.
type Fetcher struct {
	doer   Doer
	config Config
	logger zerolog.Logger
}

// New creates a batch fetcher. Workers outside 1..MaxWorkers are clamped;
// zero selects DefaultWorkers.
func New(doer Doer, cfg Config) *Fetcher {
	if doer == nil {
		panic("batch doer cannot be nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Workers > MaxWorkers {
		cfg.Workers = MaxWorkers
	}

	return &Fetcher{
		doer:   doer,
		config: cfg,
		logger: logging.NewLogger("batch"),
	}
}

// Config returns the effective configuration.
func (b *Fetcher) Config() Config {
	return b.config
}

// GetAll fetches every URL. Results follow completion order, not input order.
func (b *Fetcher) GetAll(ctx context.Context, urls []string) ([]*fetcher.Page, error) {
	pairs, err := run(ctx, b, urls, VariantContent, b.doer.Get)
	if err != nil {
		return nil, err
	}
	return values(pairs), nil
}

// GetAllWithURLs fetches every distinct URL and pairs each page with its URL.
func (b *Fetcher) GetAllWithURLs(ctx context.Context, urls []string) ([]Pair[*fetcher.Page], error) {
	return run(ctx, b, dedupe(urls), VariantContent, b.doer.Get)
}

// ExistsAll checks every URL. Results follow completion order, not input order.
func (b *Fetcher) ExistsAll(ctx context.Context, urls []string) ([]bool, error) {
	pairs, err := run(ctx, b, urls, VariantStatus, b.doer.Exists)
	if err != nil {
		return nil, err
	}
	return values(pairs), nil
}

// ExistsAllWithURLs checks every distinct URL and pairs each result with its URL.
func (b *Fetcher) ExistsAllWithURLs(ctx context.Context, urls []string) ([]Pair[bool], error) {
	return run(ctx, b, dedupe(urls), VariantStatus, b.doer.Exists)
}

// Run dispatches urls with the given variant. When withURLs is false the
// URL field of each result is left empty and duplicates are fetched as given.
func (b *Fetcher) Run(ctx context.Context, urls []string, variant Variant, withURLs bool) ([]Result, error) {
	results := []Result{}

	switch variant {
	case VariantContent:
		if withURLs {
			pairs, err := b.GetAllWithURLs(ctx, urls)
			if err != nil {
				return nil, err
			}
			for _, p := range pairs {
				results = append(results, Result{URL: p.URL, Page: p.Value})
			}
			return results, nil
		}
		pages, err := b.GetAll(ctx, urls)
		if err != nil {
			return nil, err
		}
		for _, page := range pages {
			results = append(results, Result{Page: page})
		}
		return results, nil

	case VariantStatus:
		if withURLs {
			pairs, err := b.ExistsAllWithURLs(ctx, urls)
			if err != nil {
				return nil, err
			}
			for _, p := range pairs {
				results = append(results, Result{URL: p.URL, Exists: p.Value})
			}
			return results, nil
		}
		flags, err := b.ExistsAll(ctx, urls)
		if err != nil {
			return nil, err
		}
		for _, ok := range flags {
			results = append(results, Result{Exists: ok})
		}
		return results, nil

	default:
		return nil, fmt.Errorf("unknown variant %v", variant)
	}
}

// outcome is what a worker reports for one URL
type outcome[T any] struct {
	url   string
	value T
	err   error
}

// run dispatches one call per URL onto the worker pool and waits for all of
// them. Every URL is dispatched regardless of earlier failures.
func run[T any](ctx context.Context, b *Fetcher, urls []string, variant Variant, call func(context.Context, string) (T, error)) ([]Pair[T], error) {
	start := time.Now()
	total := len(urls)

	batchRunsTotal.WithLabelValues(variant.String(), b.config.Mode.String()).Inc()

	if total == 0 {
		return []Pair[T]{}, nil
	}

	workers := b.config.Workers
	if workers > total {
		workers = total
	}

	logger := b.logger.With().Str("batch_id", uuid.NewString()).Logger()

	logger.Info().
		Int("total", total).
		Int("workers", workers).
		Str("variant", variant.String()).
		Str("mode", b.config.Mode.String()).
		Msg("Starting batch")

	queue := make(chan string, total)
	outcomes := make(chan outcome[T], total)

	for _, u := range urls {
		queue <- u
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker(ctx, queue, outcomes, call, &wg)
	}

	// Close outcomes when all workers are done
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make([]Pair[T], 0, total)
	var failures []Failure
	completed := 0

	for o := range outcomes {
		completed++
		if o.err != nil {
			failures = append(failures, Failure{URL: o.url, Err: o.err})
		} else {
			results = append(results, Pair[T]{URL: o.url, Value: o.value})
		}

		if completed%progressEvery == 0 {
			logger.Info().
				Int("completed", completed).
				Int("total", total).
				Float64("progress_pct", float64(completed)/float64(total)*100).
				Msg("Batch progress")
		}
	}

	batchDuration.WithLabelValues(variant.String()).Observe(time.Since(start).Seconds())
	batchFailuresTotal.WithLabelValues(variant.String()).Add(float64(len(failures)))

	if len(failures) > 0 {
		reportFailures(logger, failures, total)

		if b.config.Mode == FailFast {
			logger.Error().
				Err(failures[0].Err).
				Str("url", failures[0].URL).
				Int("failed", len(failures)).
				Int("total", total).
				Msg("Batch aborted")
			return nil, &BatchError{Failures: failures, Total: total}
		}
	}

	logger.Info().
		Int("succeeded", len(results)).
		Int("failed", len(failures)).
		Int("total", total).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return results, nil
}

func worker[T any](ctx context.Context, queue <-chan string, outcomes chan<- outcome[T], call func(context.Context, string) (T, error), wg *sync.WaitGroup) {
	defer wg.Done()

	for u := range queue {
		value, err := call(ctx, u)
		outcomes <- outcome[T]{url: u, value: value, err: err}
	}
}

// reportFailures logs the first failed URLs individually, summarises the rest,
// and lists every failure at debug level.
func reportFailures(logger zerolog.Logger, failures []Failure, total int) {
	for i, f := range failures {
		if i == maxLoggedFailures {
			logger.Warn().
				Int("more", len(failures)-maxLoggedFailures).
				Msgf("+%d more", len(failures)-maxLoggedFailures)
			break
		}
		logger.Warn().
			Err(f.Err).
			Str("url", f.URL).
			Msg("Failed to fetch URL")
	}

	logger.Info().
		Int("failed", len(failures)).
		Int("total", total).
		Msgf("Failed to fetch %d of %d URLs", len(failures), total)

	for _, f := range failures {
		logger.Debug().
			Err(f.Err).
			Str("url", f.URL).
			Bool("cancelled", errors.Is(f.Err, fetcher.ErrContextCancelled)).
			Msg("Failed URL")
	}
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func values[T any](pairs []Pair[T]) []T {
	out := make([]T, len(pairs))
	for i, p := range pairs {
		out[i] = p.Value
	}
	return out
}
