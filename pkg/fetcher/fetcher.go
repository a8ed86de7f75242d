// Package fetcher retrieves pages over HTTP with retry, exponential backoff,
// dispatch spacing and optional caching.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/resilient-fetch/pkg/cache"
	"github.com/Sternrassler/resilient-fetch/pkg/logging"
	"github.com/Sternrassler/resilient-fetch/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single request when the caller gives none.
const DefaultTimeout = 180 * time.Second

// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
// It is never retried.
var ErrInvalidURL = errors.New("invalid URL or unsupported scheme")

// Request is a single fetch of URL bounded by Timeout.
type Request struct {
	URL     string
	Timeout time.Duration
}

// Page is a successfully fetched response.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	FetchedAt  time.Time

	// FromCache is true when the page was served from the page cache
	// without dispatching a request.
	FromCache bool
}

// Text returns the body as a string.
func (p *Page) Text() string {
	return string(p.Body)
}

// Config holds the fetcher configuration.
type Config struct {
	// UserAgent header sent with every request
	UserAgent string

	// Timeout per request when the Request carries none
	Timeout time.Duration

	// Retry policy shared by Get and Exists
	Retry RetryConfig

	// MinInterval between dispatches. Used only when Limiter is nil, in which
	// case the process-wide spacer for this interval is used.
	MinInterval time.Duration

	// Limiter overrides MinInterval (e.g. a ratelimit.RedisSpacer)
	Limiter ratelimit.Limiter

	// Cache stores successful GET responses (optional)
	Cache *cache.Manager

	// Breaker enables a per-host circuit breaker (optional)
	Breaker *BreakerConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent:   "resilient-fetch/0.1.0",
		Timeout:     DefaultTimeout,
		Retry:       DefaultRetryConfig(),
		MinInterval: ratelimit.DefaultMinInterval,
	}
}

// Fetcher performs existence checks and content fetches.
// It is safe for concurrent use.
type Fetcher struct {
	httpClient *http.Client
	limiter    ratelimit.Limiter
	cache      *cache.Manager
	breakers   *breakerSet
	retrier    *retrier
	config     Config
	logger     zerolog.Logger
}

// New creates a new fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %v)", cfg.Timeout)
	}

	if cfg.MinInterval < 0 {
		return nil, fmt.Errorf("min_interval must be >= 0 (got %v)", cfg.MinInterval)
	}

	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}

	logger := logging.NewLogger("fetcher")

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.Shared(cfg.MinInterval)
	}

	f := &Fetcher{
		// Per-request timeouts come from the request context.
		httpClient: &http.Client{},
		limiter:    limiter,
		cache:      cfg.Cache,
		config:     cfg,
		logger:     logger,
		retrier: &retrier{
			config: cfg.Retry,
			logger: logger,
			sleep:  sleepContext,
		},
	}

	if cfg.Breaker != nil {
		f.breakers = newBreakerSet(*cfg.Breaker, logger)
	}

	return f, nil
}

// Get fetches rawURL with the default timeout.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Page, error) {
	return f.GetRequest(ctx, Request{URL: rawURL})
}

// GetRequest performs a GET. Any status other than 200 is retried like a
// network error. When attempts run out the error matches ErrFetchExhausted.
func (f *Fetcher) GetRequest(ctx context.Context, req Request) (*Page, error) {
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}

	key := cache.Key{Method: http.MethodGet, URL: req.URL}
	if page := f.cached(ctx, key); page != nil {
		return page, nil
	}

	var page *Page
	err := f.retrier.do(ctx, req.URL, ErrFetchExhausted, func() error {
		return f.guard(req.URL, func() error {
			p, err := f.dispatch(ctx, http.MethodGet, req.URL, f.timeout(req))
			if err != nil {
				return err
			}
			if p.StatusCode != http.StatusOK {
				return &UnexpectedStatusError{URL: req.URL, StatusCode: p.StatusCode, Status: http.StatusText(p.StatusCode)}
			}
			page = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	f.store(ctx, key, page)
	return page, nil
}

// GetSafe is Get that never fails: any error is logged and reported as a nil page.
func (f *Fetcher) GetSafe(ctx context.Context, rawURL string) *Page {
	page, err := f.Get(ctx, rawURL)
	if err != nil {
		f.logger.Warn().
			Err(err).
			Str("url", rawURL).
			Msg("Fetch failed, treating page as absent")
		return nil
	}
	return page
}

// Exists checks rawURL with the default timeout.
func (f *Fetcher) Exists(ctx context.Context, rawURL string) (bool, error) {
	return f.ExistsRequest(ctx, Request{URL: rawURL})
}

// ExistsRequest issues a HEAD request. 200 reports true and 404 reports false;
// any other status or a network error is retried. When attempts run out the
// error matches ErrValidationExhausted.
func (f *Fetcher) ExistsRequest(ctx context.Context, req Request) (bool, error) {
	if err := validateURL(req.URL); err != nil {
		return false, err
	}

	var exists bool
	err := f.retrier.do(ctx, req.URL, ErrValidationExhausted, func() error {
		return f.guard(req.URL, func() error {
			p, err := f.dispatch(ctx, http.MethodHead, req.URL, f.timeout(req))
			if err != nil {
				return err
			}
			switch p.StatusCode {
			case http.StatusOK:
				exists = true
				return nil
			case http.StatusNotFound:
				exists = false
				return nil
			default:
				return &UnexpectedStatusError{URL: req.URL, StatusCode: p.StatusCode, Status: http.StatusText(p.StatusCode)}
			}
		})
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// dispatch performs exactly one HTTP exchange after waiting for a dispatch slot.
// The body is read fully before the per-request deadline is released.
func (f *Fetcher) dispatch(ctx context.Context, method, rawURL string, timeout time.Duration) (*Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", f.config.UserAgent)

	f.logger.Debug().
		Str("url", rawURL).
		Str("method", method).
		Msg("Dispatching request")

	start := time.Now()
	defer func() {
		fetchRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		fetchRequestsTotal.WithLabelValues(method, "network_error").Inc()
		f.logger.Debug().Err(err).Str("url", rawURL).Msg("HTTP request failed")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fetchRequestsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	fetchRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	return &Page{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FetchedAt:  time.Now(),
	}, nil
}

// guard runs fn through the host's circuit breaker when one is configured.
func (f *Fetcher) guard(rawURL string, fn func() error) error {
	if f.breakers == nil {
		return fn()
	}
	return f.breakers.execute(rawURL, fn)
}

// cached returns the cached page for key, or nil on miss or cache error.
func (f *Fetcher) cached(ctx context.Context, key cache.Key) *Page {
	if f.cache == nil {
		return nil
	}

	entry, err := f.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			f.logger.Warn().Err(err).Str("url", key.URL).Msg("Cache get error")
		}
		return nil
	}

	f.logger.Debug().Str("url", key.URL).Msg("Cache hit")
	return &Page{
		URL:        entry.URL,
		StatusCode: entry.StatusCode,
		Header:     entry.Header,
		Body:       entry.Body,
		FetchedAt:  entry.FetchedAt,
		FromCache:  true,
	}
}

// store writes a fetched page to the cache. Failures only log.
func (f *Fetcher) store(ctx context.Context, key cache.Key, page *Page) {
	if f.cache == nil {
		return
	}

	entry := f.cache.NewEntry(page.URL, page.StatusCode, page.Header, page.Body)
	if err := f.cache.Set(ctx, key, entry); err != nil {
		f.logger.Warn().Err(err).Str("url", page.URL).Msg("Failed to cache page")
		return
	}

	f.logger.Debug().
		Str("url", page.URL).
		Dur("ttl", entry.TTL()).
		Msg("Cached page")
}

func (f *Fetcher) timeout(req Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return f.config.Timeout
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}

// validateURL accepts only absolute http and https URLs.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidURL, rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return nil
}
