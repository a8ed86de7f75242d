package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/resilient-fetch/pkg/batch"
	"github.com/Sternrassler/resilient-fetch/pkg/cache"
	"github.com/Sternrassler/resilient-fetch/pkg/fetcher"
	"github.com/Sternrassler/resilient-fetch/pkg/htmldoc"
	"github.com/Sternrassler/resilient-fetch/pkg/ratelimit"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix is the prefix of environment variables mirroring the flags,
// e.g. RFETCH_MIN_INTERVAL for --min-interval.
const envPrefix = "RFETCH"

// options is the merged flag and environment configuration of one run.
type options struct {
	URLsFile        string
	Workers         int
	ContinueOnError bool
	WithURLs        bool

	Timeout     time.Duration
	MinInterval time.Duration

	RetryAttempts int
	RetryDelay    time.Duration
	RetryBackoff  float64
	RetryMaxDelay time.Duration

	RedisURL string
	CacheTTL time.Duration
	Breaker  bool

	Select string
	Attr   string

	OutputFile string
	Stdout     bool

	Debug       bool
	Pretty      bool
	MetricsAddr string
}

func registerFlags(fs *pflag.FlagSet) {
	retry := fetcher.DefaultRetryConfig()

	fs.String("config", "", "config file (yaml, json or toml) with flag names as keys")

	fs.String("urls-file", "", "file with one URL per line (# starts a comment)")
	fs.Int("workers", batch.DefaultWorkers, fmt.Sprintf("number of concurrent fetches (1-%d)", batch.MaxWorkers))
	fs.Bool("continue-on-error", false, "drop failed URLs instead of failing the whole batch")
	fs.Bool("with-urls", false, "pair every result with its URL")

	fs.Duration("timeout", fetcher.DefaultTimeout, "per-request timeout")
	fs.Duration("min-interval", ratelimit.DefaultMinInterval, "minimum spacing between dispatched requests (0 disables)")

	fs.Int("retry-attempts", retry.MaxAttempts, "attempts per URL, including the first")
	fs.Duration("retry-delay", retry.InitialDelay, "delay before the first retry")
	fs.Float64("retry-backoff", retry.BackoffFactor, "delay multiplier per retry")
	fs.Duration("retry-max-delay", retry.MaxDelay, "cap on the delay between attempts")

	fs.String("redis-url", "", "redis URL for the page cache and the shared dispatch spacer")
	fs.Duration("cache-ttl", cache.DefaultTTL, "page cache TTL when --redis-url is set (0 disables the cache)")
	fs.Bool("breaker", false, "enable a per-host circuit breaker")

	fs.String("select", "", "CSS selector to extract from fetched pages (get only)")
	fs.String("attr", "", "attribute to read from selected elements instead of their text")

	fs.String("output-file", "", "write JSON results to this file")
	fs.Bool("stdout", false, "write JSON results to stdout")

	fs.Bool("debug", false, "enable debug logging")
	fs.Bool("pretty", false, "human-readable console logs")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

// newViper binds every flag of fs to a RFETCH_* environment variable and
// reads the optional --config file. Precedence: flag, environment, file, default.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

func loadOptions(v *viper.Viper) (options, error) {
	opts := options{
		URLsFile:        v.GetString("urls-file"),
		Workers:         v.GetInt("workers"),
		ContinueOnError: v.GetBool("continue-on-error"),
		WithURLs:        v.GetBool("with-urls"),
		Timeout:         v.GetDuration("timeout"),
		MinInterval:     v.GetDuration("min-interval"),
		RetryAttempts:   v.GetInt("retry-attempts"),
		RetryDelay:      v.GetDuration("retry-delay"),
		RetryBackoff:    v.GetFloat64("retry-backoff"),
		RetryMaxDelay:   v.GetDuration("retry-max-delay"),
		RedisURL:        v.GetString("redis-url"),
		CacheTTL:        v.GetDuration("cache-ttl"),
		Breaker:         v.GetBool("breaker"),
		Select:          v.GetString("select"),
		Attr:            v.GetString("attr"),
		OutputFile:      v.GetString("output-file"),
		Stdout:          v.GetBool("stdout"),
		Debug:           v.GetBool("debug"),
		Pretty:          v.GetBool("pretty"),
		MetricsAddr:     v.GetString("metrics-addr"),
	}

	if opts.OutputFile == "" && !opts.Stdout {
		return opts, errors.New("one of --output-file or --stdout is required")
	}
	if opts.OutputFile != "" && opts.Stdout {
		return opts, errors.New("--output-file and --stdout are mutually exclusive")
	}
	if opts.Workers < 1 || opts.Workers > batch.MaxWorkers {
		return opts, fmt.Errorf("--workers must be between 1 and %d (got %d)", batch.MaxWorkers, opts.Workers)
	}
	if opts.Attr != "" && opts.Select == "" {
		return opts, errors.New("--attr requires --select")
	}
	if opts.Select != "" {
		if err := htmldoc.CheckSelector(opts.Select); err != nil {
			return opts, fmt.Errorf("--select: %w", err)
		}
	}

	return opts, nil
}

func (o options) retryConfig() fetcher.RetryConfig {
	return fetcher.RetryConfig{
		MaxAttempts:   o.RetryAttempts,
		InitialDelay:  o.RetryDelay,
		BackoffFactor: o.RetryBackoff,
		MaxDelay:      o.RetryMaxDelay,
	}
}

func (o options) batchConfig() batch.Config {
	mode := batch.FailFast
	if o.ContinueOnError {
		mode = batch.ContinueOnError
	}
	return batch.Config{Workers: o.Workers, Mode: mode}
}

// collectURLs merges positional URLs with the lines of --urls-file.
func collectURLs(args []string, urlsFile string) ([]string, error) {
	urls := make([]string, 0, len(args))
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			urls = append(urls, a)
		}
	}

	if urlsFile != "" {
		f, err := os.Open(urlsFile)
		if err != nil {
			return nil, fmt.Errorf("open urls file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			urls = append(urls, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read urls file: %w", err)
		}
	}

	if len(urls) == 0 {
		return nil, errors.New("no URLs given (pass them as arguments or with --urls-file)")
	}
	return urls, nil
}
