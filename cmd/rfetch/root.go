package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/resilient-fetch/pkg/batch"
	"github.com/Sternrassler/resilient-fetch/pkg/cache"
	"github.com/Sternrassler/resilient-fetch/pkg/fetcher"
	"github.com/Sternrassler/resilient-fetch/pkg/logging"
	"github.com/Sternrassler/resilient-fetch/pkg/metrics"
	"github.com/Sternrassler/resilient-fetch/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rfetch",
		Short:         "rfetch fetches or checks many URLs with retry and request spacing.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	registerFlags(root.PersistentFlags())
	root.MarkFlagsMutuallyExclusive("output-file", "stdout")

	root.AddCommand(&cobra.Command{
		Use:   "get [urls...]",
		Short: "Fetch page content (GET) for every URL.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, batch.VariantContent)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "exists [urls...]",
		Short: "Check whether every URL exists (HEAD: 200 true, 404 false).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, batch.VariantStatus)
		},
	})

	return root
}

func runBatch(cmd *cobra.Command, args []string, variant batch.Variant) error {
	v, err := newViper(cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}

	opts, err := loadOptions(v)
	if err != nil {
		return err
	}
	if variant == batch.VariantStatus && opts.Select != "" {
		return errors.New("--select only applies to get")
	}

	urls, err := collectURLs(args, opts.URLsFile)
	if err != nil {
		return err
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LevelFor(opts.Debug),
		Pretty: opts.Pretty,
		Output: cmd.ErrOrStderr(),
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	f, cleanup, err := buildFetcher(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.MetricsAddr != "" {
		srv := serveMetrics(opts.MetricsAddr, logger)
		defer srv.Close()
	}

	results, err := batch.New(f, opts.batchConfig()).Run(ctx, urls, variant, opts.WithURLs)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	out, err := render(results, variant, opts)
	if err != nil {
		return err
	}
	return writeOutput(cmd, opts, out)
}

// buildFetcher wires the optional Redis cache, shared spacer and breaker.
func buildFetcher(ctx context.Context, opts options, logger zerolog.Logger) (*fetcher.Fetcher, func(), error) {
	cfg := fetcher.DefaultConfig()
	cfg.Timeout = opts.Timeout
	cfg.MinInterval = opts.MinInterval
	cfg.Retry = opts.retryConfig()

	if opts.Breaker {
		breaker := fetcher.DefaultBreakerConfig()
		cfg.Breaker = &breaker
	}

	cleanup := func() {}

	if opts.RedisURL != "" {
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")

		cleanup = func() { redisClient.Close() }

		cfg.Limiter = ratelimit.NewRedisSpacer(redisClient, ratelimit.DefaultRedisKey, opts.MinInterval, logging.NewLogger("ratelimit"))
		if opts.CacheTTL > 0 {
			cfg.Cache = cache.NewManager(redisClient, opts.CacheTTL)
		}
	}

	f, err := fetcher.New(cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create fetcher: %w", err)
	}
	return f, cleanup, nil
}

func serveMetrics(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return srv
}
