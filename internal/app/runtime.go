package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/redis/go-redis/v9"
	"tunehub/internal/domain"
	"tunehub/internal/ingest"
	"tunehub/internal/providers/archive"
	"tunehub/internal/providers/youtube"
	"tunehub/internal/resolve"
	"tunehub/internal/search"
	"tunehub/internal/telemetry"
	"tunehub/internal/ytdlp"
)

// Runtime is the wired core shared by the HTTP service and the CLI.
type Runtime struct {
	Search   *search.Service
	Resolver *resolve.Resolver
	Ingest   *ingest.Service
	Pool     *ingest.Pool
	Queue    ingest.Queue

	redis *redis.Client
}

// NewRuntime builds adapters, the resolver and the ingest pipeline from cfg.
// The ingest queue lives in Redis when REDIS_URL is reachable and in memory
// otherwise. The library and staging roots are created; the pool is not
// started.
func NewRuntime(ctx context.Context, cfg Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	rt := &Runtime{}

	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		client, err := connectRedis(ctx, url)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory cache and queue", slog.String("error", err.Error()))
		} else {
			logger.Info("redis connected", slog.String("addr", client.Options().Addr))
			rt.redis = client
		}
	}

	httpClient := telemetry.NewHTTPClient(cfg.RequestTimeout)
	adapters := []search.Adapter{
		archive.NewProvider(archive.Config{
			Endpoint:  cfg.ArchiveSearchEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    httpClient,
		}),
	}
	strategies := []resolve.Strategy{
		resolve.NewArchiveStrategy(resolve.ArchiveConfig{
			MetadataEndpoint: cfg.ArchiveMetadataEndpoint,
			DownloadEndpoint: cfg.ArchiveDownloadEndpoint,
			UserAgent:        cfg.UserAgent,
			Client:           httpClient,
		}),
	}
	if cfg.YouTubeEnabled {
		if _, err := exec.LookPath(cfg.YtDlpBinary); err != nil {
			logger.Warn("yt-dlp not found, youtube adapter disabled",
				slog.String("binary", cfg.YtDlpBinary),
				slog.String("error", err.Error()),
			)
		} else {
			extractor := ytdlp.New(cfg.YtDlpBinary)
			adapters = append(adapters, youtube.NewProvider(extractor))
			strategies = append(strategies, resolve.NewVideoStrategy(extractor))
		}
	}

	rt.Search = search.NewService(adapters, cfg.RequestTimeout, rt.searchOptions(cfg, logger)...)
	rt.Resolver = resolve.New(strategies, resolve.WithLogger(logger))

	if rt.redis != nil {
		rt.Queue = ingest.NewRedisQueue(rt.redis, "")
	} else {
		rt.Queue = ingest.NewMemoryQueue()
	}
	rt.Ingest = ingest.NewService(rt.Queue,
		ingest.WithMaxAttempts(cfg.IngestAttempts),
		ingest.WithServiceLogger(logger),
	)
	rt.Pool = ingest.NewPool(rt.Queue, rt.Resolver, ingest.PoolConfig{
		MusicDir:       cfg.MusicDir,
		StagingDir:     cfg.StagingDir,
		Workers:        cfg.IngestWorkers,
		RetryDelay:     cfg.IngestRetryDelay,
		AttemptTimeout: cfg.DownloadTimeout,
	},
		ingest.WithPoolLogger(logger),
		ingest.WithFetcher(ingest.NewHTTPFetcher(telemetry.NewHTTPClient(0), cfg.UserAgent)),
	)
	return rt, nil
}

func (rt *Runtime) searchOptions(cfg Config, logger *slog.Logger) []search.ServiceOption {
	opts := []search.ServiceOption{
		search.WithLogger(logger),
		search.WithDurationBucket(cfg.DurationBucketSeconds),
	}
	var scorerOpts []search.ScorerOption
	if cfg.ScoringWeights != search.DefaultWeights() {
		scorerOpts = append(scorerOpts, search.WithWeights(cfg.ScoringWeights))
	}
	if len(cfg.SourceTrust) > 0 {
		trust := make(map[domain.Source]float64, len(cfg.SourceTrust))
		for source, value := range cfg.SourceTrust {
			trust[domain.Source(source)] = value
		}
		scorerOpts = append(scorerOpts, search.WithTrust(trust))
	}
	if len(scorerOpts) > 0 {
		opts = append(opts, search.WithScorerOptions(scorerOpts...))
	}
	if cfg.CacheDisabled {
		return append(opts, search.WithCacheDisabled(true))
	}
	opts = append(opts, search.WithCacheTTL(cfg.CacheTTL))
	if rt.redis != nil {
		opts = append(opts, search.WithRedisCache(search.NewRedisCacheBackend(rt.redis)))
	}
	return opts
}

// Durable reports whether jobs outlive this process.
func (rt *Runtime) Durable() bool {
	return rt.redis != nil
}

// Close releases the queue and the Redis connection. Stop the pool first.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Queue != nil {
		errs = append(errs, rt.Queue.Close())
	}
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	return errors.Join(errs...)
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewLogger returns a text or JSON slog logger writing to w.
func NewLogger(w io.Writer, levelRaw, formatRaw string) *slog.Logger {
	options := &slog.HandlerOptions{Level: ParseLogLevel(levelRaw)}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

func ParseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
