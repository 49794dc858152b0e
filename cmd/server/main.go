package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "tunehub/internal/api/http"
	"tunehub/internal/app"
	"tunehub/internal/metrics"
	"tunehub/internal/telemetry"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "tunehub")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "tunehub"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("archiveEndpoint", cfg.ArchiveSearchEndpoint),
		slog.Bool("youtubeEnabled", cfg.YouTubeEnabled),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.String("musicDir", cfg.MusicDir),
		slog.String("stagingDir", cfg.StagingDir),
		slog.Int("ingestWorkers", cfg.IngestWorkers),
		slog.Int("ingestAttempts", cfg.IngestAttempts),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.NewRuntime(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("build runtime", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := rt.Pool.Start(rootCtx); err != nil {
		logger.Error("start ingest workers", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handler := apihttp.NewServer(rt.Search,
		apihttp.WithLogger(logger),
		apihttp.WithResolver(rt.Resolver),
		apihttp.WithIngest(rt.Ingest),
		apihttp.WithCORSOrigins(cfg.CORSOrigins),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("tunehub service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Any("providers", rt.Search.Providers()),
	)

	exitCode := 0
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	// In-flight ingest attempts are allowed to finish; unfinished jobs are
	// re-queued on the next start.
	if err := rt.Pool.Stop(shutdownCtx); err != nil {
		logger.Warn("ingest workers did not drain", slog.String("error", err.Error()))
	}
	if err := rt.Close(); err != nil {
		logger.Warn("close runtime", slog.String("error", err.Error()))
	}
	logger.Info("tunehub service stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
