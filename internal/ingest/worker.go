package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"tunehub/internal/domain"
	"tunehub/internal/metrics"
	"tunehub/internal/telemetry"
)

const (
	defaultWorkers    = 2
	claimErrorBackoff = time.Second
)

var ErrPoolRunning = errors.New("ingest pool already running")

// MediaResolver turns a hit into a direct URL. A nil media with a nil error
// means the hit cannot be resolved.
type MediaResolver interface {
	Resolve(ctx context.Context, hit domain.Hit) (*domain.ResolvedMedia, error)
}

// PoolConfig configures a Pool. RetryDelay is how long a failed job waits
// before it is claimable again. AttemptTimeout bounds one attempt; zero leaves
// timeouts to the network calls.
type PoolConfig struct {
	MusicDir       string
	StagingDir     string
	Workers        int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
}

// Pool runs ingest jobs. Each claimed job is owned by one worker until it is
// acked or handed back for retry. Stopping the pool stops claiming; attempts
// already running are finished, never cancelled.
type Pool struct {
	queue     Queue
	resolver  MediaResolver
	fetcher   Fetcher
	relocator *Relocator
	cfg       PoolConfig
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type PoolOption func(*Pool)

func WithFetcher(fetcher Fetcher) PoolOption {
	return func(p *Pool) {
		if fetcher != nil {
			p.fetcher = fetcher
		}
	}
}

func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithRelocator(relocator *Relocator) PoolOption {
	return func(p *Pool) {
		if relocator != nil {
			p.relocator = relocator
		}
	}
}

func NewPool(queue Queue, resolver MediaResolver, cfg PoolConfig, opts ...PoolOption) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	p := &Pool{
		queue:     queue,
		resolver:  resolver,
		fetcher:   NewHTTPFetcher(nil, ""),
		relocator: NewRelocator(),
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start re-queues jobs orphaned by a previous process and launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrPoolRunning
	}
	for _, dir := range []string{p.cfg.MusicDir, p.cfg.StagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	recovered, err := p.queue.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover ingest jobs: %w", err)
	}
	if recovered > 0 {
		p.logger.Info("re-queued interrupted ingest jobs", slog.Int("count", recovered))
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		go p.run(runCtx, i)
	}
	return nil
}

// Stop stops claiming new jobs and waits for in-flight attempts until ctx is
// done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) run(ctx context.Context, worker int) {
	defer p.wg.Done()
	logger := p.logger.With(slog.Int("worker", worker))
	for {
		job, err := p.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			logger.Error("claim ingest job failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(claimErrorBackoff):
			}
			continue
		}
		p.process(context.WithoutCancel(ctx), logger, job)
	}
}

// process runs one attempt and moves the job to its next state.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, job domain.IngestJob) {
	logger = logger.With(slog.String("jobId", job.ID))
	if job.State.Terminal() {
		p.ack(ctx, logger, job.ID)
		return
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if !job.CanRetry() {
		if job.LastError == "" {
			job.LastError = "attempt budget exhausted"
		}
		p.fail(ctx, logger, job)
		return
	}

	job.State = domain.JobActive
	job.Attempts++
	job.UpdatedAt = p.now().UTC()
	if err := p.queue.Save(ctx, job); err != nil {
		logger.Warn("persist active ingest job failed", slog.String("error", err.Error()))
	}

	attemptCtx, span := telemetry.Tracer().Start(ctx, "ingest.attempt", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.Int("job.attempt", job.Attempts),
		attribute.String("source", string(job.Hit.Source)),
	))
	if p.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(attemptCtx, p.cfg.AttemptTimeout)
		defer cancel()
	}

	startedAt := p.now()
	finalPath, err := p.attemptSafely(attemptCtx, job)
	metrics.IngestAttemptDuration.Observe(time.Since(startedAt).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	job.UpdatedAt = p.now().UTC()
	if err == nil {
		job.State = domain.JobCompleted
		job.FinalPath = finalPath
		job.LastError = ""
		finished := job.UpdatedAt
		job.FinishedAt = &finished
		if !p.persist(ctx, logger, job) {
			return
		}
		p.ack(ctx, logger, job.ID)
		metrics.IngestJobsTotal.WithLabelValues("completed").Inc()
		logger.Info("ingest job completed",
			slog.String("path", finalPath),
			slog.Int("attempts", job.Attempts),
			slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
		)
		return
	}

	job.LastError = err.Error()
	if isPermanent(err) || !job.CanRetry() {
		p.fail(ctx, logger, job)
		return
	}

	job.State = domain.JobQueued
	if !p.persist(ctx, logger, job) {
		return
	}
	if err := p.queue.Retry(ctx, job.ID, p.cfg.RetryDelay); err != nil {
		logger.Error("requeue ingest job failed", slog.String("error", err.Error()))
		return
	}
	metrics.IngestJobsTotal.WithLabelValues("retried").Inc()
	logger.Warn("ingest attempt failed, retrying",
		slog.Int("attempt", job.Attempts),
		slog.Int("maxAttempts", job.MaxAttempts),
		slog.String("error", job.LastError),
	)
}

func (p *Pool) fail(ctx context.Context, logger *slog.Logger, job domain.IngestJob) {
	job.State = domain.JobFailed
	job.UpdatedAt = p.now().UTC()
	finished := job.UpdatedAt
	job.FinishedAt = &finished
	if !p.persist(ctx, logger, job) {
		return
	}
	p.ack(ctx, logger, job.ID)
	metrics.IngestJobsTotal.WithLabelValues("failed").Inc()
	logger.Error("ingest job failed",
		slog.Int("attempts", job.Attempts),
		slog.String("error", job.LastError),
	)
}

// persist saves the job. On failure the job stays claimed so that Recover
// hands it out again instead of losing the transition.
func (p *Pool) persist(ctx context.Context, logger *slog.Logger, job domain.IngestJob) bool {
	if err := p.queue.Save(ctx, job); err != nil {
		logger.Error("persist ingest job failed",
			slog.String("state", string(job.State)),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// ack releases a finished job. A failed ack leaves the id claimed until the
// next Recover, which hands the terminal job back only to be acked again.
func (p *Pool) ack(ctx context.Context, logger *slog.Logger, id string) {
	if err := p.queue.Ack(ctx, id); err != nil {
		logger.Warn("ack ingest job failed", slog.String("error", err.Error()))
	}
}

func (p *Pool) attemptSafely(ctx context.Context, job domain.IngestJob) (finalPath string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			finalPath = ""
			err = fmt.Errorf("ingest panic: %v", recovered)
		}
	}()
	return p.attempt(ctx, job)
}

func (p *Pool) attempt(ctx context.Context, job domain.IngestJob) (string, error) {
	media, err := p.resolver.Resolve(ctx, job.Hit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidHit) {
			return "", permanent(err)
		}
		return "", fmt.Errorf("resolve: %w", err)
	}
	if media == nil || media.DirectURL == "" {
		return "", ErrUnresolvable
	}

	ext := extFromFilename(media.Filename)
	staging := filepath.Join(p.cfg.StagingDir, stagingName(job.Hit.Title, ext))
	written, err := p.fetcher.Download(ctx, media.DirectURL, staging)
	if err != nil {
		return "", err
	}
	metrics.DownloadedBytesTotal.Add(float64(written))

	finalPath := FinalPath(p.cfg.MusicDir, job.Hit, ext)
	mode, err := p.relocator.Move(staging, finalPath)
	if err != nil {
		_ = os.Remove(staging)
		return "", err
	}
	metrics.RelocationsTotal.WithLabelValues(string(mode)).Inc()
	return finalPath, nil
}
