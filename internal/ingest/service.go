// Package ingest persists a chosen hit into the music library.
//
// Submission only enqueues a job. A Pool of workers claims jobs, resolves the
// hit, downloads into the staging area and relocates the file to
// <library>/<artist>/<album>/<title>.<ext>, retrying transient failures until
// the attempt budget is spent.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"tunehub/internal/domain"
	"tunehub/internal/metrics"
)

const DefaultMaxAttempts = 2

type Service struct {
	queue       Queue
	maxAttempts int
	logger      *slog.Logger
	newID       func() string
	now         func() time.Time
}

type ServiceOption func(*Service)

// WithMaxAttempts sets the total number of attempts per job.
func WithMaxAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(queue Queue, opts ...ServiceOption) *Service {
	s := &Service{
		queue:       queue,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
		newID:       uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates and enqueues a job. It returns as soon as the job is
// stored; execution happens on the worker pool.
func (s *Service) Submit(ctx context.Context, hit domain.Hit, transcode domain.Transcode) (domain.IngestJob, error) {
	if err := hit.Validate(); err != nil {
		return domain.IngestJob{}, err
	}
	mode, err := domain.ParseTranscode(string(transcode))
	if err != nil {
		return domain.IngestJob{}, err
	}

	now := s.now().UTC()
	job := domain.IngestJob{
		ID:          s.newID(),
		Hit:         hit.Clone(),
		Transcode:   mode,
		State:       domain.JobQueued,
		MaxAttempts: s.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return domain.IngestJob{}, fmt.Errorf("enqueue ingest job: %w", err)
	}
	metrics.IngestJobsTotal.WithLabelValues("submitted").Inc()
	s.logger.Info("ingest job submitted",
		slog.String("jobId", job.ID),
		slog.String("source", string(hit.Source)),
		slog.String("title", hit.Title),
		slog.String("transcode", string(mode)),
	)
	return job, nil
}

func (s *Service) Job(ctx context.Context, id string) (domain.IngestJob, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.IngestJob{}, ErrJobNotFound
	}
	return s.queue.Get(ctx, id)
}
