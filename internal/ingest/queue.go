package ingest

import (
	"context"
	"errors"
	"time"

	"tunehub/internal/domain"
)

var (
	ErrJobNotFound = errors.New("ingest job not found")
	ErrQueueClosed = errors.New("ingest queue closed")
)

// Queue is an at-least-once job queue. A claimed job belongs to exactly one
// worker until that worker calls Ack or Retry; jobs claimed by a worker that
// died are handed out again by Recover.
type Queue interface {
	// Enqueue stores the job and makes it claimable.
	Enqueue(ctx context.Context, job domain.IngestJob) error
	// Claim blocks until a job is available, ctx is done or the queue closes.
	Claim(ctx context.Context) (domain.IngestJob, error)
	// Save persists the job's current state.
	Save(ctx context.Context, job domain.IngestJob) error
	// Ack releases a claimed job for good.
	Ack(ctx context.Context, id string) error
	// Retry releases a claimed job and makes it claimable again after delay.
	Retry(ctx context.Context, id string, delay time.Duration) error
	Get(ctx context.Context, id string) (domain.IngestJob, error)
	// Recover returns orphaned claimed jobs to the pending set.
	Recover(ctx context.Context) (int, error)
	Close() error
}
