package ingest

import (
	"context"
	"errors"
	"testing"

	"tunehub/internal/domain"
)

func TestSubmitReturnsQueuedJob(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	svc := NewService(q)

	hit := domain.Hit{Source: domain.SourceArchive, Title: "So What", Extra: map[string]any{"identifier": "kob"}}
	job, err := svc.Submit(context.Background(), hit, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected a job id")
	}
	if job.State != domain.JobQueued || job.Attempts != 0 || job.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Transcode != domain.TranscodeCopy {
		t.Fatalf("transcode = %q, want copy", job.Transcode)
	}

	stored, err := svc.Job(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if stored.Hit.Title != "So What" {
		t.Fatalf("stored hit = %+v", stored.Hit)
	}
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	svc := NewService(q)

	if _, err := svc.Submit(context.Background(), domain.Hit{Source: domain.SourceArchive}, ""); !errors.Is(err, domain.ErrInvalidHit) {
		t.Fatalf("expected ErrInvalidHit, got %v", err)
	}
	valid := domain.Hit{Source: domain.SourceArchive, Title: "x"}
	if _, err := svc.Submit(context.Background(), valid, "flac-please"); !errors.Is(err, domain.ErrInvalidTranscode) {
		t.Fatalf("expected ErrInvalidTranscode, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Claim(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("rejected payload was enqueued: %v", err)
	}
}

func TestSubmitHonorsMaxAttempts(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	svc := NewService(q, WithMaxAttempts(3))
	job, err := svc.Submit(context.Background(), domain.Hit{Source: domain.SourceYouTube, Title: "x"}, domain.TranscodeMP3V0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.MaxAttempts != 3 {
		t.Fatalf("MaxAttempts = %d", job.MaxAttempts)
	}
}

func TestJobUnknownID(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	svc := NewService(q)
	for _, id := range []string{"", "nope"} {
		if _, err := svc.Job(context.Background(), id); !errors.Is(err, ErrJobNotFound) {
			t.Fatalf("Job(%q) err = %v", id, err)
		}
	}
}
