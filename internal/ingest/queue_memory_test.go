package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"tunehub/internal/domain"
)

func queuedJob(id string) domain.IngestJob {
	return domain.IngestJob{
		ID:          id,
		Hit:         domain.Hit{Source: domain.SourceArchive, Title: id},
		State:       domain.JobQueued,
		MaxAttempts: DefaultMaxAttempts,
	}
}

func TestMemoryQueueClaimsInOrder(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, queuedJob(id)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		job, err := q.Claim(ctx)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if job.ID != want {
			t.Fatalf("claimed %s, want %s", job.ID, want)
		}
	}
}

func TestMemoryQueueClaimBlocksUntilEnqueue(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()

	got := make(chan string, 1)
	go func() {
		job, err := q.Claim(context.Background())
		if err == nil {
			got <- job.ID
		}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Enqueue(context.Background(), queuedJob("late")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case id := <-got:
		if id != "late" {
			t.Fatalf("claimed %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Claim did not wake up")
	}
}

func TestMemoryQueueClaimHonorsContextAndClose(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Claim(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	q.Close()
	if _, err := q.Claim(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Enqueue(context.Background(), queuedJob("x")); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed on enqueue, got %v", err)
	}
}

func TestMemoryQueueRetryDelaysRedelivery(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()
	_ = q.Enqueue(ctx, queuedJob("r"))
	job, _ := q.Claim(ctx)

	if err := q.Retry(ctx, job.ID, 50*time.Millisecond); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	shortCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := q.Claim(shortCtx); err == nil {
		t.Fatal("job was claimable before its delay elapsed")
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
	defer cancelWait()
	again, err := q.Claim(waitCtx)
	if err != nil {
		t.Fatalf("Claim after delay: %v", err)
	}
	if again.ID != "r" {
		t.Fatalf("claimed %s", again.ID)
	}
}

func TestMemoryQueueRecoverRequeuesActiveJobs(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()
	_ = q.Enqueue(ctx, queuedJob("orphan"))
	_ = q.Enqueue(ctx, queuedJob("done"))
	_, _ = q.Claim(ctx)
	done, _ := q.Claim(ctx)
	_ = q.Ack(ctx, done.ID)

	n, err := q.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered %d jobs, want 1", n)
	}
	job, err := q.Claim(ctx)
	if err != nil || job.ID != "orphan" {
		t.Fatalf("Claim after recover = %v, %v", job.ID, err)
	}
}

func TestMemoryQueueSaveAndGetAreIsolated(t *testing.T) {
	q := NewMemoryQueue()
	defer q.Close()
	ctx := context.Background()
	job := queuedJob("iso")
	job.Hit.Extra = map[string]any{"identifier": "x"}
	_ = q.Enqueue(ctx, job)

	job.Hit.Extra["identifier"] = "mutated"
	stored, err := q.Get(ctx, "iso")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Hit.ExtraString("identifier") != "x" {
		t.Fatal("stored job shares state with caller")
	}

	if _, err := q.Get(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := q.Save(ctx, queuedJob("missing")); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound on save, got %v", err)
	}
}
