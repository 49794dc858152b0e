package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidTranscode = errors.New("invalid transcode mode")

// Transcode is an opaque hint stored with the job. No transcoding happens in
// the pipeline itself.
type Transcode string

const (
	TranscodeCopy   Transcode = "copy"
	TranscodeAAC320 Transcode = "aac320"
	TranscodeMP3V0  Transcode = "mp3V0"
)

// ParseTranscode accepts an empty value as copy.
func ParseTranscode(raw string) (Transcode, error) {
	switch Transcode(strings.TrimSpace(raw)) {
	case "", TranscodeCopy:
		return TranscodeCopy, nil
	case TranscodeAAC320:
		return TranscodeAAC320, nil
	case TranscodeMP3V0:
		return TranscodeMP3V0, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTranscode, raw)
	}
}

type JobState string

const (
	JobQueued    JobState = "queued"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// IngestJob tracks one ingest request. Attempts only grows and never exceeds
// MaxAttempts.
type IngestJob struct {
	ID          string     `json:"id"`
	Hit         Hit        `json:"hit"`
	Transcode   Transcode  `json:"transcode"`
	State       JobState   `json:"state"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	LastError   string     `json:"lastError,omitempty"`
	FinalPath   string     `json:"finalPath,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// CanRetry reports whether another attempt fits in the budget.
func (j IngestJob) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}
