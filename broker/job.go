// Package broker implements the durable, Redis-backed job queue: enqueue,
// claim-next, progress updates, terminal state, retry, remove, stats, and
// recent-job enumeration, built around a pending/processing/completed/
// failed/delayed state machine.
package broker

import (
	"fmt"
	"time"
)

// State is a job's lifecycle state.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateDelayed    State = "delayed"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// MaxAttempts is the configured attempt ceiling before a job is finalized
// as failed instead of delayed for retry.
const MaxAttempts = 3

// BackoffBase is the exponential backoff starting point for retries.
const BackoffBase = 5 * time.Second

// Submission is the payload accepted at enqueue time.
type Submission struct {
	PostID           int    `json:"postId"`
	WPMediaPath      string `json:"wpMediaPath"`
	WPVideoURL       string `json:"wpVideoUrl,omitempty"`
	WPThumbnailPath  string `json:"wpThumbnailPath,omitempty"`
	WPThumbnailURL   string `json:"wpThumbnailUrl,omitempty"`
	WPPostURL        string `json:"wpPostUrl,omitempty"`
	Year             int    `json:"year"`
	Month            int    `json:"month"`
}

// JobID computes the deterministic identity job_<postId>_<unixMillis>.
func JobID(postID int, unixMillis int64) string {
	return fmt.Sprintf("job_%d_%d", postID, unixMillis)
}

// Job is the durable record the broker stores for one unit of work.
type Job struct {
	ID         string     `json:"id"`
	Submission Submission `json:"submission"`
	CreatedAt  int64      `json:"createdAt"` // unix millis
	UpdatedAt  int64      `json:"updatedAt"`
	Attempts   int        `json:"attempts"`
	State      State      `json:"state"`
	Progress   int        `json:"progress"`
	Stage      string     `json:"stage"`
	Result     *Result    `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	ClaimedBy  string     `json:"claimedBy,omitempty"`
}

// QualityStat is the per-quality size/time breakdown inside Result.Stats.
type QualityStat struct {
	Quality         string  `json:"quality"`
	CompressedBytes int64   `json:"compressedBytes"`
	ElapsedSeconds  float64 `json:"elapsedSeconds"`
	Skipped         bool    `json:"skipped"`
}

// Stats is the aggregate result statistics attached to a completed job.
type Stats struct {
	OriginalBytes    int64         `json:"originalBytes"`
	CompressedBytes  int64         `json:"compressedBytes"`
	CompressionRatio float64       `json:"compressionRatio"`
	DurationSeconds  float64       `json:"durationSeconds"`
	ProcessingMillis int64         `json:"processingMillis"`
	PerQuality       []QualityStat `json:"perQuality"`
	StageDurations   map[string]int64 `json:"stageDurations,omitempty"`
}

// Result is the terminal success record.
type Result struct {
	CompressedURLs map[string]string `json:"compressedUrls"` // quality -> MP4 URL
	HLSVariantURLs map[string]string `json:"hlsVariantUrls"` // quality -> playlist URL
	HLSMasterURL   string            `json:"hlsMasterUrl,omitempty"`
	ThumbnailURL   string            `json:"thumbnailUrl,omitempty"`
	Stats          Stats             `json:"stats"`
}

// QueueStats is the queue-depth counters the status endpoint reports.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// EventKind is the lifecycle event kind the subscription interface emits.
type EventKind string

const (
	EventWaiting   EventKind = "waiting"
	EventActive    EventKind = "active"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventStalled   EventKind = "stalled"
)

// Event is one lifecycle notification, published for logging/observability.
type Event struct {
	Kind  EventKind `json:"kind"`
	JobID string    `json:"jobId"`
	PostID int      `json:"postId"`
	At    int64     `json:"at"`
}

// Sentinel errors the Client returns for its well-known failure outcomes.
var (
	ErrAlreadyExists = fmt.Errorf("job already exists")
	ErrUnavailable   = fmt.Errorf("broker unavailable")
	ErrNotFound      = fmt.Errorf("job not found")
	ErrInvalidState  = fmt.Errorf("invalid job state for operation")
)
