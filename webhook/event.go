// Package webhook dispatches job lifecycle notifications to the configured
// WordPress callback endpoint, throttling high-frequency progress events.
package webhook

import "github.com/livepeer/vodcompress/broker"

// Status mirrors the broker job state as reported in an outbound event.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Event is the in-process notification the pipeline engine raises; Dispatcher
// renders it to the wire payload the WordPress callback expects.
type Event struct {
	JobID     string
	PostID    int
	Status    Status
	Progress  int
	Stage     string
	Timestamp int64

	// Completed only.
	Result *broker.Result

	// Failed only.
	Err error
}

// wirePayload is the flattened JSON body POSTed to the webhook endpoint.
type wirePayload struct {
	JobID     string `json:"jobId"`
	PostID    int    `json:"postId"`
	Status    Status `json:"status"`
	Progress  int    `json:"progress"`
	Stage     string `json:"stage"`
	Timestamp int64  `json:"timestamp"`

	Compressed480pURL       string `json:"compressed480pUrl,omitempty"`
	Compressed360pURL       string `json:"compressed360pUrl,omitempty"`
	Compressed240pURL       string `json:"compressed240pUrl,omitempty"`
	Compressed144pURL       string `json:"compressed144pUrl,omitempty"`
	CompressedThumbnailWebp string `json:"compressedThumbnailWebp,omitempty"`
	HLSMasterURL            string `json:"hlsMasterUrl,omitempty"`
	HLS480p                 string `json:"hls_480p,omitempty"`
	HLS360p                 string `json:"hls_360p,omitempty"`
	HLS240p                 string `json:"hls_240p,omitempty"`
	HLS144p                 string `json:"hls_144p,omitempty"`

	OriginalSize     int64   `json:"original_size,omitempty"`
	CompressedSize   int64   `json:"compressed_size,omitempty"`
	CompressionRatio float64 `json:"compression_ratio,omitempty"`
	Duration         float64 `json:"duration,omitempty"`
	ProcessingTime   int64   `json:"processing_time,omitempty"`

	Error string `json:"error,omitempty"`
}

func (e Event) toWire() wirePayload {
	p := wirePayload{
		JobID:     e.JobID,
		PostID:    e.PostID,
		Status:    e.Status,
		Progress:  e.Progress,
		Stage:     e.Stage,
		Timestamp: e.Timestamp,
	}

	if e.Status == StatusFailed && e.Err != nil {
		p.Error = e.Err.Error()
		return p
	}

	if e.Status == StatusCompleted && e.Result != nil {
		r := e.Result
		p.Compressed480pURL = r.CompressedURLs["480p"]
		p.Compressed360pURL = r.CompressedURLs["360p"]
		p.Compressed240pURL = r.CompressedURLs["240p"]
		p.Compressed144pURL = r.CompressedURLs["144p"]
		p.CompressedThumbnailWebp = r.ThumbnailURL
		p.HLSMasterURL = r.HLSMasterURL
		p.HLS480p = r.HLSVariantURLs["480p"]
		p.HLS360p = r.HLSVariantURLs["360p"]
		p.HLS240p = r.HLSVariantURLs["240p"]
		p.HLS144p = r.HLSVariantURLs["144p"]
		p.OriginalSize = r.Stats.OriginalBytes
		p.CompressedSize = r.Stats.CompressedBytes
		p.CompressionRatio = r.Stats.CompressionRatio
		p.Duration = r.Stats.DurationSeconds
		p.ProcessingTime = r.Stats.ProcessingMillis
	}

	return p
}
