package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/livepeer/vodcompress/broker"
	vcerrors "github.com/livepeer/vodcompress/errors"
	"github.com/livepeer/vodcompress/log"
)

// compressResponse is the body returned from a successful enqueue.
type compressResponse struct {
	JobID         string `json:"jobId"`
	QueuePosition int64  `json:"queuePosition"`
	QueueLength   int64  `json:"queueLength"`
}

// Compress handles POST /api/compress: validates the submission payload,
// confirms the broker is reachable, and enqueues a new job.
func (c *Collection) Compress() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requestIDFrom(req)

		payload, err := io.ReadAll(req.Body)
		if err != nil {
			vcerrors.WriteHTTPBadRequest(w, "cannot read request body", err)
			return
		}

		var sub broker.Submission
		if err := json.Unmarshal(payload, &sub); err != nil {
			vcerrors.WriteHTTPBadRequest(w, "invalid JSON payload", err)
			return
		}

		if msg, ok := validateSubmission(sub); !ok {
			vcerrors.WriteHTTPBadRequest(w, msg, nil)
			return
		}

		stats, err := c.Broker.Stats(req.Context())
		if err != nil {
			log.LogError(requestID, "broker unreachable", err)
			vcerrors.WriteHTTPServiceUnavailable(w, "job queue is unavailable", err)
			return
		}

		job, err := c.Broker.Enqueue(req.Context(), sub)
		if err != nil {
			if err == broker.ErrAlreadyExists {
				vcerrors.WriteHTTPBadRequest(w, "a non-terminal job already exists for this post", err)
				return
			}
			log.LogError(requestID, "enqueue failed", err)
			vcerrors.WriteHTTPServiceUnavailable(w, "job queue is unavailable", err)
			return
		}

		writeJSON(w, http.StatusOK, compressResponse{
			JobID:         job.ID,
			QueuePosition: stats.Pending + 1,
			QueueLength:   stats.Pending + stats.Processing + 1,
		})
	}
}

// validateSubmission enforces the intake payload shape; it's deliberately
// independent of pipeline.Validate, which runs against the probed source file
// once the job is claimed.
func validateSubmission(sub broker.Submission) (string, bool) {
	if sub.PostID <= 0 {
		return "postId must be a positive integer", false
	}
	if sub.WPMediaPath == "" {
		return "wpMediaPath is required", false
	}
	if sub.Year < 2000 || sub.Year > 2100 {
		return "year must be between 2000 and 2100", false
	}
	if sub.Month < 1 || sub.Month > 12 {
		return "month must be between 1 and 12", false
	}
	return "", true
}
