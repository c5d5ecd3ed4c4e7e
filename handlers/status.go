package handlers

import (
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/livepeer/vodcompress/broker"
	vcerrors "github.com/livepeer/vodcompress/errors"
)

// statusResponse mirrors the broker's job record, plus the queue-wide
// counters returned when no jobId/postId is given.
type statusResponse struct {
	JobID    string         `json:"jobId,omitempty"`
	PostID   int            `json:"postId,omitempty"`
	State    broker.State   `json:"state,omitempty"`
	Progress int            `json:"progress,omitempty"`
	Stage    string         `json:"stage,omitempty"`
	Result   *broker.Result `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`

	Queue *broker.QueueStats `json:"queue,omitempty"`
}

// Status handles GET /api/status?jobId=... (or ?postId=...); with neither
// parameter it returns queue-wide counters.
func (c *Collection) Status() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		jobID := req.URL.Query().Get("jobId")
		postID := req.URL.Query().Get("postId")

		if jobID == "" && postID == "" {
			stats, err := c.Broker.Stats(req.Context())
			if err != nil {
				vcerrors.WriteHTTPServiceUnavailable(w, "job queue is unavailable", err)
				return
			}
			writeJSON(w, http.StatusOK, statusResponse{Queue: &stats})
			return
		}

		id := jobID
		if id == "" {
			id = findJobIDByPostID(req, c, postID)
			if id == "" {
				vcerrors.WriteHTTPNotFound(w, "no job found for that postId", nil)
				return
			}
		}

		job, err := c.Broker.Get(req.Context(), id)
		if err != nil {
			if err == broker.ErrNotFound {
				vcerrors.WriteHTTPNotFound(w, "job not found", nil)
				return
			}
			vcerrors.WriteHTTPServiceUnavailable(w, "job queue is unavailable", err)
			return
		}

		writeJSON(w, http.StatusOK, statusResponse{
			JobID:    job.ID,
			PostID:   job.Submission.PostID,
			State:    job.State,
			Progress: job.Progress,
			Stage:    job.Stage,
			Result:   job.Result,
			Error:    job.Error,
		})
	}
}

// findJobIDByPostID scans the recent-jobs list for a job matching postID.
// The broker indexes jobs by jobId, not postId, so a postId lookup is a
// best-effort scan over ListRecent rather than an O(1) index hit.
func findJobIDByPostID(req *http.Request, c *Collection, postID string) string {
	recent, err := c.Broker.ListRecent(req.Context(), 500)
	if err != nil {
		return ""
	}
	for _, j := range recent {
		if postIDMatches(j, postID) {
			return j.ID
		}
	}
	return ""
}

func postIDMatches(j broker.Job, postID string) bool {
	return strconv.Itoa(j.Submission.PostID) == postID
}
