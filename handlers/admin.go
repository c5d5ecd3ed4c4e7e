package handlers

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	vcerrors "github.com/livepeer/vodcompress/errors"
)

const maxRecentJobs = 100

// AdminJobs handles GET /api/admin/jobs: the most recent jobs, capped at
// maxRecentJobs regardless of what's requested.
func (c *Collection) AdminJobs() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		jobs, err := c.Broker.ListRecent(req.Context(), maxRecentJobs)
		if err != nil {
			vcerrors.WriteHTTPServiceUnavailable(w, "job queue is unavailable", err)
			return
		}
		if len(jobs) > maxRecentJobs {
			jobs = jobs[:maxRecentJobs]
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
	}
}
