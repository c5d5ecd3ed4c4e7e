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

type webhookAdminRequest struct {
	Action string `json:"action"`
	JobID  string `json:"jobId"`
}

type webhookAdminResponse struct {
	JobID  string       `json:"jobId"`
	Action string       `json:"action"`
	State  broker.State `json:"state,omitempty"`
	Result bool         `json:"result"`
}

// WebhookAdmin handles POST /api/webhook: the administrative counterpart to
// the outbound webhook, used by the WordPress plugin's own admin UI to
// acknowledge receipt, poll status, retry a failed job, or cancel one.
// retry and cancel gate on the job's current state.
func (c *Collection) WebhookAdmin() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requestIDFrom(req)

		payload, err := io.ReadAll(req.Body)
		if err != nil {
			vcerrors.WriteHTTPBadRequest(w, "cannot read request body", err)
			return
		}
		var body webhookAdminRequest
		if err := json.Unmarshal(payload, &body); err != nil {
			vcerrors.WriteHTTPBadRequest(w, "invalid JSON payload", err)
			return
		}
		if body.JobID == "" {
			vcerrors.WriteHTTPBadRequest(w, "jobId is required", nil)
			return
		}

		switch body.Action {
		case "acknowledge":
			writeJSON(w, http.StatusOK, webhookAdminResponse{JobID: body.JobID, Action: body.Action, Result: true})

		case "status":
			job, err := c.Broker.Get(req.Context(), body.JobID)
			if err != nil {
				vcerrors.WriteHTTPNotFound(w, "job not found", nil)
				return
			}
			writeJSON(w, http.StatusOK, webhookAdminResponse{JobID: job.ID, Action: body.Action, State: job.State, Result: true})

		case "retry":
			ok, err := c.Broker.Retry(req.Context(), body.JobID)
			if err != nil {
				log.LogError(requestID, "retry failed", err)
				vcerrors.WriteHTTPServiceUnavailable(w, "job queue is unavailable", err)
				return
			}
			if !ok {
				vcerrors.WriteHTTPBadRequest(w, "job is not in a failed state", nil)
				return
			}
			writeJSON(w, http.StatusOK, webhookAdminResponse{JobID: body.JobID, Action: body.Action, Result: true})

		case "cancel":
			ok, err := c.Broker.Remove(req.Context(), body.JobID)
			if err != nil {
				log.LogError(requestID, "cancel failed", err)
				vcerrors.WriteHTTPServiceUnavailable(w, "job queue is unavailable", err)
				return
			}
			if !ok {
				vcerrors.WriteHTTPBadRequest(w, "job is already in a terminal state or does not exist", nil)
				return
			}
			writeJSON(w, http.StatusOK, webhookAdminResponse{JobID: body.JobID, Action: body.Action, Result: true})

		default:
			vcerrors.WriteHTTPBadRequest(w, "unknown action, expected one of acknowledge/status/retry/cancel", nil)
		}
	}
}
