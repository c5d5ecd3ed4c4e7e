package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/livepeer/vodcompress/media"
)

type healthResponse struct {
	Status            string             `json:"status"`
	BrokerReachable   bool               `json:"brokerReachable"`
	TranscoderPresent bool               `json:"transcoderAvailable"`
	UptimeSeconds     float64            `json:"uptimeSeconds"`
	Queue             map[string]int64   `json:"queue,omitempty"`
}

// Health handles GET /api/health: 200 when both the broker and the
// transcoder binary are reachable, 503 otherwise. Unauthenticated.
func (c *Collection) Health() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		stats, brokerErr := c.Broker.Stats(ctx)
		transcoderErr := media.EnsureFFmpegAvailable(ctx, c.Config.FFmpegPath)

		resp := healthResponse{
			BrokerReachable:   brokerErr == nil,
			TranscoderPresent: transcoderErr == nil,
			UptimeSeconds:     time.Since(c.StartedAt).Seconds(),
		}
		if brokerErr == nil {
			resp.Queue = map[string]int64{
				"pending":    stats.Pending,
				"processing": stats.Processing,
				"completed":  stats.Completed,
				"failed":     stats.Failed,
			}
		}

		status := http.StatusOK
		resp.Status = "healthy"
		if brokerErr != nil || transcoderErr != nil {
			status = http.StatusServiceUnavailable
			resp.Status = "unhealthy"
		}

		writeJSON(w, status, resp)
	}
}
