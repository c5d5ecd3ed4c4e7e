package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/livepeer/vodcompress/broker"
	"github.com/livepeer/vodcompress/config"
)

func testCollection() *Collection {
	cfg := config.Config{APIKey: "secret", AllowedOrigins: []string{"*"}}
	return NewCollection(cfg, broker.NewMemoryClient(), nil)
}

func doRequest(t *testing.T, handle httprouter.Handle, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, url, reader)
	rec := httptest.NewRecorder()
	handle(rec, req, nil)
	return rec
}

func TestCompressEnqueuesValidSubmission(t *testing.T) {
	c := testCollection()
	rec := doRequest(t, c.Compress(), http.MethodPost, "/api/compress", map[string]interface{}{
		"postId": 1, "wpMediaPath": "video.mp4", "year": 2026, "month": 8,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp compressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)
	require.Equal(t, int64(1), resp.QueueLength)
}

func TestCompressRejectsInvalidPayload(t *testing.T) {
	c := testCollection()
	rec := doRequest(t, c.Compress(), http.MethodPost, "/api/compress", map[string]interface{}{
		"postId": 0, "wpMediaPath": "video.mp4", "year": 2026, "month": 8,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompressRejectsDuplicateNonTerminalSubmission(t *testing.T) {
	c := testCollection()
	sub := map[string]interface{}{"postId": 2, "wpMediaPath": "video.mp4", "year": 2026, "month": 8}
	first := doRequest(t, c.Compress(), http.MethodPost, "/api/compress", sub)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(t, c.Compress(), http.MethodPost, "/api/compress", sub)
	require.Equal(t, http.StatusBadRequest, second.Code)
}

func TestStatusReturnsQueueStatsWithNoParams(t *testing.T) {
	c := testCollection()
	rec := doRequest(t, c.Status(), http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Queue)
}

func TestStatusReturns404ForUnknownJob(t *testing.T) {
	c := testCollection()
	rec := doRequest(t, c.Status(), http.MethodGet, "/api/status?jobId=job_does_not_exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthReportsUnhealthyWhenTranscoderMissing(t *testing.T) {
	cfg := config.Config{FFmpegPath: "definitely-not-a-real-binary-xyz"}
	c := NewCollection(cfg, broker.NewMemoryClient(), nil)
	rec := doRequest(t, c.Health(), http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhookAdminCancelRejectsUnknownJob(t *testing.T) {
	c := testCollection()
	rec := doRequest(t, c.WebhookAdmin(), http.MethodPost, "/api/webhook", webhookAdminRequest{Action: "cancel", JobID: "job_missing"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookAdminAcknowledgeAlwaysSucceeds(t *testing.T) {
	c := testCollection()
	rec := doRequest(t, c.WebhookAdmin(), http.MethodPost, "/api/webhook", webhookAdminRequest{Action: "acknowledge", JobID: "job_anything"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminJobsListsRecentSubmissions(t *testing.T) {
	c := testCollection()
	doRequest(t, c.Compress(), http.MethodPost, "/api/compress", map[string]interface{}{
		"postId": 3, "wpMediaPath": "video.mp4", "year": 2026, "month": 8,
	})
	rec := doRequest(t, c.AdminJobs(), http.MethodGet, "/api/admin/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
