package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/livepeer/vodcompress/config"
	vclog "github.com/livepeer/vodcompress/log"
)

// Dispatcher sends lifecycle events to the configured WordPress callback
// endpoint: a retryablehttp client wrapped with domain-specific send
// methods.
type Dispatcher struct {
	url        string
	apiKey     string
	httpClient *retryablehttp.Client
	throttle   *Throttler
}

const requestTimeout = 30 * time.Second
const maxAttempts = 3
const linearBackoffUnit = 2 * time.Second

// NewDispatcher builds a Dispatcher for cfg.WebhookURL. An empty URL makes
// Send a no-op.
func NewDispatcher(cfg config.Config) *Dispatcher {
	client := retryablehttp.NewClient()
	client.RetryMax = maxAttempts - 1
	client.Logger = vclog.NewRetryableHTTPLogger()
	client.HTTPClient = &http.Client{Timeout: requestTimeout}
	client.Backoff = linearBackoff
	client.CheckRetry = retryOnNon2xxOrNetwork

	return &Dispatcher{
		url:        cfg.WebhookURL,
		apiKey:     cfg.APIKey,
		httpClient: client,
		throttle:   NewThrottler(),
	}
}

// linearBackoff waits attempt×2s between retries, in place of
// retryablehttp's default exponential backoff.
func linearBackoff(_, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
	return time.Duration(attemptNum+1) * linearBackoffUnit
}

func retryOnNon2xxOrNetwork(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	return true, nil
}

// Send dispatches ev, applying the per-job progress throttle. Completion and
// failure events always send and clear the throttle entry.
func (d *Dispatcher) Send(ctx context.Context, ev Event) error {
	if d.url == "" {
		return nil
	}

	if ev.Status == StatusProcessing {
		if !d.throttle.ShouldSend(ev.JobID, ev.Progress) {
			return nil
		}
	} else {
		d.throttle.Clear(ev.JobID)
	}

	body, err := json.Marshal(ev.toWire())
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("X-API-Key", d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		vclog.LogError(ev.JobID, "webhook delivery failed", err, "url", d.url)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
		vclog.LogError(ev.JobID, "webhook delivery failed", err, "url", d.url)
		return err
	}

	return nil
}
