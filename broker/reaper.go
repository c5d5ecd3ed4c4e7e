package broker

import (
	"context"
	"time"

	"github.com/livepeer/vodcompress/config"
	vclog "github.com/livepeer/vodcompress/log"
)

// Reaper periodically promotes ready delayed jobs back onto the waiting list
// and requeues jobs whose heartbeat has gone stale.
type Reaper struct {
	Client       Client
	StallWindow  time.Duration
	SweepEvery   time.Duration
}

func NewReaper(client Client) *Reaper {
	return &Reaper{
		Client:      client,
		StallWindow: 30 * time.Second,
		SweepEvery:  5 * time.Second,
	}
}

// Run blocks, sweeping on a fixed interval until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *Reaper) sweepOnce(ctx context.Context) {
	if n, err := r.Client.PromoteDelayed(ctx, config.Clock.Now(), 100); err != nil {
		vclog.LogNoRequestID("promote delayed failed", "err", err)
	} else if n > 0 {
		vclog.LogNoRequestID("promoted delayed jobs", "count", n)
	}

	stalled, err := r.Client.SweepStalled(ctx, r.StallWindow)
	if err != nil {
		vclog.LogNoRequestID("stall sweep failed", "err", err)
		return
	}
	for _, id := range stalled {
		vclog.Log(id, "job requeued after stall")
	}
}
