package webhook

import (
	"sync"
	"time"

	"github.com/livepeer/vodcompress/config"
)

const (
	minPercentStep = 5
	minInterval    = 3 * time.Second
)

type throttleEntry struct {
	lastPercent int
	lastSentAt  time.Time
}

// Throttler collapses high-frequency progress events per job: it lets
// through only a meaningful percent jump, a time-based heartbeat, job
// completion, or the very first "0%" start event.
type Throttler struct {
	mu      sync.Mutex
	entries map[string]throttleEntry
}

func NewThrottler() *Throttler {
	return &Throttler{entries: make(map[string]throttleEntry)}
}

// ShouldSend reports whether a progress event at percent should be sent, and
// records that decision for the next call.
func (t *Throttler) ShouldSend(jobID string, percent int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := config.Clock.Now()
	prev, seen := t.entries[jobID]

	send := !seen ||
		percent-prev.lastPercent >= minPercentStep ||
		now.Sub(prev.lastSentAt) >= minInterval ||
		percent == 100 ||
		(percent == 0 && prev.lastPercent == 0)

	if send {
		t.entries[jobID] = throttleEntry{lastPercent: percent, lastSentAt: now}
	}
	return send
}

// Clear drops the throttle entry for jobID, called when a terminal event
// fires so a subsequent attempt starts with a clean throttle state.
func (t *Throttler) Clear(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, jobID)
}

// GC drops throttle entries whose last activity is older than maxAge, so the
// map doesn't grow unbounded across a long-running worker process.
func (t *Throttler) GC(maxAge time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := config.Clock.Now().Add(-maxAge)
	for id, e := range t.entries {
		if e.lastSentAt.Before(cutoff) {
			delete(t.entries, id)
		}
	}
}
