package broker

import (
	"context"
	"sync"
	"time"

	"github.com/livepeer/vodcompress/config"
	vcerrors "github.com/livepeer/vodcompress/errors"
)

// MemoryClient is an in-process Client used by pipeline and worker tests that
// don't need real Redis semantics, only the state machine.
type MemoryClient struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	postDedup map[int]string
	waiting  []string
	delayed  map[string]int64
	subs     []chan Event
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		jobs:      make(map[string]*Job),
		postDedup: make(map[int]string),
		delayed:   make(map[string]int64),
	}
}

func (m *MemoryClient) Close() error { return nil }

func (m *MemoryClient) Enqueue(ctx context.Context, sub Submission) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, ok := m.postDedup[sub.PostID]; ok {
		if j, ok := m.jobs[existingID]; ok && !j.State.Terminal() {
			return Job{}, ErrAlreadyExists
		}
	}

	now := config.Clock.Now().UnixMilli()
	id := JobID(sub.PostID, now)
	job := &Job{ID: id, Submission: sub, CreatedAt: now, UpdatedAt: now, State: StatePending, Stage: "queued"}
	m.jobs[id] = job
	m.postDedup[sub.PostID] = id
	m.waiting = append(m.waiting, id)
	m.publish(Event{Kind: EventWaiting, JobID: id, PostID: sub.PostID, At: now})
	return *job, nil
}

func (m *MemoryClient) ClaimNext(ctx context.Context, workerID string, timeout time.Duration) (*Job, error) {
	deadline := config.Clock.Now().Add(timeout)
	for {
		m.mu.Lock()
		if len(m.waiting) > 0 {
			id := m.waiting[0]
			m.waiting = m.waiting[1:]
			job := m.jobs[id]
			job.State = StateProcessing
			job.ClaimedBy = workerID
			job.Attempts++
			job.Progress = 0
			job.Stage = "queued"
			now := config.Clock.Now().UnixMilli()
			job.UpdatedAt = now
			cp := *job
			m.publish(Event{Kind: EventActive, JobID: id, PostID: job.Submission.PostID, At: now})
			m.mu.Unlock()
			return &cp, nil
		}
		m.mu.Unlock()

		if config.Clock.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (m *MemoryClient) UpdateProgress(ctx context.Context, jobID string, percent int, stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.State != StateProcessing {
		return nil
	}
	if percent < job.Progress {
		return nil
	}
	job.Progress = percent
	job.Stage = stage
	job.UpdatedAt = config.Clock.Now().UnixMilli()
	return nil
}

func (m *MemoryClient) Finalize(ctx context.Context, jobID string, result *Result, failErr error) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return "", ErrNotFound
	}
	if job.State.Terminal() {
		return job.State, nil
	}
	now := config.Clock.Now().UnixMilli()
	job.UpdatedAt = now

	if failErr == nil {
		job.State = StateCompleted
		job.Progress = 100
		job.Stage = "complete"
		job.Result = result
		delete(m.postDedup, job.Submission.PostID)
		m.publish(Event{Kind: EventCompleted, JobID: jobID, PostID: job.Submission.PostID, At: now})
		return StateCompleted, nil
	}

	job.Error = failErr.Error()
	fatal := vcerrors.IsFatal(failErr) || vcerrors.IsUnretriable(failErr)
	if !fatal && job.Attempts < MaxAttempts {
		job.State = StateDelayed
		backoff := BackoffBase * time.Duration(1<<uint(job.Attempts-1))
		m.delayed[jobID] = now + backoff.Milliseconds()
		return StateDelayed, nil
	}
	job.State = StateFailed
	delete(m.postDedup, job.Submission.PostID)
	m.publish(Event{Kind: EventFailed, JobID: jobID, PostID: job.Submission.PostID, At: now})
	return StateFailed, nil
}

func (m *MemoryClient) Retry(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.State != StateFailed {
		return false, nil
	}
	job.State = StatePending
	job.Attempts = 0
	job.Progress = 0
	job.Stage = "queued"
	job.Error = ""
	m.waiting = append(m.waiting, jobID)
	return true, nil
}

func (m *MemoryClient) Remove(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.State.Terminal() {
		return false, nil
	}
	delete(m.jobs, jobID)
	delete(m.postDedup, job.Submission.PostID)
	delete(m.delayed, jobID)
	for i, id := range m.waiting {
		if id == jobID {
			m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)
			break
		}
	}
	return true, nil
}

func (m *MemoryClient) Get(ctx context.Context, jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *MemoryClient) Stats(ctx context.Context) (QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s QueueStats
	for _, j := range m.jobs {
		switch j.State {
		case StatePending, StateDelayed:
			s.Pending++
		case StateProcessing:
			s.Processing++
		case StateCompleted:
			s.Completed++
		case StateFailed:
			s.Failed++
		}
	}
	return s, nil
}

func (m *MemoryClient) ListRecent(ctx context.Context, limit int64) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (m *MemoryClient) PromoteDelayed(ctx context.Context, now time.Time, limit int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	nowMillis := now.UnixMilli()
	for id, readyAt := range m.delayed {
		if readyAt > nowMillis {
			continue
		}
		job, ok := m.jobs[id]
		if ok {
			job.State = StatePending
			job.UpdatedAt = nowMillis
			m.waiting = append(m.waiting, id)
		}
		delete(m.delayed, id)
		n++
		if n >= limit {
			break
		}
	}
	return n, nil
}

func (m *MemoryClient) SweepStalled(ctx context.Context, olderThan time.Duration) ([]string, error) {
	return nil, nil
}

func (m *MemoryClient) Subscribe(ctx context.Context) (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Event, 32)
	m.subs = append(m.subs, ch)
	return ch, func() {}
}

func (m *MemoryClient) publish(ev Event) {
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
