package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/livepeer/vodcompress/config"
	vcerrors "github.com/livepeer/vodcompress/errors"
	vclog "github.com/livepeer/vodcompress/log"
)

// Client is the durable job queue the pipeline engine and intake API share.
type Client interface {
	Enqueue(ctx context.Context, sub Submission) (Job, error)
	ClaimNext(ctx context.Context, workerID string, timeout time.Duration) (*Job, error)
	UpdateProgress(ctx context.Context, jobID string, percent int, stage string) error
	Finalize(ctx context.Context, jobID string, result *Result, failErr error) (State, error)
	Retry(ctx context.Context, jobID string) (bool, error)
	Remove(ctx context.Context, jobID string) (bool, error)
	Get(ctx context.Context, jobID string) (*Job, error)
	Stats(ctx context.Context) (QueueStats, error)
	ListRecent(ctx context.Context, limit int64) ([]Job, error)
	Subscribe(ctx context.Context) (<-chan Event, func())
	PromoteDelayed(ctx context.Context, now time.Time, limit int64) (int64, error)
	SweepStalled(ctx context.Context, olderThan time.Duration) ([]string, error)
	Close() error
}

type redisClient struct {
	rdb *redis.Client

	enqueue        *redis.Script
	claim          *redis.Script
	progress       *redis.Script
	finalize       *redis.Script
	retry          *redis.Script
	remove         *redis.Script
	stallSweep     *redis.Script
	promoteDelayed *redis.Script
}

// NewClient dials Redis and prepares the Lua scripts the lifecycle
// operations run atomically.
func NewClient(cfg config.Config) (Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return wrapRedisClient(rdb), nil
}

func wrapRedisClient(rdb *redis.Client) Client {
	return &redisClient{
		rdb:            rdb,
		enqueue:        redis.NewScript(enqueueScript),
		claim:          redis.NewScript(claimScript),
		progress:       redis.NewScript(progressScript),
		finalize:       redis.NewScript(finalizeScript),
		retry:          redis.NewScript(retryScript),
		remove:         redis.NewScript(removeScript),
		stallSweep:     redis.NewScript(stallSweepScript),
		promoteDelayed: redis.NewScript(promoteDelayedScript),
	}
}

func (c *redisClient) Close() error { return c.rdb.Close() }

func (c *redisClient) Enqueue(ctx context.Context, sub Submission) (Job, error) {
	now := config.Clock.Now()
	id := JobID(sub.PostID, now.UnixMilli())

	keys := []string{postKey(sub.PostID), jobKey(id), keyWaiting, keyRecent}
	_, err := c.enqueue.Run(ctx, c.rdb, keys,
		id, sub.PostID, sub.WPMediaPath, sub.WPVideoURL,
		sub.WPThumbnailPath, sub.WPThumbnailURL, sub.WPPostURL,
		sub.Year, sub.Month, now.UnixMilli(), recentCap,
	).Result()
	if err != nil {
		if strings.HasSuffix(err.Error(), "EXISTS") {
			return Job{}, ErrAlreadyExists
		}
		return Job{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.publish(ctx, Event{Kind: EventWaiting, JobID: id, PostID: sub.PostID, At: now.UnixMilli()})

	return Job{
		ID:         id,
		Submission: sub,
		CreatedAt:  now.UnixMilli(),
		UpdatedAt:  now.UnixMilli(),
		State:      StatePending,
		Stage:      "queued",
	}, nil
}

// ClaimNext blocks (via BLPOP-style polling) until a job is available or the
// timeout elapses, then atomically moves it into the active set.
func (c *redisClient) ClaimNext(ctx context.Context, workerID string, timeout time.Duration) (*Job, error) {
	deadline := config.Clock.Now().Add(timeout)
	const pollInterval = 250 * time.Millisecond

	for {
		now := config.Clock.Now()
		res, err := c.claim.Run(ctx, c.rdb,
			[]string{keyWaiting, keyActive, keyHeartbeat},
			workerID, now.UnixMilli(),
		).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		if id, ok := res.(string); ok && id != "" {
			job, err := c.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			c.publish(ctx, Event{Kind: EventActive, JobID: id, PostID: job.Submission.PostID, At: now.UnixMilli()})
			return job, nil
		}

		if config.Clock.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (c *redisClient) UpdateProgress(ctx context.Context, jobID string, percent int, stage string) error {
	now := config.Clock.Now().UnixMilli()
	_, err := c.progress.Run(ctx, c.rdb, []string{keyActive, keyHeartbeat},
		jobID, percent, stage, now,
	).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Finalize writes the terminal outcome for an attempt. A failure with
// attempts remaining is internally rescheduled as a delayed retry; a
// failure that exhausts config.DefaultMaxAttempts, or one classified as
// fatal (vcerrors.IsFatal), becomes terminal "failed" immediately instead
// of burning through the remaining retries.
func (c *redisClient) Finalize(ctx context.Context, jobID string, result *Result, failErr error) (State, error) {
	now := config.Clock.Now().UnixMilli()
	success := "0"
	payload := ""
	fatal := "0"
	if failErr == nil {
		success = "1"
		b, err := json.Marshal(result)
		if err != nil {
			return "", err
		}
		payload = string(b)
	} else {
		payload = failErr.Error()
		if vcerrors.IsFatal(failErr) || vcerrors.IsUnretriable(failErr) {
			fatal = "1"
		}
	}

	existing, err := c.Get(ctx, jobID)
	if err != nil {
		return "", err
	}

	res, err := c.finalize.Run(ctx, c.rdb,
		[]string{keyActive, keyHeartbeat, postKey(existing.Submission.PostID), keyCompleted, keyDelayed, keyFailed},
		jobID, success, payload, now, MaxAttempts, fatal,
	).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	state, ok := res.(string)
	if !ok {
		// The script returns 0 for a job that is already terminal.
		return existing.State, nil
	}
	postID := existing.Submission.PostID
	switch State(state) {
	case StateCompleted:
		c.publish(ctx, Event{Kind: EventCompleted, JobID: jobID, PostID: postID, At: now})
	case StateFailed:
		c.publish(ctx, Event{Kind: EventFailed, JobID: jobID, PostID: postID, At: now})
	}
	return State(state), nil
}

func (c *redisClient) Retry(ctx context.Context, jobID string) (bool, error) {
	now := config.Clock.Now().UnixMilli()
	res, err := c.retry.Run(ctx, c.rdb, []string{keyWaiting}, jobID, now).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (c *redisClient) Remove(ctx context.Context, jobID string) (bool, error) {
	job, err := c.Get(ctx, jobID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	res, err := c.remove.Run(ctx, c.rdb,
		[]string{keyWaiting, keyActive, keyDelayed, keyHeartbeat, postKey(job.Submission.PostID)},
		jobID,
	).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (c *redisClient) Get(ctx context.Context, jobID string) (*Job, error) {
	m, err := c.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	job, err := jobFromHash(jobID, m)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *redisClient) Stats(ctx context.Context) (QueueStats, error) {
	pipe := c.rdb.Pipeline()
	pendingCmd := pipe.LLen(ctx, keyWaiting)
	activeCmd := pipe.SCard(ctx, keyActive)
	completedCmd := pipe.Get(ctx, keyCompleted)
	failedCmd := pipe.Get(ctx, keyFailed)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return QueueStats{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var stats QueueStats
	stats.Pending, _ = pendingCmd.Result()
	stats.Processing, _ = activeCmd.Result()
	if v, err := completedCmd.Int64(); err == nil {
		stats.Completed = v
	}
	if v, err := failedCmd.Int64(); err == nil {
		stats.Failed = v
	}
	return stats, nil
}

func (c *redisClient) ListRecent(ctx context.Context, limit int64) ([]Job, error) {
	if limit <= 0 || limit > recentCap {
		limit = recentCap
	}
	ids, err := c.rdb.ZRevRange(ctx, keyRecent, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := c.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (c *redisClient) PromoteDelayed(ctx context.Context, now time.Time, limit int64) (int64, error) {
	if limit <= 0 {
		limit = 100
	}
	res, err := c.promoteDelayed.Run(ctx, c.rdb, []string{keyDelayed, keyWaiting},
		now.UnixMilli(), limit,
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, _ := res.(int64)
	return n, nil
}

// SweepStalled moves jobs whose heartbeat is older than olderThan back onto
// the waiting list and publishes a stalled event for each.
func (c *redisClient) SweepStalled(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := config.Clock.Now().Add(-olderThan).UnixMilli()
	candidates, err := c.rdb.ZRangeByScore(ctx, keyHeartbeat, &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := config.Clock.Now().UnixMilli()
	var stalled []string
	for _, id := range candidates {
		res, err := c.stallSweep.Run(ctx, c.rdb, []string{keyActive, keyHeartbeat, keyWaiting}, id, now).Result()
		if err != nil {
			vclog.LogError(id, "stall sweep failed", err)
			continue
		}
		if n, _ := res.(int64); n == 1 {
			stalled = append(stalled, id)
			job, _ := c.Get(ctx, id)
			var postID int
			if job != nil {
				postID = job.Submission.PostID
			}
			c.publish(ctx, Event{Kind: EventStalled, JobID: id, PostID: postID, At: now})
		}
	}
	return stalled, nil
}

func (c *redisClient) publish(ctx context.Context, ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.rdb.Publish(ctx, keyEvents, b)
}

func (c *redisClient) Subscribe(ctx context.Context) (<-chan Event, func()) {
	sub := c.rdb.Subscribe(ctx, keyEvents)
	out := make(chan Event, 32)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for msg := range ch {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { sub.Close() }
}
