package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/livepeer/vodcompress/config"
	vcerrors "github.com/livepeer/vodcompress/errors"
)

func newTestClient(t *testing.T) (Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return wrapRedisClient(rdb), mr
}

func TestEnqueueAndClaim(t *testing.T) {
	config.Clock = config.FixedTimestampGenerator{MillisValue: 1000}
	defer func() { config.Clock = config.RealTimestampGenerator{} }()

	c, _ := newTestClient(t)
	ctx := context.Background()

	job, err := c.Enqueue(ctx, Submission{PostID: 42, WPMediaPath: "/wp/uploads/v.mp4", Year: 2026, Month: 8})
	require.NoError(t, err)
	require.Equal(t, StatePending, job.State)

	claimed, err := c.ClaimNext(ctx, "worker-1", time.Second)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, job.ID, claimed.ID)
	require.Equal(t, StateProcessing, claimed.State)
	require.Equal(t, 1, claimed.Attempts)
}

func TestEnqueueDedupRejectsSecondNonTerminalJob(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Enqueue(ctx, Submission{PostID: 7})
	require.NoError(t, err)

	_, err = c.Enqueue(ctx, Submission{PostID: 7})
	require.True(t, errors.Is(err, ErrAlreadyExists))
}

func TestClaimNextReturnsNilOnTimeout(t *testing.T) {
	c, _ := newTestClient(t)
	job, err := c.ClaimNext(context.Background(), "worker-1", 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestProgressIsMonotonic(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Enqueue(ctx, Submission{PostID: 3})
	require.NoError(t, err)
	claimed, err := c.ClaimNext(ctx, "w1", time.Second)
	require.NoError(t, err)

	require.NoError(t, c.UpdateProgress(ctx, claimed.ID, 40, "compressing_480p"))
	require.NoError(t, c.UpdateProgress(ctx, claimed.ID, 10, "compressing_480p"))

	got, err := c.Get(ctx, claimed.ID)
	require.NoError(t, err)
	require.Equal(t, 40, got.Progress)
}

func TestFinalizeSuccessIsIdempotentAndClearsDedup(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Enqueue(ctx, Submission{PostID: 9})
	require.NoError(t, err)
	claimed, err := c.ClaimNext(ctx, "w1", time.Second)
	require.NoError(t, err)

	result := &Result{CompressedURLs: map[string]string{"480p": "/content/9/480p.mp4"}}
	state, err := c.Finalize(ctx, claimed.ID, result, nil)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, state)

	state, err = c.Finalize(ctx, claimed.ID, result, nil)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, state)

	_, err = c.Enqueue(ctx, Submission{PostID: 9})
	require.NoError(t, err, "dedup key must be cleared once the prior job is terminal")
}

func TestFinalizeFailureSchedulesDelayedRetryUntilAttemptsExhausted(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Enqueue(ctx, Submission{PostID: 11})
	require.NoError(t, err)

	var lastID string
	for i := 0; i < MaxAttempts; i++ {
		claimed, err := c.ClaimNext(ctx, "w1", time.Second)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		lastID = claimed.ID

		state, err := c.Finalize(ctx, claimed.ID, nil, errors.New("transcode failed"))
		require.NoError(t, err)

		if i < MaxAttempts-1 {
			require.Equal(t, StateDelayed, state)
			n, err := c.PromoteDelayed(ctx, time.Now().Add(time.Hour), 10)
			require.NoError(t, err)
			require.Equal(t, int64(1), n)
		} else {
			require.Equal(t, StateFailed, state)
		}
	}

	got, err := c.Get(ctx, lastID)
	require.NoError(t, err)
	require.Equal(t, StateFailed, got.State)
	require.Equal(t, MaxAttempts, got.Attempts)
}

func TestFinalizeFatalErrorFailsImmediatelyWithoutRetry(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Enqueue(ctx, Submission{PostID: 12})
	require.NoError(t, err)
	claimed, err := c.ClaimNext(ctx, "w1", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, claimed.Attempts)

	fatalErr := vcerrors.NewJobError(vcerrors.InvalidCodec, errors.New("unsupported codec"))
	state, err := c.Finalize(ctx, claimed.ID, nil, fatalErr)
	require.NoError(t, err)
	require.Equal(t, StateFailed, state, "a fatal classification must not be rescheduled for retry")

	got, err := c.Get(ctx, claimed.ID)
	require.NoError(t, err)
	require.Equal(t, StateFailed, got.State)
	require.Equal(t, 1, got.Attempts)
}

func TestRetryOnlyAppliesToFailedJobs(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	job, err := c.Enqueue(ctx, Submission{PostID: 5})
	require.NoError(t, err)

	ok, err := c.Retry(ctx, job.ID)
	require.NoError(t, err)
	require.False(t, ok, "pending jobs are not retryable")
}

func TestRemoveIsRejectedForTerminalJobs(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Enqueue(ctx, Submission{PostID: 13})
	require.NoError(t, err)
	claimed, err := c.ClaimNext(ctx, "w1", time.Second)
	require.NoError(t, err)

	_, err = c.Finalize(ctx, claimed.ID, &Result{}, nil)
	require.NoError(t, err)

	ok, err := c.Remove(ctx, claimed.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStatsReflectsQueueDepth(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Enqueue(ctx, Submission{PostID: 21})
	require.NoError(t, err)
	_, err = c.Enqueue(ctx, Submission{PostID: 22})
	require.NoError(t, err)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Pending)
}
