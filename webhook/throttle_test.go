package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/vodcompress/config"
)

func TestThrottlerSendsFirstAndBigJumpsAndHundred(t *testing.T) {
	config.Clock = config.FixedTimestampGenerator{MillisValue: 0}
	defer func() { config.Clock = config.RealTimestampGenerator{} }()

	th := NewThrottler()
	require.True(t, th.ShouldSend("job1", 0))
	require.False(t, th.ShouldSend("job1", 2), "jump of 2 is below the 5-point threshold")
	require.True(t, th.ShouldSend("job1", 8), "jump of 8 exceeds the threshold")
	require.True(t, th.ShouldSend("job1", 100), "100% always sends")
}

func TestThrottlerSendsOnElapsedTime(t *testing.T) {
	clock := config.FixedTimestampGenerator{MillisValue: 0}
	config.Clock = clock
	defer func() { config.Clock = config.RealTimestampGenerator{} }()

	th := NewThrottler()
	require.True(t, th.ShouldSend("job1", 10))
	require.False(t, th.ShouldSend("job1", 11))

	config.Clock = config.FixedTimestampGenerator{MillisValue: int64(4 * time.Second / time.Millisecond)}
	require.True(t, th.ShouldSend("job1", 11), "3s elapsed forces a heartbeat send")
}

func TestThrottlerClearResetsState(t *testing.T) {
	th := NewThrottler()
	require.True(t, th.ShouldSend("job1", 50))
	th.Clear("job1")
	require.True(t, th.ShouldSend("job1", 51), "cleared entry behaves like the first event")
}
