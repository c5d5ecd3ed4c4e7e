package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/vodcompress/broker"
	"github.com/livepeer/vodcompress/config"
)

func TestSupervisorBootFailsWhenDirNotWritable(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.MkdirAll(blocked, 0o555))
	t.Cleanup(func() { os.Chmod(blocked, 0o755) })

	cfg := config.Config{MediaUploadsDir: blocked, MediaContentDir: t.TempDir(), FFmpegPath: "ffmpeg"}
	s := NewSupervisor(cfg, broker.NewMemoryClient(), nil, nil)

	err := s.Boot(context.Background())
	require.Error(t, err)
}

func TestRestartBackoffCapsAtSixtySeconds(t *testing.T) {
	require.Equal(t, 5*time.Second, restartBackoff(1))
	require.Equal(t, 10*time.Second, restartBackoff(2))
	require.Equal(t, 20*time.Second, restartBackoff(3))
	require.Equal(t, 60*time.Second, restartBackoff(initialRetryLimit+1))
	require.Equal(t, 60*time.Second, restartBackoff(1000))
}

func TestRunOnceStopsCleanlyWhenContextCancelled(t *testing.T) {
	s := NewSupervisor(config.Config{ParallelLimit: 2}, broker.NewMemoryClient(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.runOnce(ctx))
}
