package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livepeer/vodcompress/broker"
	"github.com/livepeer/vodcompress/config"
	"github.com/livepeer/vodcompress/media"
	"github.com/livepeer/vodcompress/webhook"
)

// stubToolkit is a fully in-process media.Toolkit for pipeline tests: no
// ffmpeg, no ffprobe, no image codecs.
type stubToolkit struct {
	info        media.VideoInfo
	probeErr    error
	failQuality map[media.Quality]bool
}

func (s stubToolkit) Probe(ctx context.Context, path string) (media.VideoInfo, error) {
	if s.probeErr != nil {
		return media.VideoInfo{}, s.probeErr
	}
	return s.info, nil
}

func (s stubToolkit) Transcode(ctx context.Context, jobID, in, out string, preset media.QualityPreset, srcInfo media.VideoInfo, hlsSegSeconds int) (media.TranscodeResult, error) {
	if s.failQuality[preset.Quality] {
		return media.TranscodeResult{}, fmt.Errorf("stub transcode failure for %s", preset.Quality)
	}
	if err := os.WriteFile(out, []byte("fake-mp4-"+string(preset.Quality)), 0o644); err != nil {
		return media.TranscodeResult{}, err
	}
	return media.TranscodeResult{OK: true, Elapsed: 10 * time.Millisecond, Width: 100, Height: preset.TargetHeight}, nil
}

func (s stubToolkit) Segment(ctx context.Context, jobID, inMp4, outDir string, quality media.Quality, segSeconds int) (media.SegmentResult, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return media.SegmentResult{}, err
	}
	playlist := filepath.Join(outDir, string(quality)+".m3u8")
	if err := os.WriteFile(playlist, []byte("#EXTM3U\n"), 0o644); err != nil {
		return media.SegmentResult{}, err
	}
	return media.SegmentResult{PlaylistPath: playlist, SegmentCount: 1, Width: 100, Height: 100}, nil
}

func (s stubToolkit) ResizeToWebP(in, out string, opts media.ThumbnailOptions) (media.ThumbnailResult, error) {
	if err := os.WriteFile(out, []byte("fake-webp"), 0o644); err != nil {
		return media.ThumbnailResult{}, err
	}
	return media.ThumbnailResult{OutBytes: 9, Width: 10, Height: 10}, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		BaseURL:          "https://example.com",
		MediaUploadsDir:  filepath.Join(dir, "uploads"),
		MediaContentDir:  filepath.Join(dir, "content"),
		HLSTimeSeconds:   6,
		ThumbnailQuality: 60,
		ThumbnailMaxW:    480,
		ThumbnailMaxH:    270,
		AllowedHosts:     []string{"*"},
		VerifySSL:        true,
	}
}

func validInfo() media.VideoInfo {
	return media.VideoInfo{
		DurationSeconds: 12.5,
		VideoCodec:      "h264",
		AudioCodec:      "aac",
		Container:       "mp4",
		Width:           1920,
		Height:          1080,
		SizeBytes:       1 << 20,
	}
}

func writeLocalSource(t *testing.T, cfg config.Config, sub broker.Submission) {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.MediaUploadsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.MediaUploadsDir, sub.WPMediaPath), []byte("source-bytes"), 0o644))
}

func TestEngineProcessCompletesAllQualities(t *testing.T) {
	config.Clock = config.FixedTimestampGenerator{MillisValue: 1000}
	defer func() { config.Clock = config.RealTimestampGenerator{} }()

	cfg := testConfig(t)
	sub := broker.Submission{PostID: 42, WPMediaPath: "video.mp4", Year: 2026, Month: 8}
	writeLocalSource(t, cfg, sub)

	brokerClient := broker.NewMemoryClient()
	job, err := brokerClient.Enqueue(context.Background(), sub)
	require.NoError(t, err)
	claimed, err := brokerClient.ClaimNext(context.Background(), "worker-1", time.Second)
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)

	toolkit := stubToolkit{info: validInfo(), failQuality: map[media.Quality]bool{}}
	dispatcher := webhook.NewDispatcher(cfg) // no WebhookURL configured: Send is a no-op
	engine := NewEngine(cfg, toolkit, brokerClient, dispatcher)

	require.NoError(t, engine.Process(context.Background(), claimed))

	final, err := brokerClient.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, broker.StateCompleted, final.State)
	require.Equal(t, 100, final.Progress)
	require.NotNil(t, final.Result)
	require.Len(t, final.Result.CompressedURLs, 4)
	require.Len(t, final.Result.HLSVariantURLs, 4)
	require.NotEmpty(t, final.Result.HLSMasterURL)
	require.Contains(t, final.Result.Stats.StageDurations, "validating")
}

func TestEngineProcessSucceedsWithPartialQualityFailure(t *testing.T) {
	config.Clock = config.FixedTimestampGenerator{MillisValue: 2000}
	defer func() { config.Clock = config.RealTimestampGenerator{} }()

	cfg := testConfig(t)
	sub := broker.Submission{PostID: 7, WPMediaPath: "video.mp4", Year: 2026, Month: 8}
	writeLocalSource(t, cfg, sub)

	brokerClient := broker.NewMemoryClient()
	job, err := brokerClient.Enqueue(context.Background(), sub)
	require.NoError(t, err)
	claimed, err := brokerClient.ClaimNext(context.Background(), "worker-1", time.Second)
	require.NoError(t, err)

	toolkit := stubToolkit{info: validInfo(), failQuality: map[media.Quality]bool{media.Q144p: true}}
	dispatcher := webhook.NewDispatcher(cfg)
	engine := NewEngine(cfg, toolkit, brokerClient, dispatcher)

	require.NoError(t, engine.Process(context.Background(), claimed))

	final, err := brokerClient.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, broker.StateCompleted, final.State)
	require.Len(t, final.Result.CompressedURLs, 3)
	require.NotContains(t, final.Result.CompressedURLs, string(media.Q144p))
}

func TestEngineProcessFailsAttemptWhenValidationRejectsSource(t *testing.T) {
	config.Clock = config.FixedTimestampGenerator{MillisValue: 3000}
	defer func() { config.Clock = config.RealTimestampGenerator{} }()

	cfg := testConfig(t)
	sub := broker.Submission{PostID: 9, WPMediaPath: "video.mp4", Year: 2026, Month: 8}
	writeLocalSource(t, cfg, sub)

	brokerClient := broker.NewMemoryClient()
	_, err := brokerClient.Enqueue(context.Background(), sub)
	require.NoError(t, err)
	claimed, err := brokerClient.ClaimNext(context.Background(), "worker-1", time.Second)
	require.NoError(t, err)

	tooLong := validInfo()
	tooLong.DurationSeconds = 10000
	toolkit := stubToolkit{info: tooLong}
	dispatcher := webhook.NewDispatcher(cfg)
	engine := NewEngine(cfg, toolkit, brokerClient, dispatcher)

	require.NoError(t, engine.Process(context.Background(), claimed))

	final, err := brokerClient.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	require.Equal(t, broker.StateFailed, final.State)
	require.NotEmpty(t, final.Error)
}

func TestEngineProcessFailsWhenNoSourceIsAvailable(t *testing.T) {
	config.Clock = config.FixedTimestampGenerator{MillisValue: 4000}
	defer func() { config.Clock = config.RealTimestampGenerator{} }()

	cfg := testConfig(t)
	sub := broker.Submission{PostID: 11, WPMediaPath: "missing.mp4", Year: 2026, Month: 8}

	brokerClient := broker.NewMemoryClient()
	_, err := brokerClient.Enqueue(context.Background(), sub)
	require.NoError(t, err)
	claimed, err := brokerClient.ClaimNext(context.Background(), "worker-1", time.Second)
	require.NoError(t, err)

	toolkit := stubToolkit{info: validInfo()}
	dispatcher := webhook.NewDispatcher(cfg)
	engine := NewEngine(cfg, toolkit, brokerClient, dispatcher)

	require.NoError(t, engine.Process(context.Background(), claimed))

	final, err := brokerClient.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	require.Equal(t, broker.StateFailed, final.State)
}
