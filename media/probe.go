package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"

	vcerrors "github.com/livepeer/vodcompress/errors"
)

// VideoInfo is the metadata a source file probe returns.
type VideoInfo struct {
	DurationSeconds float64
	VideoCodec      string
	AudioCodec      string
	Container       string
	Width           int
	Height          int
	BitrateBps      int64
	FrameRate       float64
	SizeBytes       int64
}

// Prober probes a local file for the metadata the pipeline's validation
// stage needs. It's an interface (rather than a concrete ffprobe caller) so
// the pipeline engine's tests can substitute a stub.
type Prober interface {
	Probe(ctx context.Context, path string) (VideoInfo, error)
}

// FFProbe wraps gopkg.in/vansante/go-ffprobe.v2, retrying transient
// failures with exponential backoff before giving up.
type FFProbe struct{}

func (FFProbe) Probe(ctx context.Context, path string) (VideoInfo, error) {
	var data *ffprobe.ProbeData

	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		d, err := ffprobe.ProbeURL(probeCtx, path)
		if err != nil {
			return err
		}
		data = d
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithMaxRetries(b, 3)); err != nil {
		return VideoInfo{}, vcerrors.NewJobError(vcerrors.VideoCorrupted, fmt.Errorf("probe failed: %w", err))
	}

	return parseProbeData(data)
}

func parseProbeData(data *ffprobe.ProbeData) (VideoInfo, error) {
	videoStream := data.FirstVideoStream()
	if videoStream == nil {
		return VideoInfo{}, vcerrors.NewJobError(vcerrors.VideoCorrupted, fmt.Errorf("no video stream found"))
	}
	if data.Format == nil {
		return VideoInfo{}, vcerrors.NewJobError(vcerrors.VideoCorrupted, fmt.Errorf("format information missing"))
	}

	duration := data.Format.Duration().Seconds()
	if duration <= 0 {
		return VideoInfo{}, vcerrors.NewJobError(vcerrors.VideoCorrupted, fmt.Errorf("zero duration"))
	}

	if videoStream.Width <= 0 || videoStream.Height <= 0 {
		return VideoInfo{}, vcerrors.NewJobError(vcerrors.VideoCorrupted, fmt.Errorf("zero dimensions"))
	}

	var audioCodec string
	if a := data.FirstAudioStream(); a != nil {
		audioCodec = strings.ToLower(a.CodecName)
	}

	bitrate := parseBitrate(videoStream.BitRate, data.Format.BitRate)
	size, _ := strconv.ParseInt(data.Format.Size, 10, 64)
	fps := parseFps(videoStream.AvgFrameRate)
	if fps == 0 {
		fps = parseFps(videoStream.RFrameRate)
	}

	return VideoInfo{
		DurationSeconds: duration,
		VideoCodec:      strings.ToLower(videoStream.CodecName),
		AudioCodec:      audioCodec,
		Container:       normalizeContainer(data.Format.FormatName),
		Width:           videoStream.Width,
		Height:          videoStream.Height,
		BitrateBps:      bitrate,
		FrameRate:       fps,
		SizeBytes:       size,
	}, nil
}

func parseBitrate(streamBitrate, formatBitrate string) int64 {
	v := streamBitrate
	if v == "" {
		v = formatBitrate
	}
	b, _ := strconv.ParseInt(v, 10, 64)
	return b
}

func parseFps(raw string) float64 {
	parts := strings.Split(raw, "/")
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(raw, 64)
		return f
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// normalizeContainer maps ffprobe's format_name (which can list several
// comma-separated aliases, e.g. "mov,mp4,m4a,3gp,3g2,mj2") down to the
// single container tag validation checks against.
func normalizeContainer(formatName string) string {
	names := strings.Split(formatName, ",")
	for _, n := range names {
		switch n {
		case "mp4", "mov", "webm", "matroska":
			if n == "matroska" {
				return "mkv"
			}
			return n
		}
	}
	if len(names) > 0 {
		return names[0]
	}
	return formatName
}
