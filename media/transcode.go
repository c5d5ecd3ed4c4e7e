package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	vcerrors "github.com/livepeer/vodcompress/errors"
)

// TranscodeResult is the outcome of producing a single quality rendition.
type TranscodeResult struct {
	OK      bool
	Elapsed time.Duration
	Width   int
	Height  int
}

// Transcoder produces a single quality rendition from a validated source
// file. It's an interface so the pipeline can inject a stub in tests
// without shelling out to a real ffmpeg binary.
type Transcoder interface {
	Transcode(ctx context.Context, jobID, in, out string, preset QualityPreset, srcInfo VideoInfo, hlsSegSeconds int) (TranscodeResult, error)
}

// FFmpegTranscoder shells out to an ffmpeg binary located on the host,
// applying the scale/codec filter chain for each quality preset.
type FFmpegTranscoder struct {
	BinPath string
}

func (t FFmpegTranscoder) Transcode(ctx context.Context, jobID, in, out string, preset QualityPreset, srcInfo VideoInfo, hlsSegSeconds int) (TranscodeResult, error) {
	start := time.Now()

	args := []string{
		"-y",
		"-i", in,
		"-vf", fmt.Sprintf("scale=-2:%d", preset.TargetHeight),
		"-c:v", "libx264",
		"-preset", "slow",
		"-crf", strconv.Itoa(preset.CRF),
		"-profile:v", "main",
		"-level", "3.1",
		"-pix_fmt", "yuv420p",
		"-maxrate", strconv.Itoa(preset.MaxBitrate),
		"-bufsize", strconv.Itoa(preset.MaxBitrate * 2),
		"-map", "0:v:0",
	}
	if srcInfo.AudioCodec != "" {
		args = append(args,
			"-map", "0:a:0?",
			"-c:a", "aac",
			"-b:a", "64k",
			"-ar", "44100",
			"-ac", "2",
		)
	} else {
		args = append(args, "-an")
	}
	args = append(args,
		"-movflags", "+faststart",
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", hlsSegSeconds),
		"-sc_threshold", "0",
		out,
	)

	bin := t.BinPath
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	if err := logOutputs(jobID, cmd); err != nil {
		return TranscodeResult{}, err
	}
	if err := cmd.Run(); err != nil {
		return TranscodeResult{}, vcerrors.NewJobError(vcerrors.TranscodeFailed, fmt.Errorf("ffmpeg %s: %w", preset.Quality, err))
	}

	return TranscodeResult{
		OK:      true,
		Elapsed: time.Since(start),
		Width:   ScaledWidth(srcInfo.Width, srcInfo.Height, preset.TargetHeight),
		Height:  preset.TargetHeight,
	}, nil
}
