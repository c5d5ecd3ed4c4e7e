package media

import "context"

// Toolkit bundles the probe/transcode/segment/thumbnail operations the
// pipeline engine drives a job through. Constructing one concrete
// implementation (backed by a real ffmpeg binary and the image libraries)
// at startup, and a stub implementation in tests, is the dependency
// injection seam that keeps the engine testable without package-level
// singletons.
type Toolkit interface {
	Prober
	Transcoder
	Segmenter
	Thumbnailer
}

type toolkit struct {
	Prober
	Transcoder
	Segmenter
	Thumbnailer
}

// NewFFmpegToolkit wires the real implementations together, looking up
// ffmpeg on ffmpegPath (falling back to $PATH) for both transcode and
// segment steps.
func NewFFmpegToolkit(ffmpegPath string) Toolkit {
	probe := FFProbe{}
	return toolkit{
		Prober:      probe,
		Transcoder:  FFmpegTranscoder{BinPath: ffmpegPath},
		Segmenter:   FFmpegSegmenter{BinPath: ffmpegPath, Probe: probe},
		Thumbnailer: ImageThumbnailer{},
	}
}

// EnsureFFmpegAvailable is called at worker boot, where a missing transcoder
// binary is a fatal startup failure (exit 1), and by the health endpoint on
// every request.
func EnsureFFmpegAvailable(ctx context.Context, ffmpegPath string) error {
	bin := ffmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	return lookupBinary(ctx, bin)
}
