package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grafov/m3u8"

	vcerrors "github.com/livepeer/vodcompress/errors"
)

// SegmentResult is the outcome of segmenting one quality's MP4 into an HLS
// variant.
type SegmentResult struct {
	PlaylistPath  string
	SegmentCount  int
	Width         int
	Height        int
}

// Segmenter produces <quality>.m3u8 + <quality>_NNN.ts from an already
//-transcoded MP4, using stream-copy — it relies on the keyframe spacing the
// transcode step already forced.
type Segmenter interface {
	Segment(ctx context.Context, jobID, inMp4, outDir string, quality Quality, segSeconds int) (SegmentResult, error)
}

type FFmpegSegmenter struct {
	BinPath string
	Probe   Prober
}

func (s FFmpegSegmenter) Segment(ctx context.Context, jobID, inMp4, outDir string, quality Quality, segSeconds int) (SegmentResult, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return SegmentResult{}, fmt.Errorf("creating hls dir: %w", err)
	}

	playlistName := fmt.Sprintf("%s.m3u8", quality)
	segmentPattern := fmt.Sprintf("%s_%%03d.ts", quality)
	playlistPath := filepath.Join(outDir, playlistName)

	bin := s.BinPath
	if bin == "" {
		bin = "ffmpeg"
	}
	args := []string{
		"-y",
		"-i", inMp4,
		"-c", "copy",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", segSeconds),
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments+append_list",
		"-hls_segment_type", "mpegts",
		"-start_number", "0",
		"-hls_segment_filename", filepath.Join(outDir, segmentPattern),
		playlistPath,
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	if err := logOutputs(jobID, cmd); err != nil {
		return SegmentResult{}, err
	}
	if err := cmd.Run(); err != nil {
		return SegmentResult{}, vcerrors.NewJobError(vcerrors.TranscodeFailed, fmt.Errorf("hls segmenting %s: %w", quality, err))
	}

	count, err := countSegments(outDir, string(quality))
	if err != nil {
		return SegmentResult{}, err
	}

	width, height := 0, 0
	if s.Probe != nil {
		if info, err := s.Probe.Probe(ctx, inMp4); err == nil {
			width, height = info.Width, info.Height
		}
	}

	return SegmentResult{
		PlaylistPath: playlistPath,
		SegmentCount: count,
		Width:        width,
		Height:       height,
	}, nil
}

func countSegments(dir, quality string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	prefix := quality + "_"
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".ts") {
			n++
		}
	}
	return n, nil
}

// Variant is one successfully-segmented quality, ready to be listed in the
// master playlist.
type Variant struct {
	Quality Quality
	Width   int
	Height  int
}

// BuildMasterPlaylist writes master.m3u8 enumerating the given variants in
// ascending-resolution order (144p -> 480p), advertising BANDWIDTH,
// AVERAGE-BANDWIDTH, RESOLUTION (from the actual encoded dimensions, not the
// preset), CODECS, and NAME.
func BuildMasterPlaylist(variants []Variant) (string, error) {
	ordered := make([]Variant, len(variants))
	copy(ordered, variants)
	order := map[Quality]int{}
	for i, q := range HLSOrder {
		order[q] = i
	}
	sort.Slice(ordered, func(i, j int) bool {
		return order[ordered[i].Quality] < order[ordered[j].Quality]
	})

	master := m3u8.NewMasterPlaylist()
	for _, v := range ordered {
		preset, ok := Presets[v.Quality]
		if !ok {
			continue
		}
		width, height := v.Width, v.Height
		if width == 0 || height == 0 {
			width, height = ScaledWidth(0, 1, preset.TargetHeight), preset.TargetHeight
		}
		master.Append(fmt.Sprintf("%s.m3u8", v.Quality), &m3u8.MediaPlaylist{}, m3u8.VariantParams{
			Bandwidth:        uint32(preset.HLSBandwidth),
			AverageBandwidth: uint32(preset.HLSBandwidth),
			Resolution:       fmt.Sprintf("%dx%d", width, height),
			Codecs:           preset.CodecString,
			Name:             string(v.Quality),
		})
	}
	return master.String(), nil
}
