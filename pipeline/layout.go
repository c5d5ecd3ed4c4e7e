// Package pipeline drives the per-job stage state machine: download,
// validate, compress each quality, segment to HLS, compress the thumbnail,
// and assemble the terminal result record.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/livepeer/vodcompress/broker"
	"github.com/livepeer/vodcompress/config"
)

// Layout is the deterministic on-disk and public-URL location for one job's
// outputs: <contentRoot>/<YYYY>/<MM>/<postId>/.
type Layout struct {
	Dir     string
	BaseURL string
	urlPath string
}

func NewLayout(cfg config.Config, sub broker.Submission) Layout {
	rel := filepath.Join(fmt.Sprintf("%04d", sub.Year), fmt.Sprintf("%02d", sub.Month), fmt.Sprintf("%d", sub.PostID))
	return Layout{
		Dir:     filepath.Join(cfg.MediaContentDir, rel),
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		urlPath: rel,
	}
}

func (l Layout) EnsureDir() error {
	return os.MkdirAll(l.Dir, 0o755)
}

func (l Layout) OriginalPath(ext string) string {
	return filepath.Join(l.Dir, "original"+ext)
}

func (l Layout) CompressedPath(quality string) string {
	return filepath.Join(l.Dir, fmt.Sprintf("compressed_%s.mp4", quality))
}

func (l Layout) HLSDir() string {
	return filepath.Join(l.Dir, "hls")
}

func (l Layout) ThumbnailPath() string {
	return filepath.Join(l.Dir, "thumbnail.webp")
}

func (l Layout) url(rel string) string {
	return fmt.Sprintf("%s%s%s/%s", l.BaseURL, config.ContentURLSegment, l.urlPath, rel)
}

func (l Layout) CompressedURL(quality string) string {
	return l.url(fmt.Sprintf("compressed_%s.mp4", quality))
}

func (l Layout) HLSVariantURL(quality string) string {
	return l.url(fmt.Sprintf("hls/%s.m3u8", quality))
}

func (l Layout) HLSMasterURL() string {
	return l.url("hls/master.m3u8")
}

func (l Layout) ThumbnailURL() string {
	return l.url("thumbnail.webp")
}

// Clean removes any pre-existing original.*, compressed_*.mp4, hls/, and
// thumbnail.* under the layout directory, so reprocessing an attempt is
// idempotent.
func (l Layout) Clean() error {
	entries, err := os.ReadDir(l.Dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasPrefix(name, "original."),
			strings.HasPrefix(name, "compressed_") && strings.HasSuffix(name, ".mp4"),
			name == "hls",
			strings.HasPrefix(name, "thumbnail."):
			if err := os.RemoveAll(filepath.Join(l.Dir, name)); err != nil {
				return err
			}
		}
	}
	return nil
}
