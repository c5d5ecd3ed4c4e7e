package media

import (
	"fmt"
	"image"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/livepeer/vodcompress/config"
	vcerrors "github.com/livepeer/vodcompress/errors"
)

// ThumbnailOptions configures the resize+encode step.
type ThumbnailOptions struct {
	Quality int // 0-100, default 60
	MaxW    int
	MaxH    int
}

// ThumbnailResult reports the before/after sizes the completion webhook's
// stats block needs.
type ThumbnailResult struct {
	OrigBytes int64
	OutBytes  int64
	Width     int
	Height    int
}

// Thumbnailer resizes a still image to fit inside MaxW x MaxH without
// enlarging it, then encodes it as WebP.
type Thumbnailer interface {
	ResizeToWebP(in, out string, opts ThumbnailOptions) (ThumbnailResult, error)
}

type ImageThumbnailer struct{}

func (ImageThumbnailer) ResizeToWebP(in, out string, opts ThumbnailOptions) (ThumbnailResult, error) {
	origStat, err := os.Stat(in)
	if err != nil {
		return ThumbnailResult{}, vcerrors.NewJobError(vcerrors.FileNotFound, err)
	}

	src, err := imaging.Open(in, imaging.AutoOrientation(true))
	if err != nil {
		return ThumbnailResult{}, vcerrors.NewJobError(vcerrors.VideoCorrupted, fmt.Errorf("decoding thumbnail source: %w", err))
	}

	maxW, maxH := opts.MaxW, opts.MaxH
	if maxW <= 0 {
		maxW = config.DefaultThumbMaxWidth
	}
	if maxH <= 0 {
		maxH = config.DefaultThumbMaxHeigh
	}

	resized := fitWithoutEnlarging(src, maxW, maxH)

	quality := opts.Quality
	if quality <= 0 {
		quality = config.DefaultThumbQuality
	}

	f, err := os.Create(out)
	if err != nil {
		return ThumbnailResult{}, fmt.Errorf("creating thumbnail output: %w", err)
	}
	defer f.Close()

	if err := webp.Encode(f, resized, &webp.Options{
		Lossless: false,
		Quality:  float32(quality),
		Exact:    false,
	}); err != nil {
		return ThumbnailResult{}, vcerrors.NewJobError(vcerrors.InternalError, fmt.Errorf("encoding webp: %w", err))
	}

	outStat, err := os.Stat(out)
	if err != nil {
		return ThumbnailResult{}, err
	}

	bounds := resized.Bounds()
	return ThumbnailResult{
		OrigBytes: origStat.Size(),
		OutBytes:  outStat.Size(),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}

// fitWithoutEnlarging scales src down to fit inside maxW x maxH, preserving
// aspect ratio, but never scales up.
func fitWithoutEnlarging(src image.Image, maxW, maxH int) *image.NRGBA {
	b := src.Bounds()
	if b.Dx() <= maxW && b.Dy() <= maxH {
		return imaging.Clone(src)
	}
	return imaging.Fit(src, maxW, maxH, imaging.Lanczos)
}
