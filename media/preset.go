// Package media wraps the external transcoder binary and image-resize
// library behind a small toolkit interface: probe, transcode, segment, and
// thumbnail resize/encode.
package media

// Quality is the enumerated set of output renditions. Modeling it as a
// distinct Go type instead of bare strings still lets the fixed preset
// table below be a plain map keyed by it.
type Quality string

const (
	Q480p Quality = "480p"
	Q360p Quality = "360p"
	Q240p Quality = "240p"
	Q144p Quality = "144p"
)

// CompressionOrder is the fixed order the compression loop invokes
// qualities in, highest resolution first.
var CompressionOrder = []Quality{Q480p, Q360p, Q240p, Q144p}

// HLSOrder is the ascending-resolution order the HLS master playlist lists
// variants in — the reverse of CompressionOrder.
var HLSOrder = []Quality{Q144p, Q240p, Q360p, Q480p}

// QualityPreset is the fixed per-quality encode configuration.
type QualityPreset struct {
	Quality       Quality
	TargetHeight  int
	VideoBitrate  int // bps
	MaxBitrate    int // bps
	CRF           int
	HLSBandwidth  int
	CodecString   string
}

// Presets is the fixed preset table, keyed by quality.
var Presets = map[Quality]QualityPreset{
	Q480p: {
		Quality:      Q480p,
		TargetHeight: 480,
		VideoBitrate: 800_000,
		MaxBitrate:   1_200_000,
		CRF:          23,
		HLSBandwidth: 1_300_000,
		CodecString:  "avc1.4d001f,mp4a.40.2",
	},
	Q360p: {
		Quality:      Q360p,
		TargetHeight: 360,
		VideoBitrate: 500_000,
		MaxBitrate:   750_000,
		CRF:          23,
		HLSBandwidth: 850_000,
		CodecString:  "avc1.4d001f,mp4a.40.2",
	},
	Q240p: {
		Quality:      Q240p,
		TargetHeight: 240,
		VideoBitrate: 300_000,
		MaxBitrate:   450_000,
		CRF:          22,
		HLSBandwidth: 550_000,
		CodecString:  "avc1.4d0015,mp4a.40.2",
	},
	Q144p: {
		Quality:      Q144p,
		TargetHeight: 144,
		VideoBitrate: 150_000,
		MaxBitrate:   225_000,
		CRF:          21,
		HLSBandwidth: 325_000,
		CodecString:  "avc1.4d000d,mp4a.40.2",
	},
}

// EvenWidth rounds width to the nearest even integer, so scaled output
// dimensions stay compatible with yuv420p chroma subsampling.
func EvenWidth(width int) int {
	if width%2 != 0 {
		return width - 1
	}
	return width
}

// ScaledWidth returns the width that preserves aspect ratio for a target
// height, rounded down to the nearest even integer.
func ScaledWidth(srcWidth, srcHeight, targetHeight int) int {
	if srcHeight == 0 {
		return targetHeight
	}
	w := srcWidth * targetHeight / srcHeight
	return EvenWidth(w)
}
