// Package config loads the worker/intake process configuration once at
// startup and hands it to every collaborator via constructor injection —
// the composition root lives in cmd/server and cmd/worker, not here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Clock lets tests substitute FixedTimestampGenerator for RealTimestampGenerator.
var Clock TimestampGenerator = RealTimestampGenerator{}

const (
	DefaultMaxAttempts   = 3
	DefaultBackoffBase   = 5 * time.Second
	DefaultStallWindow   = 30 * time.Second
	DefaultHLSTime       = 3
	MinHLSTime           = 2
	MaxHLSTime           = 3
	DefaultThumbQuality  = 60
	DefaultThumbMaxWidth = 640
	DefaultThumbMaxHeigh = 360
	ContentURLSegment    = "/content/"

	MaxVideoDurationSeconds = 300
	MaxVideoFileBytes       = 100 << 20 // 100 MiB
	MinVideoFetchBytes      = 1 << 10   // 1 KiB
	MinImageFetchBytes      = 100       // 100 B
	MaxImageFetchBytes      = 50 << 20  // 50 MiB

	VideoFetchTimeout = 300 * time.Second
	ImageFetchTimeout = 60 * time.Second
)

var AllowedVideoCodecs = map[string]bool{
	"h264": true, "hevc": true, "vp8": true, "vp9": true,
	"prores": true, "mpeg4": true, "av1": true,
}

var AllowedContainers = map[string]bool{
	"mp4": true, "mov": true, "webm": true, "mkv": true,
}

// Config is populated once at process startup from the environment and
// treated as immutable thereafter.
type Config struct {
	APIKey        string
	AdminPassword string
	BaseURL       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MediaUploadsDir string
	MediaContentDir string

	LogFile string

	HLSTimeSeconds   int
	ThumbnailQuality int
	ThumbnailMaxW    int
	ThumbnailMaxH    int

	WebhookURL    string
	AllowedHosts  []string // comma-separated ALLOWED_DOWNLOAD_DOMAINS entries
	VerifySSL     bool
	ParallelLimit int
	AllowedOrigins []string

	FFmpegPath string
}

// FromEnv populates a Config from the process environment, applying
// defaults and clamps for every tunable.
func FromEnv() (Config, error) {
	c := Config{
		APIKey:          os.Getenv("API_KEY"),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
		BaseURL:         strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		RedisAddr:       fmt.Sprintf("%s:%s", getEnv("REDIS_HOST", "127.0.0.1"), getEnv("REDIS_PORT", "6379")),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		MediaUploadsDir: getEnv("MEDIA_UPLOADS_DIR", "./data/uploads"),
		MediaContentDir: getEnv("MEDIA_CONTENT_DIR", "./data/content"),
		LogFile:         os.Getenv("LOG_FILE"),
		WebhookURL:      os.Getenv("WORDPRESS_WEBHOOK_URL"),
		VerifySSL:       getEnvBool("VERIFY_SSL_DOWNLOADS", true),
		ParallelLimit:   getEnvInt("PARALLEL_LIMIT", 1),
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
	}

	if db, err := strconv.Atoi(getEnv("REDIS_DATABASE", "0")); err == nil {
		c.RedisDB = db
	}

	c.HLSTimeSeconds = clamp(getEnvInt("HLS_TIME", DefaultHLSTime), MinHLSTime, MaxHLSTime)
	c.ThumbnailQuality = clamp(getEnvInt("THUMBNAIL_QUALITY", DefaultThumbQuality), 0, 100)
	c.ThumbnailMaxW = getEnvInt("THUMBNAIL_MAX_WIDTH", DefaultThumbMaxWidth)
	c.ThumbnailMaxH = getEnvInt("THUMBNAIL_MAX_HEIGHT", DefaultThumbMaxHeigh)

	c.AllowedHosts = splitCSV(getEnv("ALLOWED_DOWNLOAD_DOMAINS", ""))
	c.AllowedOrigins = splitCSV(getEnv("ALLOWED_ORIGINS", "*"))

	if c.ParallelLimit < 1 {
		c.ParallelLimit = 1
	}

	return c, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
