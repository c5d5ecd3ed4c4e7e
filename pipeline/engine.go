package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/livepeer/vodcompress/broker"
	"github.com/livepeer/vodcompress/config"
	vcerrors "github.com/livepeer/vodcompress/errors"
	vclog "github.com/livepeer/vodcompress/log"
	"github.com/livepeer/vodcompress/media"
	"github.com/livepeer/vodcompress/webhook"
)

// compressionMilestones maps each quality to the progress percent range its
// transcode occupies.
var compressionMilestones = map[media.Quality][2]int{
	media.Q480p: {25, 37},
	media.Q360p: {37, 49},
	media.Q240p: {49, 61},
	media.Q144p: {61, 73},
}

const (
	milestoneValidating = 25
	milestoneHLS        = 75
	milestoneThumbnail  = 80
	milestoneComplete   = 100
)

// Engine drives one claimed job through every pipeline stage.
type Engine struct {
	Config     config.Config
	Toolkit    media.Toolkit
	Broker     broker.Client
	Webhook    *webhook.Dispatcher
	Downloader *Downloader
}

func NewEngine(cfg config.Config, toolkit media.Toolkit, brokerClient broker.Client, dispatcher *webhook.Dispatcher) *Engine {
	return &Engine{
		Config:     cfg,
		Toolkit:    toolkit,
		Broker:     brokerClient,
		Webhook:    dispatcher,
		Downloader: NewDownloader(cfg.AllowedHosts, cfg.VerifySSL),
	}
}

// Process runs a single attempt for job and writes its terminal state back
// to the broker. It never returns an error for expected pipeline failures —
// those are captured in the Finalize call — only for unexpected bugs in the
// engine itself that the worker supervisor should treat as a fault.
func (e *Engine) Process(ctx context.Context, job *broker.Job) error {
	jobID := job.ID
	vclog.AddContext(jobID, "postId", job.Submission.PostID)
	stages := newStageRecorder()
	startMillis := config.Clock.Now().UnixMilli()

	layout := NewLayout(e.Config, job.Submission)

	result, err := e.run(ctx, job, layout, stages)

	processingMillis := config.Clock.Now().UnixMilli() - startMillis
	if result != nil {
		result.Stats.ProcessingMillis = processingMillis
	}

	state, finalizeErr := e.Broker.Finalize(ctx, jobID, result, err)
	if finalizeErr != nil {
		vclog.LogError(jobID, "finalize failed", finalizeErr)
		return finalizeErr
	}

	switch state {
	case broker.StateCompleted:
		e.Webhook.Send(ctx, webhook.Event{
			JobID: jobID, PostID: job.Submission.PostID, Status: webhook.StatusCompleted,
			Progress: milestoneComplete, Stage: "complete", Timestamp: config.Clock.Now().UnixMilli(), Result: result,
		})
		vclog.Forget(jobID)
	case broker.StateFailed:
		e.Webhook.Send(ctx, webhook.Event{
			JobID: jobID, PostID: job.Submission.PostID, Status: webhook.StatusFailed,
			Progress: job.Progress, Stage: job.Stage, Timestamp: config.Clock.Now().UnixMilli(), Err: err,
		})
		vclog.Forget(jobID)
	case broker.StateDelayed:
		vclog.Log(jobID, "attempt failed, retry scheduled", "err", err)
	}

	return nil
}

func (e *Engine) run(ctx context.Context, job *broker.Job, layout Layout, stages *stageRecorder) (*broker.Result, error) {
	jobID := job.ID
	sub := job.Submission

	e.report(ctx, job, 0, "queued")

	if err := layout.EnsureDir(); err != nil {
		return nil, vcerrors.NewJobError(vcerrors.InternalError, err)
	}
	if err := layout.Clean(); err != nil {
		return nil, vcerrors.NewJobError(vcerrors.InternalError, err)
	}

	stages.start("downloading", config.Clock.Now().UnixMilli())
	e.report(ctx, job, 0, "downloading")
	sourcePath, err := e.resolveSource(ctx, sub, layout)
	stages.finish("downloading", config.Clock.Now().UnixMilli())
	if err != nil {
		return nil, err
	}

	stages.start("validating", config.Clock.Now().UnixMilli())
	info, err := e.Toolkit.Probe(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	if stat, statErr := os.Stat(sourcePath); statErr == nil {
		info.SizeBytes = stat.Size()
	}
	if vr := Validate(info); !vr.Valid {
		return nil, vr.AsError()
	}
	stages.finish("validating", config.Clock.Now().UnixMilli())
	e.report(ctx, job, milestoneValidating, "validating")

	perQuality, producedMP4s := e.compressAll(ctx, job, sourcePath, layout, info, stages)
	if len(producedMP4s) == 0 {
		return nil, vcerrors.NewJobError(vcerrors.TranscodeFailed, fmt.Errorf("all renditions failed"))
	}

	hlsVariantURLs, hlsMasterURL := e.buildHLS(ctx, jobID, layout, producedMP4s, stages)
	e.report(ctx, job, milestoneHLS, "hls_conversion")

	thumbnailURL := e.compressThumbnail(ctx, jobID, sub, layout, stages)
	e.report(ctx, job, milestoneThumbnail, "thumbnail_compression")

	compressedURLs := map[string]string{}
	for q := range producedMP4s {
		compressedURLs[string(q)] = layout.CompressedURL(string(q))
	}

	result := &broker.Result{
		CompressedURLs: compressedURLs,
		HLSVariantURLs: hlsVariantURLs,
		HLSMasterURL:   hlsMasterURL,
		ThumbnailURL:   thumbnailURL,
		Stats:          buildStats(info.SizeBytes, perQuality, info.DurationSeconds, 0, stages.asMap()),
	}

	return result, nil
}

func (e *Engine) resolveSource(ctx context.Context, sub broker.Submission, layout Layout) (string, error) {
	localPath := filepath.Join(e.Config.MediaUploadsDir, sub.WPMediaPath)
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	if sub.WPVideoURL == "" {
		return "", vcerrors.NewJobError(vcerrors.FileNotFound, fmt.Errorf("no local media at %q and no remote video URL supplied", localPath))
	}

	ext := filepath.Ext(sub.WPVideoURL)
	if ext == "" {
		ext = ".mp4"
	}
	dest := layout.OriginalPath(ext)
	if err := e.Downloader.Fetch(ctx, sub.WPVideoURL, dest, KindVideo); err != nil {
		return "", err
	}
	return dest, nil
}

func (e *Engine) compressAll(ctx context.Context, job *broker.Job, sourcePath string, layout Layout, info media.VideoInfo, stages *stageRecorder) ([]broker.QualityStat, map[media.Quality]media.TranscodeResult) {
	var perQuality []broker.QualityStat
	produced := map[media.Quality]media.TranscodeResult{}

	for _, q := range media.CompressionOrder {
		preset := media.Presets[q]
		stageName := "compressing_" + string(q)
		stages.start(stageName, config.Clock.Now().UnixMilli())

		out := layout.CompressedPath(string(q))
		res, err := e.Toolkit.Transcode(ctx, job.ID, sourcePath, out, preset, info, e.Config.HLSTimeSeconds)
		stages.finish(stageName, config.Clock.Now().UnixMilli())

		if err != nil {
			vclog.LogError(job.ID, "rendition failed, continuing with remaining qualities", err, "quality", q)
			perQuality = append(perQuality, broker.QualityStat{Quality: string(q), Skipped: true})
			continue
		}

		produced[q] = res
		size := int64(0)
		if stat, statErr := os.Stat(out); statErr == nil {
			size = stat.Size()
		}
		perQuality = append(perQuality, broker.QualityStat{
			Quality:         string(q),
			CompressedBytes: size,
			ElapsedSeconds:  res.Elapsed.Seconds(),
		})

		milestone := compressionMilestones[q]
		e.report(ctx, job, milestone[1], stageName)
	}

	return perQuality, produced
}

func (e *Engine) buildHLS(ctx context.Context, jobID string, layout Layout, produced map[media.Quality]media.TranscodeResult, stages *stageRecorder) (map[string]string, string) {
	stages.start("hls_conversion", config.Clock.Now().UnixMilli())
	defer stages.finish("hls_conversion", config.Clock.Now().UnixMilli())

	hlsDir := layout.HLSDir()
	variantURLs := map[string]string{}
	var variants []media.Variant

	for _, q := range media.HLSOrder {
		res, ok := produced[q]
		if !ok {
			continue
		}
		mp4 := layout.CompressedPath(string(q))
		segResult, err := e.Toolkit.Segment(ctx, jobID, mp4, hlsDir, q, e.Config.HLSTimeSeconds)
		if err != nil {
			vclog.LogError(jobID, "hls segmenting failed for quality, continuing", err, "quality", q)
			continue
		}
		variantURLs[string(q)] = layout.HLSVariantURL(string(q))
		width, height := segResult.Width, segResult.Height
		if width == 0 || height == 0 {
			width, height = res.Width, res.Height
		}
		variants = append(variants, media.Variant{Quality: q, Width: width, Height: height})
	}

	if len(variants) == 0 {
		return nil, ""
	}

	master, err := media.BuildMasterPlaylist(variants)
	if err != nil {
		vclog.LogError(jobID, "master playlist build failed", err)
		return variantURLs, ""
	}
	if err := os.WriteFile(filepath.Join(hlsDir, "master.m3u8"), []byte(master), 0o644); err != nil {
		vclog.LogError(jobID, "writing master playlist failed", err)
		return variantURLs, ""
	}

	return variantURLs, layout.HLSMasterURL()
}

func (e *Engine) compressThumbnail(ctx context.Context, jobID string, sub broker.Submission, layout Layout, stages *stageRecorder) string {
	if sub.WPThumbnailURL == "" {
		return ""
	}
	stages.start("thumbnail_compression", config.Clock.Now().UnixMilli())
	defer stages.finish("thumbnail_compression", config.Clock.Now().UnixMilli())

	ext := filepath.Ext(sub.WPThumbnailURL)
	if ext == "" {
		ext = ".jpg"
	}
	tmp := filepath.Join(layout.Dir, "thumbnail_source"+ext)
	if err := e.Downloader.Fetch(ctx, sub.WPThumbnailURL, tmp, KindImage); err != nil {
		vclog.LogError(jobID, "thumbnail download failed, continuing without one", err)
		return ""
	}
	defer os.Remove(tmp)

	_, err := e.Toolkit.ResizeToWebP(tmp, layout.ThumbnailPath(), media.ThumbnailOptions{
		Quality: e.Config.ThumbnailQuality,
		MaxW:    e.Config.ThumbnailMaxW,
		MaxH:    e.Config.ThumbnailMaxH,
	})
	if err != nil {
		vclog.LogError(jobID, "thumbnail encode failed, continuing without one", err)
		return ""
	}
	return layout.ThumbnailURL()
}

// report folds a stage's progress into the broker record and, separately,
// into a throttled webhook progress event.
func (e *Engine) report(ctx context.Context, job *broker.Job, percent int, stage string) {
	if err := e.Broker.UpdateProgress(ctx, job.ID, percent, stage); err != nil {
		vclog.LogError(job.ID, "progress update failed", err)
	}
	job.Progress = percent
	job.Stage = stage

	e.Webhook.Send(ctx, webhook.Event{
		JobID:     job.ID,
		PostID:    job.Submission.PostID,
		Status:    webhook.StatusProcessing,
		Progress:  percent,
		Stage:     stage,
		Timestamp: config.Clock.Now().UnixMilli(),
	})
}
