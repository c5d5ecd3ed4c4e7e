// Package worker runs the concurrency-capped pool that claims jobs from the
// broker and drives them through the pipeline engine, restarting itself
// with backoff if the claim loop faults outside of a single job's handling.
package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/livepeer/vodcompress/broker"
	"github.com/livepeer/vodcompress/config"
	vcerrors "github.com/livepeer/vodcompress/errors"
	vclog "github.com/livepeer/vodcompress/log"
	"github.com/livepeer/vodcompress/media"
	"github.com/livepeer/vodcompress/pipeline"
)

const (
	claimPollTimeout  = 5 * time.Second
	shutdownGrace     = 30 * time.Second
	initialRetryLimit = 10
	restartBackoffCap = 60 * time.Second
)

// Supervisor owns the claim loop: boot (verify ffmpeg + broker connectivity),
// run (concurrency-capped claim/process loop), and restart-with-backoff if
// the loop exits on an unexpected fault rather than a clean shutdown.
type Supervisor struct {
	Config  config.Config
	Broker  broker.Client
	Engine  *pipeline.Engine
	Toolkit media.Toolkit

	mu           sync.Mutex
	restartCount int
}

func NewSupervisor(cfg config.Config, brokerClient broker.Client, toolkit media.Toolkit, engine *pipeline.Engine) *Supervisor {
	return &Supervisor{Config: cfg, Broker: brokerClient, Engine: engine, Toolkit: toolkit}
}

// Boot verifies the process can actually do its job before Run is called:
// the content/upload directories are writable and ffmpeg is on the path.
func (s *Supervisor) Boot(ctx context.Context) error {
	if err := EnsureDirWritable(s.Config.MediaUploadsDir); err != nil {
		return err
	}
	if err := EnsureDirWritable(s.Config.MediaContentDir); err != nil {
		return err
	}
	if err := media.EnsureFFmpegAvailable(ctx, s.Config.FFmpegPath); err != nil {
		return err
	}
	if _, err := s.Broker.Stats(ctx); err != nil {
		return err
	}
	return nil
}

// Run drives the claim loop until ctx is cancelled, restarting it with
// exponential backoff (5s doubling per restart, capped at 60s) if it exits
// with an unexpected error. Past initialRetryLimit restarts every wait is the
// 60s cap and the supervisor keeps retrying indefinitely — a worker that
// can't reach Redis for an extended outage should keep trying rather than
// give up.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}

		s.mu.Lock()
		s.restartCount++
		n := s.restartCount
		s.mu.Unlock()

		wait := restartBackoff(n)
		vclog.LogNoRequestID("worker loop faulted, restarting", "err", err, "attempt", n, "wait", wait)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func restartBackoff(attempt int) time.Duration {
	if attempt > initialRetryLimit {
		return restartBackoffCap
	}
	d := 5 * time.Second * time.Duration(uint(1)<<uint(attempt-1))
	if d > restartBackoffCap {
		return restartBackoffCap
	}
	return d
}

// runOnce claims and processes jobs with up to Config.ParallelLimit
// concurrent workers until ctx is cancelled or claiming faults. Claiming
// stops as soon as ctx is cancelled, but in-flight attempts keep running on
// a context of their own that outlives ctx by shutdownGrace, so a shutdown
// signal doesn't abort a transcode that's nearly done. Claim attempts are
// also rate-limited to ParallelLimit per second, the same as the
// concurrency cap, so a broker outage recovering doesn't get hit with a
// thundering herd of simultaneous claim retries.
func (s *Supervisor) runOnce(ctx context.Context) error {
	limit := s.Config.ParallelLimit
	if limit < 1 {
		limit = 1
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	go func() {
		<-ctx.Done()
		t := time.NewTimer(shutdownGrace)
		defer t.Stop()
		<-t.C
		cancelJobs()
	}()

	g := new(errgroup.Group)
	sem := make(chan struct{}, limit)
	ticker := time.NewTicker(time.Second / time.Duration(limit))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case sem <- struct{}{}:
		}

		select {
		case <-ctx.Done():
			<-sem
			return g.Wait()
		case <-ticker.C:
		}

		job, err := s.Broker.ClaimNext(ctx, "worker", claimPollTimeout)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				return g.Wait()
			}
			return err
		}
		if job == nil {
			<-sem
			continue
		}

		g.Go(func() error {
			defer func() { <-sem }()
			s.process(jobCtx, job)
			return nil
		})
	}
}

// process runs one job's attempt, recovering from a panic inside the
// pipeline engine by failing that job rather than taking the whole
// supervisor down.
func (s *Supervisor) process(ctx context.Context, job *broker.Job) {
	defer func() {
		if r := recover(); r != nil {
			vclog.LogNoRequestID("recovered panic processing job", "jobId", job.ID, "panic", r)
			_, _ = s.Broker.Finalize(ctx, job.ID, nil, vcerrors.Unretriable(panicError{r}))
		}
	}()

	if err := s.Engine.Process(ctx, job); err != nil {
		vclog.LogError(job.ID, "job processing returned an unexpected error", err)
	}
}

type panicError struct{ v interface{} }

func (p panicError) Error() string {
	return "panic during job processing"
}

