package pipeline

import "github.com/livepeer/vodcompress/broker"

// stageRecorder accumulates the wall-clock time spent in each stage, surfaced
// in the result record as Stats.StageDurations. The completion webhook
// payload does not include it.
type stageRecorder struct {
	durations map[string]int64
	starts    map[string]int64
}

func newStageRecorder() *stageRecorder {
	return &stageRecorder{durations: map[string]int64{}, starts: map[string]int64{}}
}

func (r *stageRecorder) start(stage string, nowMillis int64) {
	r.starts[stage] = nowMillis
}

func (r *stageRecorder) finish(stage string, nowMillis int64) {
	if started, ok := r.starts[stage]; ok {
		r.durations[stage] = nowMillis - started
	}
}

func (r *stageRecorder) asMap() map[string]int64 {
	return r.durations
}

// buildStats assembles the aggregate Stats block for a successful attempt.
func buildStats(originalBytes int64, perQuality []broker.QualityStat, duration float64, processingMillis int64, stages map[string]int64) broker.Stats {
	var compressed int64
	for _, q := range perQuality {
		if !q.Skipped && q.CompressedBytes > compressed {
			compressed = q.CompressedBytes
		}
	}
	ratio := 0.0
	if originalBytes > 0 && compressed > 0 {
		ratio = float64(compressed) / float64(originalBytes)
	}
	return broker.Stats{
		OriginalBytes:    originalBytes,
		CompressedBytes:  compressed,
		CompressionRatio: ratio,
		DurationSeconds:  duration,
		ProcessingMillis: processingMillis,
		PerQuality:       perQuality,
		StageDurations:   stages,
	}
}
