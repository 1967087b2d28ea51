package cissync

import (
	"context"
	"time"
)

// Flow stages instrumented by the engine.
const (
	MetricsStageFetch   = "fetch"
	MetricsStageProcess = "process"
	MetricsStageFlush   = "flush"
)

// StageTiming is one observed flow stage: how long it took, how many rows it
// covered, and whether it ended in a systemic error.
type StageTiming struct {
	Flow     FlowKind
	Stage    string
	Duration time.Duration
	Rows     int
	Error    bool
}

// StageMetricsRecorder receives per-stage timings from the engine. The
// callback runs inline on the flow goroutine; implementations must be fast
// and must not block.
type StageMetricsRecorder interface {
	ObserveStage(ctx context.Context, t StageTiming)
}

// StageMetricsFunc adapts a function to StageMetricsRecorder.
type StageMetricsFunc func(ctx context.Context, t StageTiming)

func (f StageMetricsFunc) ObserveStage(ctx context.Context, t StageTiming) { f(ctx, t) }

// stageStart returns the stage start instant, or zero when nothing consumes
// timings so the hot loop pays no clock reads.
func (s *SyncService) stageStart() time.Time {
	if s.config.StageMetrics == nil && !s.config.LogStageTimings {
		return time.Time{}
	}
	return time.Now()
}

func (s *SyncService) observeStage(ctx context.Context, flow FlowKind, stage string, start time.Time, rows int, failed bool) {
	if start.IsZero() {
		return
	}
	t := StageTiming{
		Flow:     flow,
		Stage:    stage,
		Duration: time.Since(start),
		Rows:     rows,
		Error:    failed,
	}
	if s.config.StageMetrics != nil {
		s.config.StageMetrics.ObserveStage(ctx, t)
	}
	if s.config.LogStageTimings {
		s.logger.Debug("flow stage timing",
			"flow", t.Flow, "stage", t.Stage, "duration", t.Duration, "rows", t.Rows, "error", t.Error)
	}
}
