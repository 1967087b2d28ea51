package cissync

import (
	"context"
	"fmt"
	"time"
)

// rowProcessor handles one source row end to end: resolve references,
// coerce scalars, upsert, classify. Implementations contain all row-level
// failures and report them as OutcomeFailed; only the flow loop can abort a
// run, and only for systemic failures (source iteration, progress flush).
type rowProcessor func(ctx context.Context, rc *RunContext, row SourceRow) Outcome

// flowDef parameterizes one sync flow: the source query with its bound
// parameters and the per-row pipeline. batchSize == 0 means the flow drains
// the query in one read and flushes progress every progressFlushRows rows.
type flowDef struct {
	kind      FlowKind
	query     string
	params    map[string]any
	batchSize int
	process   rowProcessor
}

// executeFlow drives a flow: fetch from the source, process rows in source
// order, persist counter deltas on batch boundaries. The returned error is
// a run-aborting systemic failure; per-row defects never surface here.
func (s *SyncService) executeFlow(ctx context.Context, rc *RunContext, def flowDef) error {
	if def.batchSize <= 0 {
		return s.executeSingleShot(ctx, rc, def)
	}
	return s.executeBatched(ctx, rc, def)
}

func (s *SyncService) executeSingleShot(ctx context.Context, rc *RunContext, def flowDef) error {
	fetchStart := s.stageStart()
	rows, err := s.source.Query(ctx, def.query, def.params)
	s.observeStage(ctx, def.kind, MetricsStageFetch, fetchStart, len(rows), err != nil)
	if err != nil {
		return fmt.Errorf("source query: %w", err)
	}
	s.logger.Info("fetched source rows", "flow", def.kind, "run_id", rc.Run.ID, "rows", len(rows))

	processStart := s.stageStart()
	for i, row := range rows {
		rc.Record(def.process(ctx, rc, row))
		if (i+1)%progressFlushRows == 0 {
			if err := rc.Flush(ctx); err != nil {
				return err
			}
		}
	}
	s.observeStage(ctx, def.kind, MetricsStageProcess, processStart, len(rows), false)
	return rc.Flush(ctx)
}

func (s *SyncService) executeBatched(ctx context.Context, rc *RunContext, def flowDef) error {
	fetchStart := s.stageStart()
	it, err := s.source.FetchBatches(ctx, def.query, def.params, def.batchSize)
	s.observeStage(ctx, def.kind, MetricsStageFetch, fetchStart, 0, err != nil)
	if err != nil {
		return fmt.Errorf("source query: %w", err)
	}
	defer it.Close()

	for it.Next(ctx) {
		batch := it.Batch()
		s.logger.Info("processing source batch", "flow", def.kind, "run_id", rc.Run.ID, "rows", len(batch))

		processStart := s.stageStart()
		for _, row := range batch {
			rc.Record(def.process(ctx, rc, row))
		}
		s.observeStage(ctx, def.kind, MetricsStageProcess, processStart, len(batch), false)

		flushStart := s.stageStart()
		err := rc.Flush(ctx)
		s.observeStage(ctx, def.kind, MetricsStageFlush, flushStart, len(batch), err != nil)
		if err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("source iteration: %w", err)
	}
	return rc.Flush(ctx)
}

// yearMonth renders a Gregorian calendar period as the YYYYMM form the
// legacy queries compare against.
func yearMonth(year, month int) string {
	return fmt.Sprintf("%04d%02d", year, month)
}

// buddhistYearMonth renders the same period in the Thai Buddhist era, for
// query sites where the source formats dates with NLS_CALENDAR='THAI
// BUDDHA' or stores BE periods.
func buddhistYearMonth(year, month int) string {
	return yearMonth(year+BuddhistEraOffset, month)
}

// periodOrNow fills missing year/month from the current date.
func periodOrNow(p SyncParams) (int, int) {
	now := time.Now()
	year, month := now.Year(), int(now.Month())
	if p.Year != nil {
		year = *p.Year
	}
	if p.Month != nil {
		month = *p.Month
	}
	return year, month
}
