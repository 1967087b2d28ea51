package cissync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RunContext tracks one sync-flow invocation. It is created by startRun and
// passed explicitly through the pipeline; there is no ambient "current run"
// state anywhere in the engine.
type RunContext struct {
	Run *SyncRun

	store   Store
	logger  *slog.Logger
	pending Counters // deltas recorded since the last flush
	done    bool
}

// startRun creates the persisted running record with zero counters and the
// serialized query parameters.
func startRun(ctx context.Context, store Store, logger *slog.Logger, kind FlowKind,
	params map[string]any, isFullSync bool, initiatedBy *string) (*RunContext, error) {

	var raw json.RawMessage
	if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("serialize query params: %w", err)
		}
		raw = b
	}

	run := &SyncRun{
		ID:          uuid.New(),
		FlowKind:    kind,
		StartedAt:   time.Now().UTC(),
		Status:      RunRunning,
		IsFullSync:  isFullSync,
		QueryParams: raw,
		InitiatedBy: initiatedBy,
	}
	if err := store.InsertSyncRun(ctx, run); err != nil {
		return nil, fmt.Errorf("insert sync run: %w", err)
	}

	logger.Info("sync run started",
		"flow", kind, "run_id", run.ID, "full_sync", isFullSync, "params", string(raw))
	return &RunContext{Run: run, store: store, logger: logger}, nil
}

// Record classifies one processed row into its terminal bucket.
func (rc *RunContext) Record(o Outcome) {
	rc.pending.Record(o)
	switch o {
	case OutcomeCreated:
		rc.Run.Created++
	case OutcomeUpdated:
		rc.Run.Updated++
	case OutcomeSkipped:
		rc.Run.Skipped++
	case OutcomeFailed:
		rc.Run.Failed++
	}
	rc.Run.Processed++
}

// Flush atomically adds the pending counter deltas to the persisted run so
// long-running invocations stay observable in flight. A crash mid-run leaves
// a running row with the partial counts rather than losing them.
func (rc *RunContext) Flush(ctx context.Context) error {
	if rc.pending == (Counters{}) {
		return nil
	}
	if err := rc.store.AddSyncRunProgress(ctx, rc.Run.ID, rc.pending); err != nil {
		return fmt.Errorf("persist run progress: %w", err)
	}
	rc.pending = Counters{}
	return nil
}

// Finish derives the terminal status from the accumulated counters (runErr,
// when non-nil, overrides it to failed) and persists the final state. The
// returned run reflects the terminal record. Finish is idempotent within a
// RunContext: later calls are no-ops.
func (rc *RunContext) Finish(ctx context.Context, runErr error) error {
	if rc.done {
		return nil
	}
	rc.done = true

	if err := rc.Flush(ctx); err != nil {
		// Counters flushed so far are preserved; fold the flush failure
		// into the terminal state instead of dropping it.
		rc.logger.Error("final progress flush failed", "flow", rc.Run.FlowKind, "run_id", rc.Run.ID, "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	status, message := computeRunStatus(rc.Run.Processed, rc.Run.Failed, runErr)
	endedAt := time.Now().UTC()

	if err := rc.store.FinalizeSyncRun(ctx, rc.Run.ID, status, endedAt, message); err != nil {
		return fmt.Errorf("finalize sync run: %w", err)
	}
	rc.Run.Status = status
	rc.Run.EndedAt = &endedAt
	rc.Run.ErrorMessage = message

	rc.logger.Info("sync run finished",
		"flow", rc.Run.FlowKind,
		"run_id", rc.Run.ID,
		"status", status,
		"duration", endedAt.Sub(rc.Run.StartedAt),
		"processed", rc.Run.Processed,
		"created", rc.Run.Created,
		"updated", rc.Run.Updated,
		"skipped", rc.Run.Skipped,
		"failed", rc.Run.Failed)
	return nil
}
