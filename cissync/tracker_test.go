package cissync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunContext_RecordAndFlush(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	rc, err := startRun(ctx, store, testLogger(), FlowHoliday,
		map[string]any{"year": 2024}, true, strPtr("admin"))
	require.NoError(t, err)
	require.Equal(t, RunRunning, rc.Run.Status)
	require.JSONEq(t, `{"year":2024}`, string(rc.Run.QueryParams))

	rc.Record(OutcomeCreated)
	rc.Record(OutcomeCreated)
	rc.Record(OutcomeFailed)

	// In-memory view moves immediately; the persisted row only on flush.
	require.Equal(t, int64(3), rc.Run.Processed)
	persisted, err := store.GetSyncRun(ctx, rc.Run.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), persisted.Processed)

	require.NoError(t, rc.Flush(ctx))
	persisted, err = store.GetSyncRun(ctx, rc.Run.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), persisted.Processed)
	require.Equal(t, int64(2), persisted.Created)
	require.Equal(t, int64(1), persisted.Failed)

	// A second flush with nothing pending is a no-op even when the store
	// would reject progress writes.
	store.progressErr = ErrNotFound
	require.NoError(t, rc.Flush(ctx))
}

func TestRunContext_FinishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	rc, err := startRun(ctx, store, testLogger(), FlowHoliday, nil, false, nil)
	require.NoError(t, err)
	rc.Record(OutcomeCreated)

	require.NoError(t, rc.Finish(ctx, nil))
	require.Equal(t, RunSuccess, rc.Run.Status)
	firstEnd := *rc.Run.EndedAt

	require.NoError(t, rc.Finish(ctx, nil))
	require.Equal(t, firstEnd, *rc.Run.EndedAt)
}

func TestRunContext_FinalFlushFailureFoldsIntoStatus(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	rc, err := startRun(ctx, store, testLogger(), FlowHoliday, nil, false, nil)
	require.NoError(t, err)
	rc.Record(OutcomeCreated)
	store.progressErr = ErrNotFound

	require.NoError(t, rc.Finish(ctx, nil))
	require.Equal(t, RunFailed, rc.Run.Status)
	require.NotNil(t, rc.Run.ErrorMessage)
	require.Contains(t, *rc.Run.ErrorMessage, "persist run progress")
}

func TestCounters_RecordAndMerge(t *testing.T) {
	var c Counters
	c.Record(OutcomeCreated)
	c.Record(OutcomeUpdated)
	c.Record(OutcomeSkipped)
	c.Record(OutcomeFailed)
	require.Equal(t, int64(4), c.Processed)
	require.Equal(t, c.Processed, c.Created+c.Updated+c.Skipped+c.Failed)

	var total Counters
	total.Merge(c)
	total.Merge(c)
	require.Equal(t, int64(8), total.Processed)
	require.False(t, total.IsZero())
	require.True(t, Counters{}.IsZero())
}
