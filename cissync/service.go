package cissync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ServiceConfig holds configuration for the sync engine.
type ServiceConfig struct {
	AppName string

	// BatchSize bounds source fetches for the batched flows (default 100).
	BatchSize int

	// StaleRunMaxAge is how old a still-running run must be before
	// ReapStaleRuns marks it failed (default 24h). A crashed process leaves
	// its run in running state; reaping is the explicit recovery policy.
	StaleRunMaxAge time.Duration

	// StageMetrics receives per-stage timings when set.
	StageMetrics StageMetricsRecorder
	// LogStageTimings mirrors stage timings to the debug log.
	LogStageTimings bool
}

// SyncService drives the reconciliation flows against the legacy source and
// the local operational store. It is the synchronous unit of work a
// scheduler or HTTP layer invokes; it performs no internal fan-out across
// rows, and serializes runs of the same flow kind so natural-key creation of
// shared reference entities never races within a flow.
type SyncService struct {
	store    Store
	source   SourceReader
	config   *ServiceConfig
	logger   *slog.Logger
	resolver *RefResolver
	upserter *Upserter

	mu        sync.Mutex
	flowLocks map[FlowKind]*sync.Mutex
}

// SyncParams are the caller-supplied parameters of one run. Years and
// months are Gregorian; the engine converts to the source's Buddhist-era
// periods where the legacy queries require them.
type SyncParams struct {
	Year        *int
	Month       *int
	StartDate   *time.Time
	EndDate     *time.Time
	BranchCode  *string
	IsFullSync  bool
	InitiatedBy *string
}

// NewSyncService creates the engine. store and source are required.
func NewSyncService(store Store, source SourceReader, config *ServiceConfig, logger *slog.Logger) (*SyncService, error) {
	if store == nil {
		return nil, fmt.Errorf("cissync: store is required")
	}
	if source == nil {
		return nil, fmt.Errorf("cissync: source reader is required")
	}
	if config == nil {
		config = &ServiceConfig{}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.StaleRunMaxAge <= 0 {
		config.StaleRunMaxAge = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SyncService{
		store:     store,
		source:    source,
		config:    config,
		logger:    logger,
		resolver:  NewRefResolver(store, logger),
		upserter:  NewUpserter(store, logger),
		flowLocks: make(map[FlowKind]*sync.Mutex),
	}, nil
}

// RunSync validates params, executes the named flow to completion and
// returns the finalized run. Normal operational failures (bad rows, a dying
// source connection) are recorded in the run, never returned as errors; the
// error return covers caller-input rejection and the inability to create
// the run record itself.
func (s *SyncService) RunSync(ctx context.Context, kind FlowKind, p SyncParams) (*SyncRun, error) {
	if err := ValidateParams(kind, p); err != nil {
		return nil, err
	}
	def := s.buildFlow(kind, p)

	rc, err := startRun(ctx, s.store, s.logger, kind, def.params, p.IsFullSync, p.InitiatedBy)
	if err != nil {
		return nil, err
	}
	s.execute(ctx, rc, def)
	return rc.Run, nil
}

// RunSyncAsync validates params, creates the run record and returns its
// running snapshot immediately; the flow continues on a background
// goroutine detached from the caller's context. Poll GetSyncRun for the
// terminal state.
func (s *SyncService) RunSyncAsync(ctx context.Context, kind FlowKind, p SyncParams) (*SyncRun, error) {
	if err := ValidateParams(kind, p); err != nil {
		return nil, err
	}
	def := s.buildFlow(kind, p)

	rc, err := startRun(ctx, s.store, s.logger, kind, def.params, p.IsFullSync, p.InitiatedBy)
	if err != nil {
		return nil, err
	}

	snapshot := *rc.Run
	go func() {
		bg := context.WithoutCancel(ctx)
		s.execute(bg, rc, def)
	}()
	return &snapshot, nil
}

// execute runs the flow body under the per-kind lock and finalizes the run.
func (s *SyncService) execute(ctx context.Context, rc *RunContext, def flowDef) {
	lock := s.flowLock(def.kind)
	lock.Lock()
	defer lock.Unlock()

	runErr := s.executeFlow(ctx, rc, def)
	if runErr != nil {
		s.logger.Error("sync run aborted",
			"flow", def.kind, "run_id", rc.Run.ID, "error", runErr)
	}
	if err := rc.Finish(ctx, runErr); err != nil {
		s.logger.Error("failed to finalize sync run",
			"flow", def.kind, "run_id", rc.Run.ID, "error", err)
	}
}

func (s *SyncService) flowLock(kind FlowKind) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.flowLocks[kind]
	if !ok {
		lock = &sync.Mutex{}
		s.flowLocks[kind] = lock
	}
	return lock
}

// buildFlow dispatches to the per-domain flow definitions. Callers must
// have validated kind already.
func (s *SyncService) buildFlow(kind FlowKind, p SyncParams) flowDef {
	switch kind {
	case FlowHoliday:
		return s.holidayFlow(p)
	case FlowInstallationRequest:
		return s.installationRequestFlow(p)
	case FlowTemporaryInstallation:
		return s.temporaryInstallationFlow(p)
	case FlowNewCustomer:
		return s.newCustomerFlow(p)
	case FlowCustomerTypeChange:
		return s.customerTypeChangeFlow(p)
	default:
		panic(fmt.Sprintf("cissync: unvalidated flow kind %q", kind))
	}
}

// GetSyncRun fetches one run by id.
func (s *SyncService) GetSyncRun(ctx context.Context, id uuid.UUID) (*SyncRun, error) {
	return s.store.GetSyncRun(ctx, id)
}

// ListSyncRuns lists recent runs, newest first. kind == "" lists all flows.
func (s *SyncService) ListSyncRuns(ctx context.Context, kind FlowKind, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.ListSyncRuns(ctx, kind, limit)
}

// ReapStaleRuns marks runs stuck in running state longer than maxAge as
// failed. maxAge <= 0 uses the configured default. Returns how many runs
// were reaped.
func (s *SyncService) ReapStaleRuns(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = s.config.StaleRunMaxAge
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	msg := fmt.Sprintf("run marked stale: still running after %s", maxAge)
	n, err := s.store.ReapStaleRuns(ctx, cutoff, msg)
	if err != nil {
		return 0, fmt.Errorf("reap stale runs: %w", err)
	}
	if n > 0 {
		s.logger.Warn("reaped stale sync runs", "count", n, "max_age", maxAge)
	}
	return n, nil
}
