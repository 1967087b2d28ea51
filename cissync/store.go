package cissync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound signals a lookup miss by natural key or id.
	ErrNotFound = errors.New("cissync: not found")

	// ErrDuplicateKey signals a unique-constraint violation on create. The
	// resolver treats it as "someone else created it first" and re-queries.
	ErrDuplicateKey = errors.New("cissync: duplicate key")
)

// Counters holds the per-run outcome totals. Each processed row lands in
// exactly one of the four terminal buckets, so at run completion
// Processed == Created + Updated + Skipped + Failed.
type Counters struct {
	Processed int64
	Created   int64
	Updated   int64
	Skipped   int64
	Failed    int64
}

// Record adds one row with the given outcome.
func (c *Counters) Record(o Outcome) {
	c.Processed++
	switch o {
	case OutcomeCreated:
		c.Created++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeSkipped:
		c.Skipped++
	case OutcomeFailed:
		c.Failed++
	}
}

// Merge adds other's totals into c.
func (c *Counters) Merge(other Counters) {
	c.Processed += other.Processed
	c.Created += other.Created
	c.Updated += other.Updated
	c.Skipped += other.Skipped
	c.Failed += other.Failed
}

// IsZero reports whether no rows have been recorded.
func (c Counters) IsZero() bool { return c.Processed == 0 }

// Store is the transactional read/write contract the engine consumes from
// the local operational store. Every mutating call commits on its own so one
// bad row can never roll back previously good rows in the same batch.
//
// Lookups return ErrNotFound on a miss; creates return ErrDuplicateKey when
// the natural key already exists.
type Store interface {
	// Reference entities.
	GetRegionByCode(ctx context.Context, code string) (*Region, error)
	GetBranchByBACode(ctx context.Context, baCode string) (*Branch, error)
	CreateBranch(ctx context.Context, b *Branch) error
	GetInstallationStatusByCode(ctx context.Context, code string) (*InstallationStatus, error)
	CreateInstallationStatus(ctx context.Context, s *InstallationStatus) error
	GetInstallationTypeByCode(ctx context.Context, code string) (*InstallationType, error)
	CreateInstallationType(ctx context.Context, t *InstallationType) error
	GetMeterSizeByCode(ctx context.Context, code string) (*MeterSize, error)
	CreateMeterSize(ctx context.Context, m *MeterSize) error
	RecordAutoProvision(ctx context.Context, ap AutoProvision) error

	// Target entities.
	GetCustomerByOriginalID(ctx context.Context, originalID string) (*Customer, error)
	CreateCustomer(ctx context.Context, c *Customer) error
	UpdateCustomer(ctx context.Context, c *Customer) error
	GetRequestByNo(ctx context.Context, requestNo string) (*InstallationRequest, error)
	CreateRequest(ctx context.Context, r *InstallationRequest) error
	UpdateRequest(ctx context.Context, r *InstallationRequest) error
	GetHolidayByDate(ctx context.Context, date time.Time) (*Holiday, error)
	CreateHoliday(ctx context.Context, h *Holiday) error
	UpdateHoliday(ctx context.Context, h *Holiday) error

	// Run lifecycle.
	InsertSyncRun(ctx context.Context, run *SyncRun) error
	AddSyncRunProgress(ctx context.Context, id uuid.UUID, delta Counters) error
	FinalizeSyncRun(ctx context.Context, id uuid.UUID, status RunStatus, endedAt time.Time, errorMessage *string) error
	GetSyncRun(ctx context.Context, id uuid.UUID) (*SyncRun, error)
	ListSyncRuns(ctx context.Context, kind FlowKind, limit int) ([]SyncRun, error)
	ReapStaleRuns(ctx context.Context, olderThan time.Time, message string) (int64, error)
}

// TypeChangeRecorder is an optional Store capability for recording customer
// type changes. A store without it makes the customer-type-change flow count
// rows as skipped: a structurally absent capability is not an error.
type TypeChangeRecorder interface {
	AppendCustomerTypeChange(ctx context.Context, customerID int64, change TypeChangeRecord) error
}
