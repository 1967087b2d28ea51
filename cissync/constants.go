package cissync

// FlowKind identifies one of the domain-bound synchronization procedures.
type FlowKind string

const (
	FlowHoliday               FlowKind = "holiday"
	FlowInstallationRequest   FlowKind = "installation_request"
	FlowTemporaryInstallation FlowKind = "temporary_installation"
	FlowNewCustomer           FlowKind = "new_customer"
	FlowCustomerTypeChange    FlowKind = "customer_type_change"
)

// KnownFlow reports whether kind names one of the supported sync flows.
func KnownFlow(kind FlowKind) bool {
	switch kind {
	case FlowHoliday, FlowInstallationRequest, FlowTemporaryInstallation,
		FlowNewCustomer, FlowCustomerTypeChange:
		return true
	}
	return false
}

// RunStatus is the lifecycle status of a SyncRun.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// Outcome classifies what happened to a single source row.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

const (
	// BuddhistEraOffset converts a Gregorian year to the Thai Buddhist-era
	// year used by the legacy CIS wherever it formats dates with
	// NLS_CALENDAR='THAI BUDDHA' or stores BE periods (debt_ym).
	BuddhistEraOffset = 543

	// TemporaryInstallationTypeCode is forced onto every row of the
	// temporary-installation flow regardless of the source value.
	TemporaryInstallationTypeCode = "2"

	// SurnameFallback replaces a missing surname so legacy rows with
	// incomplete names are still recorded.
	SurnameFallback = "-"

	// DefaultBatchSize bounds memory while draining large source result sets.
	DefaultBatchSize = 100

	// progressFlushRows is how often single-shot flows persist counter
	// deltas so long runs stay observable in flight.
	progressFlushRows = 10
)

// Reference entity kinds recorded in the auto-provision audit trail.
const (
	RefKindRegion             = "region"
	RefKindBranch             = "branch"
	RefKindInstallationStatus = "installation_status"
	RefKindInstallationType   = "installation_type"
	RefKindMeterSize          = "meter_size"
)
