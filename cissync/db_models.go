package cissync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Database entity models for the local operational store.
// Target entities reference reference entities by natural key (ba_code /
// code), never by surrogate id, so resolution order cannot create
// foreign-key ordering hazards during a sync run.

// SyncRun is the persisted lifecycle record of one sync-flow invocation.
type SyncRun struct {
	ID           uuid.UUID       `db:"id"`
	FlowKind     FlowKind        `db:"flow_kind"`
	StartedAt    time.Time       `db:"started_at"`
	EndedAt      *time.Time      `db:"ended_at"` // nil while running
	Status       RunStatus       `db:"status"`
	IsFullSync   bool            `db:"is_full_sync"`
	QueryParams  json.RawMessage `db:"query_params"` // serialized for audit
	Processed    int64           `db:"processed"`
	Created      int64           `db:"created"`
	Updated      int64           `db:"updated"`
	Skipped      int64           `db:"skipped"`
	Failed       int64           `db:"failed"`
	ErrorMessage *string         `db:"error_message"` // set for partial/failed only
	InitiatedBy  *string         `db:"initiated_by"`  // absent for automated triggers
}

// Region is a reference entity keyed by its one-character code.
type Region struct {
	ID   int64  `db:"id"`
	Code string `db:"code"`
	Name string `db:"name"`
}

// Branch is a reference entity keyed by its 3-4 digit ba_code.
type Branch struct {
	ID          int64   `db:"id"`
	BACode      string  `db:"ba_code"`
	BranchCode  *string `db:"branch_code"` // 7-digit code, unknown for auto-provisioned rows
	Name        string  `db:"name"`
	RegionCode  *string `db:"region_code"`
	SourceOrgID *int64  `db:"source_org_id"` // org owner id in the legacy CIS
}

// InstallationStatus is a reference entity keyed by the legacy doc status code.
type InstallationStatus struct {
	ID          int64  `db:"id"`
	Code        string `db:"code"`
	Name        string `db:"name"`
	Description string `db:"description"`
}

// InstallationType is a reference entity keyed by the legacy install type code.
type InstallationType struct {
	ID          int64  `db:"id"`
	Code        string `db:"code"`
	Name        string `db:"name"`
	Description string `db:"description"`
}

// MeterSize is a reference entity keyed by the legacy meter size code.
type MeterSize struct {
	ID          int64  `db:"id"`
	Code        string `db:"code"`
	Name        string `db:"name"`
	Description string `db:"description"`
}

// Customer is a target entity keyed by the legacy customer id (original_id).
type Customer struct {
	ID              int64           `db:"id"`
	OriginalID      string          `db:"original_id"`
	Title           string          `db:"title"`
	FirstName       string          `db:"firstname"`
	LastName        string          `db:"lastname"`
	IDCard          *string         `db:"id_card"`
	Address         *string         `db:"address"`
	Mobile          *string         `db:"mobile"`
	BranchBACode    *string         `db:"branch_ba_code"`
	CurrentTypeCode *string         `db:"current_type_code"`
	CurrentTypeName *string         `db:"current_type_name"`
	TypeHistory     json.RawMessage `db:"type_history"` // trail of TypeChangeRecord
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// InstallationRequest is a target entity keyed by its normalized request_no.
type InstallationRequest struct {
	ID               int64      `db:"id"`
	RequestNo        string     `db:"request_no"`
	CustomerID       *int64     `db:"customer_id"`
	BranchBACode     *string    `db:"branch_ba_code"`
	StatusCode       *string    `db:"status_code"`
	TypeCode         *string    `db:"installation_type_code"`
	MeterSizeCode    *string    `db:"meter_size_code"`
	RequestDate      *time.Time `db:"request_date"`
	EstimatedDate    *time.Time `db:"estimated_date"`
	ApprovedDate     *time.Time `db:"approved_date"`
	PaymentDate      *time.Time `db:"payment_date"`
	InstallationDate *time.Time `db:"installation_date"`
	CompletionDate   *time.Time `db:"completion_date"`
	ExpirationDate   *time.Time `db:"expiration_date"` // temporary installations only
	InstallationFee  *float64   `db:"installation_fee"`
	BillNo           *string    `db:"bill_no"`
	Remarks          *string    `db:"remarks"`
	SourceRequestID  *string    `db:"source_request_id"`
	SourceInstallID  *string    `db:"source_install_id"`
	CreatedBy        *string    `db:"created_by"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// Holiday is a target entity keyed by its calendar date.
type Holiday struct {
	ID                int64     `db:"id"`
	HolidayDate       time.Time `db:"holiday_date"`
	Description       string    `db:"description"`
	IsNationalHoliday bool      `db:"is_national_holiday"`
	IsRepeatingYearly bool      `db:"is_repeating_yearly"`
	RegionCode        *string   `db:"region_code"`
	SourceID          string    `db:"source_id"` // the source date string, the legacy table has no id
	UpdatedBy         *string   `db:"updated_by"`
}

// TypeChangeRecord is one entry in a customer's type-change trail.
type TypeChangeRecord struct {
	ChangeDate string `json:"change_date"`
	OldCode    string `json:"old_code"`
	OldName    string `json:"old_name"`
	NewCode    string `json:"new_code"`
	NewName    string `json:"new_name"`
}

// AutoProvision is the audit record written whenever the resolver creates a
// placeholder reference entity on first sight of an unknown natural key.
type AutoProvision struct {
	EntityKind string    `db:"entity_kind"`
	NaturalKey string    `db:"natural_key"`
	RunID      uuid.UUID `db:"run_id"`
	FlowKind   FlowKind  `db:"flow_kind"`
	Reason     string    `db:"reason"`
}
