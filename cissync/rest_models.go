package cissync

import (
	"encoding/json"
	"time"
)

// REST API request/response models for the sync admin surface.

// RunSyncRequest is the body of POST /sync/{flow}. Dates are "2006-01-02";
// year/month are Gregorian.
type RunSyncRequest struct {
	Year       *int    `json:"year,omitempty"`
	Month      *int    `json:"month,omitempty"`
	StartDate  *string `json:"start_date,omitempty"`
	EndDate    *string `json:"end_date,omitempty"`
	BranchCode *string `json:"branch_code,omitempty"`
	FullSync   *bool   `json:"full_sync,omitempty"` // default true
	Async      bool    `json:"async,omitempty"`
}

// SyncRunResponse is the wire form of a SyncRun.
type SyncRunResponse struct {
	ID           string          `json:"id"`
	FlowKind     FlowKind        `json:"flow_kind"`
	Status       RunStatus       `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
	IsFullSync   bool            `json:"is_full_sync"`
	QueryParams  json.RawMessage `json:"query_params,omitempty"`
	Processed    int64           `json:"processed"`
	Created      int64           `json:"created"`
	Updated      int64           `json:"updated"`
	Skipped      int64           `json:"skipped"`
	Failed       int64           `json:"failed"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	InitiatedBy  *string         `json:"initiated_by,omitempty"`
}

func newSyncRunResponse(run *SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:           run.ID.String(),
		FlowKind:     run.FlowKind,
		Status:       run.Status,
		StartedAt:    run.StartedAt,
		EndedAt:      run.EndedAt,
		IsFullSync:   run.IsFullSync,
		QueryParams:  run.QueryParams,
		Processed:    run.Processed,
		Created:      run.Created,
		Updated:      run.Updated,
		Skipped:      run.Skipped,
		Failed:       run.Failed,
		ErrorMessage: run.ErrorMessage,
		InitiatedBy:  run.InitiatedBy,
	}
}

// ListRunsResponse is the body of GET /sync/runs.
type ListRunsResponse struct {
	Runs []SyncRunResponse `json:"runs"`
}

// ReapResponse is the body of POST /sync/admin/reap.
type ReapResponse struct {
	Reaped int64  `json:"reaped"`
	MaxAge string `json:"max_age"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
