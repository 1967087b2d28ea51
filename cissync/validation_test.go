package cissync

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestValidateParams_UnknownFlow(t *testing.T) {
	err := ValidateParams("bogus", SyncParams{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidParams))
}

func TestValidateParams_MonthRange(t *testing.T) {
	require.NoError(t, ValidateParams(FlowNewCustomer, SyncParams{Year: intPtr(2024), Month: intPtr(1)}))
	require.NoError(t, ValidateParams(FlowNewCustomer, SyncParams{Year: intPtr(2024), Month: intPtr(12)}))
	require.ErrorIs(t, ValidateParams(FlowNewCustomer, SyncParams{Year: intPtr(2024), Month: intPtr(0)}), ErrInvalidParams)
	require.ErrorIs(t, ValidateParams(FlowNewCustomer, SyncParams{Year: intPtr(2024), Month: intPtr(13)}), ErrInvalidParams)
}

func TestValidateParams_YearMustBeGregorian(t *testing.T) {
	// A Buddhist-era year means the caller already converted.
	require.ErrorIs(t, ValidateParams(FlowNewCustomer, SyncParams{Year: intPtr(2567)}), ErrInvalidParams)
	require.NoError(t, ValidateParams(FlowNewCustomer, SyncParams{Year: intPtr(2024)}))
}

func TestValidateParams_DateOrder(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	err := ValidateParams(FlowInstallationRequest, SyncParams{StartDate: timePtr(start), EndDate: timePtr(end)})
	require.ErrorIs(t, err, ErrInvalidParams)

	require.NoError(t, ValidateParams(FlowInstallationRequest,
		SyncParams{StartDate: timePtr(end), EndDate: timePtr(start)}))
}

func TestValidateParams_BranchCode(t *testing.T) {
	require.NoError(t, ValidateParams(FlowInstallationRequest, SyncParams{BranchCode: strPtr("1062")}))
	require.ErrorIs(t, ValidateParams(FlowInstallationRequest, SyncParams{BranchCode: strPtr("")}), ErrInvalidParams)
	require.ErrorIs(t, ValidateParams(FlowInstallationRequest, SyncParams{BranchCode: strPtr("BA-1062")}), ErrInvalidParams)
	require.ErrorIs(t, ValidateParams(FlowInstallationRequest, SyncParams{BranchCode: strPtr("12345678901")}), ErrInvalidParams)
}

func TestValidateParams_PeriodFlowsRejectDateRange(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, kind := range []FlowKind{FlowTemporaryInstallation, FlowNewCustomer, FlowCustomerTypeChange} {
		err := ValidateParams(kind, SyncParams{StartDate: timePtr(start)})
		require.ErrorIs(t, err, ErrInvalidParams, "flow %s", kind)
	}
	// Holidays and requests accept date filters.
	require.NoError(t, ValidateParams(FlowInstallationRequest, SyncParams{StartDate: timePtr(start)}))
}
