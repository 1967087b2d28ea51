package cissync

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidParams wraps every caller-input rejection so the HTTP layer can
// map the whole family to one status code.
var ErrInvalidParams = errors.New("cissync: invalid sync parameters")

func invalidParams(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}

// ValidateParams rejects parameter combinations before a run record is
// created, so rejected requests never appear in the run history.
func ValidateParams(kind FlowKind, p SyncParams) error {
	if !KnownFlow(kind) {
		return invalidParams("unknown flow kind %q", kind)
	}

	if p.Month != nil && (*p.Month < 1 || *p.Month > 12) {
		return invalidParams("month %d out of range 1-12", *p.Month)
	}
	if p.Year != nil && (*p.Year < 1990 || *p.Year > 2200) {
		// Gregorian years; a Buddhist-era year here means the caller
		// converted twice.
		return invalidParams("year %d out of range 1990-2200, expected a Gregorian year", *p.Year)
	}
	if p.StartDate != nil && p.EndDate != nil && p.StartDate.After(*p.EndDate) {
		return invalidParams("start_date %s is after end_date %s",
			p.StartDate.Format("2006-01-02"), p.EndDate.Format("2006-01-02"))
	}

	if p.BranchCode != nil {
		code := strings.TrimSpace(*p.BranchCode)
		if code == "" {
			return invalidParams("branch_code is empty")
		}
		if len(code) > 10 {
			return invalidParams("branch_code %q too long", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				return invalidParams("branch_code %q is not numeric", code)
			}
		}
	}

	switch kind {
	case FlowHoliday, FlowInstallationRequest:
		// Holiday takes an optional year; requests take optional dates and
		// branch. Nothing further to enforce.
	case FlowTemporaryInstallation, FlowNewCustomer, FlowCustomerTypeChange:
		if p.StartDate != nil || p.EndDate != nil {
			return invalidParams("flow %q filters by year/month, not by date range", kind)
		}
	}
	return nil
}
