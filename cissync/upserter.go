package cissync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Upserter performs idempotent upsert-by-natural-key writes for the target
// entity kinds. Every successful upsert commits immediately (the Store
// contract is per-call transactional), trading throughput for isolation so
// one bad row cannot roll back previously good rows in the same batch.
type Upserter struct {
	store  Store
	logger *slog.Logger
}

func NewUpserter(store Store, logger *slog.Logger) *Upserter {
	return &Upserter{store: store, logger: logger}
}

// CustomerFields is the mapped, coerced view of a customer in a source row.
type CustomerFields struct {
	OriginalID   string
	Title        *string
	FirstName    *string
	LastName     *string
	IDCard       *string
	Address      *string
	Mobile       *string
	BranchBACode *string
}

// EnsureCustomer returns the customer for fields.OriginalID, creating it if
// unseen. It never updates an existing customer: the flows that call it own
// richer records than a joined source row carries. created reports whether
// this call created the row.
func (u *Upserter) EnsureCustomer(ctx context.Context, f CustomerFields) (cust *Customer, created bool, err error) {
	existing, err := u.store.GetCustomerByOriginalID(ctx, f.OriginalID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("lookup customer %q: %w", f.OriginalID, err)
	}

	firstName := deref(f.FirstName)
	lastName := deref(f.LastName)
	if strings.TrimSpace(lastName) == "" {
		// Places and single-name customers: carry the first name over, or
		// the sentinel when the source has neither.
		if firstName != "" {
			lastName = firstName
		} else {
			lastName = SurnameFallback
		}
	}

	c := &Customer{
		OriginalID:   f.OriginalID,
		Title:        deref(f.Title),
		FirstName:    firstName,
		LastName:     lastName,
		IDCard:       f.IDCard,
		Address:      f.Address,
		Mobile:       f.Mobile,
		BranchBACode: f.BranchBACode,
	}
	if err := u.store.CreateCustomer(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			existing, err := u.store.GetCustomerByOriginalID(ctx, f.OriginalID)
			return existing, false, err
		}
		return nil, false, fmt.Errorf("create customer %q: %w", f.OriginalID, err)
	}
	u.logger.Debug("created customer", "original_id", f.OriginalID)
	return c, true, nil
}

// RequestFields is the mapped, coerced view of an installation request.
type RequestFields struct {
	RequestNo        string // already normalized by NormalizeRequestNo
	CustomerID       *int64
	BranchBACode     *string
	StatusCode       *string
	TypeCode         *string
	MeterSizeCode    *string
	RequestDate      *time.Time
	EstimatedDate    *time.Time
	ApprovedDate     *time.Time
	PaymentDate      *time.Time
	InstallationDate *time.Time
	CompletionDate   *time.Time
	ExpirationDate   *time.Time
	InstallationFee  *float64
	BillNo           *string
	Remarks          *string
	SourceRequestID  *string
	SourceInstallID  *string
	CreatedBy        *string
}

// NormalizeRequestNo standardizes a request number for idempotent matching:
// trimmed and upper-cased, the same way the legacy numbers were issued.
func NormalizeRequestNo(requestNo string) string {
	return strings.ToUpper(strings.TrimSpace(requestNo))
}

// UpsertRequest looks an installation request up by its normalized natural
// key and updates it in place, or inserts a new row.
func (u *Upserter) UpsertRequest(ctx context.Context, f RequestFields) (Outcome, error) {
	existing, err := u.store.GetRequestByNo(ctx, f.RequestNo)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return OutcomeFailed, fmt.Errorf("lookup request %q: %w", f.RequestNo, err)
	}

	if existing != nil {
		u.applyRequestFields(existing, f)
		if err := u.store.UpdateRequest(ctx, existing); err != nil {
			return OutcomeFailed, fmt.Errorf("update request %q: %w", f.RequestNo, err)
		}
		return OutcomeUpdated, nil
	}

	created := &InstallationRequest{RequestNo: f.RequestNo, CreatedBy: f.CreatedBy}
	u.applyRequestFields(created, f)
	if err := u.store.CreateRequest(ctx, created); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// A concurrent flow materialized the same request; fold into an update.
			existing, gerr := u.store.GetRequestByNo(ctx, f.RequestNo)
			if gerr != nil {
				return OutcomeFailed, fmt.Errorf("re-query request %q after duplicate: %w", f.RequestNo, gerr)
			}
			u.applyRequestFields(existing, f)
			if uerr := u.store.UpdateRequest(ctx, existing); uerr != nil {
				return OutcomeFailed, fmt.Errorf("update request %q: %w", f.RequestNo, uerr)
			}
			return OutcomeUpdated, nil
		}
		return OutcomeFailed, fmt.Errorf("create request %q: %w", f.RequestNo, err)
	}
	return OutcomeCreated, nil
}

func (u *Upserter) applyRequestFields(r *InstallationRequest, f RequestFields) {
	r.CustomerID = f.CustomerID
	if f.BranchBACode != nil {
		r.BranchBACode = f.BranchBACode
	}
	r.StatusCode = f.StatusCode
	r.TypeCode = f.TypeCode
	r.MeterSizeCode = f.MeterSizeCode
	r.RequestDate = f.RequestDate
	r.EstimatedDate = f.EstimatedDate
	r.ApprovedDate = f.ApprovedDate
	r.PaymentDate = f.PaymentDate
	r.InstallationDate = f.InstallationDate
	r.CompletionDate = f.CompletionDate
	if f.ExpirationDate != nil {
		r.ExpirationDate = f.ExpirationDate
	}
	r.InstallationFee = f.InstallationFee
	r.BillNo = f.BillNo
	r.Remarks = f.Remarks
	r.SourceRequestID = f.SourceRequestID
	if f.SourceInstallID != nil {
		r.SourceInstallID = f.SourceInstallID
	}
}

// HolidayFields is the mapped, coerced view of a holiday row.
type HolidayFields struct {
	Date        time.Time
	SourceID    string
	Description string
	IsNational  bool
	IsRepeating bool
	RegionCode  *string
	UpdatedBy   *string
}

// UpsertHoliday looks a holiday up by its calendar date and updates it in
// place, or inserts a new row.
func (u *Upserter) UpsertHoliday(ctx context.Context, f HolidayFields) (Outcome, error) {
	existing, err := u.store.GetHolidayByDate(ctx, f.Date)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return OutcomeFailed, fmt.Errorf("lookup holiday %s: %w", f.Date.Format("2006-01-02"), err)
	}

	if existing != nil {
		existing.Description = f.Description
		existing.IsNationalHoliday = f.IsNational
		existing.IsRepeatingYearly = f.IsRepeating
		existing.RegionCode = f.RegionCode
		existing.SourceID = f.SourceID
		existing.UpdatedBy = f.UpdatedBy
		if err := u.store.UpdateHoliday(ctx, existing); err != nil {
			return OutcomeFailed, fmt.Errorf("update holiday %s: %w", f.Date.Format("2006-01-02"), err)
		}
		return OutcomeUpdated, nil
	}

	created := &Holiday{
		HolidayDate:       f.Date,
		Description:       f.Description,
		IsNationalHoliday: f.IsNational,
		IsRepeatingYearly: f.IsRepeating,
		RegionCode:        f.RegionCode,
		SourceID:          f.SourceID,
		UpdatedBy:         f.UpdatedBy,
	}
	if err := u.store.CreateHoliday(ctx, created); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return u.UpsertHoliday(ctx, f)
		}
		return OutcomeFailed, fmt.Errorf("create holiday %s: %w", f.Date.Format("2006-01-02"), err)
	}
	return OutcomeCreated, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
