package cissync

import (
	"log/slog"
	"time"
)

// Typed per-flow row schemas decoded from SourceRow at the reader boundary.
// All tolerant-parsing policy lives here and in coerce.go so the flow
// orchestrators work with named, explicitly optional fields instead of raw
// dictionaries.

// rowDecoder reads fields out of a SourceRow, logging values that fail the
// date cascade instead of failing the row.
type rowDecoder struct {
	row    SourceRow
	flow   FlowKind
	logger *slog.Logger
}

func newRowDecoder(row SourceRow, flow FlowKind, logger *slog.Logger) rowDecoder {
	return rowDecoder{row: row, flow: flow, logger: logger}
}

func (d rowDecoder) str(key string) *string { return CoerceString(d.row[key]) }

func (d rowDecoder) strOr(key, def string) string {
	if s := CoerceString(d.row[key]); s != nil {
		return *s
	}
	return def
}

func (d rowDecoder) date(key string) *time.Time {
	t, ok := CoerceTime(d.row[key])
	if !ok {
		d.logger.Warn("unparseable source date, treating as absent",
			"flow", d.flow, "field", key, "value", d.row[key])
		return nil
	}
	return t
}

func (d rowDecoder) f64(key string) *float64 { return CoerceFloat64(d.row[key]) }

func (d rowDecoder) i64(key string) *int64 { return CoerceInt64(d.row[key]) }

func (d rowDecoder) boolOr(key string, def bool) bool { return CoerceBool(d.row[key], def) }

// holidayRow is one row of the holiday flow query.
type holidayRow struct {
	Date        *time.Time
	DateRaw     *string // natural key, the legacy table has no id
	Description string
	IsNational  bool
	IsRepeating bool
}

func decodeHolidayRow(d rowDecoder) holidayRow {
	row := holidayRow{
		DateRaw:     d.str("holiday_date"),
		Description: d.strOr("description", ""),
		IsNational:  d.boolOr("is_national_holiday", true),
		IsRepeating: d.boolOr("is_repeating_yearly", false),
	}
	if t, ok := CoerceTime(d.row["holiday_date"]); ok {
		row.Date = t
	}
	return row
}

// requestRow is one row of the installation-request flow query. The
// temporary-installation flow reuses it plus tempExtras.
type requestRow struct {
	CustomerID *string
	Title      *string
	FirstName  *string
	LastName   *string
	IDCard     *string
	Address    *string
	Mobile     *string

	RequestID *string
	RequestNo *string
	BACode    *string
	OrgID     *int64

	RequestDate      *time.Time
	EstimatedDate    *time.Time
	ApprovedDate     *time.Time
	PaymentDate      *time.Time
	InstallationDate *time.Time
	CompletionDate   *time.Time

	InstallationFee *float64
	BillNo          *string
	Remarks         *string
	StatusCode      *string
	TypeCode        *string
	MeterSizeCode   *string
}

func decodeRequestRow(d rowDecoder) requestRow {
	return requestRow{
		CustomerID:       d.str("customer_id"),
		Title:            d.str("title"),
		FirstName:        d.str("firstname"),
		LastName:         d.str("lastname"),
		IDCard:           d.str("id_card"),
		Address:          d.str("address"),
		Mobile:           d.str("mobile"),
		RequestID:        d.str("request_id"),
		RequestNo:        d.str("request_no"),
		BACode:           d.str("branch_code"),
		OrgID:            d.i64("org_owner_id"),
		RequestDate:      d.date("request_date"),
		EstimatedDate:    d.date("estimated_date"),
		ApprovedDate:     d.date("approved_date"),
		PaymentDate:      d.date("payment_date"),
		InstallationDate: d.date("installation_date"),
		CompletionDate:   d.date("completion_date"),
		InstallationFee:  d.f64("installation_fee"),
		BillNo:           d.str("bill_no"),
		Remarks:          d.str("remarks"),
		StatusCode:       d.str("status_code"),
		TypeCode:         d.str("installation_type_code"),
		MeterSizeCode:    d.str("meter_size_code"),
	}
}

// tempExtras carries the columns only the temporary-installation query has.
type tempExtras struct {
	InstallationID  *string
	ExpirationDate  *time.Time
	AdditionalPrice *float64
	CreatedDate     *time.Time
	UpdatedDate     *time.Time
}

func decodeTempExtras(d rowDecoder) tempExtras {
	return tempExtras{
		InstallationID:  d.str("installation_id"),
		ExpirationDate:  d.date("expiration_date"),
		AdditionalPrice: d.f64("additional_price"),
		CreatedDate:     d.date("created_date"),
		UpdatedDate:     d.date("updated_date"),
	}
}

// newCustomerRow is one row of the new-customer flow query.
type newCustomerRow struct {
	CustCode   *string
	CustomerID *string
	BACode     *string
	FinishDate *string
	Title      *string
	FirstName  *string
	LastName   *string
	IDCard     *string
	Address    *string
	Mobile     *string
}

func decodeNewCustomerRow(d rowDecoder) newCustomerRow {
	return newCustomerRow{
		CustCode:   d.str("cust_code"),
		CustomerID: d.str("customer_id"),
		BACode:     d.str("ba_code"),
		FinishDate: d.str("finish_date"),
		Title:      d.str("title"),
		FirstName:  d.str("firstname"),
		LastName:   d.str("lastname"),
		IDCard:     d.str("id_card"),
		Address:    d.str("address"),
		Mobile:     d.str("mobile"),
	}
}

// typeChangeRow is one row of the customer-type-change flow query. The
// legacy query aliases the branch ba_code as ORG_OWNER_ID.
type typeChangeRow struct {
	CustID     *string
	CustCode   *string
	OldCode    *string
	OldName    *string
	NewCode    *string
	NewName    *string
	WaterUsage *float64
	BACode     *string
	ChangeDate *string
	Title      *string
	FirstName  *string
	LastName   *string
	IDCard     *string
	Address    *string
	Mobile     *string
}

func decodeTypeChangeRow(d rowDecoder) typeChangeRow {
	return typeChangeRow{
		CustID:     d.str("cust_id"),
		CustCode:   d.str("cust_code"),
		OldCode:    d.str("old_usetype"),
		OldName:    d.str("old_usetype_name"),
		NewCode:    d.str("new_usetype"),
		NewName:    d.str("new_usetype_name"),
		WaterUsage: d.f64("present_water_usg"),
		BACode:     d.str("org_owner_id"),
		ChangeDate: d.str("change_date"),
		Title:      d.str("title"),
		FirstName:  d.str("firstname"),
		LastName:   d.str("lastname"),
		IDCard:     d.str("id_card"),
		Address:    d.str("address"),
		Mobile:     d.str("mobile"),
	}
}
