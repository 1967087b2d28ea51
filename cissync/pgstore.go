package cissync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the pgx-backed Store for the local operational schema. Every
// mutating call commits on its own; transient serialization and lock errors
// are retried a few times before surfacing.
type PgStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*PgStore)(nil)
var _ TypeChangeRecorder = (*PgStore)(nil)

func NewPgStore(pool *pgxpool.Pool, logger *slog.Logger) (*PgStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("cissync: pgx pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PgStore{pool: pool, logger: logger}, nil
}

const writeRetryAttempts = 3
const writeRetryBackoff = 50 * time.Millisecond

// exec runs a mutating statement, retrying transient transaction errors and
// normalizing unique violations to ErrDuplicateKey.
func (s *PgStore) exec(ctx context.Context, sql string, args pgx.NamedArgs) error {
	var err error
	for attempt := 0; attempt < writeRetryAttempts; attempt++ {
		if attempt > 0 {
			if serr := sleepWithContext(ctx, writeRetryBackoff<<(attempt-1)); serr != nil {
				return serr
			}
		}
		_, err = s.pool.Exec(ctx, sql, args)
		if err == nil {
			return nil
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		}
		if !isRetryablePGTxError(err) {
			return err
		}
		s.logger.Debug("retrying transient store write", "attempt", attempt+1, "error", err)
	}
	return err
}

func mapRowErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// --- Reference entities ---

func (s *PgStore) GetRegionByCode(ctx context.Context, code string) (*Region, error) {
	var r Region
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name FROM cis.regions WHERE code = $1`, code).
		Scan(&r.ID, &r.Code, &r.Name)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &r, nil
}

func (s *PgStore) GetBranchByBACode(ctx context.Context, baCode string) (*Branch, error) {
	var b Branch
	err := s.pool.QueryRow(ctx,
		`SELECT id, ba_code, branch_code, name, region_code, source_org_id
		 FROM cis.branches WHERE ba_code = $1`, baCode).
		Scan(&b.ID, &b.BACode, &b.BranchCode, &b.Name, &b.RegionCode, &b.SourceOrgID)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &b, nil
}

func (s *PgStore) CreateBranch(ctx context.Context, b *Branch) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cis.branches (ba_code, branch_code, name, region_code, source_org_id)
		 VALUES (@ba_code, @branch_code, @name, @region_code, @source_org_id)
		 RETURNING id`,
		pgx.NamedArgs{
			"ba_code":       b.BACode,
			"branch_code":   b.BranchCode,
			"name":          b.Name,
			"region_code":   b.RegionCode,
			"source_org_id": b.SourceOrgID,
		}).Scan(&b.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

func (s *PgStore) GetInstallationStatusByCode(ctx context.Context, code string) (*InstallationStatus, error) {
	var st InstallationStatus
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name, description FROM cis.installation_statuses WHERE code = $1`, code).
		Scan(&st.ID, &st.Code, &st.Name, &st.Description)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &st, nil
}

func (s *PgStore) CreateInstallationStatus(ctx context.Context, st *InstallationStatus) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cis.installation_statuses (code, name, description)
		 VALUES ($1, $2, $3) RETURNING id`,
		st.Code, st.Name, st.Description).Scan(&st.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

func (s *PgStore) GetInstallationTypeByCode(ctx context.Context, code string) (*InstallationType, error) {
	var t InstallationType
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name, description FROM cis.installation_types WHERE code = $1`, code).
		Scan(&t.ID, &t.Code, &t.Name, &t.Description)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &t, nil
}

func (s *PgStore) CreateInstallationType(ctx context.Context, t *InstallationType) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cis.installation_types (code, name, description)
		 VALUES ($1, $2, $3) RETURNING id`,
		t.Code, t.Name, t.Description).Scan(&t.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

func (s *PgStore) GetMeterSizeByCode(ctx context.Context, code string) (*MeterSize, error) {
	var m MeterSize
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name, description FROM cis.meter_sizes WHERE code = $1`, code).
		Scan(&m.ID, &m.Code, &m.Name, &m.Description)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &m, nil
}

func (s *PgStore) CreateMeterSize(ctx context.Context, m *MeterSize) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cis.meter_sizes (code, name, description)
		 VALUES ($1, $2, $3) RETURNING id`,
		m.Code, m.Name, m.Description).Scan(&m.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

func (s *PgStore) RecordAutoProvision(ctx context.Context, ap AutoProvision) error {
	args := pgx.NamedArgs{
		"entity_kind": ap.EntityKind,
		"natural_key": ap.NaturalKey,
		"run_id":      nil,
		"flow_kind":   nil,
		"reason":      ap.Reason,
	}
	if ap.RunID != uuid.Nil {
		args["run_id"] = ap.RunID
		args["flow_kind"] = ap.FlowKind
	}
	return s.exec(ctx,
		`INSERT INTO cis.autoprovision_log (entity_kind, natural_key, run_id, flow_kind, reason)
		 VALUES (@entity_kind, @natural_key, @run_id, @flow_kind, @reason)`, args)
}

// --- Target entities ---

const customerColumns = `id, original_id, title, firstname, lastname, id_card, address,
	mobile, branch_ba_code, current_type_code, current_type_name, type_history,
	created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.OriginalID, &c.Title, &c.FirstName, &c.LastName,
		&c.IDCard, &c.Address, &c.Mobile, &c.BranchBACode,
		&c.CurrentTypeCode, &c.CurrentTypeName, &c.TypeHistory,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &c, nil
}

func (s *PgStore) GetCustomerByOriginalID(ctx context.Context, originalID string) (*Customer, error) {
	return scanCustomer(s.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM cis.customers WHERE original_id = $1`, originalID))
}

func (s *PgStore) CreateCustomer(ctx context.Context, c *Customer) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cis.customers
		   (original_id, title, firstname, lastname, id_card, address, mobile, branch_ba_code)
		 VALUES (@original_id, @title, @firstname, @lastname, @id_card, @address, @mobile, @branch_ba_code)
		 RETURNING id, type_history, created_at, updated_at`,
		pgx.NamedArgs{
			"original_id":    c.OriginalID,
			"title":          c.Title,
			"firstname":      c.FirstName,
			"lastname":       c.LastName,
			"id_card":        c.IDCard,
			"address":        c.Address,
			"mobile":         c.Mobile,
			"branch_ba_code": c.BranchBACode,
		}).Scan(&c.ID, &c.TypeHistory, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

func (s *PgStore) UpdateCustomer(ctx context.Context, c *Customer) error {
	return s.exec(ctx,
		`UPDATE cis.customers SET
		   title = @title, firstname = @firstname, lastname = @lastname,
		   id_card = @id_card, address = @address, mobile = @mobile,
		   branch_ba_code = @branch_ba_code,
		   current_type_code = @current_type_code, current_type_name = @current_type_name,
		   updated_at = now()
		 WHERE id = @id`,
		pgx.NamedArgs{
			"id":                c.ID,
			"title":             c.Title,
			"firstname":         c.FirstName,
			"lastname":          c.LastName,
			"id_card":           c.IDCard,
			"address":           c.Address,
			"mobile":            c.Mobile,
			"branch_ba_code":    c.BranchBACode,
			"current_type_code": c.CurrentTypeCode,
			"current_type_name": c.CurrentTypeName,
		})
}

// AppendCustomerTypeChange appends one entry to the customer's type-change
// trail and moves the current type forward, in a single atomic statement.
func (s *PgStore) AppendCustomerTypeChange(ctx context.Context, customerID int64, change TypeChangeRecord) error {
	encoded, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode type change: %w", err)
	}
	return s.exec(ctx,
		`UPDATE cis.customers SET
		   type_history = (type_history::jsonb || @change::jsonb)::json,
		   current_type_code = @new_code,
		   current_type_name = @new_name,
		   updated_at = now()
		 WHERE id = @id`,
		pgx.NamedArgs{
			"id":       customerID,
			"change":   string(encoded),
			"new_code": change.NewCode,
			"new_name": change.NewName,
		})
}

const requestColumns = `id, request_no, customer_id, branch_ba_code, status_code,
	installation_type_code, meter_size_code, request_date, estimated_date,
	approved_date, payment_date, installation_date, completion_date,
	expiration_date, installation_fee, bill_no, remarks, source_request_id,
	source_install_id, created_by, created_at, updated_at`

func scanRequest(row pgx.Row) (*InstallationRequest, error) {
	var r InstallationRequest
	err := row.Scan(&r.ID, &r.RequestNo, &r.CustomerID, &r.BranchBACode, &r.StatusCode,
		&r.TypeCode, &r.MeterSizeCode, &r.RequestDate, &r.EstimatedDate,
		&r.ApprovedDate, &r.PaymentDate, &r.InstallationDate, &r.CompletionDate,
		&r.ExpirationDate, &r.InstallationFee, &r.BillNo, &r.Remarks, &r.SourceRequestID,
		&r.SourceInstallID, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &r, nil
}

func (s *PgStore) GetRequestByNo(ctx context.Context, requestNo string) (*InstallationRequest, error) {
	return scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM cis.installation_requests WHERE request_no = $1`, requestNo))
}

func requestArgs(r *InstallationRequest) pgx.NamedArgs {
	return pgx.NamedArgs{
		"request_no":             r.RequestNo,
		"customer_id":            r.CustomerID,
		"branch_ba_code":         r.BranchBACode,
		"status_code":            r.StatusCode,
		"installation_type_code": r.TypeCode,
		"meter_size_code":        r.MeterSizeCode,
		"request_date":           r.RequestDate,
		"estimated_date":         r.EstimatedDate,
		"approved_date":          r.ApprovedDate,
		"payment_date":           r.PaymentDate,
		"installation_date":      r.InstallationDate,
		"completion_date":        r.CompletionDate,
		"expiration_date":        r.ExpirationDate,
		"installation_fee":       r.InstallationFee,
		"bill_no":                r.BillNo,
		"remarks":                r.Remarks,
		"source_request_id":      r.SourceRequestID,
		"source_install_id":      r.SourceInstallID,
		"created_by":             r.CreatedBy,
	}
}

func (s *PgStore) CreateRequest(ctx context.Context, r *InstallationRequest) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cis.installation_requests
		   (request_no, customer_id, branch_ba_code, status_code, installation_type_code,
		    meter_size_code, request_date, estimated_date, approved_date, payment_date,
		    installation_date, completion_date, expiration_date, installation_fee,
		    bill_no, remarks, source_request_id, source_install_id, created_by)
		 VALUES (@request_no, @customer_id, @branch_ba_code, @status_code, @installation_type_code,
		    @meter_size_code, @request_date, @estimated_date, @approved_date, @payment_date,
		    @installation_date, @completion_date, @expiration_date, @installation_fee,
		    @bill_no, @remarks, @source_request_id, @source_install_id, @created_by)
		 RETURNING id, created_at, updated_at`,
		requestArgs(r)).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

func (s *PgStore) UpdateRequest(ctx context.Context, r *InstallationRequest) error {
	args := requestArgs(r)
	args["id"] = r.ID
	return s.exec(ctx,
		`UPDATE cis.installation_requests SET
		   customer_id = @customer_id, branch_ba_code = @branch_ba_code,
		   status_code = @status_code, installation_type_code = @installation_type_code,
		   meter_size_code = @meter_size_code, request_date = @request_date,
		   estimated_date = @estimated_date, approved_date = @approved_date,
		   payment_date = @payment_date, installation_date = @installation_date,
		   completion_date = @completion_date, expiration_date = @expiration_date,
		   installation_fee = @installation_fee, bill_no = @bill_no, remarks = @remarks,
		   source_request_id = @source_request_id, source_install_id = @source_install_id,
		   updated_at = now()
		 WHERE id = @id`, args)
}

func (s *PgStore) GetHolidayByDate(ctx context.Context, date time.Time) (*Holiday, error) {
	var h Holiday
	err := s.pool.QueryRow(ctx,
		`SELECT id, holiday_date, description, is_national_holiday, is_repeating_yearly,
		        region_code, source_id, updated_by
		 FROM cis.holidays WHERE holiday_date = $1`, date).
		Scan(&h.ID, &h.HolidayDate, &h.Description, &h.IsNationalHoliday, &h.IsRepeatingYearly,
			&h.RegionCode, &h.SourceID, &h.UpdatedBy)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &h, nil
}

func (s *PgStore) CreateHoliday(ctx context.Context, h *Holiday) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cis.holidays
		   (holiday_date, description, is_national_holiday, is_repeating_yearly,
		    region_code, source_id, updated_by)
		 VALUES (@holiday_date, @description, @is_national_holiday, @is_repeating_yearly,
		    @region_code, @source_id, @updated_by)
		 RETURNING id`,
		pgx.NamedArgs{
			"holiday_date":        h.HolidayDate,
			"description":         h.Description,
			"is_national_holiday": h.IsNationalHoliday,
			"is_repeating_yearly": h.IsRepeatingYearly,
			"region_code":         h.RegionCode,
			"source_id":           h.SourceID,
			"updated_by":          h.UpdatedBy,
		}).Scan(&h.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}

func (s *PgStore) UpdateHoliday(ctx context.Context, h *Holiday) error {
	return s.exec(ctx,
		`UPDATE cis.holidays SET
		   description = @description, is_national_holiday = @is_national_holiday,
		   is_repeating_yearly = @is_repeating_yearly, region_code = @region_code,
		   source_id = @source_id, updated_by = @updated_by
		 WHERE id = @id`,
		pgx.NamedArgs{
			"id":                  h.ID,
			"description":         h.Description,
			"is_national_holiday": h.IsNationalHoliday,
			"is_repeating_yearly": h.IsRepeatingYearly,
			"region_code":         h.RegionCode,
			"source_id":           h.SourceID,
			"updated_by":          h.UpdatedBy,
		})
}

// --- Run lifecycle ---

func (s *PgStore) InsertSyncRun(ctx context.Context, run *SyncRun) error {
	return s.exec(ctx,
		`INSERT INTO cis.sync_runs
		   (id, flow_kind, started_at, status, is_full_sync, query_params, initiated_by)
		 VALUES (@id, @flow_kind, @started_at, @status, @is_full_sync, @query_params, @initiated_by)`,
		pgx.NamedArgs{
			"id":           run.ID,
			"flow_kind":    run.FlowKind,
			"started_at":   run.StartedAt,
			"status":       run.Status,
			"is_full_sync": run.IsFullSync,
			"query_params": run.QueryParams,
			"initiated_by": run.InitiatedBy,
		})
}

func (s *PgStore) AddSyncRunProgress(ctx context.Context, id uuid.UUID, delta Counters) error {
	return s.exec(ctx,
		`UPDATE cis.sync_runs SET
		   processed = processed + @processed,
		   created = created + @created,
		   updated = updated + @updated,
		   skipped = skipped + @skipped,
		   failed = failed + @failed
		 WHERE id = @id`,
		pgx.NamedArgs{
			"id":        id,
			"processed": delta.Processed,
			"created":   delta.Created,
			"updated":   delta.Updated,
			"skipped":   delta.Skipped,
			"failed":    delta.Failed,
		})
}

func (s *PgStore) FinalizeSyncRun(ctx context.Context, id uuid.UUID, status RunStatus, endedAt time.Time, errorMessage *string) error {
	return s.exec(ctx,
		`UPDATE cis.sync_runs SET status = @status, ended_at = @ended_at, error_message = @error_message
		 WHERE id = @id`,
		pgx.NamedArgs{
			"id":            id,
			"status":        status,
			"ended_at":      endedAt,
			"error_message": errorMessage,
		})
}

const syncRunColumns = `id, flow_kind, started_at, ended_at, status, is_full_sync,
	query_params, processed, created, updated, skipped, failed, error_message, initiated_by`

func scanSyncRun(row pgx.Row) (*SyncRun, error) {
	var run SyncRun
	err := row.Scan(&run.ID, &run.FlowKind, &run.StartedAt, &run.EndedAt, &run.Status,
		&run.IsFullSync, &run.QueryParams, &run.Processed, &run.Created, &run.Updated,
		&run.Skipped, &run.Failed, &run.ErrorMessage, &run.InitiatedBy)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &run, nil
}

func (s *PgStore) GetSyncRun(ctx context.Context, id uuid.UUID) (*SyncRun, error) {
	return scanSyncRun(s.pool.QueryRow(ctx,
		`SELECT `+syncRunColumns+` FROM cis.sync_runs WHERE id = $1`, id))
}

func (s *PgStore) ListSyncRuns(ctx context.Context, kind FlowKind, limit int) ([]SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM cis.sync_runs`
	args := []any{}
	if kind != "" {
		query += ` WHERE flow_kind = $1`
		args = append(args, kind)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *PgStore) ReapStaleRuns(ctx context.Context, olderThan time.Time, message string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cis.sync_runs SET status = 'failed', ended_at = now(), error_message = $1
		 WHERE status = 'running' AND started_at < $2`,
		message, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
