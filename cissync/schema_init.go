package cissync

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InitializeSchema creates the operational tables if they don't exist. All
// DDL runs in one transaction so a half-created schema never survives a
// failed startup.
func InitializeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return initializeSchemaInTx(ctx, tx)
	})
}

func initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		// Dedicated schema for everything the engine owns
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS cis`,

		// Reference entities, keyed by their legacy natural codes
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS cis.regions (
			id    BIGSERIAL PRIMARY KEY,
			code  TEXT NOT NULL UNIQUE,
			name  TEXT NOT NULL
		)`,

		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS cis.branches (
			id             BIGSERIAL PRIMARY KEY,
			ba_code        TEXT NOT NULL UNIQUE,
			branch_code    TEXT,
			name           TEXT NOT NULL,
			region_code    TEXT REFERENCES cis.regions(code),
			source_org_id  BIGINT
		)`,

		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS cis.installation_statuses (
			id          BIGSERIAL PRIMARY KEY,
			code        TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,

		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS cis.installation_types (
			id          BIGSERIAL PRIMARY KEY,
			code        TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,

		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS cis.meter_sizes (
			id          BIGSERIAL PRIMARY KEY,
			code        TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,

		// Target entities. Reference links are by natural key so the sync
		// order of flows cannot create foreign-key ordering hazards.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS cis.customers (
			id                BIGSERIAL PRIMARY KEY,
			original_id       TEXT NOT NULL UNIQUE,
			title             TEXT NOT NULL DEFAULT '',
			firstname         TEXT NOT NULL DEFAULT '',
			lastname          TEXT NOT NULL,
			id_card           TEXT,
			address           TEXT,
			mobile            TEXT,
			branch_ba_code    TEXT,
			current_type_code TEXT,
			current_type_name TEXT,
			type_history      JSON NOT NULL DEFAULT '[]',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS cis.installation_requests (
			id                     BIGSERIAL PRIMARY KEY,
			request_no             TEXT NOT NULL UNIQUE,
			customer_id            BIGINT REFERENCES cis.customers(id),
			branch_ba_code         TEXT,
			status_code            TEXT,
			installation_type_code TEXT,
			meter_size_code        TEXT,
			request_date           TIMESTAMPTZ,
			estimated_date         TIMESTAMPTZ,
			approved_date          TIMESTAMPTZ,
			payment_date           TIMESTAMPTZ,
			installation_date      TIMESTAMPTZ,
			completion_date        TIMESTAMPTZ,
			expiration_date        TIMESTAMPTZ,
			installation_fee       DOUBLE PRECISION,
			bill_no                TEXT,
			remarks                TEXT,
			source_request_id      TEXT,
			source_install_id      TEXT,
			created_by             TEXT,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ir_customer_idx ON cis.installation_requests(customer_id)`,
		`CREATE INDEX IF NOT EXISTS ir_branch_idx ON cis.installation_requests(branch_ba_code)`,
		`CREATE INDEX IF NOT EXISTS ir_request_date_idx ON cis.installation_requests(request_date)`,

		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS cis.holidays (
			id                  BIGSERIAL PRIMARY KEY,
			holiday_date        DATE NOT NULL UNIQUE,
			description         TEXT NOT NULL DEFAULT '',
			is_national_holiday BOOLEAN NOT NULL DEFAULT TRUE,
			is_repeating_yearly BOOLEAN NOT NULL DEFAULT FALSE,
			region_code         TEXT,
			source_id           TEXT NOT NULL,
			updated_by          TEXT
		)`,

		// Run lifecycle records
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS cis.sync_runs (
			id            UUID PRIMARY KEY,
			flow_kind     TEXT NOT NULL,
			started_at    TIMESTAMPTZ NOT NULL,
			ended_at      TIMESTAMPTZ,
			status        TEXT NOT NULL CHECK (status IN ('running','success','partial','failed')),
			is_full_sync  BOOLEAN NOT NULL DEFAULT TRUE,
			query_params  JSON,
			processed     BIGINT NOT NULL DEFAULT 0,
			created       BIGINT NOT NULL DEFAULT 0,
			updated       BIGINT NOT NULL DEFAULT 0,
			skipped       BIGINT NOT NULL DEFAULT 0,
			failed        BIGINT NOT NULL DEFAULT 0,
			error_message TEXT,
			initiated_by  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS sync_runs_flow_started_idx ON cis.sync_runs(flow_kind, started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS sync_runs_status_idx ON cis.sync_runs(status) WHERE status = 'running'`,

		// Audit trail of placeholder reference entities
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS cis.autoprovision_log (
			id          BIGSERIAL PRIMARY KEY,
			entity_kind TEXT NOT NULL,
			natural_key TEXT NOT NULL,
			run_id      UUID,
			flow_kind   TEXT,
			reason      TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS apl_entity_idx ON cis.autoprovision_log(entity_kind, natural_key)`,
	}

	for _, migration := range migrations {
		if _, err := tx.Exec(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}
