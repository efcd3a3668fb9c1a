package repository

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/lease-abstractor/internal/common"
)

// statements are idempotent and valid for both SQLite and Postgres.
// Timestamps are unix milliseconds to avoid driver-specific time handling.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS extraction_runs (
		id            TEXT PRIMARY KEY,
		status        TEXT NOT NULL,
		documents     TEXT NOT NULL,
		doc_set_key   TEXT NOT NULL,
		provider      TEXT NOT NULL DEFAULT '',
		units_total   INTEGER NOT NULL,
		units_done    INTEGER NOT NULL DEFAULT 0,
		failed_unit   TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		record_json   TEXT NOT NULL DEFAULT '{}',
		started_at    BIGINT NOT NULL,
		updated_at    BIGINT NOT NULL,
		finished_at   BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS extraction_runs_started_at_idx ON extraction_runs (started_at)`,
}

// Migrate creates the schema if needed.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := d.SQL.ExecContext(ctx, stmt); err != nil {
			d.logger.Error("migration failed", "step", i+1, "error", err)
			return fmt.Errorf("%w: migration %d: %w", common.ErrDatabase, i+1, err)
		}
	}
	d.logger.Info("database migrated", "dialect", d.Dialect.String(), "steps", len(migrations))
	return nil
}
