package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lease-abstractor/constants"
	"github.com/joseph-ayodele/lease-abstractor/internal/common"
)

var ErrRunNotFound = errors.New("run not found")

// Run is one extraction attempt as persisted in extraction_runs.
type Run struct {
	ID         uuid.UUID
	Status     constants.RunStatus
	Documents  []string
	DocSetKey  string
	Provider   string
	UnitsTotal int
	UnitsDone  int
	FailedUnit string
	Error      string
	Record     json.RawMessage
	StartedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
}

// NewRun describes a run that is about to start.
type NewRun struct {
	Documents  []string
	DocSetKey  string
	Provider   string
	UnitsTotal int
}

// Outcome is the terminal state of a run.
type Outcome struct {
	Status     constants.RunStatus
	UnitsDone  int
	FailedUnit string
	Error      string
	Record     json.RawMessage
}

type RunRepository interface {
	Start(ctx context.Context, run NewRun) (*Run, error)
	SaveProgress(ctx context.Context, id uuid.UUID, unitsDone int, record json.RawMessage) error
	Finish(ctx context.Context, id uuid.UUID, out Outcome) error
	Get(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRecent(ctx context.Context, limit int) ([]Run, error)
}

type runRepo struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

func NewRunRepository(db *DB, log *slog.Logger) RunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &runRepo{db: db, log: log, now: time.Now}
}

func (r *runRepo) Start(ctx context.Context, nr NewRun) (*Run, error) {
	docs, err := json.Marshal(nr.Documents)
	if err != nil {
		return nil, fmt.Errorf("encode documents: %w", err)
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	run := &Run{
		ID:         uuid.New(),
		Status:     constants.RunStatusRunning,
		Documents:  nr.Documents,
		DocSetKey:  nr.DocSetKey,
		Provider:   nr.Provider,
		UnitsTotal: nr.UnitsTotal,
		Record:     json.RawMessage("{}"),
		StartedAt:  now,
		UpdatedAt:  now,
	}
	_, err = r.db.SQL.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO extraction_runs
			(id, status, documents, doc_set_key, provider, units_total, units_done, record_json, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, '{}', ?, ?)`),
		run.ID.String(), string(run.Status), string(docs), run.DocSetKey, run.Provider, run.UnitsTotal,
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		r.log.Error("extraction_run start failed", "err", err)
		return nil, fmt.Errorf("%w: start run: %w", common.ErrDatabase, err)
	}
	r.log.Info("extraction_run started", "run_id", run.ID, "documents", len(nr.Documents), "units", nr.UnitsTotal)
	return run, nil
}

func (r *runRepo) SaveProgress(ctx context.Context, id uuid.UUID, unitsDone int, record json.RawMessage) error {
	res, err := r.db.SQL.ExecContext(ctx, r.db.Rebind(`
		UPDATE extraction_runs SET units_done = ?, record_json = ?, updated_at = ? WHERE id = ?`),
		unitsDone, string(record), r.now().UnixMilli(), id.String(),
	)
	if err != nil {
		r.log.Error("extraction_run progress failed", "run_id", id, "err", err)
		return fmt.Errorf("%w: save progress: %w", common.ErrDatabase, err)
	}
	return expectOne(res, id)
}

func (r *runRepo) Finish(ctx context.Context, id uuid.UUID, out Outcome) error {
	record := out.Record
	if len(record) == 0 {
		record = json.RawMessage("{}")
	}
	now := r.now().UnixMilli()
	res, err := r.db.SQL.ExecContext(ctx, r.db.Rebind(`
		UPDATE extraction_runs
		SET status = ?, units_done = ?, failed_unit = ?, error_message = ?, record_json = ?, updated_at = ?, finished_at = ?
		WHERE id = ?`),
		string(out.Status), out.UnitsDone, out.FailedUnit, out.Error, string(record), now, now, id.String(),
	)
	if err != nil {
		r.log.Error("extraction_run finish failed", "run_id", id, "err", err)
		return fmt.Errorf("%w: finish run: %w", common.ErrDatabase, err)
	}
	if err := expectOne(res, id); err != nil {
		return err
	}
	if out.Status == constants.RunStatusFailed {
		r.log.Warn("extraction_run finished (FAILED)", "run_id", id, "failed_unit", out.FailedUnit, "error", out.Error)
	} else {
		r.log.Info("extraction_run finished", "run_id", id, "status", out.Status)
	}
	return nil
}

const selectRun = `
	SELECT id, status, documents, doc_set_key, provider, units_total, units_done,
	       failed_unit, error_message, record_json, started_at, updated_at, finished_at
	FROM extraction_runs`

func (r *runRepo) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := r.db.SQL.QueryRowContext(ctx, r.db.Rebind(selectRun+` WHERE id = ?`), id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get run: %w", common.ErrDatabase, err)
	}
	return run, nil
}

func (r *runRepo) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(selectRun+` ORDER BY started_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list runs: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan run: %w", common.ErrDatabase, err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list runs: %w", common.ErrDatabase, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run              Run
		id, status, docs string
		record           string
		started, updated int64
		finished         sql.NullInt64
	)
	if err := s.Scan(&id, &status, &docs, &run.DocSetKey, &run.Provider, &run.UnitsTotal, &run.UnitsDone,
		&run.FailedUnit, &run.Error, &record, &started, &updated, &finished); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad run id %q: %w", id, err)
	}
	run.ID = parsed
	run.Status = constants.RunStatus(status)
	if err := json.Unmarshal([]byte(docs), &run.Documents); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	run.Record = json.RawMessage(record)
	run.StartedAt = time.UnixMilli(started).UTC()
	run.UpdatedAt = time.UnixMilli(updated).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}

func expectOne(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		// driver cannot tell; trust the update
		return nil
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
