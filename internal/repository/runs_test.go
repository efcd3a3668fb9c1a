package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lease-abstractor/constants"
	"github.com/joseph-ayodele/lease-abstractor/internal/common"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(context.Background(), Config{URL: ":memory:", DialTimeout: time.Second}, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

// fixed clock advancing one second per call
func steppingClock() func() time.Time {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewRunRepository(db, nil).(*runRepo)
	repo.now = steppingClock()
	ctx := context.Background()

	run, err := repo.Start(ctx, NewRun{
		Documents:  []string{"Lease.pdf", "Amendment 1.pdf"},
		DocSetKey:  "abc",
		Provider:   "gemini",
		UnitsTotal: 12,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.Status != constants.RunStatusRunning {
		t.Fatalf("status = %s", run.Status)
	}

	if err := repo.SaveProgress(ctx, run.ID, 3, json.RawMessage(`{"premises":{}}`)); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	got, err := repo.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UnitsDone != 3 || string(got.Record) != `{"premises":{}}` || got.FinishedAt != nil {
		t.Fatalf("progress not stored: %+v", got)
	}
	if len(got.Documents) != 2 || got.Documents[1] != "Amendment 1.pdf" || !got.StartedAt.Equal(run.StartedAt) {
		t.Fatalf("run = %+v", got)
	}

	err = repo.Finish(ctx, run.ID, Outcome{
		Status:     constants.RunStatusFailed,
		UnitsDone:  3,
		FailedUnit: "Key Clauses: Insurance",
		Error:      "malformed response",
		Record:     json.RawMessage(`{"premises":{},"parties":{}}`),
	})
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got, _ = repo.Get(ctx, run.ID)
	if got.Status != constants.RunStatusFailed || got.FailedUnit != "Key Clauses: Insurance" || got.FinishedAt == nil {
		t.Fatalf("finished run = %+v", got)
	}
}

func TestGetUnknownRun(t *testing.T) {
	repo := NewRunRepository(openTestDB(t), nil)
	if _, err := repo.Get(context.Background(), uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := repo.SaveProgress(context.Background(), uuid.New(), 1, json.RawMessage(`{}`)); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestListRecentNewestFirst(t *testing.T) {
	repo := NewRunRepository(openTestDB(t), nil).(*runRepo)
	repo.now = steppingClock()
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		r, err := repo.Start(ctx, NewRun{Documents: []string{"a.pdf"}, UnitsTotal: 1})
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		ids = append(ids, r.ID)
	}
	runs, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("runs = %v", runs)
	}
}

func TestHealthCheck(t *testing.T) {
	if err := openTestDB(t).HealthCheck(context.Background(), time.Second); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: Postgres}
	if got := pg.Rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("got %q", got)
	}
	lite := &DB{Dialect: SQLite}
	if got := lite.Rebind("a = ?"); got != "a = ?" {
		t.Fatalf("got %q", got)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), Config{URL: "sqlite://"}, nil)
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}
