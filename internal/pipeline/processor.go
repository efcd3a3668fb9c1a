package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lease-abstractor/constants"
	"github.com/joseph-ayodele/lease-abstractor/internal/common"
	"github.com/joseph-ayodele/lease-abstractor/internal/document"
	"github.com/joseph-ayodele/lease-abstractor/internal/extract"
	"github.com/joseph-ayodele/lease-abstractor/internal/repository"
	"github.com/joseph-ayodele/lease-abstractor/internal/schema"
)

// Result of one extraction run. Record holds everything merged before a
// failure when Extract also returns an error.
type Result struct {
	RunID      uuid.UUID
	Record     extract.Record
	UnitsTotal int
	UnitsDone  int
	FailedUnit string
}

// Processor coordinates text assembly and unit extraction, and records
// each run in the run store when one is configured.
type Processor struct {
	Logger   *slog.Logger
	Library  *document.Library
	Schema   *schema.Schema
	Sched    *extract.Scheduler
	Runs     repository.RunRepository // optional
	Provider string

	running atomic.Bool
}

func NewProcessor(logger *slog.Logger, lib *document.Library, s *schema.Schema, sched *extract.Scheduler, runs repository.RunRepository, provider string) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Library: lib, Schema: s, Sched: sched, Runs: runs, Provider: provider}
}

// Units lists the extraction units of the configured schema in order.
func (p *Processor) Units() []schema.Unit { return schema.Partition(p.Schema) }

// Extract runs one extraction over the current document set. Only one run
// may be active per processor; an overlapping call fails with
// common.ErrRunInProgress.
func (p *Processor) Extract(ctx context.Context, progress document.Progress, hooks extract.Hooks) (*Result, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, common.ErrRunInProgress
	}
	defer p.running.Store(false)

	units := p.Units()
	res := &Result{RunID: uuid.New(), Record: extract.Record{}, UnitsTotal: len(units)}
	if len(p.Library.Documents()) == 0 {
		return res, common.ErrNoDocuments
	}
	start := time.Now()

	stored := p.startRun(ctx, res, units)
	ctx = common.WithRunID(ctx, res.RunID.String())
	p.Logger.Info("processor.extract.start", "run_id", res.RunID, "documents", len(p.Library.Documents()), "units", len(units))

	text, err := p.Library.Text(ctx, progress)
	if err != nil {
		p.Logger.Error("processor.text.failed", "run_id", res.RunID, "err", err)
		if stored {
			p.finishRun(ctx, res, err)
		}
		return res, err
	}

	rec, err := p.Sched.Run(ctx, text, units, extract.Hooks{
		OnUnitStart: hooks.OnUnitStart,
		OnSnapshot: func(u schema.Unit, snap extract.Record) {
			res.UnitsDone++
			if stored {
				p.saveProgress(ctx, res.RunID, res.UnitsDone, snap)
			}
			if hooks.OnSnapshot != nil {
				hooks.OnSnapshot(u, snap)
			}
		},
	})
	res.Record = rec
	var ue *extract.UnitError
	if errors.As(err, &ue) {
		res.FailedUnit = ue.Unit.Label
	}
	if stored {
		p.finishRun(ctx, res, err)
	}
	if err != nil {
		p.Logger.Error("processor.extract.failed", "run_id", res.RunID, "units_done", res.UnitsDone, "failed_unit", res.FailedUnit, "err", err)
		return res, err
	}
	p.Logger.Info("processor.extract.ok", "run_id", res.RunID, "units", res.UnitsDone, "elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

// startRun reports whether the run was recorded; later store calls are
// skipped for unrecorded runs.
func (p *Processor) startRun(ctx context.Context, res *Result, units []schema.Unit) bool {
	if p.Runs == nil {
		return false
	}
	run, err := p.Runs.Start(ctx, repository.NewRun{
		Documents:  p.Library.Names(),
		DocSetKey:  p.Library.Key(),
		Provider:   p.Provider,
		UnitsTotal: len(units),
	})
	if err != nil {
		p.Logger.Warn("processor.store.start_failed", "err", err)
		return false
	}
	res.RunID = run.ID
	return true
}

func (p *Processor) saveProgress(ctx context.Context, id uuid.UUID, done int, snap extract.Record) {
	b, err := json.Marshal(snap)
	if err == nil {
		err = p.Runs.SaveProgress(ctx, id, done, b)
	}
	if err != nil {
		p.Logger.Warn("processor.store.progress_failed", "run_id", id, "err", err)
	}
}

func (p *Processor) finishRun(ctx context.Context, res *Result, runErr error) {
	out := repository.Outcome{Status: constants.RunStatusSucceeded, UnitsDone: res.UnitsDone, FailedUnit: res.FailedUnit}
	if runErr != nil {
		out.Status = constants.RunStatusFailed
		out.Error = runErr.Error()
	}
	if b, err := json.Marshal(res.Record); err == nil {
		out.Record = b
	}
	// an interrupted run is still recorded
	if err := p.Runs.Finish(context.WithoutCancel(ctx), res.RunID, out); err != nil {
		p.Logger.Warn("processor.store.finish_failed", "run_id", res.RunID, "err", err)
	}
}
