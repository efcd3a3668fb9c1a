package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/joseph-ayodele/lease-abstractor/internal/common"
	"github.com/joseph-ayodele/lease-abstractor/internal/llm"
	"github.com/joseph-ayodele/lease-abstractor/internal/schema"
)

var reFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```$")

// Scheduler issues one generation request per unit, strictly in order,
// and merges each response into the record before moving on.
type Scheduler struct {
	gen    llm.Generator
	strict bool
	logger *slog.Logger
}

type Option func(*Scheduler)

// WithStrictSchema makes a fragment that fails schema validation fatal.
// By default a mismatch is only logged.
func WithStrictSchema(strict bool) Option {
	return func(s *Scheduler) { s.strict = strict }
}

func NewScheduler(gen llm.Generator, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{gen: gen, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run extracts every unit from text. On a hard failure it stops and returns
// the record merged so far together with a *UnitError.
func (s *Scheduler) Run(ctx context.Context, text string, units []schema.Unit, hooks Hooks) (Record, error) {
	record := Record{}
	runID := common.RunIDFromContext(ctx)
	start := time.Now()
	n := len(units)

	s.logger.Info("extract.run.start", "run_id", runID, "units", n, "text_len", len(text))
	for i, u := range units {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("extract.run.interrupted", "run_id", runID, "unit", u.Path(), "error", err)
			return record, common.NewAppError(common.CodeInterrupt, "extraction interrupted", err)
		}
		if hooks.OnUnitStart != nil {
			hooks.OnUnitStart(u, i, n)
		}
		unitStart := time.Now()
		s.logger.Info("extract.unit.start", "run_id", runID, "unit", u.Path(), "index", i+1, "of", n)

		value, err := s.runUnit(ctx, text, u)
		if err != nil {
			var ue *UnitError
			if errors.As(err, &ue) {
				ue.Index = i
			}
			s.logger.Error("extract.unit.failed",
				"run_id", runID, "unit", u.Path(), "index", i+1, "error", err,
				"merged_sections", len(record),
			)
			return record, err
		}

		merge(record, u, value)
		s.logger.Info("extract.unit.done",
			"run_id", runID, "unit", u.Path(), "index", i+1,
			"elapsed_ms", time.Since(unitStart).Milliseconds(),
		)
		if hooks.OnSnapshot != nil {
			hooks.OnSnapshot(u, record.Clone())
		}
	}
	s.logger.Info("extract.run.done", "run_id", runID, "units", n, "elapsed_ms", time.Since(start).Milliseconds())
	return record, nil
}

func (s *Scheduler) runUnit(ctx context.Context, text string, u schema.Unit) (any, error) {
	resp, err := s.gen.Generate(ctx, llm.Request{
		Content:           text,
		SystemInstruction: llm.SystemInstruction(u.Label, u.Key(), u.CatchAll),
		ResponseSchema:    schema.ResponseSchema(u),
		SchemaName:        u.Path(),
	})
	if err != nil {
		return nil, &UnitError{Unit: u, Err: fmt.Errorf("%w: %w", common.ErrBackend, err)}
	}
	return s.parse(ctx, u, resp.Text)
}

// parse turns response text into the unit's value. Only the catch-all
// tolerates an empty or keyless answer.
func (s *Scheduler) parse(ctx context.Context, u schema.Unit, text string) (any, error) {
	runID := common.RunIDFromContext(ctx)
	text = strings.TrimSpace(text)
	if text == "" {
		if u.CatchAll {
			s.logger.Warn("extract.unit.empty_catch_all", "run_id", runID, "unit", u.Path())
			return u.Node.EmptyValue(), nil
		}
		return nil, &UnitError{Unit: u, Err: common.ErrEmptyResponse}
	}

	body := StripFence(text)
	var parsed any
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		s.logger.Debug("extract.unit.raw", "run_id", runID, "unit", u.Path(), "raw", llm.Truncate(text, 2048))
		return nil, &UnitError{Unit: u, Err: fmt.Errorf("%w: %v", common.ErrMalformedResponse, err), raw: text}
	}

	var value any
	switch v := parsed.(type) {
	case map[string]any:
		got, ok := v[u.Key()]
		if !ok {
			if u.CatchAll {
				s.logger.Warn("extract.unit.missing_key_catch_all", "run_id", runID, "unit", u.Path())
				return u.Node.EmptyValue(), nil
			}
			return nil, &UnitError{Unit: u, Err: fmt.Errorf("%w: response lacks key %q", common.ErrMalformedResponse, u.Key()), raw: text}
		}
		value = got
	case []any:
		// some models answer a collection unit with the bare list
		if u.Node.Type != "array" {
			return nil, &UnitError{Unit: u, Err: fmt.Errorf("%w: expected an object, got a list", common.ErrMalformedResponse), raw: text}
		}
		s.logger.Warn("extract.unit.bare_list", "run_id", runID, "unit", u.Path())
		value = v
	default:
		return nil, &UnitError{Unit: u, Err: fmt.Errorf("%w: expected an object, got %T", common.ErrMalformedResponse, parsed), raw: text}
	}
	if value == nil && u.CatchAll {
		value = u.Node.EmptyValue()
	}

	if err := schema.ValidateFragment(u, map[string]any{u.Key(): value}); err != nil {
		if s.strict {
			return nil, &UnitError{Unit: u, Err: fmt.Errorf("%w: %v", common.ErrMalformedResponse, err), raw: text}
		}
		s.logger.Warn("extract.unit.schema_mismatch", "run_id", runID, "unit", u.Path(), "error", err)
	}
	return value, nil
}

// merge assigns a complete fragment. Clause values land under their section.
func merge(record Record, u schema.Unit, value any) {
	if u.Clause == "" {
		record[u.Section] = value
		return
	}
	sec, ok := record[u.Section].(map[string]any)
	if !ok {
		sec = map[string]any{}
		record[u.Section] = sec
	}
	sec[u.Clause] = value
}

// StripFence removes a Markdown code fence wrapped around the whole text.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if m := reFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}
