package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/joseph-ayodele/lease-abstractor/constants"
	"github.com/joseph-ayodele/lease-abstractor/internal/common"
	"github.com/joseph-ayodele/lease-abstractor/internal/llm"
	"github.com/joseph-ayodele/lease-abstractor/internal/schema"
)

const testSchema = `{
  "name": "t",
  "sections": [
    {"key": "premises", "type": "object", "properties": [{"key": "address", "type": "string"}]},
    {"key": "tenant", "type": "string"},
    {"key": "clauses", "type": "object", "granularity": "expand-children", "properties": [
      {"key": "insurance", "type": "object", "properties": [{"key": "summary", "type": "string"}]},
      {"key": "assignment", "type": "object", "properties": [{"key": "summary", "type": "string"}]},
      {"key": "other", "type": "array", "catchAll": true, "items": {"type": "string"}}
    ]},
    {"key": "rent", "type": "array", "items": {"type": "object", "properties": [{"key": "amount", "type": "string"}]}},
    {"key": "renewal", "type": "boolean"}
  ]
}`

// scriptedGenerator answers by unit path and records every request.
type scriptedGenerator struct {
	answers map[string]string
	errs    map[string]error
	calls   []llm.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	g.calls = append(g.calls, req)
	if err := g.errs[req.SchemaName]; err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Text: g.answers[req.SchemaName]}, nil
}

func goodAnswers() map[string]string {
	return map[string]string{
		"premises":           `{"premises":{"address":"1 Main St, Springfield"}}`,
		"tenant":             `{"tenant":"Acme LLC"}`,
		"clauses.insurance":  `{"insurance":{"summary":"$1,000,000 CGL"}}`,
		"clauses.assignment": "```json\n{\"assignment\":{\"summary\":\"Consent not unreasonably withheld\"}}\n```",
		"clauses.other":      `{"other":["Signage rights"]}`,
		"rent":               `{"rent":[{"amount":"$10,000.00"},{"amount":"$10,300.00"}]}`,
		"renewal":            `{"renewal":true}`,
	}
}

func setup(t *testing.T, gen llm.Generator, opts ...Option) (*Scheduler, []schema.Unit) {
	t.Helper()
	s, err := schema.Parse([]byte(testSchema))
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(gen, logger, opts...), schema.Partition(s)
}

func TestRunIssuesOneRequestPerUnitInOrder(t *testing.T) {
	gen := &scriptedGenerator{answers: goodAnswers()}
	sched, units := setup(t, gen)

	var started []string
	var snapshots []Record
	rec, err := sched.Run(context.Background(), "Document 1: lease.pdf\n\n...", units, Hooks{
		OnUnitStart: func(u schema.Unit, i, n int) {
			if n != 7 {
				t.Errorf("n = %d", n)
			}
			started = append(started, u.Path())
		},
		OnSnapshot: func(_ schema.Unit, snap Record) { snapshots = append(snapshots, snap) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"premises", "tenant", "clauses.insurance", "clauses.assignment", "clauses.other", "rent", "renewal"}
	if !reflect.DeepEqual(started, want) {
		t.Fatalf("order = %v", started)
	}
	if len(gen.calls) != 7 {
		t.Fatalf("requests = %d, want 7", len(gen.calls))
	}
	for i, c := range gen.calls {
		if c.SchemaName != want[i] || !strings.HasPrefix(c.Content, "Document 1:") {
			t.Fatalf("request %d = %+v", i, c.SchemaName)
		}
		if !strings.Contains(c.SystemInstruction, "chronological order") {
			t.Fatalf("request %d lacks base instruction", i)
		}
		if req := c.ResponseSchema["required"].([]string); len(req) != 1 {
			t.Fatalf("request %d schema requires %v", i, req)
		}
	}

	// every snapshot keeps everything the previous one had
	if len(snapshots) != 7 {
		t.Fatalf("snapshots = %d", len(snapshots))
	}
	for i := 1; i < len(snapshots); i++ {
		for k, v := range snapshots[i-1] {
			if k == "clauses" {
				prev := v.(map[string]any)
				cur := snapshots[i][k].(map[string]any)
				for ck := range prev {
					if _, ok := cur[ck]; !ok {
						t.Fatalf("snapshot %d lost clauses.%s", i, ck)
					}
				}
				continue
			}
			if !reflect.DeepEqual(snapshots[i][k], v) {
				t.Fatalf("snapshot %d changed %s", i, k)
			}
		}
	}

	clauses := rec["clauses"].(map[string]any)
	if clauses["assignment"].(map[string]any)["summary"] != "Consent not unreasonably withheld" {
		t.Fatalf("fenced answer not merged: %v", clauses["assignment"])
	}
	if rec["renewal"] != true || len(rec["rent"].([]any)) != 2 {
		t.Fatalf("record = %v", rec)
	}
}

func TestRunMalformedUnitKeepsPartialRecord(t *testing.T) {
	answers := goodAnswers()
	answers["clauses.insurance"] = "I could not find an insurance clause."
	gen := &scriptedGenerator{answers: answers}
	sched, units := setup(t, gen)

	var snaps int
	rec, err := sched.Run(context.Background(), "text", units, Hooks{OnSnapshot: func(schema.Unit, Record) { snaps++ }})

	var ue *UnitError
	if !errors.As(err, &ue) || !errors.Is(err, common.ErrMalformedResponse) {
		t.Fatalf("err = %v", err)
	}
	if ue.Index != 2 || ue.Unit.Path() != "clauses.insurance" {
		t.Fatalf("unit error = %+v", ue)
	}
	if ue.Raw() != answers["clauses.insurance"] || strings.Contains(ue.Error(), "could not find") {
		t.Fatal("raw text must be kept off the error message")
	}
	if len(gen.calls) != 3 || snaps != 2 {
		t.Fatalf("calls = %d snapshots = %d", len(gen.calls), snaps)
	}
	if _, ok := rec["premises"]; !ok {
		t.Fatal("premises lost")
	}
	if rec["tenant"] != "Acme LLC" {
		t.Fatalf("tenant = %v", rec["tenant"])
	}
	if _, ok := rec["clauses"]; ok {
		t.Fatal("failed unit must not leave a trace")
	}
}

func TestRunEmptyCatchAllResolvesToEmptyList(t *testing.T) {
	answers := goodAnswers()
	answers["clauses.other"] = "   "
	gen := &scriptedGenerator{answers: answers}
	sched, units := setup(t, gen)

	rec, err := sched.Run(context.Background(), "text", units, Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	other := rec["clauses"].(map[string]any)["other"]
	if l, ok := other.([]any); !ok || len(l) != 0 {
		t.Fatalf("other = %#v", other)
	}
	if len(gen.calls) != 7 {
		t.Fatalf("calls = %d", len(gen.calls))
	}
}

func TestRunCatchAllWithoutKey(t *testing.T) {
	answers := goodAnswers()
	answers["clauses.other"] = `{}`
	sched, units := setup(t, &scriptedGenerator{answers: answers})
	rec, err := sched.Run(context.Background(), "text", units, Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if l, ok := rec["clauses"].(map[string]any)["other"].([]any); !ok || len(l) != 0 {
		t.Fatalf("other = %#v", rec["clauses"])
	}
}

func TestRunEmptyNonCatchAllIsFatal(t *testing.T) {
	answers := goodAnswers()
	answers["rent"] = ""
	gen := &scriptedGenerator{answers: answers}
	sched, units := setup(t, gen)

	rec, err := sched.Run(context.Background(), "text", units, Hooks{})
	if !errors.Is(err, common.ErrEmptyResponse) {
		t.Fatalf("err = %v", err)
	}
	if len(gen.calls) != 6 {
		t.Fatalf("calls = %d, want 6", len(gen.calls))
	}
	for _, k := range []string{"premises", "tenant", "clauses"} {
		if _, ok := rec[k]; !ok {
			t.Fatalf("record lost %s", k)
		}
	}
	if len(rec["clauses"].(map[string]any)) != 3 {
		t.Fatalf("clauses = %v", rec["clauses"])
	}
	if _, ok := rec["renewal"]; ok {
		t.Fatal("unit after the failure ran")
	}
}

func TestRunMissingKeyIsMalformed(t *testing.T) {
	answers := goodAnswers()
	answers["tenant"] = `{"landlord":"Big Properties"}`
	sched, units := setup(t, &scriptedGenerator{answers: answers})
	_, err := sched.Run(context.Background(), "text", units, Hooks{})
	if !errors.Is(err, common.ErrMalformedResponse) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunAcceptsNotProvided(t *testing.T) {
	answers := goodAnswers()
	answers["premises"] = `{"premises":{"address":"` + constants.NotProvided + `"}}`
	answers["tenant"] = `{"tenant":"` + constants.NotProvided + `"}`
	sched, units := setup(t, &scriptedGenerator{answers: answers})
	rec, err := sched.Run(context.Background(), "text", units, Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec["tenant"] != constants.NotProvided {
		t.Fatalf("tenant = %v", rec["tenant"])
	}
}

func TestRunBackendErrorStops(t *testing.T) {
	boom := errors.New("connection reset")
	gen := &scriptedGenerator{answers: goodAnswers(), errs: map[string]error{"tenant": boom}}
	sched, units := setup(t, gen)
	rec, err := sched.Run(context.Background(), "text", units, Hooks{})
	if !errors.Is(err, common.ErrBackend) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(rec) != 1 || len(gen.calls) != 2 {
		t.Fatalf("record = %v calls = %d", rec, len(gen.calls))
	}
}

func TestRunStrictSchema(t *testing.T) {
	answers := goodAnswers()
	answers["renewal"] = `{"renewal":"yes"}`

	sched, units := setup(t, &scriptedGenerator{answers: answers})
	rec, err := sched.Run(context.Background(), "text", units, Hooks{})
	if err != nil || rec["renewal"] != "yes" {
		t.Fatalf("lenient run: rec = %v err = %v", rec["renewal"], err)
	}

	sched, units = setup(t, &scriptedGenerator{answers: answers}, WithStrictSchema(true))
	if _, err := sched.Run(context.Background(), "text", units, Hooks{}); !errors.Is(err, common.ErrMalformedResponse) {
		t.Fatalf("strict run err = %v", err)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	sched, units := setup(t, &scriptedGenerator{answers: goodAnswers()})
	rec, err := sched.Run(context.Background(), "text", units, Hooks{
		OnSnapshot: func(_ schema.Unit, snap Record) {
			if p, ok := snap["premises"].(map[string]any); ok {
				p["address"] = "tampered"
			}
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec["premises"].(map[string]any)["address"] != "1 Main St, Springfield" {
		t.Fatal("snapshot aliases the live record")
	}
}

func TestStripFence(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n[1,2]\n```":         `[1,2]`,
		`{"a":1}`:                 `{"a":1}`,
		"  ```JSON {\"a\":1}```  ": `{"a":1}`,
	}
	for in, want := range cases {
		if got := StripFence(in); got != want {
			t.Errorf("StripFence(%q) = %q, want %q", in, got, want)
		}
	}
}
