package export

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/lease-abstractor/internal/qa"
	"github.com/joseph-ayodele/lease-abstractor/internal/schema"
)

const testSchema = `{
  "name": "t",
  "sections": [
    {"key": "premises", "label": "Premises", "type": "object", "properties": [
      {"key": "address", "type": "string"},
      {"key": "squareFeet", "type": "number"}
    ]},
    {"key": "rent", "label": "Rent", "type": "object", "properties": [
      {"key": "baseRent", "type": "array", "items": {"type": "object", "properties": [
        {"key": "period", "type": "string"},
        {"key": "monthlyAmount", "type": "string"}
      ]}}
    ]},
    {"key": "renewal", "label": "Renewal", "type": "boolean"}
  ]
}`

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := schema.Parse([]byte(testSchema))
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewService(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func record() map[string]any {
	return map[string]any{
		"renewal": true,
		"premises": map[string]any{
			"squareFeet": 12500.5,
			"address":    "1 Main St | Suite 200",
			"zoning":     "C-2",
		},
		"rent": map[string]any{
			"baseRent": []any{
				map[string]any{"period": "Years 1-2", "monthlyAmount": "$10,000.00"},
				map[string]any{"period": "Years 3-5", "monthlyAmount": "$10,300.00"},
			},
		},
	}
}

func TestFlattenFollowsSchemaOrder(t *testing.T) {
	rows := Flatten(record(), newService(t).schema)
	want := []Row{
		{"Premises", "address", "1 Main St | Suite 200"},
		{"Premises", "squareFeet", "12500.5"},
		{"Premises", "zoning", "C-2"},
		{"Rent", "baseRent[0].period", "Years 1-2"},
		{"Rent", "baseRent[0].monthlyAmount", "$10,000.00"},
		{"Rent", "baseRent[1].period", "Years 3-5"},
		{"Rent", "baseRent[1].monthlyAmount", "$10,300.00"},
		{"Renewal", "", "Yes"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestFlattenEmptyArrayKeepsARow(t *testing.T) {
	rec := map[string]any{"rent": map[string]any{"baseRent": []any{}}}
	rows := Flatten(rec, newService(t).schema)
	if len(rows) != 1 || rows[0].Field != "baseRent" || rows[0].Value != "" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestXLSXRoundTrip(t *testing.T) {
	svc := newService(t)
	data, err := svc.XLSX(record())
	if err != nil {
		t.Fatalf("XLSX: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != "Abstract" {
		t.Fatalf("sheets = %v", sheets)
	}
	rows, err := f.GetRows("Abstract")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 9 {
		t.Fatalf("rows = %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "Section,Field,Value" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[5][1] != "baseRent[0].monthlyAmount" || rows[5][2] != "$10,000.00" {
		t.Fatalf("row 5 = %v", rows[5])
	}
}

func TestHTMLRendersTables(t *testing.T) {
	out, err := newService(t).HTML(record(), "Lease <abstract>")
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	html := string(out)
	for _, want := range []string{"<title>Lease &lt;abstract&gt;</title>", "<table>", "<h2>Rent</h2>", "<td>$10,300.00</td>", `1 Main St | Suite 200`} {
		if !strings.Contains(html, want) {
			t.Errorf("html lacks %q", want)
		}
	}
}

func TestMarkdownEscapesCells(t *testing.T) {
	md := newService(t).Markdown(map[string]any{"premises": map[string]any{"address": "a|b\nc"}}, "T")
	if !strings.Contains(md, `| address | a\|b c |`) {
		t.Fatalf("markdown = %s", md)
	}
}

func TestWriteFileByExtension(t *testing.T) {
	svc := newService(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "abstract.json")
	if err := svc.WriteFile(path, record(), "T"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil || back["renewal"] != true {
		t.Fatalf("json = %s (%v)", raw, err)
	}

	if err := svc.WriteFile(filepath.Join(dir, "abstract.pdf"), record(), "T"); err == nil {
		t.Fatal("want error for unsupported extension")
	}
}

func TestTranscript(t *testing.T) {
	md := Transcript([]qa.Message{
		{Role: qa.RoleUser, Text: "What is the base rent?"},
		{Role: qa.RoleModel, Text: "$10,000.00 per month (Lease.pdf, Section 4, p. 2)."},
	})
	if !strings.Contains(md, "**Q:** What is the base rent?") || !strings.Contains(md, "Section 4, p. 2") {
		t.Fatalf("transcript = %s", md)
	}
}
