package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/joseph-ayodele/lease-abstractor/internal/qa"
	"github.com/joseph-ayodele/lease-abstractor/internal/schema"
)

// Service renders a merged record (and Q&A transcripts) into files.
type Service struct {
	schema *schema.Schema
	logger *slog.Logger
}

func NewService(s *schema.Schema, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{schema: s, logger: logger}
}

const sheet = "Abstract"

// XLSX returns a workbook (as bytes) with one row per leaf value.
func (s *Service) XLSX(rec map[string]any) ([]byte, error) {
	start := time.Now()
	rows := Flatten(rec, s.schema)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{"Section", "Field", "Value"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	for i, r := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.Section)
		write(2, r.Field)
		write(3, r.Value)
	}

	_ = f.SetColWidth(sheet, "A", "A", 24) // section
	_ = f.SetColWidth(sheet, "B", "B", 36) // field
	_ = f.SetColWidth(sheet, "C", "C", 90) // value
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok", "rows", len(rows), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

// JSON returns the record indented, keys in map order.
func (s *Service) JSON(rec map[string]any) ([]byte, error) {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json export: %w", err)
	}
	return append(b, '\n'), nil
}

// Markdown renders the record as one table per section.
func (s *Service) Markdown(rec map[string]any, title string) string {
	var b strings.Builder
	b.WriteString("# " + escapeCell(title) + "\n")
	current := ""
	for _, r := range Flatten(rec, s.schema) {
		if r.Section != current {
			current = r.Section
			b.WriteString("\n## " + escapeCell(current) + "\n\n| Field | Value |\n| --- | --- |\n")
		}
		b.WriteString("| " + escapeCell(r.Field) + " | " + escapeCell(r.Value) + " |\n")
	}
	return b.String()
}

// HTML renders the Markdown report to a standalone HTML page.
func (s *Service) HTML(rec map[string]any, title string) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var body bytes.Buffer
	if err := md.Convert([]byte(s.Markdown(rec, title)), &body); err != nil {
		return nil, fmt.Errorf("html export: %w", err)
	}
	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	out.WriteString(htmlEscape(title))
	out.WriteString("</title></head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body></html>\n")
	return out.Bytes(), nil
}

// Transcript renders answered Q&A turns as Markdown.
func Transcript(msgs []qa.Message) string {
	var b strings.Builder
	b.WriteString("# Questions and answers\n")
	for _, m := range msgs {
		switch m.Role {
		case qa.RoleUser:
			b.WriteString("\n**Q:** " + m.Text + "\n")
		case qa.RoleModel:
			b.WriteString("\n" + m.Text + "\n")
		}
	}
	return b.String()
}

// WriteFile picks the format from the file extension: .xlsx, .json, .html or .md.
func (s *Service) WriteFile(path string, rec map[string]any, title string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		data, err = s.XLSX(rec)
	case ".json":
		data, err = s.JSON(rec)
	case ".html", ".htm":
		data, err = s.HTML(rec, title)
	case ".md":
		data = []byte(s.Markdown(rec, title))
	default:
		return fmt.Errorf("unsupported export format %q", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.logger.Info("export.write.ok", "path", path, "bytes", len(data))
	return nil
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ")

func escapeCell(s string) string { return cellEscaper.Replace(s) }

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func htmlEscape(s string) string { return htmlEscaper.Replace(s) }
