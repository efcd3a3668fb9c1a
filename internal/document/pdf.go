package document

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Page is one page of a parsed PDF. Numbers are 1-based.
type Page interface {
	Number() int
	TextItems() ([]TextItem, error)
}

// PDF is a parsed document.
type PDF interface {
	NumPages() int
	Page(n int) (Page, error)
}

// PDFOpener parses raw PDF bytes.
type PDFOpener interface {
	Open(data []byte) (PDF, error)
}

// LedongthucOpener parses PDFs with github.com/ledongthuc/pdf.
type LedongthucOpener struct{}

func (LedongthucOpener) Open(data []byte) (doc PDF, err error) {
	// the parser panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}
	return &ledongthucPDF{r: r}, nil
}

type ledongthucPDF struct {
	r *pdf.Reader
}

func (d *ledongthucPDF) NumPages() int { return d.r.NumPage() }

func (d *ledongthucPDF) Page(n int) (Page, error) {
	if n < 1 || n > d.r.NumPage() {
		return nil, fmt.Errorf("page %d out of range 1..%d", n, d.r.NumPage())
	}
	p := d.r.Page(n)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d: missing page object", n)
	}
	return &ledongthucPage{p: p, n: n}, nil
}

type ledongthucPage struct {
	p pdf.Page
	n int
}

func (p *ledongthucPage) Number() int { return p.n }

// TextItems returns the page's native text layer as glyph runs.
func (p *ledongthucPage) TextItems() (items []TextItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("read text layer of page %d: %v", p.n, r)
		}
	}()
	content := p.p.Content()
	glyphs := make([]TextItem, 0, len(content.Text))
	for _, t := range content.Text {
		glyphs = append(glyphs, TextItem{S: t.S, X: t.X, Y: t.Y, W: t.W, FontSize: t.FontSize})
	}
	return MergeRuns(glyphs), nil
}
