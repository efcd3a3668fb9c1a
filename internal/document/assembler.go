package document

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/lease-abstractor/internal/common"
)

const (
	PageBreak        = "\n\n--- PAGE BREAK ---\n\n"
	DocumentBoundary = "\n\n=== DOCUMENT BOUNDARY ===\n\n"
)

// Progress receives human-readable status messages. A nil Progress is valid.
type Progress func(msg string)

// NoProgress discards status messages.
var NoProgress Progress = func(string) {}

func (p Progress) notify(msg string) {
	if p != nil {
		p(msg)
	}
}

// DocumentError reports the document and page where acquisition stopped.
// Page is 0 when the document could not be opened at all.
type DocumentError struct {
	Document string
	Page     int
	Err      error
}

func (e *DocumentError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("document %q page %d: %v", e.Document, e.Page, e.Err)
	}
	return fmt.Sprintf("document %q: %v", e.Document, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

func (e *DocumentError) Is(target error) bool { return target == common.ErrAcquisition }

// Assembler turns an ordered document set into one combined text.
type Assembler struct {
	opener PDFOpener
	acq    *Acquirer
	logger *slog.Logger
}

func NewAssembler(opener PDFOpener, acq *Acquirer, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	if opener == nil {
		opener = LedongthucOpener{}
	}
	return &Assembler{opener: opener, acq: acq, logger: logger}
}

// Header is the line that introduces the i-th (0-based) document.
func Header(i int, name string) string {
	return fmt.Sprintf("Document %d: %s\n\n", i+1, name)
}

// Assemble acquires every page of every document in order. Any page
// failure aborts the whole assembly; no partial text is returned.
func (a *Assembler) Assemble(ctx context.Context, docs []Source, progress Progress) (string, error) {
	if len(docs) == 0 {
		return "", common.ErrNoDocuments
	}
	start := time.Now()
	parts := make([]string, 0, len(docs))
	for i, d := range docs {
		text, err := a.assembleDocument(ctx, i, d, progress)
		if err != nil {
			a.logger.Error("assemble.failed", "document", d.Name, "error", err)
			return "", err
		}
		parts = append(parts, text)
	}
	out := strings.Join(parts, DocumentBoundary)
	a.logger.Info("assemble.done", "documents", len(docs), "chars", len(out), "duration", time.Since(start))
	return out, nil
}

func (a *Assembler) assembleDocument(ctx context.Context, idx int, doc Source, progress Progress) (string, error) {
	pdf, err := a.opener.Open(doc.Data)
	if err != nil {
		return "", &DocumentError{Document: doc.Name, Err: err}
	}
	n := pdf.NumPages()
	if n == 0 {
		return "", &DocumentError{Document: doc.Name, Err: fmt.Errorf("document has no pages")}
	}

	sess := a.acq.NewSession(doc)
	defer func() {
		if err := sess.Close(); err != nil {
			a.logger.Warn("ocr.session.close_failed", "document", doc.Name, "error", err)
		}
	}()

	pages := make([]string, 0, n)
	ocrPages := 0
	for p := 1; p <= n; p++ {
		if err := ctx.Err(); err != nil {
			return "", &DocumentError{Document: doc.Name, Page: p, Err: err}
		}
		progress.notify(fmt.Sprintf("Reading %q page %d of %d...", doc.Name, p, n))
		page, err := pdf.Page(p)
		if err != nil {
			return "", &DocumentError{Document: doc.Name, Page: p, Err: err}
		}
		pt, err := a.acq.Acquire(ctx, sess, page, progress)
		if err != nil {
			return "", &DocumentError{Document: doc.Name, Page: p, Err: err}
		}
		if pt.UsedOCR {
			ocrPages++
		}
		pages = append(pages, pt.Text)
	}
	a.logger.Info("document.acquired", "document", doc.Name, "pages", n, "ocr_pages", ocrPages)
	return Header(idx, doc.Name) + strings.Join(pages, PageBreak), nil
}
