package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/lease-abstractor/internal/ocr"
)

// Thresholds decide when a page's native text layer is too thin to trust.
type Thresholds struct {
	MinItems int
	MinChars int
}

// DefaultThresholds: fewer than 15 text runs and fewer than 150 characters.
var DefaultThresholds = Thresholds{MinItems: 15, MinChars: 150}

// NeedsOCR reports whether a page is treated as scanned. Both conditions
// must hold; a page with few but long runs keeps its native text.
func (t Thresholds) NeedsOCR(items, chars int) bool {
	return items < t.MinItems && chars < t.MinChars
}

// PageText is the acquired text of one page.
type PageText struct {
	Text    string
	UsedOCR bool
	Items   int
	Chars   int
}

// Acquirer produces text for single pages, falling back to OCR for pages
// without a usable text layer.
type Acquirer struct {
	engine     ocr.Engine
	rasterizer ocr.Rasterizer
	th         Thresholds
	logger     *slog.Logger
}

func NewAcquirer(engine ocr.Engine, rasterizer ocr.Rasterizer, th Thresholds, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	if th.MinItems <= 0 && th.MinChars <= 0 {
		th = DefaultThresholds
	}
	return &Acquirer{engine: engine, rasterizer: rasterizer, th: th, logger: logger}
}

// NewSession scopes OCR resources to one document. Nothing is allocated
// until a page actually needs OCR. Callers must Close the session.
func (a *Acquirer) NewSession(doc Source) *OCRSession {
	return &OCRSession{acq: a, doc: doc}
}

// Acquire returns the text of one page of the session's document.
func (a *Acquirer) Acquire(ctx context.Context, sess *OCRSession, page Page, progress Progress) (PageText, error) {
	items, err := page.TextItems()
	if err != nil {
		// an unreadable text layer is treated like an empty one
		a.logger.Warn("text layer unreadable, treating page as scanned",
			"document", sess.doc.Name, "page", page.Number(), "error", err)
		items = nil
	}
	native := LayoutText(items)
	chars := utf8.RuneCountInString(strings.TrimSpace(native))

	if !a.th.NeedsOCR(len(items), chars) {
		return PageText{Text: native, Items: len(items), Chars: chars}, nil
	}

	progress.notify(fmt.Sprintf("Page %d of %q looks scanned, running OCR...", page.Number(), sess.doc.Name))
	text, err := sess.recognize(ctx, page.Number())
	if err != nil {
		return PageText{}, err
	}
	progress.notify(fmt.Sprintf("OCR finished for page %d of %q", page.Number(), sess.doc.Name))
	a.logger.Debug("page.ocr", "document", sess.doc.Name, "page", page.Number(),
		"native_items", len(items), "native_chars", chars, "ocr_chars", utf8.RuneCountInString(text))

	return PageText{Text: text, UsedOCR: true, Items: len(items), Chars: chars}, nil
}

// OCRSession holds the OCR worker and page renderer for one document.
type OCRSession struct {
	acq    *Acquirer
	doc    Source
	worker ocr.Worker
	raster ocr.Raster
}

// Active reports whether OCR resources were allocated.
func (s *OCRSession) Active() bool {
	return s.worker != nil || s.raster != nil
}

func (s *OCRSession) recognize(ctx context.Context, page int) (string, error) {
	if s.acq.engine == nil || s.acq.rasterizer == nil {
		return "", errors.New("ocr is not configured")
	}
	if s.raster == nil {
		r, err := s.acq.rasterizer.Open(ctx, s.doc.Data)
		if err != nil {
			return "", fmt.Errorf("open renderer: %w", err)
		}
		s.raster = r
	}
	if s.worker == nil {
		w, err := s.acq.engine.NewWorker(ctx)
		if err != nil {
			return "", fmt.Errorf("start %s worker: %w", s.acq.engine.Name(), err)
		}
		s.worker = w
		s.acq.logger.Info("ocr.session.start", "document", s.doc.Name, "engine", s.acq.engine.Name())
	}
	img, err := s.raster.RenderPage(ctx, page)
	if err != nil {
		return "", err
	}
	text, err := s.worker.Recognize(ctx, img)
	if err != nil {
		return "", fmt.Errorf("recognize page %d: %w", page, err)
	}
	return text, nil
}

// Close releases whatever the session allocated. Safe to call repeatedly.
func (s *OCRSession) Close() error {
	var errs []error
	if s.worker != nil {
		errs = append(errs, s.worker.Close())
		s.worker = nil
		s.acq.logger.Info("ocr.session.end", "document", s.doc.Name)
	}
	if s.raster != nil {
		errs = append(errs, s.raster.Close())
		s.raster = nil
	}
	return errors.Join(errs...)
}
