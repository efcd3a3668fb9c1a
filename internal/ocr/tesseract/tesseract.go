// Package tesseract provides the gosseract-backed OCR engine.
// It needs cgo and the tesseract/leptonica libraries at build time.
package tesseract

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/lease-abstractor/internal/ocr"
)

// Engine implements ocr.Engine with one gosseract client per worker.
type Engine struct {
	lang        []string
	dpi         int
	tessdataDir string
	logger      *slog.Logger
}

func NewEngine(cfg ocr.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	lang := cfg.Lang
	if lang == "" {
		lang = "eng"
	}
	return &Engine{
		lang:        strings.Split(lang, "+"),
		dpi:         cfg.DPI,
		tessdataDir: cfg.TessdataDir,
		logger:      logger,
	}
}

func (e *Engine) Name() string { return "tesseract" }

// NewWorker initializes a gosseract client. The client holds a loaded
// language model, so it is reused for every OCR page of a document.
func (e *Engine) NewWorker(_ context.Context) (ocr.Worker, error) {
	c := gosseract.NewClient()
	if e.tessdataDir != "" {
		c.TessdataPrefix = e.tessdataDir
	}
	if err := c.SetLanguage(e.lang...); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if e.dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(e.dpi)); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	e.logger.Debug("ocr worker created", "engine", e.Name(), "lang", e.lang)
	return &worker{c: c, logger: e.logger}, nil
}

type worker struct {
	c      *gosseract.Client
	logger *slog.Logger
}

func (w *worker) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := w.c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := w.c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return ocr.Normalize(text), nil
}

func (w *worker) Close() error {
	w.logger.Debug("ocr worker closed")
	return w.c.Close()
}
