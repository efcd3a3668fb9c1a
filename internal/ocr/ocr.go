// Package ocr renders PDF pages to bitmaps and recognizes text on them.
//
// Workers and rasters are scoped resources: callers create them when the
// first page needs OCR and must Close them when the document is done.
package ocr

import "context"

// Worker recognizes text on one encoded image at a time.
type Worker interface {
	Recognize(ctx context.Context, image []byte) (string, error)
	Close() error
}

// Engine creates OCR workers. Creating a worker may be expensive
// (model loading), so callers keep one per document.
type Engine interface {
	Name() string
	NewWorker(ctx context.Context) (Worker, error)
}

// Rasterizer prepares a PDF for page rendering.
type Rasterizer interface {
	Open(ctx context.Context, pdf []byte) (Raster, error)
}

// Raster renders pages of one opened PDF. Pages are 1-based.
type Raster interface {
	RenderPage(ctx context.Context, page int) ([]byte, error)
	Close() error
}

// Config for rendering and recognition.
type Config struct {
	Pdftoppm    string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	DPI         int    // rasterization DPI, default 300
	TessdataDir string
}

func (c Config) withDefaults() Config {
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Lang == "" {
		c.Lang = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	return c
}
