package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// MinDPI is 2x the 72 DPI nominal resolution of PDF user space.
// Rendering below it produces bitmaps too coarse for reliable OCR.
const MinDPI = 144

// PdftoppmRasterizer renders single pages with poppler's pdftoppm.
type PdftoppmRasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewPdftoppmRasterizer(cfg Config, runner Runner, logger *slog.Logger) *PdftoppmRasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	cfg = cfg.withDefaults()
	if cfg.DPI < MinDPI {
		logger.Warn("ocr dpi below minimum, raising", "dpi", cfg.DPI, "min_dpi", MinDPI)
		cfg.DPI = MinDPI
	}
	return &PdftoppmRasterizer{cfg: cfg, runner: runner, logger: logger}
}

// DPI reports the effective render resolution.
func (r *PdftoppmRasterizer) DPI() int { return r.cfg.DPI }

// Open writes the PDF bytes to a private temp dir so pdftoppm can read them.
func (r *PdftoppmRasterizer) Open(_ context.Context, pdf []byte) (Raster, error) {
	tmpDir, err := os.MkdirTemp("", "leasex-render-*")
	if err != nil {
		return nil, fmt.Errorf("render temp dir: %w", err)
	}
	path := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(path, pdf, 0o600); err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("write render input: %w", err)
	}
	return &pdftoppmRaster{r: r, dir: tmpDir, path: path}, nil
}

type pdftoppmRaster struct {
	r    *PdftoppmRasterizer
	dir  string
	path string
}

// RenderPage renders one page to PNG bytes.
func (p *pdftoppmRaster) RenderPage(ctx context.Context, page int) ([]byte, error) {
	if page < 1 {
		return nil, fmt.Errorf("render: invalid page %d", page)
	}
	n := strconv.Itoa(page)
	prefix := filepath.Join(p.dir, "page-"+n)
	// pdftoppm -f N -l N -r DPI -png -singlefile <in.pdf> <prefix>  → <prefix>.png
	_, errb, err := p.r.runner.Run(ctx, p.r.cfg.Pdftoppm, p.r.logger,
		"-f", n, "-l", n, "-r", strconv.Itoa(p.r.cfg.DPI), "-png", "-singlefile", p.path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w: %s", page, err, truncate(string(errb), 512))
	}
	out := prefix + ".png"
	img, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d produced no image: %w", page, err)
	}
	_ = os.Remove(out)
	if len(img) == 0 {
		return nil, fmt.Errorf("pdftoppm page %d produced an empty image", page)
	}
	return img, nil
}

func (p *pdftoppmRaster) Close() error {
	return os.RemoveAll(p.dir)
}
