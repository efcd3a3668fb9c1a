package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
)

// CLIEngine recognizes text by shelling out to the tesseract binary.
// Use it where the cgo build of gosseract is not available.
type CLIEngine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewCLIEngine(cfg Config, runner Runner, logger *slog.Logger) *CLIEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &CLIEngine{cfg: cfg.withDefaults(), runner: runner, logger: logger}
}

func (e *CLIEngine) Name() string { return "tesseract-cli" }

func (e *CLIEngine) NewWorker(_ context.Context) (Worker, error) {
	tmpDir, err := os.MkdirTemp("", "leasex-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("ocr temp dir: %w", err)
	}
	return &cliWorker{e: e, dir: tmpDir}, nil
}

type cliWorker struct {
	e   *CLIEngine
	dir string
	seq atomic.Int64
}

func (w *cliWorker) Recognize(ctx context.Context, image []byte) (string, error) {
	path := filepath.Join(w.dir, "img-"+strconv.FormatInt(w.seq.Add(1), 10)+".png")
	if err := os.WriteFile(path, image, 0o600); err != nil {
		return "", fmt.Errorf("write ocr input: %w", err)
	}
	defer func() { _ = os.Remove(path) }()

	// tesseract <file> stdout -l <lang> --dpi <dpi>
	args := []string{path, "stdout", "-l", w.e.cfg.Lang, "--dpi", strconv.Itoa(w.e.cfg.DPI)}
	if w.e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", w.e.cfg.TessdataDir)
	}
	out, errb, err := w.e.runner.Run(ctx, w.e.cfg.Tesseract, w.e.logger, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return Normalize(string(out)), nil
}

func (w *cliWorker) Close() error {
	return os.RemoveAll(w.dir)
}
