package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joseph-ayodele/lease-abstractor/internal/common"
	"github.com/joseph-ayodele/lease-abstractor/internal/document"
	"github.com/joseph-ayodele/lease-abstractor/internal/pipeline"
)

// runocr prints the assembled text of one or more PDFs, OCR fallback included.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage", "cmd", "runocr <file.pdf> [more.pdf ...]")
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lib, err := pipeline.NewLibrary(cfg.OCR, logger)
	if err != nil {
		logger.Error("build library", "error", err)
		os.Exit(1)
	}
	for _, path := range os.Args[1:] {
		in, err := document.InputFromFile(path)
		if err != nil {
			logger.Error("read input", "path", path, "error", err)
			os.Exit(1)
		}
		for _, n := range lib.Add(in) {
			logger.Warn("input rejected", "document", n.Document, "reason", n.Message)
		}
	}

	start := time.Now()
	text, err := lib.Text(ctx, func(msg string) { logger.Info(msg) })
	dur := time.Since(start)
	if err != nil {
		logger.Error("text acquisition failed", "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	fmt.Println(text)
	logger.Info("text acquisition OK",
		"documents", len(lib.Documents()),
		"bytes", len(text),
		"key", lib.Key(),
		"duration_ms", dur.Milliseconds(),
	)
}
