package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/lease-abstractor/internal/common"
	"github.com/joseph-ayodele/lease-abstractor/internal/document"
	"github.com/joseph-ayodele/lease-abstractor/internal/llm"
	"github.com/joseph-ayodele/lease-abstractor/internal/llm/gemini"
	"github.com/joseph-ayodele/lease-abstractor/internal/llm/openai"
	"github.com/joseph-ayodele/lease-abstractor/internal/ocr"
	"github.com/joseph-ayodele/lease-abstractor/internal/ocr/tesseract"
	"github.com/joseph-ayodele/lease-abstractor/internal/schema"
)

// NewGenerator builds the backend named by LLM_PROVIDER.
func NewGenerator(cfg common.LLMConfig, logger *slog.Logger) (llm.Generator, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.OpenAITemperature,
			Timeout:     cfg.Timeout,
		}, logger), nil
	case "gemini":
		return gemini.NewClient(gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
			Timeout: cfg.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: %w", cfg.Provider, common.ErrInvalidInput)
	}
}

// NewOCR returns the recognition engine and page rasterizer for OCR_ENGINE.
// Both share the external process runner.
func NewOCR(cfg common.OCRConfig, logger *slog.Logger) (ocr.Engine, ocr.Rasterizer, error) {
	oc := ocr.Config{
		Pdftoppm:    cfg.Pdftoppm,
		Tesseract:   cfg.Tesseract,
		Lang:        cfg.Lang,
		DPI:         cfg.DPI,
		TessdataDir: cfg.TessdataDir,
	}
	runner := ocr.ExecRunner{}
	raster := ocr.NewPdftoppmRasterizer(oc, runner, logger)
	switch cfg.Engine {
	case "gosseract", "":
		return tesseract.NewEngine(oc, logger), raster, nil
	case "cli":
		return ocr.NewCLIEngine(oc, runner, logger), raster, nil
	default:
		return nil, nil, fmt.Errorf("unknown OCR engine %q: %w", cfg.Engine, common.ErrInvalidInput)
	}
}

// NewLibrary wires the PDF reader, the OCR fallback and the assembler
// behind an empty document library.
func NewLibrary(cfg common.OCRConfig, logger *slog.Logger) (*document.Library, error) {
	engine, raster, err := NewOCR(cfg, logger)
	if err != nil {
		return nil, err
	}
	th := document.Thresholds{MinItems: cfg.MinTextItems, MinChars: cfg.MinTextChars}
	if th.MinItems <= 0 || th.MinChars <= 0 {
		th = document.DefaultThresholds
	}
	acq := document.NewAcquirer(engine, raster, th, logger)
	asm := document.NewAssembler(document.LedongthucOpener{}, acq, logger)
	return document.NewLibrary(asm, logger), nil
}

// LoadSchema returns SCHEMA_FILE when set, else the built-in lease schema.
func LoadSchema(cfg common.ExtractConfig) (*schema.Schema, error) {
	if cfg.SchemaFile == "" {
		return schema.Default()
	}
	return schema.LoadFile(cfg.SchemaFile)
}
