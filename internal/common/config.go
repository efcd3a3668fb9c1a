package common

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Database DatabaseConfig
	LLM      LLMConfig
	OCR      OCRConfig
	Extract  ExtractConfig
}

// DatabaseConfig holds run-history store configuration.
// A postgres:// URL selects pgx, anything else is treated as a SQLite path.
type DatabaseConfig struct {
	URL             string        `env:"DB_URL" envDefault:"./leasex.db"`
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DialTimeout     time.Duration `env:"DB_DIAL_TIMEOUT" envDefault:"3s"`
}

// LLMConfig holds generation backend configuration
type LLMConfig struct {
	Provider string        `env:"LLM_PROVIDER" envDefault:"gemini"`
	Timeout  time.Duration `env:"LLM_TIMEOUT" envDefault:"180s"`

	OpenAIAPIKey      string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string  `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel       string  `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAITemperature float32 `env:"OPENAI_TEMPERATURE" envDefault:"0"`

	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
}

// OCRConfig holds page rendering and OCR configuration
type OCRConfig struct {
	Engine       string `env:"OCR_ENGINE" envDefault:"gosseract"`
	Lang         string `env:"OCR_LANG" envDefault:"eng"`
	DPI          int    `env:"OCR_DPI" envDefault:"300"`
	TessdataDir  string `env:"TESSDATA_PREFIX"`
	Pdftoppm     string `env:"PDFTOPPM_BIN" envDefault:"pdftoppm"`
	Tesseract    string `env:"TESSERACT_BIN" envDefault:"tesseract"`
	MinTextItems int    `env:"OCR_MIN_TEXT_ITEMS" envDefault:"15"`
	MinTextChars int    `env:"OCR_MIN_TEXT_CHARS" envDefault:"150"`
}

// ExtractConfig holds extraction scheduler configuration
type ExtractConfig struct {
	SchemaFile   string `env:"SCHEMA_FILE"`
	StrictSchema bool   `env:"EXTRACT_STRICT_SCHEMA" envDefault:"false"`
}

// MinOCRDPI is twice the nominal 72 DPI PDF user space.
const MinOCRDPI = 144

// LoadConfig loads an optional .env file and then parses configuration from the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, NewAppError(CodeConfig, "failed to load .env", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, NewAppError(CodeConfig, "failed to parse environment", err)
	}
	return cfg, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("LLM_PROVIDER", c.LLM.Provider, OneOf("openai", "gemini"))
	switch c.LLM.Provider {
	case "openai":
		v.Field("OPENAI_API_KEY", c.LLM.OpenAIAPIKey, Required)
		v.Field("OPENAI_MODEL", c.LLM.OpenAIModel, Required)
	case "gemini":
		v.Field("GEMINI_API_KEY", c.LLM.GeminiAPIKey, Required)
		v.Field("GEMINI_MODEL", c.LLM.GeminiModel, Required)
	}
	v.Field("OCR_ENGINE", c.OCR.Engine, OneOf("gosseract", "cli"))
	v.Field("OCR_DPI", c.OCR.DPI, MinInt(MinOCRDPI))
	v.Field("OCR_MIN_TEXT_ITEMS", c.OCR.MinTextItems, MinInt(1))
	v.Field("OCR_MIN_TEXT_CHARS", c.OCR.MinTextChars, MinInt(1))
	v.Field("DB_URL", c.Database.URL, Required)
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

// String redacts secrets for logging.
func (c LLMConfig) String() string {
	return fmt.Sprintf("provider=%s openai_model=%s gemini_model=%s timeout=%s", c.Provider, c.OpenAIModel, c.GeminiModel, c.Timeout)
}
