package gemini

import (
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config for the Gemini generateContent client.
type Config struct {
	APIKey      string // if empty, falls back to env GEMINI_API_KEY
	BaseURL     string // default https://generativelanguage.googleapis.com
	Model       string // e.g., "gemini-2.5-flash"
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	url    string
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/v1beta/models/" + url.PathEscape(cfg.Model) + ":generateContent"
	return &Client{
		cfg:    cfg,
		url:    endpoint,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}
