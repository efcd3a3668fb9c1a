package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/lease-abstractor/internal/common"
	"github.com/joseph-ayodele/lease-abstractor/internal/llm"
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature        float32        `json:"temperature"`
	ResponseMIMEType   string         `json:"responseMimeType,omitempty"`
	ResponseJSONSchema map[string]any `json:"responseJsonSchema,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// Generate implements llm.Generator against models/{model}:generateContent.
// A response schema switches the model to JSON output.
func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	start := time.Now()
	runID := common.RunIDFromContext(ctx)

	body := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: req.Content}}}},
		GenerationConfig: generationConfig{Temperature: c.cfg.Temperature},
	}
	if req.SystemInstruction != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	if req.ResponseSchema != nil {
		body.GenerationConfig.ResponseMIMEType = "application/json"
		body.GenerationConfig.ResponseJSONSchema = req.ResponseSchema
	}

	c.logger.Info("llm.generate.start",
		"provider", "gemini",
		"run_id", runID,
		"model", c.cfg.Model,
		"schema", req.SchemaName,
		"content_len", len(req.Content),
	)

	headers := map[string]string{"x-goog-api-key": c.cfg.APIKey}
	raw, _, err := llm.SendJSON(ctx, c.http, c.url, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.generate.http_error",
			"provider", "gemini", "run_id", runID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Response{}, fmt.Errorf("gemini: %w", err)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		c.logger.Error("llm.generate.decode_error",
			"provider", "gemini", "run_id", runID, "error", err, "raw_bytes", len(raw),
		)
		return llm.Response{}, fmt.Errorf("decode gemini response: %w", err)
	}
	if gr.PromptFeedback.BlockReason != "" {
		c.logger.Warn("llm.generate.blocked", "provider", "gemini", "run_id", runID, "reason", gr.PromptFeedback.BlockReason)
	}
	if len(gr.Candidates) == 0 {
		c.logger.Warn("llm.generate.no_candidates", "provider", "gemini", "run_id", runID)
		return llm.Response{Model: gr.ModelVersion}, nil
	}

	cand := gr.Candidates[0]
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		b.WriteString(p.Text)
	}

	c.logger.Info("llm.generate.ok",
		"provider", "gemini",
		"run_id", runID,
		"schema", req.SchemaName,
		"finish_reason", cand.FinishReason,
		"prompt_tokens", gr.UsageMetadata.PromptTokenCount,
		"completion_tokens", gr.UsageMetadata.CandidatesTokenCount,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.Response{
		Text:         strings.TrimSpace(b.String()),
		Model:        gr.ModelVersion,
		FinishReason: cand.FinishReason,
	}, nil
}
