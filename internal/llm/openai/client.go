package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/joseph-ayodele/lease-abstractor/internal/common"
	"github.com/joseph-ayodele/lease-abstractor/internal/llm"
)

var reSchemaName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate implements llm.Generator using chat/completions. When a response
// schema is given it is passed as a json_schema response format.
func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	start := time.Now()
	runID := common.RunIDFromContext(ctx)

	messages := make([]map[string]any, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.SystemInstruction})
	}
	messages = append(messages, map[string]any{"role": "user", "content": req.Content})

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages":    messages,
	}
	if req.ResponseSchema != nil {
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName(req.SchemaName),
				"schema": req.ResponseSchema,
				// schema files from SCHEMA_FILE are not guaranteed to meet strict-mode rules
				"strict": false,
			},
		}
	}

	c.logger.Info("llm.generate.start",
		"provider", "openai",
		"run_id", runID,
		"model", c.cfg.Model,
		"schema", req.SchemaName,
		"content_len", len(req.Content),
	)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.generate.http_error",
			"provider", "openai", "run_id", runID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Response{}, fmt.Errorf("openai: %w", err)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.generate.decode_error",
			"provider", "openai", "run_id", runID, "error", err, "raw_bytes", len(raw),
		)
		return llm.Response{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Warn("llm.generate.no_choices", "provider", "openai", "run_id", runID)
		return llm.Response{Model: cc.Model}, nil
	}
	choice := cc.Choices[0]
	if choice.Message.Refusal != "" {
		c.logger.Warn("llm.generate.refusal", "provider", "openai", "run_id", runID, "refusal", choice.Message.Refusal)
	}

	c.logger.Info("llm.generate.ok",
		"provider", "openai",
		"run_id", runID,
		"schema", req.SchemaName,
		"finish_reason", choice.FinishReason,
		"prompt_tokens", cc.Usage.PromptTokens,
		"completion_tokens", cc.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.Response{
		Text:         strings.TrimSpace(choice.Message.Content),
		Model:        cc.Model,
		FinishReason: choice.FinishReason,
	}, nil
}

// schemaName fits the response_format name rules: [a-zA-Z0-9_-], at most 64 chars.
func schemaName(name string) string {
	name = reSchemaName.ReplaceAllString(name, "_")
	if name == "" {
		name = "response"
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
