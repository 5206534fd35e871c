// Package extract turns OCR page text into structured bill line items by
// calling a language model.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MeKo-Tech/billscan/internal/billing"
)

const (
	// DefaultEndpoint is the Anthropic Messages API URL.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"

	// DefaultModel is the model used when the configuration names none.
	DefaultModel = "claude-sonnet-4-20250514"

	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
	defaultTimeout   = 120 * time.Second
)

// PageInput is the OCR output of one page handed to the extractor.
type PageInput struct {
	PageNumber int
	Text       string
}

// Extractor converts one page of OCR text into structured line items.
type Extractor interface {
	ExtractPage(ctx context.Context, in PageInput) (billing.PageResult, Usage, error)
}

// Options configures a ClaudeExtractor. Zero values select defaults.
type Options struct {
	APIKey    string
	Model     string
	Endpoint  string
	MaxTokens int
	Timeout   time.Duration
}

// ClaudeExtractor implements Extractor against the Anthropic Messages
// API.
type ClaudeExtractor struct {
	apiKey    string
	model     string
	endpoint  string
	maxTokens int
	client    *http.Client
}

// NewClaudeExtractor creates a Claude-backed extractor.
func NewClaudeExtractor(opts Options) *ClaudeExtractor {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ClaudeExtractor{
		apiKey:    opts.APIKey,
		model:     model,
		endpoint:  endpoint,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: timeout},
	}
}

// apiResponse models the Anthropic Messages API response.
type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ExtractPage sends the page text to the model and decodes the returned
// line items.
func (e *ClaudeExtractor) ExtractPage(ctx context.Context, in PageInput) (billing.PageResult, Usage, error) {
	prompt := buildPagePrompt(in.PageNumber, in.Text)

	reqBody := map[string]interface{}{
		"model":      e.model,
		"max_tokens": e.maxTokens,
		"messages": []map[string]interface{}{
			{"role": "user", "content": prompt},
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return billing.PageResult{}, Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return billing.PageResult{}, Usage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", e.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := e.client.Do(req)
	if err != nil {
		return billing.PageResult{}, Usage{}, fmt.Errorf("calling model API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return billing.PageResult{}, Usage{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return billing.PageResult{}, Usage{}, fmt.Errorf("model API error (status %d): %s",
			resp.StatusCode, truncate(string(respBody), 500))
	}

	var api apiResponse
	if err := json.Unmarshal(respBody, &api); err != nil {
		return billing.PageResult{}, Usage{}, fmt.Errorf("unmarshaling response: %w", err)
	}
	usage := Usage{
		InputTokens:  api.Usage.InputTokens,
		OutputTokens: api.Usage.OutputTokens,
		TotalTokens:  api.Usage.InputTokens + api.Usage.OutputTokens,
	}

	if len(api.Content) == 0 {
		return billing.PageResult{}, usage, fmt.Errorf("empty response from model API")
	}
	if api.StopReason == "max_tokens" {
		return billing.PageResult{}, usage, fmt.Errorf("output truncated (stop_reason: max_tokens)")
	}

	page, err := parsePagePayload(api.Content[0].Text, in.PageNumber)
	if err != nil {
		return billing.PageResult{}, usage, err
	}
	return page, usage, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
