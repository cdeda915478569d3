// Package llm talks to the Gemini generateContent REST API and turns its text
// output into JSON values.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable marks quota, key and permission failures. Callers treat it
// as "the model cannot be used right now" and switch to a fallback.
var ErrUnavailable = errors.New("llm unavailable")

// Generator produces a JSON value from a system and a user prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, system, user string, out interface{}) error
}

// Error is returned when generation fails. It wraps ErrUnavailable for
// quota/auth class failures.
type Error struct {
	Reason     string
	StatusCode int
	Wrapped    error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("llm: %s: %v", e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("llm: %s", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// IsUnavailable reports whether err is a quota/auth class failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

type Config struct {
	APIKey        string
	Model         string
	FallbackModel string
	BaseURL       string
	Timeout       time.Duration
}

type Client struct {
	apiKey  string
	models  []string
	baseURL string
	client  *http.Client
}

var _ Generator = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	models := []string{cfg.Model}
	if cfg.FallbackModel != "" && cfg.FallbackModel != cfg.Model {
		models = append(models, cfg.FallbackModel)
	}

	return &Client{
		apiKey:  cfg.APIKey,
		models:  models,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// GenerateJSON asks each configured model in turn for a JSON answer and
// decodes the first usable one into out. Each model is tried in JSON mode
// first and again without it if the request is rejected.
func (c *Client) GenerateJSON(ctx context.Context, system, user string, out interface{}) error {
	if c.apiKey == "" {
		return &Error{Reason: "GEMINI_API_KEY is not set", Wrapped: ErrUnavailable}
	}

	prompt := strings.TrimSpace(system + "\n\n" + user)

	var lastErr error
	for _, model := range c.models {
		text, err := c.generate(ctx, model, prompt, true)
		var llmErr *Error
		if errors.As(err, &llmErr) && llmErr.StatusCode == http.StatusBadRequest {
			text, err = c.generate(ctx, model, prompt, false)
		}
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		jsonStr := extractJSON(text)
		if jsonStr == "" {
			lastErr = &Error{Reason: fmt.Sprintf("no JSON object in %s response", model)}
			continue
		}
		if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
			lastErr = &Error{Reason: fmt.Sprintf("invalid JSON from %s", model), Wrapped: err}
			continue
		}
		return nil
	}
	return lastErr
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, model, prompt string, jsonMode bool) (string, error) {
	body := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: 0.7},
	}
	if jsonMode {
		body.GenerationConfig.ResponseMimeType = "application/json"
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &Error{Reason: "request failed", Wrapped: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &Error{Reason: "failed to read response", Wrapped: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", classify(resp.StatusCode, raw)
	}

	var genResp generateResponse
	if err := json.Unmarshal(raw, &genResp); err != nil {
		return "", &Error{Reason: "failed to decode response", Wrapped: err}
	}
	if len(genResp.Candidates) == 0 {
		return "", &Error{Reason: "no candidates returned"}
	}

	var b strings.Builder
	for _, p := range genResp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", &Error{Reason: "empty response"}
	}
	return b.String(), nil
}

var unavailableMarkers = []string{
	"quota",
	"api key",
	"api_key",
	"resource_exhausted",
	"permission_denied",
	"rate limit",
}

func classify(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	e := &Error{Reason: fmt.Sprintf("status %d: %s", status, msg), StatusCode: status}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		e.Wrapped = ErrUnavailable
		return e
	}
	lower := strings.ToLower(msg)
	for _, marker := range unavailableMarkers {
		if strings.Contains(lower, marker) {
			e.Wrapped = ErrUnavailable
			break
		}
	}
	return e
}

// extractJSON finds the outermost JSON object in s, skipping braces inside
// quoted strings.
func extractJSON(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
