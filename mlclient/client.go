// Package mlclient talks to the prediction service that scores students
// (performance, risk, study plans, daily recommendations).
package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:5001"
	healthTimeout  = 5 * time.Second
	requestTimeout = 10 * time.Second
)

// Error is returned for any failed call. StatusCode is 0 when the service
// could not be reached at all.
type Error struct {
	StatusCode int
	Message    string
	Wrapped    error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("ml service: %s", e.Message)
	}
	return fmt.Sprintf("ml service: status %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	healthHTTP *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		healthHTTP: &http.Client{Timeout: healthTimeout},
	}
}

// Health returns the service's own health document.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.do(ctx, c.healthHTTP, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PredictPerformance(ctx context.Context, in Input) (*Prediction, error) {
	var raw rawPrediction
	if err := c.do(ctx, c.httpClient, http.MethodPost, "/predict-performance", in, &raw); err != nil {
		return nil, err
	}
	return raw.normalize(), nil
}

func (c *Client) CheckRisk(ctx context.Context, in Input) (*Risk, error) {
	var raw rawRisk
	if err := c.do(ctx, c.httpClient, http.MethodPost, "/check-risk", in, &raw); err != nil {
		return nil, err
	}
	return raw.normalize(), nil
}

func (c *Client) PersonalizedPlan(ctx context.Context, in Input) (*Plan, error) {
	var raw rawPlan
	if err := c.do(ctx, c.httpClient, http.MethodPost, "/personalized-plan", in, &raw); err != nil {
		return nil, err
	}
	return raw.normalize(), nil
}

func (c *Client) DailyRecommendations(ctx context.Context, in Input) (*DailyRecommendations, error) {
	var raw rawDailyRecommendations
	if err := c.do(ctx, c.httpClient, http.MethodPost, "/daily-recommendations", in, &raw); err != nil {
		return nil, err
	}
	return raw.normalize(), nil
}

func (c *Client) GamificationStatus(ctx context.Context, studentID string) (*GamificationStatus, error) {
	var out GamificationStatus
	path := "/gamification-status?student_id=" + url.QueryEscape(studentID)
	if err := c.do(ctx, c.httpClient, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return &Error{Message: "unreachable", Wrapped: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: "read response", Wrapped: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(respBody, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &Error{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: "decode response", Wrapped: err}
	}
	return nil
}
