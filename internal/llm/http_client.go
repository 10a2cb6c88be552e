package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the OpenRouter API root
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultTimeout bounds a single completion call
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 4 << 20
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Message *struct {
		Content *string `json:"content"`
	} `json:"message"`
}

type inBandError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

// HTTPClient talks to an OpenAI-compatible chat completions endpoint
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	referer    string
	title      string
	maxBytes   int64
}

// HTTPOption configures an HTTPClient
type HTTPOption func(*HTTPClient)

// WithTimeout bounds every completion call; zero keeps the default
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRequestsPerMinute throttles outgoing calls. Zero or less disables it.
func WithRequestsPerMinute(rpm int) HTTPOption {
	return func(c *HTTPClient) {
		if rpm > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(httpClient *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.httpClient = httpClient
	}
}

// WithAppInfo sets the attribution headers OpenRouter shows on its dashboard
func WithAppInfo(referer, title string) HTTPOption {
	return func(c *HTTPClient) {
		c.referer = referer
		c.title = title
	}
}

// WithMaxResponseBytes caps how much of a response body is read. A larger
// body is a malformed response. Zero or less keeps the default.
func WithMaxResponseBytes(n int64) HTTPOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// NewHTTPClient creates a client for baseURL, e.g. https://openrouter.ai/api/v1
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout:  DefaultTimeout,
		title:    "Council Chamber",
		maxBytes: maxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Complete implements ChatClient
func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", networkError(0, fmt.Errorf("rate limiter: %w", err))
		}
	}

	messages := make([]chatMessage, 0, len(req.SystemPrompts)+1)
	for _, prompt := range req.SystemPrompts {
		messages = append(messages, chatMessage{Role: "system", Content: prompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserMessage})

	payload, err := json.Marshal(chatRequest{Model: req.Model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", networkError(0, fmt.Errorf("failed to build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", networkError(0, err)
	}
	defer resp.Body.Close()

	// One byte past the cap tells a body that fits from one that was cut
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return "", networkError(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	log.Debug().
		Str("model", req.Model).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Int("bytes", len(body)).
		Msg("Chat completion response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("upstream returned %s: %s", resp.Status, truncate(string(body), 200))
		return "", &CompletionError{Kind: statusKind(resp.StatusCode), StatusCode: resp.StatusCode, Err: err}
	}

	if int64(len(body)) > c.maxBytes {
		return "", malformedError(fmt.Errorf("response exceeds %d bytes", c.maxBytes))
	}

	return decodeCompletion(body)
}

// decodeCompletion extracts choices[0].message.content. A body without
// choices, or with empty content, is a successful empty answer. Bodies are
// only unwrapped, never completed: a truncated body is malformed.
func decodeCompletion(body []byte) (string, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		repaired, stats, repairErr := RepairEnvelope(string(body))
		if repairErr != nil {
			return "", malformedError(fmt.Errorf("response is not JSON: %w", err))
		}
		if err := json.Unmarshal([]byte(repaired), &envelope); err != nil {
			return "", malformedError(fmt.Errorf("response is not a JSON object: %w", err))
		}
		log.Warn().
			Strs("strategies", stats.Strategies).
			Int("original_bytes", stats.OriginalBytes).
			Msg("Repaired malformed completion body")
	}

	rawChoices, hasChoices := envelope["choices"]
	if !hasChoices || isNull(rawChoices) {
		if rawErr, ok := envelope["error"]; ok && !isNull(rawErr) {
			return "", decodeInBandError(rawErr)
		}
		return normalizeAnswer(""), nil
	}

	var choices []chatChoice
	if err := json.Unmarshal(rawChoices, &choices); err != nil {
		return "", malformedError(fmt.Errorf("unexpected choices shape: %w", err))
	}
	if len(choices) == 0 || choices[0].Message == nil || choices[0].Message.Content == nil {
		return normalizeAnswer(""), nil
	}

	return normalizeAnswer(*choices[0].Message.Content), nil
}

// decodeInBandError handles {"error": {"code": 401, "message": "..."}} sent
// with a 200 status
func decodeInBandError(raw json.RawMessage) error {
	var apiErr inBandError
	if err := json.Unmarshal(raw, &apiErr); err != nil {
		return malformedError(fmt.Errorf("unexpected error shape: %w", err))
	}

	code, _ := strconv.Atoi(strings.Trim(string(apiErr.Code), `"`))
	err := fmt.Errorf("upstream error %s: %s", strings.Trim(string(apiErr.Code), `"`), apiErr.Message)
	return &CompletionError{Kind: statusKind(code), StatusCode: code, Err: err}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
