package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// LangchainClient sends completions through langchaingo's OpenAI provider
// pointed at an OpenAI-compatible base URL
type LangchainClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewLangchainClient creates a langchaingo-backed ChatClient
func NewLangchainClient(baseURL string, timeout time.Duration) *LangchainClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LangchainClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete implements ChatClient
func (c *LangchainClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// The credential is per request, so the model is built per request too
	model, err := openai.New(
		openai.WithToken(req.Credential),
		openai.WithModel(req.Model),
		openai.WithBaseURL(c.baseURL),
		openai.WithHTTPClient(c.httpClient),
	)
	if err != nil {
		return "", networkError(0, fmt.Errorf("failed to create langchain model: %w", err))
	}

	messages := make([]llms.MessageContent, 0, len(req.SystemPrompts)+1)
	for _, prompt := range req.SystemPrompts {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, prompt))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.UserMessage))

	start := time.Now()
	resp, err := model.GenerateContent(ctx, messages, llms.WithModel(req.Model))
	if err != nil {
		if isEmptyResponse(err) {
			log.Debug().Str("model", req.Model).Msg("Langchain completion returned no choices")
			return normalizeAnswer(""), nil
		}
		log.Debug().Err(err).Str("model", req.Model).Msg("Langchain completion failed")
		return "", classifyLangchainError(err)
	}

	log.Debug().
		Str("model", req.Model).
		Dur("duration", time.Since(start)).
		Int("choices", len(resp.Choices)).
		Msg("Langchain completion received")

	if len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return normalizeAnswer(""), nil
	}
	return normalizeAnswer(resp.Choices[0].Content), nil
}

// isEmptyResponse reports langchaingo's "no choices" errors. The chat path
// returns the provider client's unexported sentinel, which is only
// recognisable by its text.
func isEmptyResponse(err error) bool {
	return errors.Is(err, openai.ErrEmptyResponse) || err.Error() == "empty response"
}

// classifyLangchainError maps langchaingo's error text onto ErrorKinds.
// The OpenAI provider reports HTTP failures as formatted strings, e.g.
// "API returned unexpected status code: 401: ...".
func classifyLangchainError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return networkError(0, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "status code: 401"),
		strings.Contains(msg, "status code: 403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"):
		return authError(0, err)
	case strings.Contains(msg, "unmarshal"),
		strings.Contains(msg, "invalid character"),
		strings.Contains(msg, "cannot decode"):
		return malformedError(err)
	default:
		return networkError(0, err)
	}
}
