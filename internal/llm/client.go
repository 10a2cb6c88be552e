package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/councilchamber/pkg/models"
)

// CompletionRequest is one chat completion: the system prompts are sent in
// order as system messages, followed by a single user message
type CompletionRequest struct {
	SystemPrompts []string
	UserMessage   string
	Model         string
	Credential    string
}

// ChatClient sends a single chat completion upstream.
//
// Complete returns the answer text, or EmptyAnswerSentinel when the upstream
// call succeeded without content. Failures are *CompletionError values.
type ChatClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionError is a classified upstream failure
type CompletionError struct {
	Kind       models.ErrorKind
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *CompletionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

func networkError(statusCode int, err error) *CompletionError {
	return &CompletionError{Kind: models.ErrorKindNetwork, StatusCode: statusCode, Err: err}
}

func authError(statusCode int, err error) *CompletionError {
	return &CompletionError{Kind: models.ErrorKindAuth, StatusCode: statusCode, Err: err}
}

func malformedError(err error) *CompletionError {
	return &CompletionError{Kind: models.ErrorKindMalformedResponse, Err: err}
}

// KindOf maps any error returned by a ChatClient to an ErrorKind.
// Unclassified errors, including context deadlines, count as network errors.
func KindOf(err error) models.ErrorKind {
	if err == nil {
		return models.ErrorKindNone
	}

	var completionErr *CompletionError
	if errors.As(err, &completionErr) {
		return completionErr.Kind
	}

	return models.ErrorKindNetwork
}

// statusKind classifies an HTTP status code that is not 2xx
func statusKind(statusCode int) models.ErrorKind {
	if statusCode == 401 || statusCode == 403 {
		return models.ErrorKindAuth
	}
	return models.ErrorKindNetwork
}

// normalizeAnswer maps an empty upstream answer to the sentinel
func normalizeAnswer(content string) string {
	if strings.TrimSpace(content) == "" {
		return models.EmptyAnswerSentinel
	}
	return content
}

func validateRequest(req CompletionRequest) error {
	if strings.TrimSpace(req.Credential) == "" {
		return &CompletionError{Kind: models.ErrorKindValidation, Err: errors.New("credential is required")}
	}
	if strings.TrimSpace(req.Model) == "" {
		return &CompletionError{Kind: models.ErrorKindValidation, Err: errors.New("model is required")}
	}
	return nil
}
