package preferences

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/councilchamber/internal/storage"
)

// Storage keys. The API key is kept in plain text: the chamber is a
// single-user local tool and the store file is owner-only.
const (
	CredentialKey = "openrouter_api_key"
	ModelKey      = "openrouter_model"
)

// ErrBlankCredential is returned when an empty API key is saved
var ErrBlankCredential = errors.New("api key must not be blank")

// Preferences reads and writes the user's API key and chosen model
type Preferences struct {
	kv storage.Store
}

// New creates preferences over kv
func New(kv storage.Store) *Preferences {
	return &Preferences{kv: kv}
}

// Credential returns the saved API key, or "" when none is saved
func (p *Preferences) Credential(ctx context.Context) (string, error) {
	value, _, err := p.kv.Get(ctx, CredentialKey)
	if err != nil {
		return "", fmt.Errorf("failed to read api key: %w", err)
	}
	return strings.TrimSpace(value), nil
}

// SetCredential saves a trimmed, non-blank API key
func (p *Preferences) SetCredential(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return ErrBlankCredential
	}
	if err := p.kv.Set(ctx, CredentialKey, credential); err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}

// Model returns the saved model, or fallback when none is saved
func (p *Preferences) Model(ctx context.Context, fallback string) (string, error) {
	value, found, err := p.kv.Get(ctx, ModelKey)
	if err != nil {
		return fallback, fmt.Errorf("failed to read model: %w", err)
	}
	value = strings.TrimSpace(value)
	if !found || value == "" {
		return fallback, nil
	}
	return value, nil
}

// SetModel saves the chosen model
func (p *Preferences) SetModel(ctx context.Context, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("model must not be blank")
	}
	if err := p.kv.Set(ctx, ModelKey, model); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	return nil
}
