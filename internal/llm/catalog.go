package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/councilchamber/internal/retry"
)

// DefaultModel is used until the user picks another one
const DefaultModel = "meta-llama/llama-3.3-70b-instruct:free"

// FreeSuffix marks OpenRouter's free-tier model variants
const FreeSuffix = ":free"

// ModelOptions is the static list offered when the live catalog is unreachable
var ModelOptions = []string{
	"meta-llama/llama-3.3-70b-instruct:free",
	"openai/gpt-oss-20b:free",
	"google/gemma-3n-e2b-it:free",
	"qwen/qwen-2.5-72b-instruct:free",
}

// Pricing is the per-token price as reported upstream. Values are decimal
// strings, e.g. "0" or "0.0000015".
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// ModelInfo is one entry of the upstream models list
type ModelInfo struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Pricing Pricing `json:"pricing"`
}

// IsFree reports whether the model costs nothing to call
func (m ModelInfo) IsFree() bool {
	if strings.HasSuffix(m.ID, FreeSuffix) {
		return true
	}
	return isZeroPrice(m.Pricing.Prompt) && isZeroPrice(m.Pricing.Completion)
}

func isZeroPrice(price string) bool {
	if strings.TrimSpace(price) == "" {
		return false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(price), 64)
	return err == nil && value == 0
}

type modelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// Catalog discovers the models offered by the upstream API
type Catalog struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
}

// NewCatalog creates a catalog for baseURL. A nil httpClient gets a 30s timeout.
func NewCatalog(baseURL string, httpClient *http.Client) *Catalog {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Catalog{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		retryConfig: retry.CatalogConfig(),
	}
}

// WithRetryConfig overrides the backoff used for fetching
func (c *Catalog) WithRetryConfig(config retry.Config) *Catalog {
	c.retryConfig = config
	return c
}

// Fetch lists every model upstream, retrying transient failures
func (c *Catalog) Fetch(ctx context.Context) ([]ModelInfo, error) {
	var models []ModelInfo

	result := retry.WithBackoff(ctx, c.retryConfig, func(ctx context.Context) error {
		fetched, err := c.fetchOnce(ctx)
		if err != nil {
			return err
		}
		models = fetched
		return nil
	})

	if !result.Success {
		return nil, fmt.Errorf("failed to fetch models after %d attempts: %w", result.Attempts, result.LastError)
	}
	return models, nil
}

func (c *Catalog) fetchOnce(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("models endpoint returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read models response: %w", err)
	}

	// Unlike completions, a partially recovered list is acceptable here
	var parsed modelsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		repaired, stats, repairErr := RepairJSON(string(body))
		if repairErr != nil {
			return nil, fmt.Errorf("failed to decode models response: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode models response: %w", err)
		}
		log.Warn().
			Strs("strategies", stats.Strategies).
			Int("original_bytes", stats.OriginalBytes).
			Msg("Repaired malformed models response")
	}
	return parsed.Data, nil
}

// FreeModels returns the IDs of free models, in upstream order. When the
// catalog cannot be fetched, or lists nothing free, ModelOptions is returned.
func (c *Catalog) FreeModels(ctx context.Context) []string {
	models, err := c.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Model catalog unavailable, using built-in model list")
		return StaticModels()
	}

	ids := FilterFree(models)
	if len(ids) == 0 {
		log.Warn().Int("models", len(models)).Msg("Model catalog lists no free models, using built-in model list")
		return StaticModels()
	}
	return ids
}

// FilterFree returns the unique IDs of free models, keeping input order
func FilterFree(models []ModelInfo) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range models {
		if m.ID == "" || seen[m.ID] || !m.IsFree() {
			continue
		}
		seen[m.ID] = true
		ids = append(ids, m.ID)
	}
	return ids
}

// StaticModels returns a copy of ModelOptions
func StaticModels() []string {
	ids := make([]string, len(ModelOptions))
	copy(ids, ModelOptions)
	return ids
}
