package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/councilchamber/internal/retry"
)

const modelsBody = `{"data":[
	{"id":"meta-llama/llama-3.3-70b-instruct:free","name":"Llama 3.3 70B (free)","pricing":{"prompt":"0","completion":"0"}},
	{"id":"openai/gpt-4o","name":"GPT-4o","pricing":{"prompt":"0.0000025","completion":"0.00001"}},
	{"id":"openrouter/auto-free","name":"Zero priced","pricing":{"prompt":"0.0","completion":"0"}},
	{"id":"google/gemma-3n-e2b-it:free","name":"Gemma","pricing":{"prompt":"","completion":""}},
	{"id":"half/free","name":"Half","pricing":{"prompt":"0","completion":"0.000002"}},
	{"id":"meta-llama/llama-3.3-70b-instruct:free","name":"Duplicate","pricing":{"prompt":"0","completion":"0"}}
]}`

func fastRetry() retry.Config {
	return retry.Config{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
		Operation:  "fetch_models",
	}
}

func TestModelInfoIsFree(t *testing.T) {
	tests := []struct {
		name  string
		model ModelInfo
		want  bool
	}{
		{"free suffix", ModelInfo{ID: "a/b:free"}, true},
		{"zero pricing", ModelInfo{ID: "a/b", Pricing: Pricing{Prompt: "0", Completion: "0.000"}}, true},
		{"paid prompt", ModelInfo{ID: "a/b", Pricing: Pricing{Prompt: "0.1", Completion: "0"}}, false},
		{"missing pricing", ModelInfo{ID: "a/b"}, false},
		{"garbage pricing", ModelInfo{ID: "a/b", Pricing: Pricing{Prompt: "free", Completion: "free"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.model.IsFree())
		})
	}
}

func TestCatalogFreeModels(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = io.WriteString(w, modelsBody)
	}))
	defer server.Close()

	ids := NewCatalog(server.URL, nil).WithRetryConfig(fastRetry()).FreeModels(context.Background())

	assert.Equal(t, "/models", path)
	assert.Equal(t, []string{
		"meta-llama/llama-3.3-70b-instruct:free",
		"openrouter/auto-free",
		"google/gemma-3n-e2b-it:free",
	}, ids)
}

func TestCatalogRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, modelsBody)
	}))
	defer server.Close()

	models, err := NewCatalog(server.URL, nil).WithRetryConfig(fastRetry()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 6)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCatalogFallsBackToStaticList(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ids := NewCatalog(server.URL, nil).WithRetryConfig(fastRetry()).FreeModels(context.Background())

	assert.Equal(t, ModelOptions, ids)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCatalogFallsBackWhenNothingIsFree(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"id":"openai/gpt-4o","pricing":{"prompt":"1","completion":"1"}}]}`)
	}))
	defer server.Close()

	ids := NewCatalog(server.URL, nil).WithRetryConfig(fastRetry()).FreeModels(context.Background())
	assert.Equal(t, ModelOptions, ids)
}

func TestCatalogRepairsSloppyModelsList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "```json\n{\"data\":[{\"id\":\"a/b:free\"},{\"id\":\"c/d\",\"pricing\":{\"prompt\":\"1\",\"completion\":\"1\"}},]}\n```")
	}))
	defer server.Close()

	models, err := NewCatalog(server.URL, nil).WithRetryConfig(fastRetry()).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "a/b:free", models[0].ID)
	assert.Equal(t, "c/d", models[1].ID)
}

func TestCatalogDoesNotRetryBadRequest(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewCatalog(server.URL, nil).WithRetryConfig(fastRetry()).Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStaticModelsReturnsCopy(t *testing.T) {
	ids := StaticModels()
	ids[0] = "changed"
	assert.Equal(t, DefaultModel, ModelOptions[0])
}
