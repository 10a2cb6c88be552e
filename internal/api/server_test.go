package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/councilchamber/internal/council"
	"github.com/councilchamber/internal/history"
	"github.com/councilchamber/internal/llm"
	"github.com/councilchamber/internal/persona"
	"github.com/councilchamber/internal/preferences"
	"github.com/councilchamber/internal/storage"
	"github.com/councilchamber/pkg/models"
)

// stubClient answers once release is closed and records what it was asked
type stubClient struct {
	release chan struct{}

	mu       sync.Mutex
	requests []llm.CompletionRequest
}

func newStubClient(open bool) *stubClient {
	c := &stubClient{release: make(chan struct{})}
	if open {
		close(c.release)
	}
	return c
}

func (c *stubClient) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	select {
	case <-c.release:
		return "Advice about " + req.UserMessage, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *stubClient) models() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, req := range c.requests {
		out = append(out, req.Model)
	}
	return out
}

type stubLister struct {
	models []string
}

func (l stubLister) FreeModels(ctx context.Context) []string {
	return l.models
}

type testEnv struct {
	server     *Server
	dispatcher *council.Dispatcher
	history    *history.Store
	prefs      *preferences.Preferences
}

func newTestEnv(t *testing.T, client llm.ChatClient, mutate ...func(*Dependencies)) *testEnv {
	t.Helper()

	kv := storage.NewMemoryStore()
	hist := history.NewStore(kv, 10)
	prefs := preferences.New(kv)
	dispatcher := council.NewDispatcher(client, council.WithRecorder(hist))
	t.Cleanup(dispatcher.Close)

	personas, err := persona.NewRegistry().Build(3)
	require.NoError(t, err)

	deps := Dependencies{
		Dispatcher:   dispatcher,
		Personas:     personas,
		History:      hist,
		Preferences:  prefs,
		DefaultModel: "default/model:free",
	}
	for _, m := range mutate {
		m(&deps)
	}

	return &testEnv{
		server:     NewServer(0, deps),
		dispatcher: dispatcher,
		history:    hist,
		prefs:      prefs,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func waitRound(t *testing.T, d *council.Dispatcher) council.Snapshot {
	t.Helper()
	round := d.Current()
	require.NotNil(t, round)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snapshot, err := round.Wait(ctx)
	require.NoError(t, err)
	return snapshot
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, newStubClient(true))
	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestGetPersonas(t *testing.T) {
	env := newTestEnv(t, newStubClient(true))
	rec := env.do(t, http.MethodGet, "/api/v1/personas", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Personas []models.Persona `json:"personas"`
	}](t, rec)
	require.Len(t, body.Personas, 3)
	for i, p := range body.Personas {
		assert.Equal(t, i, p.Slot)
		assert.NotEmpty(t, p.SystemPrompt)
	}
}

func TestCreateRound(t *testing.T) {
	env := newTestEnv(t, newStubClient(true))
	require.NoError(t, env.prefs.SetCredential(context.Background(), "sk-or-1"))

	rec := env.do(t, http.MethodPost, "/api/v1/rounds", `{"query":"  Should I learn Go?  "}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	snapshot := decode[council.Snapshot](t, rec)
	assert.NotEmpty(t, snapshot.RoundID)
	assert.Equal(t, "Should I learn Go?", snapshot.Query)
	assert.Len(t, snapshot.Answers, 3)

	final := waitRound(t, env.dispatcher)
	assert.True(t, final.Complete)

	rec = env.do(t, http.MethodGet, "/api/v1/rounds/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	current := decode[council.Snapshot](t, rec)
	assert.Equal(t, snapshot.RoundID, current.RoundID)
	assert.True(t, current.Complete)
	for _, answer := range current.Answers {
		assert.Equal(t, models.StatusAnswered, answer.State.Status)
		assert.Equal(t, "Advice about Should I learn Go?", answer.State.Text)
	}

	entries, err := env.history.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Should I learn Go?", entries[0].Query)
}

func TestCreateRoundValidation(t *testing.T) {
	tests := []struct {
		name       string
		credential string
		body       string
		wantField  string
	}{
		{name: "missing credential", body: `{"query":"hello"}`, wantField: "credential"},
		{name: "blank query", credential: "sk-or-1", body: `{"query":"   "}`, wantField: "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newStubClient(true)
			env := newTestEnv(t, client)
			if tt.credential != "" {
				require.NoError(t, env.prefs.SetCredential(context.Background(), tt.credential))
			}

			rec := env.do(t, http.MethodPost, "/api/v1/rounds", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantField, decode[errorResponse](t, rec).Field)
			assert.Nil(t, env.dispatcher.Current())
			assert.Empty(t, client.models(), "no upstream calls on validation failure")
		})
	}
}

func TestCreateRoundRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t, newStubClient(true))
	rec := env.do(t, http.MethodPost, "/api/v1/rounds", `{"query":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRoundModelSelection(t *testing.T) {
	client := newStubClient(true)
	env := newTestEnv(t, client)
	ctx := context.Background()
	require.NoError(t, env.prefs.SetCredential(ctx, "sk-or-1"))

	env.do(t, http.MethodPost, "/api/v1/rounds", `{"query":"one"}`)
	waitRound(t, env.dispatcher)
	assert.Equal(t, []string{"default/model:free", "default/model:free", "default/model:free"}, client.models())

	require.NoError(t, env.prefs.SetModel(ctx, "saved/model:free"))
	env.do(t, http.MethodPost, "/api/v1/rounds", `{"query":"two"}`)
	waitRound(t, env.dispatcher)
	assert.Contains(t, client.models(), "saved/model:free")

	env.do(t, http.MethodPost, "/api/v1/rounds", `{"query":"three","model":"explicit/model"}`)
	waitRound(t, env.dispatcher)
	assert.Contains(t, client.models(), "explicit/model")
}

func TestCreateRoundUsesCredentialOverride(t *testing.T) {
	client := newStubClient(true)
	env := newTestEnv(t, client, func(d *Dependencies) { d.Credential = "sk-or-env" })

	rec := env.do(t, http.MethodPost, "/api/v1/rounds", `{"query":"hello"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitRound(t, env.dispatcher)

	client.mu.Lock()
	defer client.mu.Unlock()
	for _, req := range client.requests {
		assert.Equal(t, "sk-or-env", req.Credential)
	}
}

func TestCurrentRoundNotFound(t *testing.T) {
	env := newTestEnv(t, newStubClient(true))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/rounds/current", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/rounds/current/events", "").Code)
}

func TestStreamCurrentRound(t *testing.T) {
	client := newStubClient(false)
	env := newTestEnv(t, client)
	require.NoError(t, env.prefs.SetCredential(context.Background(), "sk-or-1"))

	rec := env.do(t, http.MethodPost, "/api/v1/rounds", `{"query":"stream me"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	// Headers arrive with the initial snapshot, after the subscription exists
	resp, err := http.Get(ts.URL + "/api/v1/rounds/current/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	close(client.release)

	var names []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	require.NoError(t, scanner.Err())

	require.Len(t, names, 5)
	assert.Equal(t, "snapshot", names[0])
	for _, name := range names[1:4] {
		assert.Equal(t, string(council.EventPersonaTransition), name)
	}
	assert.Equal(t, string(council.EventRoundComplete), names[4])
}

func TestGetHistory(t *testing.T) {
	env := newTestEnv(t, newStubClient(true))
	ctx := context.Background()
	answer := "yes"
	for _, q := range []string{"first", "second", "third"} {
		require.NoError(t, env.history.Append(ctx, models.HistoryEntry{
			Timestamp: time.Now().UTC(),
			Query:     q,
			Answers:   []*string{&answer, nil},
		}))
	}

	queries := func(rec *httptest.ResponseRecorder) []string {
		var out []string
		for _, e := range decode[HistoryResponse](t, rec).Entries {
			out = append(out, e.Query)
		}
		return out
	}

	rec := env.do(t, http.MethodGet, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"third", "second", "first"}, queries(rec))
	assert.Contains(t, rec.Body.String(), `"answers":["yes",null]`)

	rec = env.do(t, http.MethodGet, "/api/v1/history?order=oldest", "")
	assert.Equal(t, []string{"first", "second", "third"}, queries(rec))

	rec = env.do(t, http.MethodGet, "/api/v1/history?order=newest&limit=2", "")
	assert.Equal(t, []string{"third", "second"}, queries(rec))

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/history?order=sideways", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/history?limit=-1", "").Code)
}

func TestGetHistoryEmpty(t *testing.T) {
	env := newTestEnv(t, newStubClient(true))
	rec := env.do(t, http.MethodGet, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entries":[]`)
}

func TestGetModels(t *testing.T) {
	env := newTestEnv(t, newStubClient(true), func(d *Dependencies) {
		d.Models = stubLister{models: []string{"a:free", "b:free"}}
	})
	rec := env.do(t, http.MethodGet, "/api/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a:free", "b:free"}, decode[map[string][]string](t, rec)["models"])

	env = newTestEnv(t, newStubClient(true))
	rec = env.do(t, http.MethodGet, "/api/v1/models", "")
	assert.Equal(t, llm.StaticModels(), decode[map[string][]string](t, rec)["models"])
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, newStubClient(true))

	rec := env.do(t, http.MethodGet, "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SettingsResponse{Model: "default/model:free"}, decode[SettingsResponse](t, rec))

	rec = env.do(t, http.MethodPut, "/api/v1/settings", `{"api_key":" sk-or-2 ","model":"other/model"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, SettingsResponse{Model: "other/model", HasAPIKey: true}, decode[SettingsResponse](t, rec))
	assert.NotContains(t, rec.Body.String(), "sk-or-2")

	credential, err := env.prefs.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-or-2", credential)
}

func TestUpdateSettingsValidation(t *testing.T) {
	env := newTestEnv(t, newStubClient(true))

	rec := env.do(t, http.MethodPut, "/api/v1/settings", `{"api_key":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "api_key", decode[errorResponse](t, rec).Field)

	rec = env.do(t, http.MethodPut, "/api/v1/settings", `{"model":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "model", decode[errorResponse](t, rec).Field)
}
