package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/councilchamber/internal/storage"
	"github.com/councilchamber/pkg/models"
)

func strPtr(s string) *string {
	return &s
}

func entry(query string, minute int, answers ...*string) models.HistoryEntry {
	return models.HistoryEntry{
		Timestamp: time.Date(2025, 3, 1, 12, minute, 0, 0, time.UTC),
		Query:     query,
		Answers:   answers,
	}
}

func TestListEmpty(t *testing.T) {
	store := NewStore(storage.NewMemoryStore(), 0)

	entries, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppendPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryStore(), 0)

	e1 := entry("first?", 1, strPtr("a"))
	e2 := entry("second?", 2, strPtr("b"))
	require.NoError(t, store.Append(ctx, e1))
	require.NoError(t, store.Append(ctx, e2))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff([]models.HistoryEntry{e1, e2}, entries); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripKeepsNullSlots(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()

	want := entry("advice?", 30, strPtr("ok-A"), nil, strPtr(models.EmptyAnswerSentinel))
	require.NoError(t, NewStore(kv, 0).Append(ctx, want))

	raw, found, err := kv.Get(ctx, StorageKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `[{"timestamp":"2025-03-01T12:30:00Z","query":"advice?","answers":["ok-A",null,"*silence*"]}]`, raw)

	// A fresh store over the same key-value data reads the same entry back
	entries, err := NewStore(kv, 0).List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	if diff := cmp.Diff(want, entries[0]); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadsBrowserWrittenHistory(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, StorageKey, `[{"timestamp":"2024-11-05T09:15:42.123Z","query":"should I move?","answers":["yes",null]}]`))

	entries, err := NewStore(kv, 0).List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "should I move?", entries[0].Query)
	assert.Equal(t, 123*int(time.Millisecond), entries[0].Timestamp.Nanosecond())
	assert.Nil(t, entries[0].Answers[1])
}

func TestAppendEnforcesLimit(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryStore(), 3)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, entry(fmt.Sprintf("q%d", i), i)))
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "q2", entries[0].Query)
	assert.Equal(t, "q4", entries[2].Query)
}

func TestDefaultLimit(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryStore(), -1)

	for i := 0; i < DefaultLimit+5; i++ {
		require.NoError(t, store.Append(ctx, entry(fmt.Sprintf("q%d", i), i%60)))
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultLimit)
	assert.Equal(t, "q5", entries[0].Query)
}

func TestNewest(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryStore(), 0)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Append(ctx, entry(fmt.Sprintf("q%d", i), i)))
	}

	newest, err := store.Newest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, "q3", newest[0].Query)
	assert.Equal(t, "q2", newest[1].Query)

	all, err := store.Newest(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "q0", all[3].Query)
}

func TestCorruptHistoryIsAnError(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, StorageKey, `{"not":"an array"}`))

	store := NewStore(kv, 0)
	_, err := store.List(ctx)
	assert.Error(t, err)
	assert.Error(t, store.Append(ctx, entry("q", 0)))
}
