package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/councilchamber/internal/storage"
	"github.com/councilchamber/pkg/models"
)

const (
	// StorageKey is where the conversation list lives in the store
	StorageKey = "council_conversations"
	// DefaultLimit caps how many rounds are kept
	DefaultLimit = 200
)

// Store is the persisted, bounded log of completed rounds. Entries are kept
// oldest first as a JSON array under StorageKey.
type Store struct {
	mu    sync.Mutex
	kv    storage.Store
	limit int
}

// NewStore creates a history store over kv; limit <= 0 means DefaultLimit
func NewStore(kv storage.Store, limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{kv: kv, limit: limit}
}

// Append adds entry after every existing entry and drops the oldest entries
// beyond the limit
func (s *Store) Append(ctx context.Context, entry models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read(ctx)
	if err != nil {
		return err
	}

	entries = append(entries, entry)
	dropped := 0
	if len(entries) > s.limit {
		dropped = len(entries) - s.limit
		entries = entries[dropped:]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}

	log.Debug().
		Int("entries", len(entries)).
		Int("dropped", dropped).
		Msg("Conversation history appended")
	return nil
}

// List returns every entry, oldest first
func (s *Store) List(ctx context.Context) ([]models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

// Newest returns up to n entries, newest first. n <= 0 returns all of them.
func (s *Store) Newest(ctx context.Context, n int) ([]models.HistoryEntry, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return Reverse(entries, n), nil
}

// Reverse returns the last n entries of an oldest-first list in newest-first
// order. n <= 0 means all.
func Reverse(entries []models.HistoryEntry, n int) []models.HistoryEntry {
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	reversed := make([]models.HistoryEntry, 0, n)
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		reversed = append(reversed, entries[i])
	}
	return reversed
}

func (s *Store) read(ctx context.Context) ([]models.HistoryEntry, error) {
	raw, found, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if !found || raw == "" {
		return []models.HistoryEntry{}, nil
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, nil
}
