package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerStatusTerminal(t *testing.T) {
	assert.False(t, StatusIdle.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusAnswered.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestAnswerStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "answered", StatusAnswered.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", AnswerStatus(42).String())
}

func TestDisplayText(t *testing.T) {
	tests := []struct {
		name  string
		state AnswerState
		want  string
	}{
		{"idle", AnswerState{}, ""},
		{"pending", Pending(), PendingAnswerText},
		{"answered", Answered("be brave"), "be brave"},
		{"empty sentinel", Answered(EmptyAnswerSentinel), EmptyAnswerSentinel},
		{"failed", Failed(ErrorKindNetwork, "dial tcp: refused"), FailedAnswerText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.DisplayText())
		})
	}
}

func TestAnswerStateJSONUsesStatusNames(t *testing.T) {
	data, err := json.Marshal(Failed(ErrorKindAuth, "401"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"failed","reason":"auth_error","detail":"401"}`, string(data))
}

func TestAnswerStateJSONRoundTrip(t *testing.T) {
	states := []AnswerState{
		{},
		Pending(),
		Answered("The river remembers."),
		Failed(ErrorKindMalformedResponse, "response is not JSON"),
	}

	for _, want := range states {
		data, err := json.Marshal(want)
		require.NoError(t, err)

		var got AnswerState
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, want, got)
	}
}

func TestAnswerStatusRejectsUnknownName(t *testing.T) {
	var state AnswerState
	err := json.Unmarshal([]byte(`{"status":"thinking"}`), &state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown answer status")
}

func TestHistoryEntryJSONShape(t *testing.T) {
	ok := "ok-A"
	entry := HistoryEntry{
		Timestamp: time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
		Query:     "advice?",
		Answers:   []*string{&ok, nil},
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":"2025-03-01T12:30:00Z","query":"advice?","answers":["ok-A",null]}`, string(data))
}
