package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"info", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
		})
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetupWritesJSON(t *testing.T) {
	previous := log.Logger
	previousLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(previousLevel)
	}()

	var buf bytes.Buffer
	require.NoError(t, Setup(Options{Level: "warn", Output: &buf}))

	log.Info().Msg("hidden")
	log.Warn().Str("round_id", "r1").Msg("visible")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "visible", line["message"])
	assert.Equal(t, "r1", line["round_id"])
	assert.Equal(t, "warn", line["level"])
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Setup(Options{Level: "chatty"}))
}

func TestOpenLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	file, err := OpenLogFile(dir)
	require.NoError(t, err)
	_, err = file.WriteString("first\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	file, err = OpenLogFile(dir)
	require.NoError(t, err)
	_, err = file.WriteString("second\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}
