package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelSlogLevel(t *testing.T) {
	cases := map[Level]slog.Level{
		"":         slog.LevelInfo,
		LevelDebug: slog.LevelDebug,
		"INFO":     slog.LevelInfo,
		LevelWarn:  slog.LevelWarn,
		LevelError: slog.LevelError,
	}

	for in, want := range cases {
		got, err := in.SlogLevel()
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := Level("verbose").SlogLevel()
	require.Error(t, err)
}

func TestNewRespectsLevelAndName(t *testing.T) {
	var buf bytes.Buffer

	log, err := New(Config{Level: LevelWarn, Format: FormatJSON}, &buf)
	require.NoError(t, err)

	named := Named(log, "address_store")
	named.Info("dropped")
	named.Warn("kept", "network", "MAINNET")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "address_store", entry["name"])
	assert.Equal(t, "MAINNET", entry["network"])
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Config{Format: "xml"}, &bytes.Buffer{})
	require.Error(t, err)
}
