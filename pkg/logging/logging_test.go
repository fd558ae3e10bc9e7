package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)

	rl := Component(l, "router")
	rl.Info().Msg("hidden")
	rl.Warn().Str("provider", "openai").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "router", entry["component"])
	assert.Equal(t, "openai", entry["provider"])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Output: &buf})
	require.NoError(t, err)
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}
