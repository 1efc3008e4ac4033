package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"pragrisk/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	log.Debug().Str("kind", "actors").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "actors", line["kind"])
	assert.Equal(t, "pragrisk", line["service"])
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Level: "chatty", Format: "json"}, &buf)
	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	log.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
