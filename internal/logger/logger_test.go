package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger
	Logger = zerolog.New(&buf)
	t.Cleanup(func() { Logger = prev })
	return &buf
}

func TestWithComponent(t *testing.T) {
	buf := captureLogger(t)

	log := WithComponent("alerts")
	log.Warn().Str("bin", "blue").Msg("alert suppressed by cooldown")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "alerts", line["component"])
	assert.Equal(t, "blue", line["bin"])
	assert.Equal(t, "warn", line["level"])
}

func TestWithRequestID(t *testing.T) {
	buf := captureLogger(t)

	log := WithRequestID("req-42")
	log.Error().Msg("request failed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, "request failed", line["message"])
}
