package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, level, err := New(Options{Level: "info", JSON: true, Output: zapcore.AddSync(&buf)})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("node registered", zap.Uint64("node", 7))
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "node registered", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, 7.0, entry["node"])
	assert.Contains(t, entry, "timestamp")

	buf.Reset()
	level.SetLevel(zapcore.DebugLevel)
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("RNR_JSON_LOGS", "true")
	t.Setenv("RNR_LOG_LEVEL", "debug")

	o := FromEnv(Options{Level: "info"})
	assert.True(t, o.JSON)
	assert.Equal(t, "debug", o.Level)
}
