package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel(" debug "))
	assert.Equal(t, WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLevel(InfoLevel)
	SetOutput(&buf)

	log := With("exit-bus")
	log.Debug("hidden %d", 1)
	log.Info("delivered %d requests", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "exit-bus", entry["component"])
	assert.Equal(t, "delivered 3 requests", entry["message"])

	buf.Reset()
	SetLevel(ErrorLevel)
	Warn("dropped")
	assert.Empty(t, buf.String())
	Error("kept")
	assert.Contains(t, buf.String(), "kept")
}
