package scriptloader

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger("warn", "text", &buf)

	logger.Info("hidden")
	logger.Debug("hidden")
	logger.Warn("Module failed", "module", "NS.A")
	logger.Error("Module execution failed", "resource", "NS.B")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "module=NS.A")
	assert.Contains(t, out, "level=ERROR")
}

func TestSlogLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger("debug", "JSON", &buf)
	logger.Debug("Resource status changed", "resource", "NS.A", "to", StatusReady.String())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "Resource status changed", entry["msg"])
	assert.Equal(t, "NS.A", entry["resource"])
	assert.Equal(t, "Ready", entry["to"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("Debug").String())
	assert.Equal(t, "WARN", parseLevel("warning").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("verbose").String())
}

func TestLoaderLogsTransitions(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, map[string]string{"scripts/NS.A.js": "var a = 1;"}, false)
	f.loader.logger = NewSlogLogger("debug", "text", &buf)

	m, err := f.loader.RegisterModule(nil, "NS.A", "", false)
	require.NoError(t, err)
	require.NoError(t, m.Call(func(*Module) error { return nil }, nil))
	require.NoError(t, f.wait(t))

	out := buf.String()
	assert.Contains(t, out, "Resource status changed")
	assert.Contains(t, out, "to=Executed")
	assert.Contains(t, out, "Module executed")
}
