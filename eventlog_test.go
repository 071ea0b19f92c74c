package scriptloader

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogJSON(t *testing.T) {
	f := newFixture(t, map[string]string{
		"manifest.js": "module(null, 'NS.A', '', false);",
	}, false)

	var buf bytes.Buffer
	log, err := NewEventLog("events", "json", &buf)
	require.NoError(t, err)
	require.NoError(t, f.loader.RegisterObserver(log, EventTypeModuleRegistered, EventTypeManifestExecuted))

	_, err = f.loader.ResolveManifest("")
	require.NoError(t, err)
	require.NoError(t, f.wait(t))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry EventLogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, EventTypeModuleRegistered, entry.Type)
	assert.Equal(t, "scriptloader", entry.Source)
	assert.NotEmpty(t, entry.ID)
	data, ok := entry.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "NS.A", data["name"])
	assert.Equal(t, "scripts/NS.A.js", data["url"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, EventTypeManifestExecuted, entry.Type)
}

func TestEventLogText(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewEventLog("events", "TEXT", &buf)
	require.NoError(t, err)
	assert.Equal(t, "events", log.ObserverID())

	event := NewCloudEvent(EventTypeResourceStatus, "scriptloader",
		StatusEventData{Kind: "module", Name: "NS.A", URL: "scripts/NS.A.js", From: "Loaded", To: "Ready"}, nil)
	require.NoError(t, log.OnEvent(context.Background(), event))
	require.NoError(t, log.OnEvent(context.Background(), NewCloudEvent(EventTypeAppStarted, "scriptloader", nil, nil)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[resource.status] from=Loaded kind=module name=NS.A to=Ready url=scripts/NS.A.js")
	assert.True(t, strings.HasSuffix(lines[1], "[app.started]"), lines[1])
}

func TestEventLogRejectsUnknownFormat(t *testing.T) {
	_, err := NewEventLog("events", "xml", &bytes.Buffer{})
	require.ErrorIs(t, err, ErrUnknownEventFormat)
}
