package scriptloader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverReceivesLifecycleEvents(t *testing.T) {
	f := newFixture(t, map[string]string{
		"manifest.js":          "module(null, 'NS.Widget', '', false)();",
		"scripts/NS.Widget.js": "exports.ok = true;",
	}, false)
	l := f.loader

	var types []string
	var statuses []StatusEventData
	require.NoError(t, l.RegisterObserver(NewFunctionalObserver("all", func(_ context.Context, e CloudEvent) error {
		types = append(types, e.Type())
		assert.Equal(t, "scriptloader", e.Source())
		assert.NotEmpty(t, e.ID())
		if e.Type() == EventTypeResourceStatus {
			var data StatusEventData
			require.NoError(t, e.DataAs(&data))
			statuses = append(statuses, data)
		}
		return nil
	})))

	_, err := l.ResolveManifest("")
	require.NoError(t, err)
	err = f.wait(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModuleNotRequested)

	assert.Contains(t, types, EventTypeModuleRegistered)
	assert.Contains(t, types, EventTypeResourceFailed)
	assert.NotContains(t, types, EventTypeManifestExecuted)
	require.NotEmpty(t, statuses)
	assert.Equal(t, StatusEventData{Kind: "manifest", Name: "manifest.js", URL: "manifest.js", From: "NotLoaded", To: "Requested"}, statuses[0])
}

func TestObserverFilteringAndErrors(t *testing.T) {
	f := newFixture(t, map[string]string{
		"manifest.js": "var x = 1;",
	}, false)
	l := f.loader

	executed := 0
	filtered := NewFunctionalObserver("b-filtered", func(_ context.Context, e CloudEvent) error {
		assert.Equal(t, EventTypeManifestExecuted, e.Type())
		executed++
		return nil
	})
	failing := NewFunctionalObserver("a-failing", func(context.Context, CloudEvent) error {
		return errors.New("observer broke")
	})
	panicking := NewFunctionalObserver("c-panicking", func(context.Context, CloudEvent) error {
		panic("observer panicked")
	})
	require.NoError(t, l.RegisterObserver(filtered, EventTypeManifestExecuted, EventTypeModuleExecuted))
	require.NoError(t, l.RegisterObserver(failing))
	require.NoError(t, l.RegisterObserver(panicking, EventTypeManifestExecuted))

	infos := l.GetObservers()
	require.Len(t, infos, 3)
	assert.Equal(t, "a-failing", infos[0].ID)
	assert.Equal(t, []string{EventTypeManifestExecuted, EventTypeModuleExecuted}, infos[1].EventTypes)

	_, err := l.ResolveManifest("")
	require.NoError(t, err)
	require.NoError(t, f.wait(t))

	assert.Equal(t, 1, executed)
	assert.True(t, f.logger.has("error", "Observer error"))
	assert.True(t, f.logger.has("error", "Observer panicked"))

	require.NoError(t, l.UnregisterObserver(failing))
	require.NoError(t, l.UnregisterObserver(failing))
	assert.Len(t, l.GetObservers(), 2)
}

func TestNewCloudEvent(t *testing.T) {
	e := NewCloudEvent(EventTypeModuleRegistered, "test", map[string]any{"name": "NS.A"}, map[string]any{"loader": "one"})
	require.NoError(t, e.Validate())
	assert.Equal(t, EventTypeModuleRegistered, e.Type())
	assert.Equal(t, "one", e.Extensions()["loader"])

	other := NewCloudEvent(EventTypeModuleRegistered, "test", nil, nil)
	assert.NotEqual(t, e.ID(), other.ID())
}
