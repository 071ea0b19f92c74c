package scriptloader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appScripts = map[string]string{
	"manifest.js":    "module(null, 'app', '', false);",
	"scripts/app.js": "root.started = (root.started || 0) + 1;",
}

func TestAppRunsAutomatically(t *testing.T) {
	f := newFixture(t, appScripts, false)
	_, err := f.loader.ResolveManifest("")
	require.NoError(t, err)
	require.NoError(t, f.wait(t))

	assert.True(t, f.loader.Running())
	assert.EqualValues(t, 1, f.rootInt("started"))

	require.NoError(t, f.loader.RunApp())
	assert.EqualValues(t, 1, f.rootInt("started"))
}

func TestAppWaitsInDebugUntilRunApp(t *testing.T) {
	f := newFixture(t, appScripts, false, func(c *Config) { c.Wait = true })
	_, err := f.loader.ResolveManifest("")
	require.NoError(t, err)
	require.NoError(t, f.wait(t))

	app, ok := f.loader.Module("app")
	require.True(t, ok)
	assert.Equal(t, StatusNotLoaded, app.Status())
	assert.False(t, f.loader.Running())

	require.NoError(t, f.loader.RunApp())
	require.NoError(t, f.wait(t))
	assert.True(t, f.loader.Running())
	assert.Equal(t, StatusExecuted, app.Status())
	assert.EqualValues(t, 1, f.rootInt("started"))
}

func TestRunAppBeforeRegistration(t *testing.T) {
	f := newFixture(t, map[string]string{
		"scripts/application.js": "root.started = 1;",
	}, false, func(c *Config) { c.Wait = true })

	var started []string
	require.NoError(t, f.loader.RegisterObserver(NewFunctionalObserver("app", func(_ context.Context, e CloudEvent) error {
		started = append(started, e.Type())
		return nil
	}), EventTypeAppStarted))

	require.NoError(t, f.loader.RunApp())
	assert.False(t, f.loader.Running())

	_, err := f.loader.RegisterModule(nil, "application", "", false)
	require.NoError(t, err)
	require.NoError(t, f.wait(t))
	assert.True(t, f.loader.Running())
	assert.Equal(t, []string{EventTypeAppStarted}, started)
	assert.True(t, f.logger.has("info", "Application started"))
}

func TestAppFailureIsReported(t *testing.T) {
	f := newFixture(t, map[string]string{
		"scripts/app.js": "throw new Error('no boot');",
	}, false)
	app, err := f.loader.RegisterModule(nil, "app", "", false)
	require.NoError(t, err)

	err = f.wait(t)
	assert.ErrorIs(t, err, ErrExecutionFailed)
	assert.False(t, f.loader.Running())
	assert.Equal(t, StatusError, app.Status())
	assert.ErrorIs(t, f.loader.RunApp(), ErrModuleFailed)
}
