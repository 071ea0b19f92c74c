package devserver_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoCodeAlone/scriptloader"
	"github.com/GoCodeAlone/scriptloader/devserver"
	"github.com/GoCodeAlone/scriptloader/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

// TestLoaderOverHTTP loads a release build through the HTTP fetcher, with
// the server filling in the minified scripts that were never built.
func TestLoaderOverHTTP(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"manifest.js":           "// using: NS.Lib\nmodule([using.NS.Lib], 'NS.App', '', false)(function () {});",
		"NS/manifest.js":        "module(null, 'NS.Lib', '', false);",
		"scripts/NS.Lib.js":     "exports.version = 'plain';",
		"scripts/NS.App.js":     "root.app = 'plain';",
		"scripts/NS.App.min.js": "root.app = 'min';",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}

	cfg := devserver.DefaultConfig(root)
	cfg.FallbackToSource = true
	srv, err := devserver.New(cfg, quietLogger{})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	loaderCfg := scriptloader.DefaultConfig()
	loaderCfg.BaseURL = ts.URL
	httpFetcher := fetch.NewHTTP(fetch.WithHTTPClient(ts.Client()), fetch.WithMaxRetries(0))
	l, err := scriptloader.New(loaderCfg,
		scriptloader.WithFetcher(fetch.NewCircuitBreaker(httpFetcher, 3)),
		scriptloader.WithLogger(quietLogger{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	_, err = l.ResolveManifest("")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx))

	app, ok := l.Module("NS.App")
	require.True(t, ok)
	assert.Equal(t, scriptloader.StatusExecuted, app.Status())
	assert.Equal(t, ts.URL+"/scripts/NS.App.min.js", app.URL())
	assert.Equal(t, "min", l.Sandbox().Namespaces().Root().Get("app").String())

	lib, ok := l.Module("NS.Lib")
	require.True(t, ok)
	assert.Equal(t, ts.URL+"/scripts/NS.Lib.min.js", lib.URL())
	assert.Equal(t, scriptloader.StatusExecuted, lib.Status())
	assert.Equal(t, map[string]any{"version": "plain"}, lib.Exports())
}
