package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.js":
			assert.Equal(t, "scriptloader/1.0", r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte("var ok = true;"))
		case "/flaky.js":
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("var flaky = 1;"))
		case "/down.js":
			w.WriteHeader(http.StatusBadGateway)
		case "/big.js":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/teapot.js":
			w.WriteHeader(http.StatusTeapot)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h := NewHTTP(WithBaseDelay(time.Millisecond), WithMaxRetries(3), WithMaxBytes(32))
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		body, err := h.Fetch(ctx, srv.URL+"/ok.js")
		require.NoError(t, err)
		assert.Equal(t, "var ok = true;", string(body))
	})

	t.Run("retries server errors", func(t *testing.T) {
		body, err := h.Fetch(ctx, srv.URL+"/flaky.js")
		require.NoError(t, err)
		assert.Equal(t, "var flaky = 1;", string(body))
		assert.EqualValues(t, 3, hits.Load())
	})

	t.Run("gives up", func(t *testing.T) {
		_, err := h.Fetch(ctx, srv.URL+"/down.js")
		assert.ErrorIs(t, err, ErrUpstreamDown)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := h.Fetch(ctx, srv.URL+"/missing.js")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := h.Fetch(ctx, srv.URL+"/big.js")
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("unexpected status", func(t *testing.T) {
		_, err := h.Fetch(ctx, srv.URL+"/teapot.js")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status 418")
	})
}

func TestHTTPHeaderFunc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	}))
	defer srv.Close()

	h := NewHTTP(WithHTTPClient(srv.Client()), WithHeaderFunc(func(string) (string, string) {
		return "Authorization", "Bearer token"
	}))
	body, err := h.Fetch(context.Background(), srv.URL+"/x.js")
	require.NoError(t, err)
	assert.Equal(t, "Bearer token", string(body))
}

func TestCircuitBreakerTrips(t *testing.T) {
	var calls atomic.Int32
	inner := FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		calls.Add(1)
		if strings.HasSuffix(url, "missing.js") {
			return nil, ErrNotFound
		}
		return nil, ErrUpstreamDown
	})
	cb := NewCircuitBreaker(inner, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cb.Fetch(ctx, "https://cdn.example.com/missing.js")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.False(t, cb.Tripped("https://cdn.example.com/a.js"))

	for i := 0; i < 2; i++ {
		_, err := cb.Fetch(ctx, "https://cdn.example.com/a.js")
		assert.ErrorIs(t, err, ErrUpstreamDown)
	}
	assert.True(t, cb.Tripped("https://cdn.example.com/b.js"))

	before := calls.Load()
	_, err := cb.Fetch(ctx, "https://cdn.example.com/b.js")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, before, calls.Load())

	assert.False(t, cb.Tripped("https://other.example.com/a.js"))
}

func TestRouter(t *testing.T) {
	remote := NewMemory(map[string]string{"https://cdn.example.com/a.js": "remote"})
	local := NewMemory(map[string]string{"/srv/a.js": "local", "scripts/b.js": "relative"})
	r := NewRouter(remote, local)
	ctx := context.Background()

	body, err := r.Fetch(ctx, "https://cdn.example.com/a.js")
	require.NoError(t, err)
	assert.Equal(t, "remote", string(body))

	body, err = r.Fetch(ctx, "FILE:///srv/a.js")
	require.NoError(t, err)
	assert.Equal(t, "local", string(body))

	body, err = r.Fetch(ctx, "scripts/b.js")
	require.NoError(t, err)
	assert.Equal(t, "relative", string(body))

	_, err = r.Fetch(ctx, "ftp://host/a.js")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = NewRouter(nil, local).Fetch(ctx, "http://host/a.js")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestDirAndFS(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "NS"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "NS", "manifest.js"), []byte("// using: A.B"), 0o644))
	ctx := context.Background()

	d := NewDir(dir)
	body, err := d.Fetch(ctx, "NS/manifest.js")
	require.NoError(t, err)
	assert.Equal(t, "// using: A.B", string(body))

	body, err = d.Fetch(ctx, filepath.ToSlash(filepath.Join(dir, "NS", "manifest.js")))
	require.NoError(t, err)
	assert.Equal(t, "// using: A.B", string(body))

	_, err = d.Fetch(ctx, "NS/missing.js")
	assert.ErrorIs(t, err, ErrNotFound)

	f := NewFS(fstest.MapFS{"scripts/a.js": {Data: []byte("var a;")}})
	body, err = f.Fetch(ctx, "/scripts/a.js")
	require.NoError(t, err)
	assert.Equal(t, "var a;", string(body))
	_, err = f.Fetch(ctx, "scripts/b.js")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory(t *testing.T) {
	m := NewMemory(nil)
	require.NoError(t, m.Add("a.js", "1"))
	assert.ErrorIs(t, m.Add("a.js", "2"), ErrAlreadyExists)
	m.Set("a.js", "3")

	body, err := m.Fetch(context.Background(), "a.js")
	require.NoError(t, err)
	assert.Equal(t, "3", string(body))
	_, err = m.Fetch(context.Background(), "b.js")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, []string{"a.js", "b.js"}, m.Requests())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Fetch(ctx, "a.js")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGateOrdersCompletion(t *testing.T) {
	g := NewGate(NewMemory(map[string]string{"a.js": "a", "b.js": "b"}))
	done := make(chan string, 2)
	for _, url := range []string{"a.js", "b.js"} {
		go func(url string) {
			body, err := g.Fetch(context.Background(), url)
			if err == nil {
				done <- string(body)
			}
		}(url)
	}

	select {
	case <-done:
		t.Fatal("fetch completed before release")
	case <-time.After(20 * time.Millisecond):
	}

	g.Release("b.js")
	assert.Equal(t, "b", <-done)
	g.ReleaseAll()
	assert.Equal(t, "a", <-done)

	body, err := g.Fetch(context.Background(), "a.js")
	require.NoError(t, err)
	assert.Equal(t, "a", string(body))
}
