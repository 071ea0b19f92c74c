// Package fetch retrieves script payloads by URL for the loader's resource
// requests: HTTP with retry and per-host circuit breaking, local directories,
// fs.FS trees and an in-memory table.
package fetch

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound          = errors.New("script not found")
	ErrRateLimited       = errors.New("rate limited by upstream")
	ErrUpstreamDown      = errors.New("upstream script host unavailable")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrAlreadyExists     = errors.New("script already exists")
	ErrTooLarge          = errors.New("script exceeds size limit")
)

// Fetcher retrieves the full payload stored at url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// Router dispatches on the url scheme: http and https go to Remote,
// everything else (file:// urls and plain paths) goes to Local.
type Router struct {
	Remote Fetcher
	Local  Fetcher
}

// NewRouter creates a Router over the given fetchers. Either may be nil.
func NewRouter(remote, local Fetcher) *Router {
	return &Router{Remote: remote, Local: local}
}

func (r *Router) Fetch(ctx context.Context, url string) ([]byte, error) {
	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		if r.Remote == nil {
			return nil, ErrUnsupportedScheme
		}
		return r.Remote.Fetch(ctx, url)
	case strings.Contains(lower, "://") && !strings.HasPrefix(lower, "file://"):
		return nil, ErrUnsupportedScheme
	default:
		if r.Local == nil {
			return nil, ErrUnsupportedScheme
		}
		if strings.HasPrefix(lower, "file://") {
			url = url[len("file://"):]
		}
		return r.Local.Fetch(ctx, url)
	}
}
