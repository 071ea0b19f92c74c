package fetch

import (
	"context"
	"sync"
)

// Gate holds every fetch until the url is released, so callers can decide the
// order in which transfers complete.
type Gate struct {
	inner   Fetcher
	mu      sync.Mutex
	waiting map[string]chan struct{}
	open    map[string]bool
}

// NewGate wraps inner; nothing completes until Release or ReleaseAll.
func NewGate(inner Fetcher) *Gate {
	return &Gate{
		inner:   inner,
		waiting: make(map[string]chan struct{}),
		open:    make(map[string]bool),
	}
}

func (g *Gate) channel(url string) chan struct{} {
	ch, ok := g.waiting[url]
	if !ok {
		ch = make(chan struct{})
		g.waiting[url] = ch
	}
	return ch
}

// Release lets pending and future fetches of url through.
func (g *Gate) Release(url string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open[url] {
		return
	}
	g.open[url] = true
	close(g.channel(url))
}

// ReleaseAll opens every url seen so far and all later ones.
func (g *Gate) ReleaseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for url, ch := range g.waiting {
		if !g.open[url] {
			g.open[url] = true
			close(ch)
		}
	}
	g.open["*"] = true
}

func (g *Gate) Fetch(ctx context.Context, url string) ([]byte, error) {
	g.mu.Lock()
	if g.open["*"] {
		g.mu.Unlock()
		return g.inner.Fetch(ctx, url)
	}
	ch := g.channel(url)
	g.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.Fetch(ctx, url)
}
