package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Dir reads scripts from the local filesystem. Relative urls resolve against Root.
type Dir struct {
	Root string
}

// NewDir creates a Dir fetcher rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

func (d *Dir) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := filepath.FromSlash(url)
	if !filepath.IsAbs(p) && d.Root != "" {
		p = filepath.Join(d.Root, p)
	}
	content, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return content, nil
}

// FS reads scripts from an fs.FS such as an embed.FS.
type FS struct {
	FS fs.FS
}

// NewFS creates a fetcher over fsys.
func NewFS(fsys fs.FS) *FS {
	return &FS{FS: fsys}
}

func (f *FS) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := path.Clean(strings.TrimPrefix(url, "/"))
	content, err := fs.ReadFile(f.FS, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return content, nil
}

// Memory serves scripts from an in-memory table. It records every requested
// url, which makes it the fetcher of choice for tests and embedded bundles.
type Memory struct {
	mu       sync.RWMutex
	scripts  map[string][]byte
	requests []string
}

// NewMemory creates a Memory fetcher seeded with scripts keyed by url.
func NewMemory(scripts map[string]string) *Memory {
	m := &Memory{scripts: make(map[string][]byte, len(scripts))}
	for url, content := range scripts {
		m.scripts[url] = []byte(content)
	}
	return m
}

// Add stores a script, refusing to replace an existing one.
func (m *Memory) Add(url, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.scripts[url]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, url)
	}
	m.scripts[url] = []byte(content)
	return nil
}

// Set stores or replaces a script.
func (m *Memory) Set(url, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[url] = []byte(content)
}

// Requests returns the urls fetched so far, in order.
func (m *Memory) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.requests...)
}

func (m *Memory) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, url)
	content, ok := m.scripts[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return append([]byte(nil), content...), nil
}
