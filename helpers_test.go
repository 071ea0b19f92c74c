package scriptloader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/scriptloader/fetch"
	"github.com/stretchr/testify/require"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

type testLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *testLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *testLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *testLogger) Error(msg string, args ...any) { l.add("error", msg, args) }
func (l *testLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *testLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }

func (l *testLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

func (l *testLogger) text(level string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	for _, e := range l.entries {
		if e.level == level {
			fmt.Fprintln(&b, e.msg, e.args)
		}
	}
	return b.String()
}

type fixture struct {
	loader *Loader
	memory *fetch.Memory
	gate   *fetch.Gate
	logger *testLogger
}

// newFixture builds a debug-mode loader over an in-memory script table.
// With gated set, no fetch completes until released through f.gate.
func newFixture(t *testing.T, scripts map[string]string, gated bool, mutate ...func(*Config)) *fixture {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Debug = true
	for _, fn := range mutate {
		fn(cfg)
	}

	f := &fixture{memory: fetch.NewMemory(scripts), logger: &testLogger{}}
	var fetcher fetch.Fetcher = f.memory
	if gated {
		f.gate = fetch.NewGate(f.memory)
		fetcher = f.gate
	}

	l, err := New(cfg, WithFetcher(fetcher), WithLogger(f.logger))
	require.NoError(t, err)
	t.Cleanup(func() {
		if f.gate != nil {
			f.gate.ReleaseAll()
		}
		_ = l.Close()
	})
	f.loader = l
	return f
}

func (f *fixture) wait(t *testing.T) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := f.loader.Wait(ctx)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "loader did not settle")
	return err
}

// settle processes completions for a short while without requiring the loop to drain.
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := f.loader.Wait(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected error while settling: %v", err)
	}
}

// rootString reads a property of the root namespace object as a string.
func (f *fixture) rootString(name string) string {
	v := f.loader.Sandbox().Namespaces().Root().Get(name)
	if v == nil {
		return ""
	}
	return v.String()
}

func (f *fixture) rootInt(name string) int64 {
	v := f.loader.Sandbox().Namespaces().Root().Get(name)
	if v == nil {
		return 0
	}
	return v.ToInteger()
}

func appendLog(tag string) string {
	return fmt.Sprintf("root.log = (root.log || '') + '%s';", tag)
}
