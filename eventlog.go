package scriptloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ErrUnknownEventFormat is returned for an event log format other than json or text.
var ErrUnknownEventFormat = errors.New("unknown event log format")

// EventLogEntry is one line written by an EventLog.
type EventLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	ID        string    `json:"id"`
	Data      any       `json:"data,omitempty"`
}

// EventLog is an Observer that writes every event it receives to w, one
// line per event, as json or text.
type EventLog struct {
	id     string
	format string
	mu     sync.Mutex
	w      io.Writer
}

// NewEventLog creates an EventLog writing to w in format "json" or "text".
func NewEventLog(id, format string, w io.Writer) (*EventLog, error) {
	format = strings.ToLower(format)
	if format != "json" && format != "text" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventFormat, format)
	}
	return &EventLog{id: id, format: format, w: w}, nil
}

func (e *EventLog) ObserverID() string {
	return e.id
}

func (e *EventLog) OnEvent(_ context.Context, event cloudevents.Event) error {
	entry := EventLogEntry{
		Timestamp: event.Time(),
		Type:      event.Type(),
		Source:    event.Source(),
		ID:        event.ID(),
	}
	if len(event.Data()) > 0 {
		var data any
		if err := event.DataAs(&data); err != nil {
			return fmt.Errorf("decoding event data: %w", err)
		}
		entry.Data = data
	}

	var line string
	switch e.format {
	case "json":
		b, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal event log entry: %w", err)
		}
		line = string(b)
	default:
		line = strings.TrimSpace(fmt.Sprintf("%s [%s] %s", entry.Timestamp.Format("15:04:05.000"),
			strings.TrimPrefix(entry.Type, "com.scriptloader."), formatEventData(entry.Data)))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := fmt.Fprintln(e.w, line); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	return nil
}

// formatEventData renders event data as sorted key=value pairs.
func formatEventData(data any) string {
	m, ok := data.(map[string]any)
	if !ok {
		if data == nil {
			return ""
		}
		return fmt.Sprint(data)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := m[k]; v != nil && v != "" {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}
