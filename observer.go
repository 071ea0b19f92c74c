package scriptloader

import (
	"context"
	"fmt"
	"sort"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Observer receives loader lifecycle events as CloudEvents.
type Observer interface {
	// OnEvent is called synchronously on the loader's goroutine, in
	// transition order. Observers should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier used for registration tracking.
	ObserverID() string
}

// Subject is implemented by types that emit lifecycle events.
type Subject interface {
	// RegisterObserver adds an observer, optionally filtered to eventTypes.
	// An empty filter receives every event.
	RegisterObserver(observer Observer, eventTypes ...string) error
	// UnregisterObserver removes an observer; unknown observers are ignored.
	UnregisterObserver(observer Observer) error
	NotifyObservers(ctx context.Context, event cloudevents.Event) error
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by the loader, in reverse domain notation.
const (
	EventTypeResourceStatus   = "com.scriptloader.resource.status"
	EventTypeResourceFailed   = "com.scriptloader.resource.failed"
	EventTypeModuleRegistered = "com.scriptloader.module.registered"
	EventTypeModuleExecuted   = "com.scriptloader.module.executed"
	EventTypeManifestExecuted = "com.scriptloader.manifest.executed"
	EventTypeAppStarted       = "com.scriptloader.app.started"
)

// CloudEvent is an alias for the CloudEvents Event type.
type CloudEvent = cloudevents.Event

// StatusEventData is the payload of resource status and failure events.
type StatusEventData struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	From  string `json:"from"`
	To    string `json:"to"`
	Error string `json:"error,omitempty"`
}

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer backed by handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

// NewCloudEvent creates a CloudEvent with a time-ordered id.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		event.SetExtension(key, value)
	}
	return event
}

// generateEventID returns a UUIDv7, falling back to v4.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// RegisterObserver adds an observer to the loader.
func (l *Loader) RegisterObserver(observer Observer, eventTypes ...string) error {
	l.observerMu.Lock()
	defer l.observerMu.Unlock()

	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	l.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	}
	l.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer from the loader.
func (l *Loader) UnregisterObserver(observer Observer) error {
	l.observerMu.Lock()
	defer l.observerMu.Unlock()
	if _, ok := l.observers[observer.ObserverID()]; ok {
		delete(l.observers, observer.ObserverID())
		l.logger.Debug("Observer unregistered", "observerID", observer.ObserverID())
	}
	return nil
}

// NotifyObservers delivers event to every interested observer in
// registration-id order. Observer errors and panics are logged, not returned.
func (l *Loader) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("CloudEvent validation failed: %w", err)
	}

	l.observerMu.RLock()
	regs := make([]*observerRegistration, 0, len(l.observers))
	for _, reg := range l.observers {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		regs = append(regs, reg)
	}
	l.observerMu.RUnlock()
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].observer.ObserverID() < regs[j].observer.ObserverID()
	})

	for _, reg := range regs {
		l.deliver(ctx, reg.observer, event)
	}
	return nil
}

func (l *Loader) deliver(ctx context.Context, observer Observer, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()
	if err := observer.OnEvent(ctx, event); err != nil {
		l.logger.Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}

// GetObservers lists the registered observers sorted by id.
func (l *Loader) GetObservers() []ObserverInfo {
	l.observerMu.RLock()
	defer l.observerMu.RUnlock()

	info := make([]ObserverInfo, 0, len(l.observers))
	for _, reg := range l.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		info = append(info, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   types,
			RegisteredAt: reg.registeredAt,
		})
	}
	sort.Slice(info, func(i, j int) bool { return info[i].ID < info[j].ID })
	return info
}

func (l *Loader) emit(eventType string, data any) {
	l.observerMu.RLock()
	empty := len(l.observers) == 0
	l.observerMu.RUnlock()
	if empty {
		return
	}
	event := NewCloudEvent(eventType, "scriptloader", data, nil)
	if err := l.NotifyObservers(l.ctx, event); err != nil {
		l.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}
