package scriptloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoCodeAlone/scriptloader/fetch"
)

// failMode decides whether a failure is also raised to the loop.
type failMode int

const (
	// failCascade is used for dependents of a failed request; the root cause is raised elsewhere.
	failCascade failMode = iota
	// failUnhandled raises only when nobody attached a Catch callback.
	failUnhandled
	// failAlways raises regardless of handlers; used for validation and execution failures.
	failAlways
)

// Request is one fetchable resource with dependency gating and chained
// callbacks. Every method must be called from the goroutine draining the
// request's Loop.
type Request struct {
	loop        *Loop
	fetcher     fetch.Fetcher
	hook        func(r *Request, from, to Status)
	beforeStart func(r *Request)

	kind     string
	name     string
	url      string
	fallback string

	status      Status
	payload     []byte
	transformed string
	err         error
	customWait  bool

	parents    []*Request
	dependents []*Request

	onData     []func(*Request) error
	onReady    []func(*Request) error
	onProgress []func(*Request)
	onError    []func(*Request)
	onDone     []func(*Request)

	dataFired  bool
	readyFired bool
	done       bool
}

// NewRequest creates a NotLoaded request for url.
func NewRequest(loop *Loop, fetcher fetch.Fetcher, kind, name, url string) *Request {
	return &Request{
		loop:    loop,
		fetcher: fetcher,
		kind:    kind,
		name:    name,
		url:     url,
	}
}

func (r *Request) Kind() string               { return r.kind }
func (r *Request) Name() string               { return r.name }
func (r *Request) URL() string                { return r.url }
func (r *Request) Status() Status             { return r.status }
func (r *Request) Payload() []byte            { return r.payload }
func (r *Request) TransformedPayload() string { return r.transformed }
func (r *Request) Err() error                 { return r.err }

// SetTransformedPayload replaces the text that will be executed.
func (r *Request) SetTransformedPayload(s string) {
	r.transformed = s
}

// Parents returns the requests this one waits on.
func (r *Request) Parents() []*Request {
	return append([]*Request(nil), r.parents...)
}

// Dependents returns the requests waiting on this one.
func (r *Request) Dependents() []*Request {
	return append([]*Request(nil), r.dependents...)
}

// Start issues the fetch once all prerequisites are ready. Calling it again is a no-op.
func (r *Request) Start() *Request {
	if r.status != StatusNotLoaded {
		return r
	}
	if r.beforeStart != nil {
		r.beforeStart(r)
	}
	r.setStatus(StatusRequested)
	for _, p := range r.parents {
		p.Start()
	}
	r.advance()
	return r
}

// Then registers a callback fired when the payload arrives, before readiness
// gating. A returned error fails the request.
func (r *Request) Then(fn func(*Request) error) *Request {
	r.onData = append(r.onData, fn)
	if r.dataFired && r.status != StatusError {
		if err := fn(r); err != nil {
			r.fail(err, failAlways)
		}
	}
	return r
}

// Ready registers a callback fired once the request and all its prerequisites
// are ready. A returned error fails the request.
func (r *Request) Ready(fn func(*Request) error) *Request {
	r.onReady = append(r.onReady, fn)
	if r.readyFired && r.status != StatusError {
		if err := fn(r); err != nil {
			r.fail(err, failAlways)
		}
	}
	return r
}

// While registers a callback fired when the transfer begins.
func (r *Request) While(fn func(*Request)) *Request {
	r.onProgress = append(r.onProgress, fn)
	if r.status == StatusInProgress {
		fn(r)
	}
	return r
}

// Catch registers a callback fired when the request fails.
func (r *Request) Catch(fn func(*Request)) *Request {
	r.onError = append(r.onError, fn)
	if r.status == StatusError {
		fn(r)
	}
	return r
}

// Finally registers a callback fired once the request is ready or failed.
func (r *Request) Finally(fn func(*Request)) *Request {
	r.onDone = append(r.onDone, fn)
	if r.done {
		fn(r)
	}
	return r
}

// Include makes dependent wait for r to become ready.
func (r *Request) Include(dependent *Request) error {
	if dependent == nil {
		return fmt.Errorf("%w: nil dependent of %s", ErrNilDependency, r.name)
	}
	if dependent == r || r.dependsOn(dependent) {
		return fmt.Errorf("%w: %s -> %s", ErrCircularDependency, dependent.name, r.name)
	}
	for _, d := range r.dependents {
		if d == dependent {
			return nil
		}
	}
	r.dependents = append(r.dependents, dependent)
	dependent.parents = append(dependent.parents, r)

	switch {
	case r.status == StatusError:
		dependent.fail(fmt.Errorf("%w: %s: %w", ErrDependencyFailed, r.name, r.err), failCascade)
	case dependent.status != StatusNotLoaded && dependent.status != StatusError:
		r.Start()
	}
	return nil
}

// dependsOn reports whether r transitively waits on target.
func (r *Request) dependsOn(target *Request) bool {
	seen := make(map[*Request]bool)
	var visit func(*Request) bool
	visit = func(n *Request) bool {
		for _, p := range n.parents {
			if p == target {
				return true
			}
			if seen[p] {
				continue
			}
			seen[p] = true
			if visit(p) {
				return true
			}
		}
		return false
	}
	return visit(r)
}

// SetCustomWait holds the request at Loaded until Continue is called.
func (r *Request) SetCustomWait(wait bool) {
	r.customWait = wait
	if !wait {
		r.advance()
	}
}

// Continue clears a custom wait.
func (r *Request) Continue() {
	r.SetCustomWait(false)
}

func (r *Request) advance() {
	switch r.status {
	case StatusRequested, StatusWaiting:
		if failed := r.failedParent(); failed != nil {
			r.fail(fmt.Errorf("%w: %s: %w", ErrDependencyFailed, failed.name, failed.err), failCascade)
			return
		}
		if !r.parentsReady() {
			r.setStatus(StatusWaiting)
			return
		}
		r.transfer()
	case StatusLoaded:
		if failed := r.failedParent(); failed != nil {
			r.fail(fmt.Errorf("%w: %s: %w", ErrDependencyFailed, failed.name, failed.err), failCascade)
			return
		}
		if r.customWait || !r.parentsReady() {
			return
		}
		r.markReady()
	}
}

func (r *Request) failedParent() *Request {
	for _, p := range r.parents {
		if p.status == StatusError {
			return p
		}
	}
	return nil
}

func (r *Request) parentsReady() bool {
	for _, p := range r.parents {
		if !p.status.IsReady() {
			return false
		}
	}
	return true
}

func (r *Request) transfer() {
	r.setStatus(StatusInProgress)
	for _, fn := range r.onProgress {
		fn(r)
	}
	url := r.url
	fetcher := r.fetcher
	r.loop.Go(func(ctx context.Context) ([]byte, error) {
		return fetcher.Fetch(ctx, url)
	}, r.complete)
}

func (r *Request) complete(payload []byte, err error) {
	if r.status != StatusInProgress {
		return
	}
	if err != nil {
		if errors.Is(err, fetch.ErrNotFound) && r.fallback != "" && r.fallback != r.url {
			r.url, r.fallback = r.fallback, ""
			url := r.url
			fetcher := r.fetcher
			r.loop.Go(func(ctx context.Context) ([]byte, error) {
				return fetcher.Fetch(ctx, url)
			}, r.complete)
			return
		}
		r.fail(fmt.Errorf("fetching %s %s: %w", r.kind, r.name, err), failUnhandled)
		return
	}

	r.payload = payload
	r.transformed = string(payload)
	r.setStatus(StatusLoaded)
	r.dataFired = true
	for _, fn := range r.onData {
		if err := fn(r); err != nil {
			r.fail(err, failAlways)
			return
		}
		if r.status == StatusError {
			return
		}
	}
	r.advance()
}

func (r *Request) markReady() {
	r.setStatus(StatusReady)
	r.readyFired = true
	for _, fn := range r.onReady {
		if err := fn(r); err != nil {
			r.fail(err, failAlways)
			return
		}
		if r.status == StatusError {
			return
		}
	}
	r.finish()
	for _, d := range r.dependents {
		d.advance()
	}
}

// markExecuted moves a Ready request to Executed.
func (r *Request) markExecuted() bool {
	if r.status != StatusReady {
		return false
	}
	r.setStatus(StatusExecuted)
	return true
}

func (r *Request) fail(err error, mode failMode) {
	if r.status == StatusError {
		return
	}
	r.err = err
	r.setStatus(StatusError)
	handled := len(r.onError) > 0
	for _, fn := range r.onError {
		fn(r)
	}
	if mode == failAlways || (mode == failUnhandled && !handled) {
		r.loop.Raise(err)
	}
	r.finish()
	for _, d := range r.dependents {
		if d.status == StatusExecuted {
			continue
		}
		d.fail(fmt.Errorf("%w: %s: %w", ErrDependencyFailed, r.name, err), failCascade)
	}
}

func (r *Request) finish() {
	if r.done {
		return
	}
	r.done = true
	for _, fn := range r.onDone {
		fn(r)
	}
}

func (r *Request) setStatus(to Status) {
	from := r.status
	if to == from || (to != StatusError && to < from) {
		return
	}
	r.status = to
	if r.hook != nil {
		r.hook(r, from, to)
	}
}
