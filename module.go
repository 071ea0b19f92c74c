package scriptloader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/scriptloader/sandbox"
)

const (
	kindModule   = "module"
	kindManifest = "manifest"
)

// Module is the record and handle of one named, lazily executed script.
type Module struct {
	loader *Loader
	req    *Request

	fullName       string
	nonMinifiedURL string
	minifiedURL    string
	globalScope    bool
	required       bool
	dependencies   []*Module

	accessors sandbox.Accessors
	executing bool
}

// FullName returns the namespace-qualified name of the module.
func (m *Module) FullName() string { return m.fullName }

// URL returns the location the module is, or will be, fetched from.
func (m *Module) URL() string { return m.req.URL() }

// NonMinifiedURL returns the debug source location.
func (m *Module) NonMinifiedURL() string { return m.nonMinifiedURL }

// MinifiedURL returns the release source location.
func (m *Module) MinifiedURL() string { return m.minifiedURL }

// Status returns the module's lifecycle state.
func (m *Module) Status() Status { return m.req.Status() }

// Err returns the failure that moved the module to StatusError.
func (m *Module) Err() error { return m.req.Err() }

// Request exposes the underlying resource request.
func (m *Module) Request() *Request { return m.req }

// GlobalScope reports whether the module body runs in the global scope.
func (m *Module) GlobalScope() bool { return m.globalScope }

// Required reports whether a failure of this module is fatal to the host.
func (m *Module) Required() bool { return m.required }

// SetRequired marks the module's failure as fatal; it is raised from Wait.
func (m *Module) SetRequired(required bool) *Module {
	m.required = required
	return m
}

// Dependencies returns the modules that execute before this one.
func (m *Module) Dependencies() []*Module {
	return append([]*Module(nil), m.dependencies...)
}

// SetCustomWait holds the module at Loaded until Continue is called.
func (m *Module) SetCustomWait(wait bool) *Module {
	m.req.SetCustomWait(wait)
	return m
}

// Continue releases a custom wait.
func (m *Module) Continue() *Module {
	m.req.Continue()
	return m
}

// Exports returns a snapshot of the module's export namespace.
func (m *Module) Exports() map[string]any {
	return m.loader.sandbox.Namespaces().Values(m.fullName)
}

// Get reads a variable from the module's execution scope.
func (m *Module) Get(name string) (any, error) {
	if m.accessors == nil {
		return nil, moduleErr(m.fullName, ErrModuleNotExecuted, nil)
	}
	return m.accessors.Get(name)
}

// Set writes a variable in the module's execution scope.
func (m *Module) Set(name string, value any) (any, error) {
	if m.accessors == nil {
		return nil, moduleErr(m.fullName, ErrModuleNotExecuted, nil)
	}
	return m.accessors.Set(name, value)
}

// Start requests the module's fetch. It only has an effect while the module
// is NotLoaded.
func (m *Module) Start() *Module {
	if m.req.Status() != StatusNotLoaded || m.accessors != nil {
		return m
	}
	m.req.Start()
	return m
}

// selectURL picks the debug or release location when the fetch starts.
func (m *Module) selectURL(r *Request) {
	if m.loader.cfg.Debug || m.minifiedURL == "" || m.minifiedURL == m.nonMinifiedURL {
		r.url, r.fallback = m.nonMinifiedURL, ""
		return
	}
	r.url, r.fallback = m.minifiedURL, m.nonMinifiedURL
}

// Ensure executes the module now if it can be, without callbacks. It fails
// with a usage error naming the blocking condition when the module is not
// yet executable; a Waiting or Loaded module, or a Ready one whose
// dependencies are still loading, yields ErrModuleWaiting instead of
// executing early.
func (m *Module) Ensure() error {
	switch m.req.Status() {
	case StatusError:
		return moduleErr(m.fullName, ErrModuleFailed, m.req.Err())
	case StatusNotLoaded:
		return moduleErr(m.fullName, ErrModuleNotRequested, nil)
	case StatusRequested, StatusInProgress:
		return moduleErr(m.fullName, ErrModuleStillLoading, nil)
	case StatusWaiting, StatusLoaded:
		return moduleErr(m.fullName, ErrModuleWaiting, nil)
	case StatusReady:
		return m.execute()
	default:
		return nil
	}
}

// Call uses the module: onReady runs once the module has executed, onError
// if it fails. A module that was never requested is started. With no
// callbacks Call behaves like Ensure.
func (m *Module) Call(onReady func(*Module) error, onError func(*Module, error)) error {
	if onReady == nil && onError == nil {
		return m.Ensure()
	}
	if m.req.Status() == StatusError {
		return moduleErr(m.fullName, ErrModuleFailed, m.req.Err())
	}

	if onError != nil {
		m.req.Catch(func(r *Request) {
			onError(m, r.Err())
		})
	}
	m.req.Ready(func(*Request) error {
		_ = m.whenExecutable(func() {
			if onReady == nil {
				return
			}
			if err := onReady(m); err != nil {
				m.req.loop.Raise(moduleErr(m.fullName, ErrExecutionFailed, err))
			}
		})
		return nil
	})
	m.Start()
	return nil
}

// whenExecutable executes m and then calls fn. While a prerequisite is still
// loading, the attempt is repeated once that prerequisite becomes ready.
// Execution failures are reported through the module's request.
func (m *Module) whenExecutable(fn func()) error {
	err := m.execute()
	if errors.Is(err, ErrModuleWaiting) {
		if p := m.blocker(); p != nil {
			p.Ready(func(*Request) error {
				_ = m.whenExecutable(fn)
				return nil
			})
		}
		return nil
	}
	if err != nil {
		return err
	}
	if m.req.Status() == StatusExecuted {
		fn()
	}
	return nil
}

// blocker returns a prerequisite of m, direct or through a ready dependency,
// that has neither become ready nor failed.
func (m *Module) blocker() *Request {
	for _, p := range m.req.parents {
		if st := p.Status(); st != StatusError && !st.IsReady() {
			return p
		}
	}
	for _, dep := range m.dependencies {
		if dep.Status() != StatusReady {
			continue
		}
		if p := dep.blocker(); p != nil {
			return p
		}
	}
	return nil
}

// Then registers a callback fired when the module's source arrives.
func (m *Module) Then(fn func(*Module) error) *Module {
	m.req.Then(func(*Request) error { return fn(m) })
	return m
}

// Ready registers a callback fired when the module becomes ready, before it executes.
func (m *Module) Ready(fn func(*Module) error) *Module {
	m.req.Ready(func(*Request) error { return fn(m) })
	return m
}

// While registers a callback fired when the module's transfer begins.
func (m *Module) While(fn func(*Module)) *Module {
	m.req.While(func(*Request) { fn(m) })
	return m
}

// Catch registers a callback fired when the module fails.
func (m *Module) Catch(fn func(*Module, error)) *Module {
	m.req.Catch(func(r *Request) { fn(m, r.Err()) })
	return m
}

// Finally registers a callback fired once the module is ready or failed.
func (m *Module) Finally(fn func(*Module)) *Module {
	m.req.Finally(func(*Request) { fn(m) })
	return m
}

// Require makes the module also wait on an extra resource, which must
// succeed for the module to become ready.
func (m *Module) Require(r *Request) (*Module, error) {
	if err := r.Include(m.req); err != nil {
		return m, err
	}
	return m, nil
}

// execute runs the module body once, after every dependency has run. It is
// a no-op unless the module is Ready and has not executed, and fails with
// ErrModuleWaiting while a prerequisite added after the module became ready
// is still loading.
func (m *Module) execute() error {
	if m.executing || m.req.Status() != StatusReady || m.accessors != nil {
		return nil
	}
	if p := m.blocker(); p != nil {
		return moduleErr(m.fullName, ErrModuleWaiting, fmt.Errorf("%s is %s", p.Name(), p.Status()))
	}
	m.executing = true
	defer func() { m.executing = false }()

	for _, dep := range m.dependencies {
		var err error
		switch dep.Status() {
		case StatusError:
			err = dep.Err()
		case StatusReady:
			err = dep.execute()
		}
		if err != nil {
			cause := moduleErr(m.fullName, ErrDependencyFailed, err)
			m.req.fail(cause, failCascade)
			return cause
		}
	}
	if m.req.Status() != StatusReady {
		return nil
	}

	l := m.loader
	var (
		acc sandbox.Accessors
		err error
	)
	if m.globalScope {
		acc, err = l.sandbox.RunGlobal(m.req.URL(), m.req.TransformedPayload())
	} else {
		acc, err = l.sandbox.RunIsolated(m.req.URL(), m.req.TransformedPayload(),
			sandbox.Param{Name: "exports", Value: l.sandbox.Namespaces().Ensure(m.fullName)},
			sandbox.Param{Name: "root", Value: l.sandbox.Namespaces().Root()},
		)
	}
	if err != nil {
		wrapped := moduleErr(m.fullName, ErrExecutionFailed, err)
		l.logScriptError("Module execution failed", m.fullName, err)
		m.req.fail(wrapped, failAlways)
		return wrapped
	}

	m.accessors = acc
	m.req.markExecuted()
	l.logger.Debug("Module executed", "module", m.fullName, "url", m.req.URL(), "globalScope", m.globalScope)
	l.emit(EventTypeModuleExecuted, map[string]any{"name": m.fullName, "url": m.req.URL()})
	return nil
}

func (l *Loader) logScriptError(msg, name string, err error) {
	var scriptErr *ScriptError
	if errors.As(err, &scriptErr) {
		l.logger.Error(msg, "resource", name, "error", scriptErr.Error(), "excerpt", scriptErr.Excerpt())
		return
	}
	l.logger.Error(msg, "resource", name, "error", err)
}

// RegisterModule declares a module, or returns the existing record for its
// full name. fullTypeName and fileBasePath may embed {nonMinified|minified}
// tokens; an empty fileBasePath uses the configured modules folder.
// Each dependency gates the module's readiness and executes before it.
func (l *Loader) RegisterModule(dependencies []*Module, fullTypeName, fileBasePath string, requiresGlobalScope bool) (*Module, error) {
	fullTypeName = strings.TrimSpace(fullTypeName)
	if fullTypeName == "" {
		return nil, ErrEmptyTypeName
	}
	for i, dep := range dependencies {
		if dep == nil {
			return nil, fmt.Errorf("%w: index %d of %s", ErrNilDependency, i, fullTypeName)
		}
	}

	name, minName, nameToken := splitVariants(fullTypeName)
	name = l.cfg.TranslateModuleTypeName(name)
	minName = l.cfg.TranslateModuleTypeName(minName)
	if !identPathRe.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTypeName, fullTypeName)
	}
	base, minBase, baseToken := splitVariants(strings.TrimSpace(fileBasePath))
	plainURL, minURL := l.cfg.modulePaths(name, minName, nameToken, base, minBase, baseToken)

	m, exists := l.registry.Module(name)
	if exists {
		for _, dep := range dependencies {
			if dep == m || dep.req.dependsOn(m.req) {
				return nil, moduleErr(name, ErrDependencyFailed,
					fmt.Errorf("%w: %s -> %s", ErrCircularDependency, name, dep.fullName))
			}
		}
		if m.nonMinifiedURL != plainURL || m.minifiedURL != minURL {
			l.logger.Debug("Module re-registered with different paths, keeping originals",
				"module", name, "url", m.nonMinifiedURL, "ignored", plainURL)
		}
		if requiresGlobalScope {
			m.globalScope = true
		}
	} else {
		m = &Module{
			loader:         l,
			fullName:       name,
			nonMinifiedURL: plainURL,
			minifiedURL:    minURL,
			globalScope:    requiresGlobalScope,
		}
		if owner := l.registry.claim(plainURL, m); owner != nil {
			return nil, moduleErr(name, ErrDuplicateLocation, fmt.Errorf("%s is claimed by %s", plainURL, owner.fullName))
		}
		if owner := l.registry.claim(minURL, m); owner != nil {
			delete(l.registry.locations, plainURL)
			return nil, moduleErr(name, ErrDuplicateLocation, fmt.Errorf("%s is claimed by %s", minURL, owner.fullName))
		}
		m.req = l.newRequest(kindModule, name, plainURL)
		m.req.beforeStart = m.selectURL
		m.req.Then(m.validate)
		l.registry.modules[name] = m
		l.logger.Debug("Module registered", "module", name, "url", plainURL, "minifiedURL", minURL, "globalScope", requiresGlobalScope)
		l.emit(EventTypeModuleRegistered, map[string]any{"name": name, "url": plainURL, "minifiedURL": minURL})
	}

	for _, dep := range dependencies {
		if err := dep.req.Include(m.req); err != nil {
			return m, moduleErr(name, ErrDependencyFailed, err)
		}
		if !containsModule(m.dependencies, dep) {
			m.dependencies = append(m.dependencies, dep)
		}
	}

	if !exists && isAppName(name) {
		m.req.Ready(func(*Request) error { return l.tryRunApp() })
		if err := l.tryRunApp(); err != nil {
			return m, err
		}
	}
	return m, nil
}

// validate parses the module source as soon as it arrives.
func (m *Module) validate(r *Request) error {
	if err := m.loader.sandbox.Validate(r.URL(), r.TransformedPayload()); err != nil {
		m.loader.logScriptError("Module source is invalid", m.fullName, err)
		return moduleErr(m.fullName, ErrInvalidSource, err)
	}
	return nil
}

func containsModule(list []*Module, m *Module) bool {
	for _, x := range list {
		if x == m {
			return true
		}
	}
	return false
}
