package scriptloader

import (
	"fmt"
	"path"
	"strings"

	"github.com/GoCodeAlone/scriptloader/sandbox"
)

// Manifest is the record and handle of one resolved manifest script.
type Manifest struct {
	loader       *Loader
	req          *Request
	path         string
	dependencies []string
	children     []*Manifest
	accessors    sandbox.Accessors
}

// Path returns the canonical manifest path.
func (m *Manifest) Path() string { return m.path }

// URL returns the location the manifest is fetched from.
func (m *Manifest) URL() string { return m.req.URL() }

// Status returns the manifest's lifecycle state.
func (m *Manifest) Status() Status { return m.req.Status() }

// Err returns the failure that moved the manifest to StatusError.
func (m *Manifest) Err() error { return m.req.Err() }

// Request exposes the underlying resource request.
func (m *Manifest) Request() *Request { return m.req }

// Dependencies returns the namespace names declared by the manifest.
func (m *Manifest) Dependencies() []string {
	return append([]string(nil), m.dependencies...)
}

// Children returns the manifests resolved from the declared dependencies.
func (m *Manifest) Children() []*Manifest {
	return append([]*Manifest(nil), m.children...)
}

// RawSource returns the fetched manifest text.
func (m *Manifest) RawSource() string { return string(m.req.Payload()) }

// TransformedSource returns the text that is executed.
func (m *Manifest) TransformedSource() string { return m.req.TransformedPayload() }

// Get reads a variable from the manifest's execution scope.
func (m *Manifest) Get(name string) (any, error) {
	if m.accessors == nil {
		return nil, moduleErr(m.path, ErrModuleNotExecuted, nil)
	}
	return m.accessors.Get(name)
}

// Ready registers a callback fired after the manifest and everything it
// uses are ready, before its script runs.
func (m *Manifest) Ready(fn func(*Manifest) error) *Manifest {
	m.req.Ready(func(*Request) error { return fn(m) })
	return m
}

// Then registers a callback fired when the manifest source arrives.
func (m *Manifest) Then(fn func(*Manifest) error) *Manifest {
	m.req.Then(func(*Request) error { return fn(m) })
	return m
}

// Catch registers a callback fired when the manifest fails.
func (m *Manifest) Catch(fn func(*Manifest, error)) *Manifest {
	m.req.Catch(func(r *Request) { fn(m, r.Err()) })
	return m
}

// Finally registers a callback fired once the manifest is ready or failed.
func (m *Manifest) Finally(fn func(*Manifest)) *Manifest {
	m.req.Finally(func(*Request) { fn(m) })
	return m
}

// Resolver maps manifest paths to singleton records and wires their
// declared dependencies.
type Resolver struct {
	loader *Loader
}

func newResolver(l *Loader) *Resolver {
	return &Resolver{loader: l}
}

// canonicalPath normalizes p: empty means the root manifest, a folder gains
// the manifest file name, and the script extension is appended.
func (r *Resolver) canonicalPath(p string) (string, error) {
	cfg := r.loader.cfg
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidManifestPath, p)
		}
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" || p == "." {
		return cfg.ManifestName + cfg.ScriptExtension, nil
	}
	p = strings.TrimSuffix(p, cfg.ScriptExtension)
	if path.Base(p) != cfg.ManifestName {
		p += "/" + cfg.ManifestName
	}
	return p + cfg.ScriptExtension, nil
}

// Resolve returns the manifest for p, creating and starting it on first use.
func (r *Resolver) Resolve(p string) (*Manifest, error) {
	l := r.loader
	canonical, err := r.canonicalPath(p)
	if err != nil {
		return nil, err
	}
	if m, ok := l.registry.Manifest(canonical); ok {
		return m, nil
	}

	m := &Manifest{loader: l, path: canonical}
	m.req = l.newRequest(kindManifest, canonical, joinURL(l.cfg.BaseURL, canonical))
	m.req.Then(func(*Request) error { return r.discover(m) })
	m.req.Ready(func(*Request) error { return r.run(m) })
	l.registry.manifests[canonical] = m
	l.logger.Debug("Manifest resolved", "manifest", canonical, "url", m.req.URL())

	m.req.Start()
	return m, nil
}

// discover parses the declared dependencies and makes m wait on each
// dependency's folder manifest.
func (r *Resolver) discover(m *Manifest) error {
	l := r.loader
	deps, script, err := l.parser.Parse(m.req.TransformedPayload())
	if err != nil {
		return moduleErr(m.path, ErrInvalidSource, err)
	}
	m.dependencies = deps
	m.req.SetTransformedPayload(script)

	for _, dep := range deps {
		folder := l.cfg.NamespaceToFolder(dep)
		if folder == "" {
			continue
		}
		child, err := r.Resolve(folder)
		if err != nil {
			return moduleErr(m.path, ErrDependencyFailed, err)
		}
		if child == m || containsManifest(m.children, child) {
			continue
		}
		if err := child.req.Include(m.req); err != nil {
			return moduleErr(m.path, ErrDependencyFailed, err)
		}
		m.children = append(m.children, child)
		l.logger.Debug("Manifest dependency linked", "manifest", m.path, "uses", dep, "dependency", child.path)
	}
	return nil
}

// run validates and executes the manifest script once it is ready.
func (r *Resolver) run(m *Manifest) error {
	l := r.loader
	source := m.req.TransformedPayload()
	if err := l.sandbox.Validate(m.req.URL(), source); err != nil {
		l.logScriptError("Manifest source is invalid", m.path, err)
		return moduleErr(m.path, ErrInvalidSource, err)
	}

	info := map[string]any{
		"path":         m.path,
		"url":          m.req.URL(),
		"dependencies": m.Dependencies(),
	}
	acc, err := l.sandbox.RunIsolated(m.req.URL(), source,
		sandbox.Param{Name: "manifest", Value: info},
		sandbox.Param{Name: "root", Value: l.sandbox.Namespaces().Root()},
	)
	if err != nil {
		l.logScriptError("Manifest execution failed", m.path, err)
		return moduleErr(m.path, ErrExecutionFailed, err)
	}

	m.accessors = acc
	m.req.markExecuted()
	l.logger.Debug("Manifest executed", "manifest", m.path)
	l.emit(EventTypeManifestExecuted, map[string]any{"path": m.path, "dependencies": m.dependencies})
	return nil
}

func containsManifest(list []*Manifest, m *Manifest) bool {
	for _, x := range list {
		if x == m {
			return true
		}
	}
	return false
}
