// Package scriptloader fetches, orders and executes script modules.
//
// A Loader resolves manifests, each of which declares the namespaces it uses
// and registers modules when it runs. Modules are fetched once requested and
// executed lazily, exactly once, on first use, after every module they depend
// on has executed.
//
// Loader state is owned by the goroutine that calls Wait: fetches run in the
// background, but their completions and every callback run on that goroutine.
// The Loader's methods must be called from it as well, either directly or from
// inside callbacks and scripts.
package scriptloader

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"

	"github.com/GoCodeAlone/scriptloader/fetch"
	"github.com/GoCodeAlone/scriptloader/sandbox"
	"github.com/dop251/goja"
)

// Loader owns the module and manifest registries of one script environment.
type Loader struct {
	cfg      *Config
	logger   Logger
	fetcher  fetch.Fetcher
	parser   DependencyParser
	loop     *Loop
	sandbox  *sandbox.Sandbox
	registry *Registry
	resolver *Resolver

	runMode runMode
	handles map[*Module]*goja.Object
	using   *goja.Object

	observers  map[string]*observerRegistration
	observerMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(logger Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithFetcher replaces the default HTTP and filesystem fetcher.
func WithFetcher(f fetch.Fetcher) Option {
	return func(l *Loader) {
		l.fetcher = f
	}
}

// WithDependencyParser replaces the "using:" header parser used for manifests.
func WithDependencyParser(p DependencyParser) Option {
	return func(l *Loader) {
		l.parser = p
	}
}

// WithContext sets the context that background fetches observe.
func WithContext(ctx context.Context) Option {
	return func(l *Loader) {
		l.ctx = ctx
	}
}

// New creates a Loader. A nil cfg uses DefaultConfig.
func New(cfg *Config, opts ...Option) (*Loader, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Loader{
		cfg:       cfg,
		registry:  NewRegistry(),
		handles:   make(map[*Module]*goja.Object),
		observers: make(map[string]*observerRegistration),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = NewSlogLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	}
	if l.fetcher == nil {
		l.fetcher = defaultFetcher(cfg)
	}
	if l.parser == nil {
		l.parser = UsingHeaderParser{}
	}

	l.ctx, l.cancel = context.WithCancel(l.ctx)
	l.loop = NewLoop(l.ctx)
	l.sandbox = sandbox.New(cfg.RootNamespace)
	l.resolver = newResolver(l)
	if err := l.installBindings(); err != nil {
		l.cancel()
		return nil, err
	}
	return l, nil
}

func defaultFetcher(cfg *Config) fetch.Fetcher {
	remote := fetch.NewHTTP(
		fetch.WithTimeout(cfg.FetchTimeout),
		fetch.WithMaxRetries(cfg.MaxRetries),
		fetch.WithBaseDelay(cfg.RetryDelay),
	)
	return fetch.NewRouter(fetch.NewCircuitBreaker(remote, int64(cfg.BreakerThreshold)), fetch.NewDir(""))
}

// Config returns the loader's configuration.
func (l *Loader) Config() *Config {
	return l.cfg
}

// Logger returns the loader's logger.
func (l *Loader) Logger() Logger {
	return l.logger
}

// Sandbox returns the script engine modules execute in.
func (l *Loader) Sandbox() *sandbox.Sandbox {
	return l.sandbox
}

// Loop returns the loader's event loop.
func (l *Loader) Loop() *Loop {
	return l.loop
}

// Wait processes fetch completions and callbacks until nothing is pending.
// It returns every error raised meanwhile: execution and validation
// failures, unhandled fetch failures and failures of required modules.
func (l *Loader) Wait(ctx context.Context) error {
	return l.loop.Wait(ctx)
}

// Close cancels in-flight fetches.
func (l *Loader) Close() error {
	l.cancel()
	return nil
}

// Module looks up a registered module by full name.
func (l *Loader) Module(fullName string) (*Module, bool) {
	return l.registry.Module(l.cfg.TranslateModuleTypeName(fullName))
}

// Modules returns every registered module sorted by full name.
func (l *Loader) Modules() []*Module {
	return l.registry.Modules()
}

// Manifest looks up a resolved manifest by path.
func (l *Loader) Manifest(path string) (*Manifest, bool) {
	p, err := l.resolver.canonicalPath(path)
	if err != nil {
		return nil, false
	}
	return l.registry.Manifest(p)
}

// Manifests returns every resolved manifest sorted by path.
func (l *Loader) Manifests() []*Manifest {
	return l.registry.Manifests()
}

// ResolveManifest returns the manifest at path, fetching it and its
// declared dependencies on first resolution. An empty path resolves the
// root manifest.
func (l *Loader) ResolveManifest(path string) (*Manifest, error) {
	return l.resolver.Resolve(path)
}

// onTransition is installed as every request's status hook.
func (l *Loader) onTransition(r *Request, from, to Status) {
	l.logger.Debug("Resource status changed", "kind", r.kind, "resource", r.name, "url", r.url, "from", from, "to", to)
	data := StatusEventData{Kind: r.kind, Name: r.name, URL: r.url, From: from.String(), To: to.String()}
	l.emit(EventTypeResourceStatus, data)
	if to != StatusError {
		return
	}

	data.Error = errString(r.err)
	l.emit(EventTypeResourceFailed, data)
	if r.kind != kindModule {
		return
	}
	m, ok := l.registry.Module(r.name)
	if !ok {
		return
	}
	var scriptErr *ScriptError
	if !errors.As(r.err, &scriptErr) {
		l.logger.Warn("Module failed", "module", r.name, "url", r.url, "error", r.err)
	}
	if m.required {
		l.loop.Raise(moduleErr(r.name, ErrRequiredModuleFailed, r.err))
	}
}

func (l *Loader) newRequest(kind, name, url string) *Request {
	r := NewRequest(l.loop, l.fetcher, kind, name, url)
	r.hook = l.onTransition
	return r
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Registry holds one record per module full name and per manifest path.
type Registry struct {
	modules   map[string]*Module
	manifests map[string]*Manifest
	locations map[string]*Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules:   make(map[string]*Module),
		manifests: make(map[string]*Manifest),
		locations: make(map[string]*Module),
	}
}

func (r *Registry) Module(fullName string) (*Module, bool) {
	m, ok := r.modules[fullName]
	return m, ok
}

func (r *Registry) Manifest(path string) (*Manifest, bool) {
	m, ok := r.manifests[path]
	return m, ok
}

// Modules returns every module sorted by full name.
func (r *Registry) Modules() []*Module {
	out := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].fullName < out[j].fullName })
	return out
}

// Manifests returns every manifest sorted by path.
func (r *Registry) Manifests() []*Manifest {
	out := make([]*Manifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// claim records url as belonging to m, failing if another module owns it.
func (r *Registry) claim(url string, m *Module) *Module {
	if owner, ok := r.locations[url]; ok && owner != m {
		return owner
	}
	r.locations[url] = m
	return nil
}
