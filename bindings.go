package scriptloader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// installBindings exposes the loader to scripts:
//
//	module(deps, fullTypeName, basePath, globalScope) returns a module handle
//	using.NS.Widget(onReady, onError) calls a registered handle
//	root is the root namespace object
//	runApp() requests the application run
func (l *Loader) installBindings() error {
	vm := l.sandbox.Runtime()
	l.using = vm.NewObject()

	bindings := map[string]any{
		"module": l.jsRegisterModule,
		"using":  l.using,
		"root":   l.sandbox.Namespaces().Root(),
		"runApp": func(goja.FunctionCall) goja.Value {
			if err := l.RunApp(); err != nil {
				panic(vm.NewGoError(err))
			}
			return goja.Undefined()
		},
	}
	for name, value := range bindings {
		if err := l.sandbox.Define(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) jsRegisterModule(call goja.FunctionCall) goja.Value {
	vm := l.sandbox.Runtime()

	deps, err := l.jsDependencies(call.Argument(0))
	if err != nil {
		panic(vm.NewGoError(err))
	}
	name := optionalString(call.Argument(1))
	base := optionalString(call.Argument(2))
	global := call.Argument(3).ToBoolean()

	m, err := l.RegisterModule(deps, name, base, global)
	if err != nil {
		panic(vm.NewGoError(err))
	}
	return l.handle(m)
}

func (l *Loader) jsDependencies(v goja.Value) ([]*Module, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	vm := l.sandbox.Runtime()
	_, isName := v.Export().(string)
	if _, isHandle := goja.AssertFunction(v); isName || isHandle {
		m, err := l.moduleFromValue(v)
		if err != nil {
			return nil, err
		}
		return []*Module{m}, nil
	}

	obj := v.ToObject(vm)
	n := int(obj.Get("length").ToInteger())
	deps := make([]*Module, 0, n)
	for i := 0; i < n; i++ {
		m, err := l.moduleFromValue(obj.Get(strconv.Itoa(i)))
		if err != nil {
			return nil, fmt.Errorf("dependency %d: %w", i, err)
		}
		deps = append(deps, m)
	}
	return deps, nil
}

// moduleFromValue accepts a handle returned by module() or a module name.
func (l *Loader) moduleFromValue(v goja.Value) (*Module, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, ErrNilDependency
	}
	name := v.String()
	if obj, ok := v.(*goja.Object); ok {
		if fullName := obj.Get("fullName"); fullName != nil && !goja.IsUndefined(fullName) {
			name = fullName.String()
		}
	}
	m, ok := l.Module(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return m, nil
}

// handle returns the callable script-side handle of m, publishing it under using.
func (l *Loader) handle(m *Module) *goja.Object {
	if h, ok := l.handles[m]; ok {
		return h
	}
	vm := l.sandbox.Runtime()
	exports := l.sandbox.Namespaces().Ensure(m.fullName)

	var h *goja.Object
	h = vm.ToValue(func(call goja.FunctionCall) goja.Value {
		var onReady func(*Module) error
		var onError func(*Module, error)
		if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
			onReady = func(*Module) error {
				_, err := fn(goja.Undefined(), exports)
				return err
			}
		}
		if fn, ok := goja.AssertFunction(call.Argument(1)); ok {
			onError = func(m *Module, cause error) {
				if _, err := fn(goja.Undefined(), vm.NewGoError(cause)); err != nil {
					l.logger.Error("Module error handler failed", "module", m.fullName, "error", err)
				}
			}
		}
		if err := m.Call(onReady, onError); err != nil {
			panic(vm.NewGoError(err))
		}
		return h
	}).(*goja.Object)

	_ = h.Set("fullName", m.fullName)
	_ = h.Set("url", m.nonMinifiedURL)
	_ = h.Set("exports", exports)
	_ = h.Set("status", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(int(m.Status()))
	})
	_ = h.Set("get", func(call goja.FunctionCall) goja.Value {
		v, err := m.Get(call.Argument(0).String())
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(v)
	})

	l.handles[m] = h
	l.publish(m.fullName, h)
	return h
}

// publish places h at using.<segments of fullName>, with the root namespace prefix removed.
func (l *Loader) publish(fullName string, h *goja.Object) {
	vm := l.sandbox.Runtime()
	name := strings.TrimPrefix(fullName, l.cfg.RootNamespace+".")
	segments := strings.Split(name, ".")

	cur := l.using
	for _, seg := range segments[:len(segments)-1] {
		next, ok := cur.Get(seg).(*goja.Object)
		if !ok {
			next = vm.NewObject()
			_ = cur.Set(seg, next)
		}
		cur = next
	}

	leaf := segments[len(segments)-1]
	if existing, ok := cur.Get(leaf).(*goja.Object); ok {
		for _, key := range existing.Keys() {
			if h.Get(key) == nil {
				_ = h.Set(key, existing.Get(key))
			}
		}
	}
	_ = cur.Set(leaf, h)
}

func optionalString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
