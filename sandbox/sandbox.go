// Package sandbox runs fetched script text on an embedded JavaScript engine.
//
// Two execution variants are offered. RunIsolated wraps the source in a
// function so its declarations stay local, and returns accessors that reach
// into that function scope afterwards. RunGlobal evaluates the source directly
// in the runtime's global scope and returns accessors bound to it.
//
// A Sandbox owns a single goja.Runtime and is not safe for concurrent use; the
// loader drives it from the goroutine that drains its event loop.
package sandbox

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
)

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// isolatedHeaderLines is the number of wrapper lines RunIsolated puts in
// front of the script source.
const isolatedHeaderLines = 1

// Accessors reads and writes variables of an executed script's scope.
type Accessors interface {
	Get(name string) (any, error)
	Set(name string, value any) (any, error)
}

// Param is a named argument passed to an isolated script wrapper.
type Param struct {
	Name  string
	Value any
}

// Sandbox executes scripts against one goja runtime.
type Sandbox struct {
	vm         *goja.Runtime
	namespaces *Namespaces
	global     *scopeAccessors
}

// New creates a sandbox whose root namespace object is bound globally as rootNamespace.
func New(rootNamespace string) *Sandbox {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	return &Sandbox{
		vm:         vm,
		namespaces: newNamespaces(vm, rootNamespace),
	}
}

// Runtime exposes the underlying engine for host bindings.
func (s *Sandbox) Runtime() *goja.Runtime {
	return s.vm
}

// Namespaces returns the per-resource storage registry.
func (s *Sandbox) Namespaces() *Namespaces {
	return s.namespaces
}

// Define binds a host value in the global scope.
func (s *Sandbox) Define(name string, value any) error {
	if err := s.vm.Set(name, value); err != nil {
		return fmt.Errorf("defining %s: %w", name, err)
	}
	return nil
}

// Validate parses source without running it.
func (s *Sandbox) Validate(name, source string) error {
	_, err := parser.ParseFile(nil, name, source, 0)
	if err == nil {
		return nil
	}

	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		return newScriptError(ErrSyntax, name, source, first.Message, first.Position.Line, first.Position.Column, err)
	}
	var single *parser.Error
	if errors.As(err, &single) {
		return newScriptError(ErrSyntax, name, source, single.Message, single.Position.Line, single.Position.Column, err)
	}
	return newScriptError(ErrSyntax, name, source, err.Error(), 0, 0, err)
}

// RunIsolated evaluates source inside a function receiving params, then
// returns accessors into that function's scope. A script that returns early
// yields nil accessors.
func (s *Sandbox) RunIsolated(name, source string, params ...Param) (Accessors, error) {
	names := make([]string, 0, len(params))
	args := make([]goja.Value, 0, len(params))
	for _, p := range params {
		if !identRe.MatchString(p.Name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidParam, p.Name)
		}
		names = append(names, p.Name)
		args = append(args, s.vm.ToValue(p.Value))
	}

	wrapped := "(function(" + strings.Join(names, ", ") + ") {\n" +
		source +
		"\n;return { get: function() { return eval(arguments[0]); }, set: function() { return eval(arguments[0] + ' = arguments[1]'); } };\n})"

	fnValue, err := s.vm.RunScript(name, wrapped)
	if err != nil {
		return nil, s.wrapError(name, source, isolatedHeaderLines, err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, newScriptError(ErrRuntime, name, source, ErrNotAFunction.Error(), 0, 0, ErrNotAFunction)
	}

	result, err := fn(goja.Undefined(), args...)
	if err != nil {
		return nil, s.wrapError(name, source, isolatedHeaderLines, err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, nil
	}
	acc, err := s.accessorsFrom(result.ToObject(s.vm))
	if err != nil {
		// The script returned its own value instead of reaching the accessor tail.
		return nil, nil
	}
	return acc, nil
}

// RunGlobal evaluates source directly in the global scope and returns the
// shared global accessors.
func (s *Sandbox) RunGlobal(name, source string) (Accessors, error) {
	if _, err := s.vm.RunScript(name, source); err != nil {
		return nil, s.wrapError(name, source, 0, err)
	}
	return s.Global()
}

// Global returns accessors bound to the runtime's global scope.
func (s *Sandbox) Global() (Accessors, error) {
	if s.global != nil {
		return s.global, nil
	}
	v, err := s.vm.RunString(`(function() {
  var g = (0, eval)("this");
  return {
    get: function(n) { return (0, eval)(n); },
    set: function(n, v) { g.__scriptloader_v = v; try { return (0, eval)(n + " = __scriptloader_v"); } finally { delete g.__scriptloader_v; } }
  };
})()`)
	if err != nil {
		return nil, fmt.Errorf("building global accessors: %w", err)
	}
	acc, err := s.accessorsFrom(v.ToObject(s.vm))
	if err != nil {
		return nil, err
	}
	s.global = acc
	return acc, nil
}

func (s *Sandbox) accessorsFrom(obj *goja.Object) (*scopeAccessors, error) {
	get, ok := goja.AssertFunction(obj.Get("get"))
	if !ok {
		return nil, fmt.Errorf("%w: get", ErrAccessorMissing)
	}
	set, ok := goja.AssertFunction(obj.Get("set"))
	if !ok {
		return nil, fmt.Errorf("%w: set", ErrAccessorMissing)
	}
	return &scopeAccessors{sandbox: s, get: get, set: set}, nil
}

// wrapError converts an engine error into a ScriptError positioned in
// source. headerLines is the number of lines the caller prepended to source
// before running it.
func (s *Sandbox) wrapError(name, source string, headerLines int, err error) error {
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		line, col := 0, 0
		if syntax.File != nil {
			pos := syntax.File.Position(syntax.Offset)
			line, col = sourcePosition(pos.Line, pos.Column, headerLines)
		}
		return newScriptError(ErrSyntax, name, source, syntax.Message, line, col, err)
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		cause := err
		if goErr := thrownGoError(ex); goErr != nil {
			cause = goErr
		}
		line, col := exceptionPosition(ex, name, headerLines)
		return newScriptError(ErrRuntime, name, source, exceptionMessage(ex), line, col, cause)
	}
	return newScriptError(ErrRuntime, name, source, err.Error(), 0, 0, err)
}

// exceptionPosition returns the position of the innermost stack frame that
// belongs to the script called name. Frames are rendered by the engine as
// "at [func (]name:line:column(pc)[)]".
func exceptionPosition(ex *goja.Exception, name string, headerLines int) (int, int) {
	prefix := name + ":"
	for _, frame := range strings.Split(ex.String(), "\n") {
		i := strings.LastIndex(frame, prefix)
		if !strings.HasPrefix(frame, "\tat ") || i < 0 {
			continue
		}
		var line, col int
		if _, err := fmt.Sscanf(frame[i+len(prefix):], "%d:%d", &line, &col); err != nil {
			continue
		}
		if line, col = sourcePosition(line, col, headerLines); line > 0 {
			return line, col
		}
	}
	return 0, 0
}

func sourcePosition(line, col, headerLines int) (int, int) {
	line -= headerLines
	if line < 1 {
		return 0, 0
	}
	return line, col
}

// exceptionMessage renders the thrown value without the engine's stack suffix.
func exceptionMessage(ex *goja.Exception) string {
	if v := ex.Value(); v != nil && !goja.IsUndefined(v) {
		return v.String()
	}
	return ex.Error()
}

// thrownGoError returns the Go error carried by an exception raised with
// Runtime.NewGoError, or nil.
func thrownGoError(ex *goja.Exception) error {
	obj, ok := ex.Value().(*goja.Object)
	if !ok {
		return nil
	}
	if v := obj.Get("value"); v != nil {
		if goErr, ok := v.Export().(error); ok {
			return goErr
		}
	}
	return nil
}

type scopeAccessors struct {
	sandbox *Sandbox
	get     goja.Callable
	set     goja.Callable
}

// Get and Set only accept identifiers; the name is evaluated inside the script scope.
func (a *scopeAccessors) Get(name string) (any, error) {
	if !identRe.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	v, err := a.get(goja.Undefined(), a.sandbox.vm.ToValue(name))
	if err != nil {
		return nil, a.sandbox.wrapError(name, name, 0, err)
	}
	return export(v), nil
}

func (a *scopeAccessors) Set(name string, value any) (any, error) {
	if !identRe.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	v, err := a.set(goja.Undefined(), a.sandbox.vm.ToValue(name), a.sandbox.vm.ToValue(value))
	if err != nil {
		return nil, a.sandbox.wrapError(name, name, 0, err)
	}
	return export(v), nil
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
