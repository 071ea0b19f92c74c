package sandbox

import (
	"strings"

	"github.com/dop251/goja"
)

// Namespaces hands out one storage object per dotted resource name. Objects
// hang off the root namespace object, so modules exporting values never write
// to the runtime's global object directly. Names that already start with the
// root namespace are nested under it without repeating it.
type Namespaces struct {
	vm       *goja.Runtime
	rootName string
	root     *goja.Object
	objects  map[string]*goja.Object
}

func newNamespaces(vm *goja.Runtime, rootName string) *Namespaces {
	root := vm.NewObject()
	_ = vm.Set(rootName, root)
	return &Namespaces{
		vm:       vm,
		rootName: rootName,
		root:     root,
		objects:  map[string]*goja.Object{rootName: root},
	}
}

// RootName returns the name the root object is bound to in the global scope.
func (n *Namespaces) RootName() string {
	return n.rootName
}

// Root returns the root namespace object.
func (n *Namespaces) Root() *goja.Object {
	return n.root
}

// Ensure returns the storage object for name, creating intermediate objects
// as needed. Existing non-object members along the path are replaced.
func (n *Namespaces) Ensure(name string) *goja.Object {
	key := n.key(name)
	if obj, ok := n.objects[key]; ok {
		return obj
	}

	obj := n.root
	walked := n.rootName
	for _, seg := range strings.Split(strings.TrimPrefix(key, n.rootName+"."), ".") {
		if seg == "" {
			continue
		}
		walked += "." + seg
		if cached, ok := n.objects[walked]; ok {
			obj = cached
			continue
		}
		next, ok := obj.Get(seg).(*goja.Object)
		if !ok || next == nil {
			next = n.vm.NewObject()
			_ = obj.Set(seg, next)
		}
		n.objects[walked] = next
		obj = next
	}
	return obj
}

// Lookup returns the storage object for name if it was created.
func (n *Namespaces) Lookup(name string) (*goja.Object, bool) {
	obj, ok := n.objects[n.key(name)]
	return obj, ok
}

// Values exports the own members of name's storage object.
func (n *Namespaces) Values(name string) map[string]any {
	obj, ok := n.Lookup(name)
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(obj.Keys()))
	for _, k := range obj.Keys() {
		out[k] = export(obj.Get(k))
	}
	return out
}

func (n *Namespaces) key(name string) string {
	name = strings.Trim(name, ".")
	if name == "" || name == n.rootName {
		return n.rootName
	}
	if strings.HasPrefix(name, n.rootName+".") {
		return name
	}
	return n.rootName + "." + name
}
