// Package classload resolves widget model classes by (module, name). Built-in
// classes are registered synchronously; everything else goes through an
// optional ModuleResolver, which may fetch class definitions from anywhere
// (an npm-style registry, a plugin directory, a remote service).
package classload

import (
	"context"
	"sync"
)

// ModelClass describes one widget model implementation: its identity and the
// default attribute values instances start from.
type ModelClass interface {
	Name() string
	Module() string
	ModuleVersion() string
	// Defaults returns the default attribute dict. Callers must treat the
	// returned map as read-only.
	Defaults() map[string]any
}

// BaseClass is a declarative ModelClass backed by plain fields.
type BaseClass struct {
	ClassName     string
	ClassModule   string
	ClassVersion  string
	ClassDefaults map[string]any
}

func (c BaseClass) Name() string           { return c.ClassName }
func (c BaseClass) Module() string         { return c.ClassModule }
func (c BaseClass) ModuleVersion() string  { return c.ClassVersion }
func (c BaseClass) Defaults() map[string]any { return c.ClassDefaults }

// ModuleResolver loads the exported classes of a module that is not
// registered as a built-in. Implementations may block on I/O; they receive
// the caller's context.
type ModuleResolver interface {
	ResolveModule(ctx context.Context, module, version string) (map[string]ModelClass, error)
}

type classKey struct {
	module string
	name   string
}

// Registry is the two-tier class lookup: built-ins first, resolver second.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	builtins map[classKey]ModelClass
	resolver ModuleResolver
}

// NewRegistry returns a registry pre-populated with the built-in base,
// controls and output classes.
func NewRegistry() *Registry {
	r := &Registry{builtins: make(map[classKey]ModelClass)}
	for _, c := range builtinClasses() {
		r.RegisterBuiltin(c)
	}
	return r
}

// RegisterBuiltin adds or replaces a synchronous class registration.
func (r *Registry) RegisterBuiltin(c ModelClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[classKey{module: c.Module(), name: c.Name()}] = c
}

// SetResolver installs the fallback resolver for non-built-in modules.
// Passing nil removes it.
func (r *Registry) SetResolver(res ModuleResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolver = res
}

// Resolve returns the class registered for (module, name). Built-ins win;
// otherwise the resolver is consulted. Version is advisory: it is forwarded
// to the resolver but built-in lookup ignores it, mirroring the loose semver
// matching of widget front ends.
func (r *Registry) Resolve(ctx context.Context, name, module, version string) (ModelClass, error) {
	r.mu.RLock()
	c, ok := r.builtins[classKey{module: module, name: name}]
	res := r.resolver
	r.mu.RUnlock()
	if ok {
		return c, nil
	}
	if res == nil {
		return nil, ErrClassNotFound(name, module)
	}
	exports, err := res.ResolveModule(ctx, module, version)
	if err != nil {
		return nil, err
	}
	c, ok = exports[name]
	if !ok {
		return nil, ErrClassNotFound(name, module)
	}
	return c, nil
}
