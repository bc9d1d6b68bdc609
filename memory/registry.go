package memory

import (
	"fmt"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
)

// Registry dispatches memory paths to named scopes. A Registry is owned by a
// single turn and is not safe for concurrent use.
type Registry struct {
	resolver PathResolver
	scopes   map[string]Scope
	order    []string
}

// NewRegistry creates a registry using resolver for alias expansion. A nil
// resolver uses DefaultResolvers.
func NewRegistry(resolver PathResolver, scopes ...Scope) *Registry {
	if resolver == nil {
		resolver = DefaultResolvers()
	}
	r := &Registry{resolver: resolver, scopes: map[string]Scope{}}
	for _, s := range scopes {
		r.AddScope(s)
	}
	return r
}

// AddScope registers or replaces a scope. Scope names are case-insensitive.
func (r *Registry) AddScope(s Scope) {
	key := strings.ToLower(s.Name())
	if _, exists := r.scopes[key]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.scopes[key] = s
}

// Scope returns the scope registered under name.
func (r *Registry) Scope(name string) (Scope, bool) {
	s, ok := r.scopes[strings.ToLower(name)]
	return s, ok
}

// ScopeNames returns registered scope names in registration order.
func (r *Registry) ScopeNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ResolvePath expands aliases in path.
func (r *Registry) ResolvePath(path string) string {
	return strings.TrimSpace(r.resolver.TransformPath(path))
}

// split resolves path and separates the scope from the relative remainder.
func (r *Registry) split(path string) (Scope, []segment, error) {
	resolved := r.ResolvePath(path)
	if resolved == "" {
		return nil, nil, fmt.Errorf("%w: empty path", core.ErrInvalidPath)
	}

	name, rest := resolved, ""
	if i := strings.IndexAny(resolved, ".["); i >= 0 {
		name, rest = resolved[:i], strings.TrimPrefix(resolved[i:], ".")
	}

	s, ok := r.Scope(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", core.ErrScopeNotFound, name)
	}
	if rest == "" {
		return s, nil, nil
	}
	segs, err := parsePath(rest)
	if err != nil {
		return nil, nil, err
	}
	return s, segs, nil
}

// GetValue returns the value at path. Missing scopes, unavailable scopes
// and missing values all report ok == false; they are never errors. Values
// read from read-only scopes are deep copies.
func (r *Registry) GetValue(path string) (core.Value, bool) {
	s, segs, err := r.split(path)
	if err != nil {
		return core.Null(), false
	}
	root, ok := s.Root()
	if !ok {
		return core.Null(), false
	}
	v, ok := getPath(core.MapValue(root), segs)
	if !ok {
		return core.Null(), false
	}
	if s.ReadOnly() {
		return v.Clone(), true
	}
	return v, true
}

// HasPath reports whether a value exists at path.
func (r *Registry) HasPath(path string) bool {
	_, ok := r.GetValue(path)
	return ok
}

// GetString returns the value at path rendered as a string, or "".
func (r *Registry) GetString(path string) string {
	v, ok := r.GetValue(path)
	if !ok || v.IsNull() {
		return ""
	}
	return v.String()
}

// GetBool returns the truthiness of the value at path.
func (r *Registry) GetBool(path string) bool {
	v, _ := r.GetValue(path)
	return v.Truthy()
}

// GetNumber returns the numeric value at path.
func (r *Registry) GetNumber(path string) (float64, bool) {
	v, ok := r.GetValue(path)
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}

// SetValue writes v at path, creating missing intermediate maps. Passing a
// bare scope name replaces the scope root when the scope allows it.
func (r *Registry) SetValue(path string, v core.Value) error {
	s, segs, err := r.split(path)
	if err != nil {
		return err
	}
	if s.ReadOnly() {
		return fmt.Errorf("%w: %s", core.ErrReadOnlyScope, s.Name())
	}

	if len(segs) == 0 {
		rep, ok := s.(Replacer)
		if !ok {
			return fmt.Errorf("%w: scope %s cannot be replaced", core.ErrInvalidPath, s.Name())
		}
		m, ok := v.AsMap()
		if !ok {
			return fmt.Errorf("%w: scope %s root must be a map, got %s", core.ErrInvalidPath, s.Name(), v.Kind())
		}
		return rep.Replace(m)
	}

	root, ok := s.Root()
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrScopeUnavailable, s.Name())
	}
	return setPath(core.MapValue(root), segs, v)
}

// SetAny is SetValue for plain Go values.
func (r *Registry) SetAny(path string, v any) error {
	return r.SetValue(path, core.FromAny(v))
}

// DeleteValue removes the value at path. Deleting a missing value succeeds.
func (r *Registry) DeleteValue(path string) error {
	s, segs, err := r.split(path)
	if err != nil {
		return err
	}
	if s.ReadOnly() {
		return fmt.Errorf("%w: %s", core.ErrReadOnlyScope, s.Name())
	}
	if len(segs) == 0 {
		return fmt.Errorf("%w: cannot delete scope %s", core.ErrInvalidPath, s.Name())
	}
	root, ok := s.Root()
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrScopeUnavailable, s.Name())
	}
	return deletePath(core.MapValue(root), segs)
}

// Snapshot deep copies every available scope into one map keyed by scope name.
func (r *Registry) Snapshot() *core.Map {
	out := core.NewMap()
	for _, name := range r.order {
		s := r.scopes[strings.ToLower(name)]
		if root, ok := s.Root(); ok {
			out.Set(name, core.MapValue(root.Clone()))
		}
	}
	return out
}
