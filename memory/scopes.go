package memory

import (
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
)

// Scope names.
const (
	ScopeUser          = "user"
	ScopeConversation  = "conversation"
	ScopeDialog        = "dialog"
	ScopeTurn          = "turn"
	ScopeSettings      = "settings"
	ScopeClass         = "class"
	ScopeThis          = "this"
	ScopeDialogContext = "dialogContext"
	ScopeDialogClass   = "dialogClass"
)

// Scope is one named memory namespace.
type Scope interface {
	// Name returns the scope name used as the leading path segment.
	Name() string
	// ReadOnly reports whether writes must fail with core.ErrReadOnlyScope.
	ReadOnly() bool
	// Root returns the scope's backing map. ok is false when the scope is
	// currently unavailable (for example "dialog" with an empty stack).
	Root() (root *core.Map, ok bool)
}

// Replacer is implemented by scopes whose whole root can be swapped.
type Replacer interface {
	Replace(root *core.Map) error
}

// MapScope is a scope backed by a single map.
type MapScope struct {
	name     string
	root     *core.Map
	readOnly bool
}

// NewMapScope creates a writable scope over root. A nil root starts empty.
func NewMapScope(name string, root *core.Map) *MapScope {
	if root == nil {
		root = core.NewMap()
	}
	return &MapScope{name: name, root: root}
}

// NewReadOnlyScope creates a scope that rejects writes.
func NewReadOnlyScope(name string, root *core.Map) *MapScope {
	s := NewMapScope(name, root)
	s.readOnly = true
	return s
}

// NewSettingsScope exposes configuration as the read-only settings scope.
func NewSettingsScope(settings core.Settings) *MapScope {
	return NewReadOnlyScope(ScopeSettings, core.MapFrom(settings))
}

// Name implements Scope.
func (s *MapScope) Name() string { return s.name }

// ReadOnly implements Scope.
func (s *MapScope) ReadOnly() bool { return s.readOnly }

// Root implements Scope.
func (s *MapScope) Root() (*core.Map, bool) { return s.root, true }

// Replace implements Replacer.
func (s *MapScope) Replace(root *core.Map) error {
	if s.readOnly {
		return fmt.Errorf("%w: %s", core.ErrReadOnlyScope, s.name)
	}
	if root == nil {
		root = core.NewMap()
	}
	s.root = root
	return nil
}

// FuncScope resolves its root lazily, typically from the dialog stack.
type FuncScope struct {
	name     string
	readOnly bool
	fn       func() (*core.Map, bool)
}

// NewFuncScope creates a scope whose root is computed by fn on each access.
func NewFuncScope(name string, readOnly bool, fn func() (*core.Map, bool)) *FuncScope {
	return &FuncScope{name: name, readOnly: readOnly, fn: fn}
}

// Name implements Scope.
func (s *FuncScope) Name() string { return s.name }

// ReadOnly implements Scope.
func (s *FuncScope) ReadOnly() bool { return s.readOnly }

// Root implements Scope.
func (s *FuncScope) Root() (*core.Map, bool) {
	if s.fn == nil {
		return nil, false
	}
	return s.fn()
}

var (
	_ Scope    = (*MapScope)(nil)
	_ Replacer = (*MapScope)(nil)
	_ Scope    = (*FuncScope)(nil)
)
