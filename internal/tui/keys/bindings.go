// Package keys is a small keybinding registry scoped by page, so each view
// declares its own bindings and the status bar can render hints for
// whichever page is in front.
package keys

import (
	"sort"

	"github.com/gdamore/tcell/v2"
)

// ScopeGlobal applies on every page.
const ScopeGlobal = "global"

// Action is one keybinding.
type Action struct {
	Key     tcell.Key
	Rune    rune
	Hint    string
	Handler func()
}

// Matches reports whether the event triggers this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds bindings per scope.
type Registry struct {
	scopes map[string][]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]*Action)}
}

// Bind registers an action in a scope. Scope is a page name or ScopeGlobal.
func (r *Registry) Bind(scope string, action *Action) {
	r.scopes[scope] = append(r.scopes[scope], action)
}

// Handle dispatches a key event against the page's bindings, falling back
// to the global scope. Returns true if a handler ran.
func (r *Registry) Handle(page string, ev *tcell.EventKey) bool {
	for _, a := range r.scopes[page] {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.scopes[ScopeGlobal] {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	return false
}

// Hints returns the hint strings for a page plus the global scope, sorted
// for a stable status line.
func (r *Registry) Hints(page string) []string {
	var hints []string
	for _, a := range r.scopes[page] {
		if a.Hint != "" {
			hints = append(hints, a.Hint)
		}
	}
	for _, a := range r.scopes[ScopeGlobal] {
		if a.Hint != "" {
			hints = append(hints, a.Hint)
		}
	}
	sort.Strings(hints)
	return hints
}
