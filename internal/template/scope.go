package template

import (
	"fmt"
	"sort"

	"renderbot/internal/markup"
)

// ScopeID names a grammar position. The scope restricts which tags are
// visible and how raw text nodes are treated.
type ScopeID string

const (
	ScopeDocument       ScopeID = "document"
	ScopeMessages       ScopeID = "messages"
	ScopeMessage        ScopeID = "message"
	ScopeElement        ScopeID = "element"
	ScopePlain          ScopeID = "plain-text"
	ScopeInlineKeyboard ScopeID = "inline-keyboard"
	ScopeInlineRow      ScopeID = "inline-keyboard-row"
	ScopeReplyKeyboard  ScopeID = "reply-keyboard"
	ScopeReplyRow       ScopeID = "reply-keyboard-row"
)

// ArgKind is the closed set of declared argument types. Coercion is an
// exhaustive match over this set; anything ambiguous is rejected.
type ArgKind int

const (
	// ArgString binds the attribute text as-is, or resolves a lone {name}
	// placeholder to a string context value.
	ArgString ArgKind = iota
	// ArgBool recognizes a fixed literal vocabulary (true/false/yes/no/1/0).
	ArgBool
	// ArgStringList splits the attribute text on commas and trims items.
	ArgStringList
	// ArgMedia yields a media reference: a {name} placeholder resolving to an
	// upload handle, or literal text taken as a file id / URL.
	ArgMedia
	// ArgOpaque requires a {name} placeholder resolving to a non-string
	// context value. Literal attribute text is rejected.
	ArgOpaque
)

func (k ArgKind) String() string {
	switch k {
	case ArgString:
		return "string"
	case ArgBool:
		return "bool"
	case ArgStringList:
		return "string list"
	case ArgMedia:
		return "media"
	case ArgOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}

// ArgSpec declares one named argument of a handler.
type ArgSpec struct {
	Name     string
	Kind     ArgKind
	Required bool
}

// Invocation is one tag occurrence with its bound arguments.
type Invocation struct {
	Element *markup.Element
	Scope   ScopeID
	Context Context

	args map[string]any
	rest map[string]string
}

// Has reports whether the argument was present on the element.
func (inv *Invocation) Has(name string) bool {
	_, ok := inv.args[name]
	return ok
}

// String returns a bound string argument ("" when absent).
func (inv *Invocation) String(name string) string {
	v, _ := inv.args[name].(string)
	return v
}

// Bool returns a bound bool argument (false when absent).
func (inv *Invocation) Bool(name string) bool {
	v, _ := inv.args[name].(bool)
	return v
}

// List returns a bound string-list argument (nil when absent).
func (inv *Invocation) List(name string) []string {
	v, _ := inv.args[name].([]string)
	return v
}

// Opaque returns a bound opaque argument (nil when absent).
func (inv *Invocation) Opaque(name string) any {
	return inv.args[name]
}

// Rest returns the residual attributes collected by an extra-capability
// handler, keyed by attribute name.
func (inv *Invocation) Rest() map[string]string {
	return inv.rest
}

// HandlerFunc computes a tag's value. Handlers recurse through the compiler
// to parse their children under the appropriate scope.
type HandlerFunc func(c *Compiler, inv *Invocation) (Value, error)

// TextHandlerFunc produces the value of a raw text node in scopes that
// permit text.
type TextHandlerFunc func(c *Compiler, scope ScopeID, ctx Context, raw string) (Value, error)

type handler struct {
	name  string
	args  []ArgSpec
	extra bool // collect undeclared attributes into Rest
	fn    HandlerFunc
}

func (h *handler) arg(name string) *ArgSpec {
	for i := range h.args {
		if h.args[i].Name == name {
			return &h.args[i]
		}
	}
	return nil
}

// Registry maps (scope, tag) to a handler descriptor. It is assembled once,
// before any template compiles; a duplicate registration is a configuration
// error surfaced at build time, never at runtime.
type Registry struct {
	handlers map[ScopeID]map[string]*handler
	text     map[ScopeID]TextHandlerFunc
}

func newRegistry() *Registry {
	return &Registry{
		handlers: make(map[ScopeID]map[string]*handler),
		text:     make(map[ScopeID]TextHandlerFunc),
	}
}

func (r *Registry) register(scopes []ScopeID, h *handler) error {
	for _, s := range scopes {
		m := r.handlers[s]
		if m == nil {
			m = make(map[string]*handler)
			r.handlers[s] = m
		}
		if _, dup := m[h.name]; dup {
			return fmt.Errorf("template: duplicate handler for <%s> in %s scope", h.name, s)
		}
		m[h.name] = h
	}
	return nil
}

func (r *Registry) registerText(scopes []ScopeID, fn TextHandlerFunc) error {
	for _, s := range scopes {
		if _, dup := r.text[s]; dup {
			return fmt.Errorf("template: duplicate text handler in %s scope", s)
		}
		r.text[s] = fn
	}
	return nil
}

func (r *Registry) lookup(scope ScopeID, tag string) *handler {
	return r.handlers[scope][tag]
}

// textHandler returns the text policy for the scope: nil means raw text is
// forbidden there.
func (r *Registry) textHandler(scope ScopeID) TextHandlerFunc {
	return r.text[scope]
}

// tagsIn lists the registered tag names of a scope, for error messages.
func (r *Registry) tagsIn(scope ScopeID) []string {
	m := r.handlers[scope]
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
