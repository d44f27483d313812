package template

// Context is the immutable variable environment a template compiles against.
// Values are strings, bools, string slices, or opaque handles (media uploads,
// button payloads). Lookups never mutate; Child returns an independent copy,
// so an included fragment can never leak variables back into its caller.
type Context struct {
	vars map[string]any
}

// NewContext copies vars into a fresh context.
func NewContext(vars map[string]any) Context {
	m := make(map[string]any, len(vars))
	for k, v := range vars {
		m[k] = v
	}
	return Context{vars: m}
}

// Lookup returns the value bound to name.
func (c Context) Lookup(name string) (any, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Has reports whether name is bound.
func (c Context) Has(name string) bool {
	_, ok := c.vars[name]
	return ok
}

// Len returns the number of bound variables.
func (c Context) Len() int { return len(c.vars) }

// Child returns a new context holding this context's variables with overlay
// applied on top. The receiver is left untouched.
func (c Context) Child(overlay map[string]any) Context {
	m := make(map[string]any, len(c.vars)+len(overlay))
	for k, v := range c.vars {
		m[k] = v
	}
	for k, v := range overlay {
		m[k] = v
	}
	return Context{vars: m}
}
