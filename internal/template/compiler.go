// Package template compiles markup templates into message renders.
//
// Compilation is a pure, synchronous walk over the parsed element tree. Tag
// handlers are resolved through a scope-indexed registry assembled once at
// construction; the walk itself shares no state between calls, so one
// Compiler may compile independent templates concurrently.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"renderbot/internal/markup"
	"renderbot/internal/render"
	"renderbot/internal/transport"
)

// FragmentLoader resolves <template src="..."/> references.
type FragmentLoader interface {
	Load(src string) (*markup.Element, error)
}

// Compiler walks element trees and produces message renders.
type Compiler struct {
	reg    *Registry
	loader FragmentLoader
}

type Option func(*Compiler)

// WithLoader installs the fragment loader used by template inclusion.
func WithLoader(l FragmentLoader) Option {
	return func(c *Compiler) { c.loader = l }
}

// New builds a compiler with the built-in tag vocabulary. A duplicate
// (scope, tag) registration in the vocabulary is reported here, before any
// template is compiled.
func New(opts ...Option) (*Compiler, error) {
	c := &Compiler{reg: newRegistry()}
	for _, opt := range opts {
		opt(c)
	}
	if err := registerBuiltins(c.reg); err != nil {
		return nil, err
	}
	return c, nil
}

// Compile folds one parsed document into its renders. The root element is
// interpreted in the document scope, so it must be <messages> or <message>.
func (c *Compiler) Compile(root *markup.Element, ctx Context) (render.List, error) {
	v, err := c.compileElement(root, ScopeDocument, ctx)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case MessageSet:
		return t.List, nil
	case Message:
		return render.List{t.Render}, nil
	default:
		return nil, fmt.Errorf("template: root <%s> produced %T, want a message", root.Name, v)
	}
}

// CompileString parses src and compiles it.
func (c *Compiler) CompileString(src string, ctx Context) (render.List, error) {
	root, err := markup.ParseString(src)
	if err != nil {
		return nil, err
	}
	return c.Compile(root, ctx)
}

// CompileFile loads name through the configured loader and compiles it.
func (c *Compiler) CompileFile(name string, ctx Context) (render.List, error) {
	if c.loader == nil {
		return nil, fmt.Errorf("template: no loader configured")
	}
	root, err := c.loader.Load(name)
	if err != nil {
		return nil, err
	}
	return c.Compile(root, ctx)
}

func (c *Compiler) compileElement(el *markup.Element, scope ScopeID, ctx Context) (Value, error) {
	h := c.reg.lookup(scope, el.Name)
	if h == nil {
		return nil, compileErr(ErrUnknownTag, scope, el.Name,
			"known tags here: %s", strings.Join(c.reg.tagsIn(scope), ", "))
	}
	inv, err := c.bind(h, el, scope, ctx)
	if err != nil {
		return nil, err
	}
	return h.fn(c, inv)
}

// compileNode compiles one child node. The second result is false for
// ignorable inter-element whitespace.
func (c *Compiler) compileNode(n markup.Node, scope ScopeID, ctx Context) (Value, bool, error) {
	switch t := n.(type) {
	case markup.Text:
		raw := string(t)
		if strings.TrimSpace(raw) == "" {
			return nil, false, nil
		}
		th := c.reg.textHandler(scope)
		if th == nil {
			return nil, false, compileErr(ErrUnexpectedText, scope, "", "%q", snippet(raw))
		}
		v, err := th(c, scope, ctx, raw)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	case *markup.Element:
		v, err := c.compileElement(t, scope, ctx)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	default:
		return nil, false, fmt.Errorf("template: unsupported node %T", n)
	}
}

// foldChildren compiles el's children under scope in document order and
// feeds each resulting value to fold. Fragments are flattened so included
// templates fold into the caller's builder.
func (c *Compiler) foldChildren(el *markup.Element, scope ScopeID, ctx Context, fold func(Value) error) error {
	for _, n := range el.Children {
		v, ok, err := c.compileNode(n, scope, ctx)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := foldValue(v, fold); err != nil {
			return err
		}
	}
	return nil
}

func foldValue(v Value, fold func(Value) error) error {
	if f, ok := v.(Fragment); ok {
		for _, vv := range f {
			if err := foldValue(vv, fold); err != nil {
				return err
			}
		}
		return nil
	}
	return fold(v)
}

// ParseText folds el's children through a TextLayout under the given text
// scope and returns the finalized text.
func (c *Compiler) ParseText(el *markup.Element, scope ScopeID, ctx Context) (string, error) {
	var layout TextLayout
	err := c.foldChildren(el, scope, ctx, func(v Value) error {
		switch t := v.(type) {
		case InlineText:
			layout.Add(string(t))
		case BlockText:
			layout.AddParagraph(string(t))
		default:
			return fmt.Errorf("template: %T cannot appear in %s scope", v, scope)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return layout.Result(), nil
}

// ParseMessage folds el's children into a single validated render.
func (c *Compiler) ParseMessage(el *markup.Element, ctx Context) (*render.MessageRender, error) {
	r := &render.MessageRender{}
	var layout TextLayout
	err := c.foldChildren(el, ScopeMessage, ctx, func(v Value) error {
		switch t := v.(type) {
		case InlineText:
			layout.Add(string(t))
		case BlockText:
			layout.AddParagraph(string(t))
		case Image:
			m := transport.MediaRef(t)
			r.Photo = &m
		case Animation:
			m := transport.MediaRef(t)
			r.Animation = &m
		case InlineKeyboard:
			kb := transport.Keyboard(t)
			r.Keyboard = &kb
		case ReplyKeyboard:
			kb := transport.Keyboard(t)
			r.Keyboard = &kb
		default:
			return fmt.Errorf("template: %T cannot appear in %s scope", v, ScopeMessage)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.Text = layout.Result()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseMessages folds el's children into an ordered render list.
func (c *Compiler) ParseMessages(el *markup.Element, ctx Context) (render.List, error) {
	var list render.List
	err := c.foldChildren(el, ScopeMessages, ctx, func(v Value) error {
		switch t := v.(type) {
		case Message:
			list = append(list, t.Render)
		case MessageSet:
			list = append(list, t.List...)
		default:
			return fmt.Errorf("template: %T cannot appear in %s scope", v, ScopeMessages)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ParseInlineRows folds an inline keyboard body into completed rows.
func (c *Compiler) ParseInlineRows(el *markup.Element, ctx Context) ([][]transport.Button, error) {
	var layout KeyboardLayout[transport.Button]
	err := c.foldChildren(el, ScopeInlineKeyboard, ctx, func(v Value) error {
		switch t := v.(type) {
		case InlineButton:
			layout.Add(transport.Button(t))
		case InlineRow:
			layout.AddRow(t)
		default:
			return fmt.Errorf("template: %T cannot appear in %s scope", v, ScopeInlineKeyboard)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return layout.Result(), nil
}

// ParseInlineRow folds a <row> body into one row of inline buttons.
func (c *Compiler) ParseInlineRow(el *markup.Element, ctx Context) ([]transport.Button, error) {
	var row []transport.Button
	err := c.foldChildren(el, ScopeInlineRow, ctx, func(v Value) error {
		b, ok := v.(InlineButton)
		if !ok {
			return fmt.Errorf("template: %T cannot appear in %s scope", v, ScopeInlineRow)
		}
		row = append(row, transport.Button(b))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ParseReplyRows folds a reply keyboard body into completed rows.
func (c *Compiler) ParseReplyRows(el *markup.Element, ctx Context) ([][]transport.ReplyButton, error) {
	var layout KeyboardLayout[transport.ReplyButton]
	err := c.foldChildren(el, ScopeReplyKeyboard, ctx, func(v Value) error {
		switch t := v.(type) {
		case ReplyButton:
			layout.Add(transport.ReplyButton(t))
		case ReplyRow:
			layout.AddRow(t)
		default:
			return fmt.Errorf("template: %T cannot appear in %s scope", v, ScopeReplyKeyboard)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return layout.Result(), nil
}

// ParseReplyRow folds a <row> body into one row of reply buttons.
func (c *Compiler) ParseReplyRow(el *markup.Element, ctx Context) ([]transport.ReplyButton, error) {
	var row []transport.ReplyButton
	err := c.foldChildren(el, ScopeReplyRow, ctx, func(v Value) error {
		b, ok := v.(ReplyButton)
		if !ok {
			return fmt.Errorf("template: %T cannot appear in %s scope", v, ScopeReplyRow)
		}
		row = append(row, transport.ReplyButton(b))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ---- argument binding ----

func (c *Compiler) bind(h *handler, el *markup.Element, scope ScopeID, ctx Context) (*Invocation, error) {
	inv := &Invocation{Element: el, Scope: scope, Context: ctx, args: make(map[string]any)}
	if h.extra {
		inv.rest = make(map[string]string)
	}

	var unexpected []string
	for name, raw := range el.Attrs {
		spec := h.arg(name)
		if spec == nil {
			if h.extra {
				inv.rest[name] = raw
				continue
			}
			unexpected = append(unexpected, name)
			continue
		}
		v, err := coerce(spec, raw, scope, el.Name, ctx)
		if err != nil {
			return nil, err
		}
		inv.args[name] = v
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return nil, compileErr(ErrUnexpectedArgument, scope, el.Name,
			"unexpected arguments: %s", strings.Join(unexpected, ", "))
	}
	for _, spec := range h.args {
		if spec.Required && !inv.Has(spec.Name) {
			return nil, compileErr(ErrMissingArgument, scope, el.Name, "%s is required", spec.Name)
		}
	}
	return inv, nil
}

// coerce converts one attribute's textual value to its declared kind. An
// attribute whose whole value is a {name} placeholder is resolved through
// the context first; this is the only way to bind media handles and opaque
// payloads, which have no textual form.
func coerce(spec *ArgSpec, raw string, scope ScopeID, tag string, ctx Context) (any, error) {
	if name, ok := placeholderName(raw); ok {
		v, found := ctx.Lookup(name)
		if !found {
			return nil, compileErr(ErrUndefinedVariable, scope, tag, "%s refers to {%s}", spec.Name, name)
		}
		return coerceValue(spec, v, scope, tag)
	}

	switch spec.Kind {
	case ArgString:
		return raw, nil
	case ArgBool:
		b, ok := parseBoolLiteral(raw)
		if !ok {
			return nil, compileErr(ErrUnexpectedArgument, scope, tag, "%s: %q is not a boolean", spec.Name, raw)
		}
		return b, nil
	case ArgStringList:
		return splitList(raw), nil
	case ArgMedia:
		return transport.MediaRef{FileID: raw}, nil
	case ArgOpaque:
		return nil, compileErr(ErrUnexpectedArgument, scope, tag,
			"%s takes an opaque context value, not literal text", spec.Name)
	default:
		return nil, fmt.Errorf("template: unhandled argument kind %v", spec.Kind)
	}
}

func coerceValue(spec *ArgSpec, v any, scope ScopeID, tag string) (any, error) {
	switch spec.Kind {
	case ArgString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ArgBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			if b, ok := parseBoolLiteral(t); ok {
				return b, nil
			}
		}
	case ArgStringList:
		switch t := v.(type) {
		case []string:
			return t, nil
		case string:
			return splitList(t), nil
		}
	case ArgMedia:
		switch t := v.(type) {
		case string:
			return transport.MediaRef{FileID: t}, nil
		case *transport.Upload:
			return transport.MediaRef{Upload: t}, nil
		case transport.MediaRef:
			return t, nil
		}
	case ArgOpaque:
		if _, isStr := v.(string); !isStr {
			return v, nil
		}
	}
	return nil, compileErr(ErrUnexpectedArgument, scope, tag,
		"%s: context value has unusable type %T for %v argument", spec.Name, v, spec.Kind)
}

// placeholderName reports whether raw is exactly one {name} placeholder.
func placeholderName(raw string) (string, bool) {
	if len(raw) < 3 || raw[0] != '{' || raw[len(raw)-1] != '}' {
		return "", false
	}
	name := raw[1 : len(raw)-1]
	if !identRe.MatchString(name) {
		return "", false
	}
	return name, true
}

func parseBoolLiteral(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	default:
		return false, false
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ---- text interpolation ----

var (
	spacingRe = regexp.MustCompile(`\s+`)
	identRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// CollapseWhitespace folds every whitespace run into a single space and
// trims the ends.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(spacingRe.ReplaceAllString(s, " "))
}

// Interpolate substitutes {name} placeholders from the context. A brace
// sequence that is not a well-formed placeholder is left verbatim, which
// makes interpolation idempotent on fully resolved text.
func Interpolate(s string, ctx Context, scope ScopeID) (string, error) {
	if !strings.ContainsRune(s, '{') {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		open := strings.IndexByte(s[i:], '{')
		if open < 0 {
			b.WriteString(s[i:])
			break
		}
		open += i
		b.WriteString(s[i:open])
		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			b.WriteString(s[open:])
			break
		}
		end += open
		name := s[open+1 : end]
		if !identRe.MatchString(name) {
			b.WriteString(s[open : end+1])
			i = end + 1
			continue
		}
		v, ok := ctx.Lookup(name)
		if !ok {
			return "", compileErr(ErrUndefinedVariable, scope, "", "{%s}", name)
		}
		b.WriteString(stringify(v))
		i = end + 1
	}
	return b.String(), nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []string:
		return strings.Join(t, ", ")
	default:
		return fmt.Sprint(t)
	}
}

func snippet(s string) string {
	s = CollapseWhitespace(s)
	if len(s) > 40 {
		return s[:37] + "..."
	}
	return s
}
