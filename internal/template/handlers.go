package template

import (
	"strings"

	"renderbot/internal/transport"
)

// registerBuiltins assembles the built-in tag vocabulary. Registration order
// is fixed, so a duplicate (scope, tag) pair fails deterministically before
// any template compiles.
func registerBuiltins(r *Registry) error {
	regs := []struct {
		scopes []ScopeID
		h      *handler
	}{
		{[]ScopeID{ScopeDocument}, &handler{name: "messages", fn: tagMessages}},
		{[]ScopeID{ScopeDocument, ScopeMessages}, &handler{
			name: "message",
			args: []ArgSpec{{Name: "requires", Kind: ArgStringList}},
			fn:   tagMessage,
		}},
		{[]ScopeID{ScopeMessage, ScopeElement}, &handler{
			name:  "template",
			args:  []ArgSpec{{Name: "src", Kind: ArgString, Required: true}},
			extra: true,
			fn:    tagTemplate,
		}},

		{[]ScopeID{ScopeMessage, ScopeElement}, &handler{name: "heading", fn: tagHeading}},
		{[]ScopeID{ScopeMessage, ScopeElement}, &handler{name: "p", fn: tagParagraph}},
		{[]ScopeID{ScopeMessage, ScopeElement}, &handler{name: "br", fn: tagBreak}},
		{[]ScopeID{ScopeMessage, ScopeElement}, &handler{name: "span", fn: tagSpan}},
		{[]ScopeID{ScopePlain}, &handler{name: "span", fn: tagSpanPlain}},
		{[]ScopeID{ScopeMessage, ScopeElement}, &handler{
			name: "a",
			args: []ArgSpec{{Name: "href", Kind: ArgString, Required: true}},
			fn:   tagLink,
		}},
		{[]ScopeID{ScopeMessage, ScopeElement}, &handler{name: "b", fn: wrapTag("b")}},
		{[]ScopeID{ScopeMessage, ScopeElement}, &handler{name: "i", fn: wrapTag("i")}},
		{[]ScopeID{ScopeMessage, ScopeElement}, &handler{name: "u", fn: wrapTag("u")}},
		{[]ScopeID{ScopeMessage, ScopeElement}, &handler{name: "code", fn: tagCode}},

		{[]ScopeID{ScopeMessage}, &handler{
			name: "img",
			args: []ArgSpec{{Name: "src", Kind: ArgMedia, Required: true}},
			fn:   tagImage,
		}},
		{[]ScopeID{ScopeMessage}, &handler{
			name: "anim",
			args: []ArgSpec{{Name: "src", Kind: ArgMedia, Required: true}},
			fn:   tagAnimation,
		}},

		{[]ScopeID{ScopeMessage}, &handler{name: "inline-keyboard", fn: tagInlineKeyboard}},
		{[]ScopeID{ScopeInlineKeyboard}, &handler{name: "row", fn: tagInlineRow}},
		{[]ScopeID{ScopeInlineKeyboard, ScopeInlineRow}, &handler{
			name: "button",
			args: []ArgSpec{
				{Name: "text", Kind: ArgString},
				{Name: "url", Kind: ArgString},
				{Name: "callback_data", Kind: ArgString},
				{Name: "web_app", Kind: ArgOpaque},
				{Name: "login_url", Kind: ArgOpaque},
				{Name: "callback_game", Kind: ArgOpaque},
				{Name: "switch_inline_query", Kind: ArgString},
				{Name: "switch_inline_query_current_chat", Kind: ArgString},
				{Name: "pay", Kind: ArgBool},
			},
			fn: tagInlineButton,
		}},

		{[]ScopeID{ScopeMessage}, &handler{
			name: "reply-keyboard",
			args: []ArgSpec{
				{Name: "resize_keyboard", Kind: ArgBool},
				{Name: "one_time_keyboard", Kind: ArgBool},
				{Name: "input_field_placeholder", Kind: ArgString},
				{Name: "selective", Kind: ArgBool},
			},
			fn: tagReplyKeyboard,
		}},
		{[]ScopeID{ScopeReplyKeyboard}, &handler{name: "row", fn: tagReplyRow}},
		{[]ScopeID{ScopeReplyKeyboard, ScopeReplyRow}, &handler{
			name: "button",
			args: []ArgSpec{
				{Name: "text", Kind: ArgString},
				{Name: "request_contact", Kind: ArgBool},
				{Name: "request_location", Kind: ArgBool},
				{Name: "request_poll", Kind: ArgString},
				{Name: "web_app", Kind: ArgOpaque},
			},
			fn: tagReplyButton,
		}},
	}

	for _, reg := range regs {
		if err := r.register(reg.scopes, reg.h); err != nil {
			return err
		}
	}
	return r.registerText([]ScopeID{ScopeMessage, ScopeElement, ScopePlain}, textNode)
}

// textNode is the interpolated-text policy: whitespace runs collapse to
// single spaces, then {name} placeholders resolve from the context.
func textNode(_ *Compiler, scope ScopeID, ctx Context, raw string) (Value, error) {
	s, err := Interpolate(CollapseWhitespace(raw), ctx, scope)
	if err != nil {
		return nil, err
	}
	return InlineText(s), nil
}

func tagMessages(c *Compiler, inv *Invocation) (Value, error) {
	list, err := c.ParseMessages(inv.Element, inv.Context)
	if err != nil {
		return nil, err
	}
	return MessageSet{List: list}, nil
}

func tagMessage(c *Compiler, inv *Invocation) (Value, error) {
	var missing []string
	for _, name := range inv.List("requires") {
		if !inv.Context.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, compileErr(ErrUndefinedVariable, inv.Scope, inv.Element.Name,
			"requires context variables: %s", strings.Join(missing, ", "))
	}
	r, err := c.ParseMessage(inv.Element, inv.Context)
	if err != nil {
		return nil, err
	}
	return Message{Render: r}, nil
}

// tagTemplate embeds an external fragment. The fragment's declared
// required-parameter set must equal the residual arguments supplied here,
// and the fragment compiles under the caller's scope with a context overlay
// holding exactly those arguments.
func tagTemplate(c *Compiler, inv *Invocation) (Value, error) {
	if c.loader == nil {
		return nil, compileErr(ErrMissingArgument, inv.Scope, inv.Element.Name,
			"no fragment loader configured for src=%q", inv.String("src"))
	}
	src := inv.String("src")
	frag, err := c.loader.Load(src)
	if err != nil {
		return nil, err
	}
	if frag.Name != "template" {
		return nil, compileErr(ErrUnknownTag, inv.Scope, inv.Element.Name,
			"%q: expected a <template> fragment, found <%s>", src, frag.Name)
	}
	for attr := range frag.Attrs {
		if attr != "requires" {
			return nil, compileErr(ErrUnexpectedArgument, inv.Scope, inv.Element.Name,
				"%q declares unexpected attribute %q", src, attr)
		}
	}

	required := splitList(frag.Attrs["requires"])
	provided := inv.Rest()

	var unprovided []string
	for _, name := range required {
		if _, ok := provided[name]; !ok {
			unprovided = append(unprovided, name)
		}
	}
	if len(unprovided) > 0 {
		return nil, compileErr(ErrMissingArgument, inv.Scope, inv.Element.Name,
			"%q requires arguments: %s", src, strings.Join(unprovided, ", "))
	}
	if len(provided) > len(required) {
		extra := make([]string, 0, len(provided))
		for name := range provided {
			if !containsString(required, name) {
				extra = append(extra, name)
			}
		}
		return nil, compileErr(ErrUnexpectedArgument, inv.Scope, inv.Element.Name,
			"%q does not take: %s", src, strings.Join(extra, ", "))
	}

	overlay := make(map[string]any, len(provided))
	for name, raw := range provided {
		overlay[name] = raw
	}
	sub := inv.Context.Child(overlay)

	var out Fragment
	for _, n := range frag.Children {
		v, ok, err := c.compileNode(n, inv.Scope, sub)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// tagHeading uppercases its plain-text content and renders it bold.
func tagHeading(c *Compiler, inv *Invocation) (Value, error) {
	text, err := c.ParseText(inv.Element, ScopePlain, inv.Context)
	if err != nil {
		return nil, err
	}
	return BlockText("<b>" + strings.ToUpper(text) + "</b>"), nil
}

func tagParagraph(c *Compiler, inv *Invocation) (Value, error) {
	text, err := c.ParseText(inv.Element, ScopeElement, inv.Context)
	if err != nil {
		return nil, err
	}
	return BlockText(text), nil
}

// tagBreak yields an empty block: visually, a blank line.
func tagBreak(_ *Compiler, _ *Invocation) (Value, error) {
	return BlockText(""), nil
}

func tagSpan(c *Compiler, inv *Invocation) (Value, error) {
	text, err := c.ParseText(inv.Element, ScopeElement, inv.Context)
	if err != nil {
		return nil, err
	}
	return InlineText(text), nil
}

func tagSpanPlain(c *Compiler, inv *Invocation) (Value, error) {
	text, err := c.ParseText(inv.Element, ScopePlain, inv.Context)
	if err != nil {
		return nil, err
	}
	return InlineText(text), nil
}

func tagLink(c *Compiler, inv *Invocation) (Value, error) {
	text, err := c.ParseText(inv.Element, ScopePlain, inv.Context)
	if err != nil {
		return nil, err
	}
	return InlineText(`<a href="` + inv.String("href") + `">` + text + `</a>`), nil
}

// wrapTag builds the simple style handlers (<b>, <i>, <u>).
func wrapTag(tag string) HandlerFunc {
	return func(c *Compiler, inv *Invocation) (Value, error) {
		text, err := c.ParseText(inv.Element, ScopeElement, inv.Context)
		if err != nil {
			return nil, err
		}
		return InlineText("<" + tag + ">" + text + "</" + tag + ">"), nil
	}
}

// tagCode parses its body in the plain scope: nested styling inside a code
// span is not representable.
func tagCode(c *Compiler, inv *Invocation) (Value, error) {
	text, err := c.ParseText(inv.Element, ScopePlain, inv.Context)
	if err != nil {
		return nil, err
	}
	return InlineText("<code>" + text + "</code>"), nil
}

func tagImage(_ *Compiler, inv *Invocation) (Value, error) {
	ref, _ := inv.Opaque("src").(transport.MediaRef)
	return Image(ref), nil
}

func tagAnimation(_ *Compiler, inv *Invocation) (Value, error) {
	ref, _ := inv.Opaque("src").(transport.MediaRef)
	return Animation(ref), nil
}

func tagInlineKeyboard(c *Compiler, inv *Invocation) (Value, error) {
	rows, err := c.ParseInlineRows(inv.Element, inv.Context)
	if err != nil {
		return nil, err
	}
	return InlineKeyboard(transport.Keyboard{Inline: rows}), nil
}

func tagInlineRow(c *Compiler, inv *Invocation) (Value, error) {
	row, err := c.ParseInlineRow(inv.Element, inv.Context)
	if err != nil {
		return nil, err
	}
	return InlineRow(row), nil
}

func tagInlineButton(c *Compiler, inv *Invocation) (Value, error) {
	text := inv.String("text")
	if !inv.Has("text") {
		parsed, err := c.ParseText(inv.Element, ScopePlain, inv.Context)
		if err != nil {
			return nil, err
		}
		text = parsed
	}
	webApp, err := opaqueAs[*transport.WebApp](inv, "web_app")
	if err != nil {
		return nil, err
	}
	login, err := opaqueAs[*transport.Login](inv, "login_url")
	if err != nil {
		return nil, err
	}
	game, err := opaqueAs[*transport.Game](inv, "callback_game")
	if err != nil {
		return nil, err
	}
	return InlineButton(transport.Button{
		Text:            text,
		URL:             inv.String("url"),
		Data:            inv.String("callback_data"),
		WebApp:          webApp,
		Login:           login,
		Game:            game,
		InlineQuery:     inv.String("switch_inline_query"),
		InlineQueryChat: inv.String("switch_inline_query_current_chat"),
		Pay:             inv.Bool("pay"),
	}), nil
}

func tagReplyKeyboard(c *Compiler, inv *Invocation) (Value, error) {
	rows, err := c.ParseReplyRows(inv.Element, inv.Context)
	if err != nil {
		return nil, err
	}
	return ReplyKeyboard(transport.Keyboard{
		Reply:       rows,
		Resize:      inv.Bool("resize_keyboard"),
		OneTime:     inv.Bool("one_time_keyboard"),
		Selective:   inv.Bool("selective"),
		Placeholder: inv.String("input_field_placeholder"),
	}), nil
}

func tagReplyRow(c *Compiler, inv *Invocation) (Value, error) {
	row, err := c.ParseReplyRow(inv.Element, inv.Context)
	if err != nil {
		return nil, err
	}
	return ReplyRow(row), nil
}

func tagReplyButton(c *Compiler, inv *Invocation) (Value, error) {
	text := inv.String("text")
	if !inv.Has("text") {
		parsed, err := c.ParseText(inv.Element, ScopePlain, inv.Context)
		if err != nil {
			return nil, err
		}
		text = parsed
	}
	webApp, err := opaqueAs[*transport.WebApp](inv, "web_app")
	if err != nil {
		return nil, err
	}
	return ReplyButton(transport.ReplyButton{
		Text:     text,
		Contact:  inv.Bool("request_contact"),
		Location: inv.Bool("request_location"),
		Poll:     inv.String("request_poll"),
		WebApp:   webApp,
	}), nil
}

// opaqueAs narrows an opaque argument to its expected concrete type.
func opaqueAs[T any](inv *Invocation, name string) (T, error) {
	var zero T
	v := inv.Opaque(name)
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, compileErr(ErrUnexpectedArgument, inv.Scope, inv.Element.Name,
			"%s: context value is %T, want %T", name, v, zero)
	}
	return t, nil
}
