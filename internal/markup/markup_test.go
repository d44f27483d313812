package markup

import (
	"strings"
	"testing"
)

func TestParseTree(t *testing.T) {
	t.Parallel()
	root, err := ParseString(`<message a="1" b="two"><p>Hello <b>World</b></p></message>`)
	if err != nil {
		t.Fatalf("ParseString error: %v", err)
	}
	if root.Name != "message" {
		t.Fatalf("root = %q, want message", root.Name)
	}
	if root.Attrs["a"] != "1" || root.Attrs["b"] != "two" {
		t.Fatalf("unexpected attrs: %#v", root.Attrs)
	}
	if len(root.Children) != 1 {
		t.Fatalf("children = %d, want 1", len(root.Children))
	}
	p, ok := root.Children[0].(*Element)
	if !ok || p.Name != "p" {
		t.Fatalf("first child = %#v, want <p>", root.Children[0])
	}
	// <p> holds: text, <b>, and nothing after.
	if len(p.Children) != 2 {
		t.Fatalf("p children = %d, want 2", len(p.Children))
	}
	if txt, ok := p.Children[0].(Text); !ok || strings.TrimSpace(string(txt)) != "Hello" {
		t.Fatalf("p first child = %#v", p.Children[0])
	}
	b, ok := p.Children[1].(*Element)
	if !ok || b.Name != "b" {
		t.Fatalf("p second child = %#v, want <b>", p.Children[1])
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		src  string
	}{
		{name: "unclosed", src: `<message><p>hi</message>`},
		{name: "empty", src: ``},
		{name: "two roots", src: `<message/><message/>`},
		{name: "text outside root", src: `hi<message/>`},
		{name: "duplicate attr", src: `<message a="1" a="2"/>`},
	}
	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseString(tt.src); err == nil {
				t.Fatalf("ParseString(%q): expected error", tt.src)
			}
		})
	}
}

func TestParseSelfClosing(t *testing.T) {
	t.Parallel()
	root, err := ParseString(`<message><br/><img src="pic"/></message>`)
	if err != nil {
		t.Fatalf("ParseString error: %v", err)
	}
	if len(root.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(root.Children))
	}
	img := root.Children[1].(*Element)
	if v, ok := img.Attr("src"); !ok || v != "pic" {
		t.Fatalf("img src = %q (%v)", v, ok)
	}
}
