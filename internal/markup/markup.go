// Package markup parses serialized template markup into an immutable tree of
// elements and text nodes. It knows nothing about the tag vocabulary; the
// template compiler interprets the tree.
package markup

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
)

// Node is either *Element or Text.
type Node interface {
	isNode()
}

// Text is a raw character-data node. Whitespace is preserved here; the
// compiler owns whitespace collapsing.
type Text string

func (Text) isNode() {}

// Element is a named node with unique string attributes and ordered children.
type Element struct {
	Name     string
	Attrs    map[string]string
	Children []Node
}

func (*Element) isNode() {}

// Attr returns the attribute value and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Parse reads one document and returns its root element.
func Parse(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)

	var root *Element
	var stack []*Element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("markup: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: t.Name.Local, Attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				if _, dup := el.Attrs[a.Name.Local]; dup {
					return nil, fmt.Errorf("markup: <%s> has duplicate attribute %q", el.Name, a.Name.Local)
				}
				el.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("markup: multiple root elements (<%s> after <%s>)", el.Name, root.Name)
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("markup: unexpected closing tag </%s>", t.Name.Local)
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) == 0 {
				// Whitespace around the root is meaningless; anything else is junk.
				if strings.TrimSpace(string(t)) != "" {
					return nil, fmt.Errorf("markup: text outside the root element")
				}
				continue
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, Text(t))

		case xml.Comment, xml.ProcInst, xml.Directive:
			// Ignored: comments and declarations carry no template content.
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("markup: unclosed element <%s>", stack[len(stack)-1].Name)
	}
	if root == nil {
		return nil, fmt.Errorf("markup: empty document")
	}
	return root, nil
}

// ParseString parses a document held in memory.
func ParseString(src string) (*Element, error) {
	return Parse(strings.NewReader(src))
}

// ParseFile parses the document at path.
func ParseFile(path string) (*Element, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	el, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return el, nil
}
