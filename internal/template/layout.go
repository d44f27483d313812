package template

import "strings"

// TextLayout accumulates inline fragments into paragraphs. Inline fragments
// are joined by single spaces; paragraphs are joined by single newlines.
// Result finalizes the layout and is called exactly once per scope parse.
type TextLayout struct {
	paragraphs []string
	buffer     []string
}

func (l *TextLayout) closeParagraph() {
	if len(l.buffer) == 0 {
		return
	}
	l.paragraphs = append(l.paragraphs, strings.Join(l.buffer, " "))
	l.buffer = l.buffer[:0]
}

// Add appends an inline fragment to the current paragraph. Empty fragments
// are ignored.
func (l *TextLayout) Add(text string) {
	if text == "" {
		return
	}
	l.buffer = append(l.buffer, text)
}

// AddParagraph closes the current paragraph and appends text as a complete
// paragraph of its own. An empty text yields a blank line in the result.
func (l *TextLayout) AddParagraph(text string) {
	l.closeParagraph()
	l.paragraphs = append(l.paragraphs, text)
}

// Result flushes the trailing buffer and joins the paragraphs.
func (l *TextLayout) Result() string {
	l.closeParagraph()
	return strings.Join(l.paragraphs, "\n")
}

// KeyboardLayout accumulates buttons into rows. Loose buttons gather in a
// row buffer; a complete row closes the buffer and is appended verbatim.
type KeyboardLayout[B any] struct {
	rows   [][]B
	buffer []B
}

func (l *KeyboardLayout[B]) closeRow() {
	if len(l.buffer) == 0 {
		return
	}
	l.rows = append(l.rows, l.buffer)
	l.buffer = nil
}

// Add appends a button to the current row buffer.
func (l *KeyboardLayout[B]) Add(btn B) {
	l.buffer = append(l.buffer, btn)
}

// AddRow closes the current row buffer and appends row as-is.
func (l *KeyboardLayout[B]) AddRow(row []B) {
	l.closeRow()
	l.rows = append(l.rows, row)
}

// Result flushes any trailing buffer and returns the completed rows.
func (l *KeyboardLayout[B]) Result() [][]B {
	l.closeRow()
	return l.rows
}
