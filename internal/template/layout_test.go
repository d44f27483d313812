package template

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTextLayout(t *testing.T) {
	tests := []struct {
		name string
		run  func(l *TextLayout)
		want string
	}{
		{
			name: "inline fragments joined by spaces",
			run: func(l *TextLayout) {
				l.Add("Hello")
				l.Add("<b>world</b>")
			},
			want: "Hello <b>world</b>",
		},
		{
			name: "empty inline fragments ignored",
			run: func(l *TextLayout) {
				l.Add("a")
				l.Add("")
				l.Add("b")
			},
			want: "a b",
		},
		{
			name: "paragraph closes the running buffer",
			run: func(l *TextLayout) {
				l.Add("intro")
				l.AddParagraph("body")
				l.Add("outro")
			},
			want: "intro\nbody\noutro",
		},
		{
			name: "empty paragraph yields a blank line",
			run: func(l *TextLayout) {
				l.Add("a")
				l.AddParagraph("")
				l.Add("b")
			},
			want: "a\n\nb",
		},
		{
			name: "empty layout",
			run:  func(l *TextLayout) {},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l TextLayout
			tt.run(&l)
			if got := l.Result(); got != tt.want {
				t.Errorf("Result() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyboardLayout(t *testing.T) {
	var l KeyboardLayout[string]
	l.Add("a")
	l.Add("b")
	l.AddRow([]string{"c"})
	l.Add("d")

	want := [][]string{{"a", "b"}, {"c"}, {"d"}}
	if diff := cmp.Diff(want, l.Result()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyboardLayoutEmpty(t *testing.T) {
	var l KeyboardLayout[int]
	if got := l.Result(); got != nil {
		t.Errorf("Result() = %v, want nil", got)
	}
}
