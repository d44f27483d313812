package telegram

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "renderbot/internal/transport"
)

func TestSplitTextShort(t *testing.T) {
	got := splitText("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 60) + "\n" + strings.Repeat("b", 60)
	got := splitText(text, 100)
	if len(got) != 2 {
		t.Fatalf("got %d chunks: %v", len(got), got)
	}
	if !strings.HasPrefix(got[0], "a") || strings.ContainsRune(got[0], 'b') {
		t.Errorf("first chunk crosses the newline: %q", got[0])
	}
	if !strings.HasPrefix(got[1], "b") {
		t.Errorf("second chunk = %q", got[1])
	}
}

func TestSplitTextHardLimit(t *testing.T) {
	text := strings.Repeat("x", 250)
	got := splitText(text, 100)
	if len(got) != 3 {
		t.Fatalf("got %d chunks", len(got))
	}
	for i, chunk := range got {
		if len([]rune(chunk)) > 100 {
			t.Errorf("chunk %d exceeds limit: %d runes", i, len([]rune(chunk)))
		}
	}
}

func TestMapErr(t *testing.T) {
	if mapErr(nil) != nil {
		t.Error("nil must pass through")
	}

	forbidden := &tele.Error{Code: 403, Description: "bot was blocked by the user"}
	if !errors.Is(mapErr(forbidden), kit.ErrRecipientForbidden) {
		t.Error("403 must map to ErrRecipientForbidden")
	}

	other := &tele.Error{Code: 400, Description: "message is not modified"}
	if errors.Is(mapErr(other), kit.ErrRecipientForbidden) {
		t.Error("400 must not map to ErrRecipientForbidden")
	}

	plain := errors.New("dial tcp: timeout")
	if mapErr(plain) != plain {
		t.Error("non-telebot errors must pass through unchanged")
	}
}

func TestReplyMarkup(t *testing.T) {
	if replyMarkup(nil) != nil {
		t.Fatal("nil keyboard must map to nil markup")
	}

	inline := &kit.Keyboard{Inline: [][]kit.Button{{
		{Text: "Go", URL: "https://example.com"},
		{Text: "Pick", Data: "pick:1"},
	}}}
	rm := replyMarkup(inline)
	if len(rm.InlineKeyboard) != 1 || len(rm.InlineKeyboard[0]) != 2 {
		t.Fatalf("inline = %+v", rm.InlineKeyboard)
	}
	if rm.InlineKeyboard[0][1].Data != "pick:1" {
		t.Errorf("data = %q", rm.InlineKeyboard[0][1].Data)
	}

	reply := &kit.Keyboard{
		Reply:       [][]kit.ReplyButton{{{Text: "Phone", Contact: true}}},
		Resize:      true,
		Placeholder: "choose",
	}
	rm = replyMarkup(reply)
	if len(rm.ReplyKeyboard) != 1 || !rm.ReplyKeyboard[0][0].Contact {
		t.Fatalf("reply = %+v", rm.ReplyKeyboard)
	}
	if !rm.ResizeKeyboard || rm.Placeholder != "choose" {
		t.Errorf("options = %+v", rm)
	}
}

func TestMediaFile(t *testing.T) {
	if f := mediaFile(kit.MediaRef{FileID: "AgACx"}); f.FileID != "AgACx" {
		t.Errorf("file id ref = %+v", f)
	}
	if f := mediaFile(kit.MediaRef{FileID: "https://example.com/cat.png"}); f.FileURL == "" {
		t.Errorf("url ref = %+v", f)
	}
	if f := mediaFile(kit.MediaRef{Upload: &kit.Upload{Path: "/tmp/cat.png"}}); f.FileLocal != "/tmp/cat.png" {
		t.Errorf("disk ref = %+v", f)
	}
}
