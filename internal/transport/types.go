// Package transport defines the platform-neutral contract between rendered
// messages and a concrete messaging backend (Telegram in this repo).
package transport

import (
	"context"
	"errors"
	"io"
)

// ErrRecipientForbidden reports that the recipient cannot be reached (blocked
// the bot, deactivated account, kicked the bot from the chat). It is the only
// transport condition callers are expected to tolerate.
var ErrRecipientForbidden = errors.New("recipient forbidden")

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Incoming
	Callback *Callback
}

// Incoming is a received chat message.
type Incoming struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// MediaKind classifies the media attached to a message (or its absence).
type MediaKind string

const (
	MediaNone      MediaKind = ""
	MediaPhoto     MediaKind = "photo"
	MediaAnimation MediaKind = "animation"
)

// Upload is media supplied as content rather than by reference. Exactly one
// of Reader and Path should be set.
type Upload struct {
	Reader io.Reader
	Path   string
	Name   string
}

// MediaRef identifies media either by a platform file id / URL or by upload.
type MediaRef struct {
	FileID string
	Upload *Upload
}

func (m MediaRef) IsZero() bool { return m.FileID == "" && m.Upload == nil }

// WebApp and Login mirror the platform button payloads. They are passed into
// templates as opaque context values.
type WebApp struct {
	URL string
}

type Login struct {
	URL         string
	Text        string
	BotUsername string
}

// Game marks a callback-game button. The platform payload carries no data;
// presence is the whole signal.
type Game struct{}

// Button is one inline-keyboard button.
type Button struct {
	Text            string
	URL             string
	Data            string
	WebApp          *WebApp
	Login           *Login
	Game            *Game
	InlineQuery     string
	InlineQueryChat string
	Pay             bool
}

// ReplyButton is one reply-keyboard button.
type ReplyButton struct {
	Text     string
	Contact  bool
	Location bool
	Poll     string // "", "quiz" or "regular"
	WebApp   *WebApp
}

// Keyboard is a complete reply markup. Inline and Reply are mutually
// exclusive; whichever is non-nil wins.
type Keyboard struct {
	Inline [][]Button
	Reply  [][]ReplyButton

	// Reply keyboard options.
	Resize      bool
	OneTime     bool
	Selective   bool
	Placeholder string
}

// SendOptions carries per-call presentation knobs.
type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Keyboard       *Keyboard
}

// Adapter performs the actual network calls. Implementations map their
// platform's "recipient unreachable" failures to ErrRecipientForbidden.
type Adapter interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, media MediaRef, caption string, opt *SendOptions) (MessageRef, error)
	SendAnimation(ctx context.Context, to ChatTarget, media MediaRef, caption string, opt *SendOptions) (MessageRef, error)

	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	EditMedia(ctx context.Context, ref MessageRef, kind MediaKind, media MediaRef, caption string, opt *SendOptions) error
	EditCaption(ctx context.Context, ref MessageRef, caption string, opt *SendOptions) error
}

// Receiver is implemented by adapters that also consume updates (long poll).
type Receiver interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
