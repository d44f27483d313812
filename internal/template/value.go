package template

import (
	"renderbot/internal/render"
	"renderbot/internal/transport"
)

// Value is the closed set of results a tag handler can produce. Each parent
// scope accepts a subset of these kinds and folds them into its builder.
type Value interface {
	isValue()
}

// InlineText appends to the current paragraph (or button label) buffer.
type InlineText string

// BlockText closes the current paragraph and stands as a paragraph of its
// own. An empty BlockText renders as a blank line.
type BlockText string

// Image attaches a photo to the message under construction.
type Image transport.MediaRef

// Animation attaches an animation to the message under construction.
type Animation transport.MediaRef

// InlineButton and ReplyButton accumulate into the current keyboard row.
type InlineButton transport.Button

type ReplyButton transport.ReplyButton

// InlineRow and ReplyRow close the current row buffer and are appended as
// complete rows.
type InlineRow []transport.Button

type ReplyRow []transport.ReplyButton

// InlineKeyboard and ReplyKeyboard attach reply markup to the message.
type InlineKeyboard transport.Keyboard

type ReplyKeyboard transport.Keyboard

// Message is one compiled message render.
type Message struct {
	Render *render.MessageRender
}

// MessageSet is an ordered collection of compiled renders.
type MessageSet struct {
	List render.List
}

// Fragment carries the values of an included template so they fold into the
// caller's builder in document order.
type Fragment []Value

func (InlineText) isValue()     {}
func (BlockText) isValue()      {}
func (Image) isValue()          {}
func (Animation) isValue()      {}
func (InlineButton) isValue()   {}
func (ReplyButton) isValue()    {}
func (InlineRow) isValue()      {}
func (ReplyRow) isValue()       {}
func (InlineKeyboard) isValue() {}
func (ReplyKeyboard) isValue()  {}
func (Message) isValue()        {}
func (MessageSet) isValue()     {}
func (Fragment) isValue()       {}
