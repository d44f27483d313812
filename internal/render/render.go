// Package render holds the compiled representation of chat messages and the
// logic that reconciles them against the transport: send a new message, or
// edit one that already exists.
package render

import (
	"context"
	"errors"

	"renderbot/internal/transport"
)

var (
	// ErrMediaConflict reports a render carrying both a photo and an animation.
	ErrMediaConflict = errors.New("message cannot contain both a photo and an animation")
	// ErrMediaMismatch reports an edit that would change the media type of an
	// existing message, which the platform does not allow.
	ErrMediaMismatch = errors.New("cannot change media type on edit")
	// ErrMultipleRenders reports an Extract on a list with more than one render.
	ErrMultipleRenders = errors.New("render list contains more than one message")
)

// MessageRender is one compiled, validated chat message: text plus optional
// media and keyboard. It is immutable after compilation.
type MessageRender struct {
	Text      string
	Photo     *transport.MediaRef
	Animation *transport.MediaRef
	Keyboard  *transport.Keyboard
}

// Validate checks the media invariant. It only inspects, never mutates.
func (r *MessageRender) Validate() error {
	if r.Photo != nil && r.Animation != nil {
		return ErrMediaConflict
	}
	return nil
}

// MediaKind classifies this render's media.
func (r *MessageRender) MediaKind() transport.MediaKind {
	switch {
	case r.Photo != nil:
		return transport.MediaPhoto
	case r.Animation != nil:
		return transport.MediaAnimation
	default:
		return transport.MediaNone
	}
}

func (r *MessageRender) options() *transport.SendOptions {
	return &transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
		Keyboard:       r.Keyboard,
	}
}

// Send delivers the render as a new message: exactly one transport call,
// chosen by the media present. The keyboard rides on whichever call is made.
func (r *MessageRender) Send(ctx context.Context, ad transport.Adapter, to transport.ChatTarget) (transport.MessageRef, error) {
	if err := r.Validate(); err != nil {
		return transport.MessageRef{}, err
	}
	opt := r.options()
	switch {
	case r.Photo != nil:
		return ad.SendPhoto(ctx, to, *r.Photo, r.Text, opt)
	case r.Animation != nil:
		return ad.SendAnimation(ctx, to, *r.Animation, r.Text, opt)
	default:
		return ad.SendText(ctx, to, r.Text, opt)
	}
}

// Edit reconciles the render against an existing message whose media kind is
// existing. The branches are mutually exclusive and evaluated in this fixed
// order:
//
//  1. text-only render onto a text-only message: edit the text;
//  2. same media kind on both sides: swap the media, text as caption;
//  3. render has media of a different kind: ErrMediaMismatch;
//  4. otherwise the message has media and the render does not: edit the caption.
func (r *MessageRender) Edit(ctx context.Context, ad transport.Adapter, ref transport.MessageRef, existing transport.MediaKind) error {
	if err := r.Validate(); err != nil {
		return err
	}
	opt := r.options()
	kind := r.MediaKind()

	switch {
	case existing == transport.MediaNone && kind == transport.MediaNone && r.Text != "":
		return ad.EditText(ctx, ref, r.Text, opt)
	case kind != transport.MediaNone && kind == existing:
		media := r.Photo
		if kind == transport.MediaAnimation {
			media = r.Animation
		}
		return ad.EditMedia(ctx, ref, kind, *media, r.Text, opt)
	case kind != transport.MediaNone:
		return ErrMediaMismatch
	default:
		return ad.EditCaption(ctx, ref, r.Text, opt)
	}
}
