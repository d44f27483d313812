package render

import (
	"context"
	"errors"

	"renderbot/internal/transport"
)

// List is an ordered collection of renders. Insertion order is document
// order is send order.
type List []*MessageRender

// Send delivers every render to the recipient strictly in order; a send is
// not issued before the previous one has resolved, so chat order matches
// document order.
//
// A recipient-forbidden result is expected (the user blocked the bot): the
// corresponding slot in the returned slice is nil and the batch continues.
// Any other transport failure aborts the remaining sends and is returned
// together with the refs delivered so far; messages already dispatched stay
// delivered (at-least-once-prefix, no rollback).
func (l List) Send(ctx context.Context, ad transport.Adapter, to transport.ChatTarget) ([]*transport.MessageRef, error) {
	refs := make([]*transport.MessageRef, 0, len(l))
	for _, r := range l {
		ref, err := r.Send(ctx, ad, to)
		if err != nil {
			if errors.Is(err, transport.ErrRecipientForbidden) {
				refs = append(refs, nil)
				continue
			}
			return refs, err
		}
		refs = append(refs, &ref)
	}
	return refs, nil
}

// Extract returns the sole render of the list, nil for an empty list, and
// ErrMultipleRenders when there is more than one.
func (l List) Extract() (*MessageRender, error) {
	switch len(l) {
	case 0:
		return nil, nil
	case 1:
		return l[0], nil
	default:
		return nil, ErrMultipleRenders
	}
}
