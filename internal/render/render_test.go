package render

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"renderbot/internal/transport"
)

// fakeAdapter records transport calls and can be scripted to fail.
type fakeAdapter struct {
	calls  []string
	nextID int
	fail   map[int]error // call index -> error
}

func (f *fakeAdapter) record(op string) error {
	idx := len(f.calls)
	f.calls = append(f.calls, op)
	if err, ok := f.fail[idx]; ok {
		return err
	}
	return nil
}

func (f *fakeAdapter) ref(to transport.ChatTarget) transport.MessageRef {
	f.nextID++
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}
}

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	if err := f.record("SendText:" + text); err != nil {
		return transport.MessageRef{}, err
	}
	return f.ref(to), nil
}

func (f *fakeAdapter) SendPhoto(_ context.Context, to transport.ChatTarget, _ transport.MediaRef, caption string, _ *transport.SendOptions) (transport.MessageRef, error) {
	if err := f.record("SendPhoto:" + caption); err != nil {
		return transport.MessageRef{}, err
	}
	return f.ref(to), nil
}

func (f *fakeAdapter) SendAnimation(_ context.Context, to transport.ChatTarget, _ transport.MediaRef, caption string, _ *transport.SendOptions) (transport.MessageRef, error) {
	if err := f.record("SendAnimation:" + caption); err != nil {
		return transport.MessageRef{}, err
	}
	return f.ref(to), nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ transport.MessageRef, text string, _ *transport.SendOptions) error {
	return f.record("EditText:" + text)
}

func (f *fakeAdapter) EditMedia(_ context.Context, _ transport.MessageRef, kind transport.MediaKind, _ transport.MediaRef, caption string, _ *transport.SendOptions) error {
	return f.record(fmt.Sprintf("EditMedia:%s:%s", kind, caption))
}

func (f *fakeAdapter) EditCaption(_ context.Context, _ transport.MessageRef, caption string, _ *transport.SendOptions) error {
	return f.record("EditCaption:" + caption)
}

var (
	photoRef = transport.MediaRef{FileID: "AgACphoto"}
	animRef  = transport.MediaRef{FileID: "CgACanim"}
	target   = transport.ChatTarget{ChatID: 42}
)

func TestSendPicksOneCall(t *testing.T) {
	tests := []struct {
		name   string
		render MessageRender
		want   string
	}{
		{"text only", MessageRender{Text: "hi"}, "SendText:hi"},
		{"photo with caption", MessageRender{Text: "cap", Photo: &photoRef}, "SendPhoto:cap"},
		{"animation", MessageRender{Text: "cap", Animation: &animRef}, "SendAnimation:cap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAdapter{}
			ref, err := tt.render.Send(context.Background(), f, target)
			if err != nil {
				t.Fatal(err)
			}
			if ref.ChatID != target.ChatID || ref.MessageID == 0 {
				t.Errorf("ref = %+v", ref)
			}
			if len(f.calls) != 1 || f.calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", f.calls, tt.want)
			}
		})
	}
}

func TestSendValidates(t *testing.T) {
	r := MessageRender{Photo: &photoRef, Animation: &animRef}
	f := &fakeAdapter{}
	if _, err := r.Send(context.Background(), f, target); !errors.Is(err, ErrMediaConflict) {
		t.Fatalf("err = %v, want ErrMediaConflict", err)
	}
	if len(f.calls) != 0 {
		t.Errorf("no transport call expected, got %v", f.calls)
	}
}

func TestEditBranches(t *testing.T) {
	tests := []struct {
		name     string
		render   MessageRender
		existing transport.MediaKind
		want     string // expected call, "" when an error is expected
		wantErr  error
	}{
		{
			name:     "text onto text",
			render:   MessageRender{Text: "new"},
			existing: transport.MediaNone,
			want:     "EditText:new",
		},
		{
			name:     "photo onto photo swaps media",
			render:   MessageRender{Text: "cap", Photo: &photoRef},
			existing: transport.MediaPhoto,
			want:     "EditMedia:photo:cap",
		},
		{
			name:     "animation onto animation",
			render:   MessageRender{Text: "cap", Animation: &animRef},
			existing: transport.MediaAnimation,
			want:     "EditMedia:animation:cap",
		},
		{
			name:     "animation onto photo rejected",
			render:   MessageRender{Text: "cap", Animation: &animRef},
			existing: transport.MediaPhoto,
			wantErr:  ErrMediaMismatch,
		},
		{
			name:     "media onto plain text rejected",
			render:   MessageRender{Text: "cap", Photo: &photoRef},
			existing: transport.MediaNone,
			wantErr:  ErrMediaMismatch,
		},
		{
			name:     "text-only render onto media edits caption",
			render:   MessageRender{Text: "new cap"},
			existing: transport.MediaPhoto,
			want:     "EditCaption:new cap",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAdapter{}
			err := tt.render.Edit(context.Background(), f, transport.MessageRef{ChatID: 42, MessageID: 7}, tt.existing)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if len(f.calls) != 0 {
					t.Errorf("no transport call expected, got %v", f.calls)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(f.calls) != 1 || f.calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", f.calls, tt.want)
			}
		})
	}
}

func TestListSendSkipsForbiddenRecipients(t *testing.T) {
	list := List{
		{Text: "one"},
		{Text: "two"},
		{Text: "three"},
	}
	f := &fakeAdapter{fail: map[int]error{
		1: fmt.Errorf("blocked: %w", transport.ErrRecipientForbidden),
	}}
	refs, err := list.Send(context.Background(), f, target)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 3 {
		t.Fatalf("len(refs) = %d, want 3", len(refs))
	}
	if refs[0] == nil || refs[1] != nil || refs[2] == nil {
		t.Errorf("refs = %v, want [ref, nil, ref]", refs)
	}
	if len(f.calls) != 3 {
		t.Errorf("calls = %v, want all three sends attempted", f.calls)
	}
}

func TestListSendAbortsOnOtherErrors(t *testing.T) {
	list := List{{Text: "one"}, {Text: "two"}, {Text: "three"}}
	boom := errors.New("network down")
	f := &fakeAdapter{fail: map[int]error{1: boom}}

	refs, err := list.Send(context.Background(), f, target)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(refs) != 1 {
		t.Errorf("len(refs) = %d, want 1 (only the delivered prefix)", len(refs))
	}
	if len(f.calls) != 2 {
		t.Errorf("calls = %v, want the third send not attempted", f.calls)
	}
}

func TestListExtract(t *testing.T) {
	one := &MessageRender{Text: "x"}

	if r, err := (List{}).Extract(); err != nil || r != nil {
		t.Errorf("empty list: r=%v err=%v", r, err)
	}
	if r, err := (List{one}).Extract(); err != nil || r != one {
		t.Errorf("single list: r=%v err=%v", r, err)
	}
	if _, err := (List{one, one}).Extract(); !errors.Is(err, ErrMultipleRenders) {
		t.Errorf("err = %v, want ErrMultipleRenders", err)
	}
}
