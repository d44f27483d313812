package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"renderbot/internal/render"
	"renderbot/internal/template"
	"renderbot/internal/transport"
	"renderbot/pkg/logx"
)

type stubCompiler struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubCompiler) CompileFile(name string, ctx template.Context) (render.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	chatID, _ := ctx.Lookup("chat_id")
	return render.List{{Text: "to " + chatID.(string)}}, nil
}

type stubAdapter struct {
	mu   sync.Mutex
	sent []string

	forbidden map[int64]bool
}

func (s *stubAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forbidden[to.ChatID] {
		return transport.MessageRef{}, transport.ErrRecipientForbidden
	}
	s.sent = append(s.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(s.sent)}, nil
}

func (s *stubAdapter) SendPhoto(context.Context, transport.ChatTarget, transport.MediaRef, string, *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{}, errors.New("unexpected")
}

func (s *stubAdapter) SendAnimation(context.Context, transport.ChatTarget, transport.MediaRef, string, *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{}, errors.New("unexpected")
}

func (s *stubAdapter) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return errors.New("unexpected")
}

func (s *stubAdapter) EditMedia(context.Context, transport.MessageRef, transport.MediaKind, transport.MediaRef, string, *transport.SendOptions) error {
	return errors.New("unexpected")
}

func (s *stubAdapter) EditCaption(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return errors.New("unexpected")
}

func TestAddRejectsBadSchedule(t *testing.T) {
	s := New(Config{}, &stubCompiler{}, &stubAdapter{}, logx.Nop())
	if err := s.Add(Entry{Name: "bad", Schedule: "not a cron spec", Template: "x.xml"}); err == nil {
		t.Fatal("expected schedule parse error")
	}
	if err := s.Add(Entry{Name: "ok", Schedule: "0 9 * * *", Template: "x.xml"}); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if err := s.Add(Entry{Name: "every", Schedule: "@every 1h", Template: "x.xml"}); err != nil {
		t.Fatalf("@every rejected: %v", err)
	}
}

func TestAddAfterStart(t *testing.T) {
	s := New(Config{}, &stubCompiler{}, &stubAdapter{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if err := s.Add(Entry{Name: "late", Schedule: "@every 1h", Template: "x.xml"}); err == nil {
		t.Fatal("expected error adding after start")
	}
}

// Stop must be safe while workers are draining the queue: workers own their
// channels as parameters and never touch the fields Stop mutates.
func TestStopConcurrentWithEnqueue(t *testing.T) {
	comp := &stubCompiler{}
	ad := &stubAdapter{}
	s := New(Config{Workers: 4, RatePerSec: 100000}, comp, ad, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			s.enqueue(job{name: "load", template: "x.xml", chats: []int64{1}})
		}
	}()

	s.Stop(context.Background())
	<-done
	s.Stop(context.Background()) // second Stop is a no-op

	// Enqueue after Stop must not deliver into a stopped service.
	s.enqueue(job{name: "late", template: "x.xml", chats: []int64{2}})
}

func TestRunDeliversPerChat(t *testing.T) {
	comp := &stubCompiler{}
	ad := &stubAdapter{forbidden: map[int64]bool{200: true}}
	s := New(Config{RatePerSec: 1000}, comp, ad, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.run(ctx, job{
		name:     "t",
		template: "daily.xml",
		chats:    []int64{100, 200, 300},
		vars:     map[string]string{"kind": "daily"},
	})

	comp.mu.Lock()
	compiles := len(comp.calls)
	comp.mu.Unlock()
	if compiles != 3 {
		t.Errorf("compiles = %d, want one per chat", compiles)
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()
	want := []string{"to 100", "to 300"}
	if len(ad.sent) != len(want) || ad.sent[0] != want[0] || ad.sent[1] != want[1] {
		t.Errorf("sent = %v, want %v", ad.sent, want)
	}
}
