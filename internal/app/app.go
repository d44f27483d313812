// Package app wires configuration, the template compiler, the message store
// and the Telegram transport into a running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"renderbot/internal/broadcast"
	"renderbot/internal/config"
	"renderbot/internal/render"
	"renderbot/internal/store"
	"renderbot/internal/template"
	"renderbot/internal/transport"
	"renderbot/internal/transport/telegram"
	"renderbot/pkg/logx"
)

type App struct {
	cfg *config.Config
	log logx.Logger

	adapter  transport.Adapter
	receiver transport.Receiver
	loader   *template.Loader
	compiler *template.Compiler
	store    *store.Store
	bcast    *broadcast.Service

	bindings map[string]config.CommandBinding

	updates chan transport.Update
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg *config.Config, log logx.Logger) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	loader, err := template.NewLoader(cfg.Templates.Dir, log.With(logx.String("component", "templates")))
	if err != nil {
		return nil, err
	}
	compiler, err := template.New(template.WithLoader(loader))
	if err != nil {
		return nil, err
	}

	tg, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeoutDuration(),
	}, log.With(logx.String("component", "telegram")))
	if err != nil {
		return nil, err
	}

	var st *store.Store
	if strings.TrimSpace(cfg.Store.Path) != "" {
		st, err = store.Open(cfg.Store.Path, log.With(logx.String("component", "store")))
		if err != nil {
			return nil, err
		}
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		adapter:  tg,
		receiver: tg,
		loader:   loader,
		compiler: compiler,
		store:    st,
		bindings: make(map[string]config.CommandBinding, len(cfg.Commands)),
	}
	for _, b := range cfg.Commands {
		a.bindings[b.Command] = b
	}

	if len(cfg.Broadcasts) > 0 {
		rps := 0
		for _, b := range cfg.Broadcasts {
			if b.RatePerSec > rps {
				rps = b.RatePerSec
			}
		}
		a.bcast = broadcast.New(broadcast.Config{RatePerSec: rps}, compiler, tg,
			log.With(logx.String("component", "broadcast")))
		for _, b := range cfg.Broadcasts {
			if err := a.bcast.Add(broadcast.Entry{
				Name:     b.Name,
				Schedule: b.Schedule,
				Template: b.Template,
				Chats:    b.Chats,
				Vars:     b.Vars,
			}); err != nil {
				return nil, err
			}
		}
	}
	return a, nil
}

// Run starts polling and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.cfg.Templates.Watch {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			_ = a.loader.Watch(ctx)
		}()
	}
	if a.bcast != nil {
		a.bcast.Start(ctx)
	}

	a.updates = make(chan transport.Update, 128)
	if err := a.receiver.Start(ctx, a.updates); err != nil {
		cancel()
		return err
	}
	a.log.Info("bot started",
		logx.Int("commands", len(a.bindings)),
		logx.Bool("watch", a.cfg.Templates.Watch))

	for {
		select {
		case <-ctx.Done():
			return a.shutdown()
		case up := <-a.updates:
			a.handle(ctx, up)
		}
	}
}

func (a *App) shutdown() error {
	a.log.Info("shutting down")
	_ = a.receiver.Stop(context.Background())
	if a.bcast != nil {
		a.bcast.Stop(context.Background())
	}
	a.wg.Wait()
	if a.store != nil {
		_ = a.store.Close()
	}
	return nil
}

// Stop cancels Run from outside the polling goroutine.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *App) handle(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message == nil {
			return
		}
		cmd, args := splitCommand(up.Message.Text)
		if cmd == "" {
			return
		}
		binding, ok := a.bindings[cmd]
		if !ok {
			return
		}
		a.dispatch(ctx, binding, up.Message.ChatID, commandVars(up.Message, args, binding.Vars))
	case transport.UpdateCallback:
		if up.Callback == nil {
			return
		}
		// Callback data may name a command binding; it re-renders the panel.
		binding, ok := a.bindings[up.Callback.Data]
		if !ok {
			return
		}
		vars := map[string]any{
			"chat_id": fmt.Sprint(up.Callback.ChatID),
			"user_id": fmt.Sprint(up.Callback.FromID),
		}
		for k, v := range binding.Vars {
			vars[k] = v
		}
		a.dispatch(ctx, binding, up.Callback.ChatID, vars)
	}
}

// splitCommand extracts "/cmd" from a message text, tolerating the
// "/cmd@botname" form Telegram uses in groups.
func splitCommand(text string) (cmd string, args []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd = fields[0]
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return cmd, fields[1:]
}

func commandVars(m *transport.Incoming, args []string, extra map[string]string) map[string]any {
	vars := map[string]any{
		"chat_id":    fmt.Sprint(m.ChatID),
		"user_id":    fmt.Sprint(m.FromID),
		"username":   m.FromUsername,
		"first_name": m.FromName,
		"args":       strings.Join(args, " "),
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

func (a *App) dispatch(ctx context.Context, binding config.CommandBinding, chatID int64, vars map[string]any) {
	log := a.log.With(
		logx.String("command", binding.Command),
		logx.Int64("chat_id", chatID))

	list, err := a.compiler.CompileFile(binding.Template, template.NewContext(vars))
	if err != nil {
		log.Error("template compile failed", logx.String("template", binding.Template), logx.Err(err))
		return
	}

	if binding.Edit && a.store != nil {
		if err := a.renderPanel(ctx, binding, chatID, list); err != nil {
			log.Error("panel render failed", logx.Err(err))
		}
		return
	}

	if _, err := list.Send(ctx, a.adapter, transport.ChatTarget{ChatID: chatID}); err != nil {
		log.Error("send failed", logx.Err(err))
	}
}

// renderPanel edits the previously recorded message for (chat, command) when
// one exists and the platform still accepts the edit; otherwise it sends a
// fresh message. Either way the store ends up pointing at the live message.
func (a *App) renderPanel(ctx context.Context, binding config.CommandBinding, chatID int64, list render.List) error {
	r, err := list.Extract()
	if err != nil {
		return fmt.Errorf("panel template %q: %w", binding.Template, err)
	}
	if r == nil {
		return fmt.Errorf("panel template %q produced no message", binding.Template)
	}

	slot := binding.Command
	rec, err := a.store.Get(ctx, chatID, slot)
	if err != nil {
		return err
	}
	if rec != nil {
		err = r.Edit(ctx, a.adapter, rec.Ref(), rec.Media)
		if err == nil {
			return a.store.Put(ctx, store.Record{
				ChatID:    chatID,
				Slot:      slot,
				MessageID: rec.MessageID,
				Media:     r.MediaKind(),
			})
		}
		if errors.Is(err, transport.ErrRecipientForbidden) {
			return err
		}
		// Deleted message, media-type change, or content identical to the
		// current one. Drop the stale record; a fresh send recovers all of
		// these and re-records below.
		a.log.Debug("panel edit failed; sending fresh", logx.Err(err))
		if derr := a.store.Delete(ctx, chatID, slot); derr != nil {
			a.log.Warn("stale panel record not removed", logx.Err(derr))
		}
	}

	ref, err := r.Send(ctx, a.adapter, transport.ChatTarget{ChatID: chatID})
	if err != nil {
		return err
	}
	return a.store.Put(ctx, store.Record{
		ChatID:    chatID,
		Slot:      slot,
		MessageID: ref.MessageID,
		Media:     r.MediaKind(),
	})
}
