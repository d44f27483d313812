// Package telegram implements the transport contract on top of telebot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "renderbot/internal/transport"
	"renderbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	mu      sync.Mutex
	out     chan<- kit.Update
	running bool
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.deliver(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Incoming{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				FromName:     strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName),
				Text:         m.Text,
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		a.deliver(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				FromID:    cb.Sender.ID,
				ChatID:    m.Chat.ID,
				MessageID: m.ID,
				Data:      cb.Data,
			},
		})
		return nil
	})
}

func (a *Adapter) deliver(up kit.Update) {
	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		// Consumer slower than the poll loop; dropping beats blocking it.
		a.log.Warn("incoming update dropped (channel full)")
	}
}

// Start begins long polling and forwards updates to out.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	a.mu.Unlock()

	go func() {
		<-ctx.Done()
		a.bot.Stop()
	}()
	go func() {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	}()
	return nil
}

func (a *Adapter) Stop(_ context.Context) error {
	a.mu.Lock()
	wasRunning := a.running
	a.running = false
	a.out = nil
	a.mu.Unlock()
	if wasRunning {
		// telebot's Stop is expected to be fast; run it async so a stuck
		// long-poll cannot hang shutdown.
		go a.bot.Stop()
	}
	return nil
}

// mapErr converts Telegram 403s (blocked, kicked, deactivated) into the
// transport's forbidden sentinel; everything else passes through.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var te *tele.Error
	if errors.As(err, &te) && te.Code == 403 {
		return fmt.Errorf("%w: %s", kit.ErrRecipientForbidden, te.Description)
	}
	return err
}

const textLimit = 4000

// splitText splits long messages into chunks Telegram accepts, preferring
// newline boundaries.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func sendOptions(opt *kit.SendOptions) *tele.SendOptions {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	return &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ReplyMarkup:           replyMarkup(opt.Keyboard),
	}
}

// replyMarkup converts the neutral keyboard model into telebot markup.
// telebot's button model has no pay or callback-game fields, so Pay and Game
// are not mapped here.
func replyMarkup(k *kit.Keyboard) *tele.ReplyMarkup {
	if k == nil {
		return nil
	}
	rm := &tele.ReplyMarkup{
		ResizeKeyboard:  k.Resize,
		OneTimeKeyboard: k.OneTime,
		Selective:       k.Selective,
		Placeholder:     k.Placeholder,
	}
	if len(k.Inline) > 0 {
		rows := make([][]tele.InlineButton, 0, len(k.Inline))
		for _, row := range k.Inline {
			btns := make([]tele.InlineButton, 0, len(row))
			for _, b := range row {
				btn := tele.InlineButton{
					Text:            b.Text,
					URL:             b.URL,
					Data:            b.Data,
					InlineQuery:     b.InlineQuery,
					InlineQueryChat: b.InlineQueryChat,
				}
				if b.WebApp != nil {
					btn.WebApp = &tele.WebApp{URL: b.WebApp.URL}
				}
				if b.Login != nil {
					btn.Login = &tele.Login{
						URL:      b.Login.URL,
						Text:     b.Login.Text,
						Username: b.Login.BotUsername,
					}
				}
				btns = append(btns, btn)
			}
			rows = append(rows, btns)
		}
		rm.InlineKeyboard = rows
		return rm
	}
	if len(k.Reply) > 0 {
		rows := make([][]tele.ReplyButton, 0, len(k.Reply))
		for _, row := range k.Reply {
			btns := make([]tele.ReplyButton, 0, len(row))
			for _, b := range row {
				btn := tele.ReplyButton{
					Text:     b.Text,
					Contact:  b.Contact,
					Location: b.Location,
					Poll:     tele.PollType(b.Poll),
				}
				if b.WebApp != nil {
					btn.WebApp = &tele.WebApp{URL: b.WebApp.URL}
				}
				btns = append(btns, btn)
			}
			rows = append(rows, btns)
		}
		rm.ReplyKeyboard = rows
	}
	return rm
}

func mediaFile(m kit.MediaRef) tele.File {
	if m.Upload != nil {
		if m.Upload.Reader != nil {
			return tele.FromReader(m.Upload.Reader)
		}
		return tele.FromDisk(m.Upload.Path)
	}
	if strings.HasPrefix(m.FileID, "http://") || strings.HasPrefix(m.FileID, "https://") {
		return tele.FromURL(m.FileID)
	}
	return tele.File{FileID: m.FileID}
}

func checkCtx(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	chunks := splitText(text, textLimit)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := checkCtx(ctx); err != nil {
			return first, err
		}
		sendOpt := sendOptions(opt)
		// Markup rides on the first chunk only.
		if i > 0 {
			sendOpt.ReplyMarkup = nil
		}
		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			return first, mapErr(err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, media kit.MediaRef, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := checkCtx(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	photo := &tele.Photo{File: mediaFile(media), Caption: caption}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, photo, sendOptions(opt))
	if err != nil {
		return kit.MessageRef{}, mapErr(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) SendAnimation(ctx context.Context, to kit.ChatTarget, media kit.MediaRef, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := checkCtx(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	anim := &tele.Animation{File: mediaFile(media), Caption: caption}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, anim, sendOptions(opt))
	if err != nil {
		return kit.MessageRef{}, mapErr(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func editable(ref kit.MessageRef) *tele.Message {
	return &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	chunks := splitText(text, textLimit)
	_, err := a.bot.Edit(editable(ref), chunks[0], sendOptions(opt))
	if err != nil {
		return mapErr(err)
	}
	// Overflow cannot be edited into the same message; send the rest fresh.
	for _, chunk := range chunks[1:] {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		sendOpt := sendOptions(opt)
		sendOpt.ReplyMarkup = nil
		if _, err := a.bot.Send(&tele.Chat{ID: ref.ChatID}, chunk, sendOpt); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (a *Adapter) EditMedia(ctx context.Context, ref kit.MessageRef, kind kit.MediaKind, media kit.MediaRef, caption string, opt *kit.SendOptions) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	var input tele.Inputtable
	switch kind {
	case kit.MediaPhoto:
		input = &tele.Photo{File: mediaFile(media), Caption: caption}
	case kit.MediaAnimation:
		input = &tele.Animation{File: mediaFile(media), Caption: caption}
	default:
		return fmt.Errorf("telegram: cannot edit media of kind %q", kind)
	}
	_, err := a.bot.Edit(editable(ref), input, sendOptions(opt))
	return mapErr(err)
}

func (a *Adapter) EditCaption(ctx context.Context, ref kit.MessageRef, caption string, opt *kit.SendOptions) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	_, err := a.bot.EditCaption(editable(ref), caption, sendOptions(opt))
	return mapErr(err)
}
