// Package broadcast runs scheduled template sends to fixed chat lists.
// Each broadcast is a cron entry; deliveries go through a shared worker
// queue and a per-service rate limiter so a large chat list cannot trip
// Telegram flood control.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"renderbot/internal/render"
	"renderbot/internal/template"
	"renderbot/internal/transport"
	"renderbot/pkg/logx"
)

type Config struct {
	Workers    int
	RatePerSec int
}

// Compiler is the slice of the template compiler the broadcaster needs.
type Compiler interface {
	CompileFile(name string, ctx template.Context) (render.List, error)
}

// Entry is one scheduled broadcast.
type Entry struct {
	Name     string
	Schedule string // standard 5-field cron spec or @every
	Template string
	Chats    []int64
	Vars     map[string]string
}

type job struct {
	name     string
	template string
	chats    []int64
	vars     map[string]string
}

type Service struct {
	mu sync.Mutex

	cfg      Config
	compiler Compiler
	adapter  transport.Adapter
	log      logx.Logger

	parser  cron.Parser
	c       *cron.Cron
	limiter *rate.Limiter
	queue   chan job
	stopCh  chan struct{}
	started bool
	stopped bool
}

func New(cfg Config, compiler Compiler, adapter transport.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		compiler: compiler,
		adapter:  adapter,
		log:      log,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Add registers an entry. Must be called before Start.
func (s *Service) Add(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("broadcast: cannot add entries after start")
	}
	if _, err := s.parser.Parse(e.Schedule); err != nil {
		return fmt.Errorf("broadcast %q: bad schedule %q: %w", e.Name, e.Schedule, err)
	}
	if s.c == nil {
		s.c = cron.New(cron.WithParser(s.parser))
	}
	j := job{name: e.Name, template: e.Template, chats: e.Chats, vars: e.Vars}
	_, err := s.c.AddFunc(e.Schedule, func() { s.enqueue(j) })
	return err
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	rps := s.cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)

	// Workers get the channels as parameters: they must never read the
	// service fields, which Stop mutates under the mutex.
	queue := make(chan job, 64)
	stopCh := make(chan struct{})
	s.queue = queue
	s.stopCh = stopCh

	for i := 0; i < workers; i++ {
		go s.worker(ctx, queue, stopCh)
	}
	if s.c == nil {
		s.c = cron.New(cron.WithParser(s.parser))
	}
	s.c.Start()
	s.log.Info("broadcaster started", logx.Int("workers", workers), logx.Int("rps", rps))
}

func (s *Service) Stop(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return
	}
	s.stopped = true
	close(s.stopCh)
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.log.Info("broadcaster stopped")
}

func (s *Service) enqueue(j job) {
	s.mu.Lock()
	queue, stopped := s.queue, s.stopped
	s.mu.Unlock()
	if queue == nil || stopped {
		return
	}
	select {
	case queue <- j:
	default:
		s.log.Warn("broadcast queue full, dropping run", logx.String("broadcast", j.name))
	}
}

func (s *Service) worker(ctx context.Context, queue <-chan job, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.run(ctx, j)
		}
	}
}

func (s *Service) run(ctx context.Context, j job) {
	start := time.Now()
	s.log.Debug("broadcast run starting",
		logx.String("broadcast", j.name),
		logx.Any("chats", j.chats))
	sent, failed := 0, 0
	for _, chatID := range j.chats {
		if err := s.sendOne(ctx, j, chatID); err != nil {
			failed++
			s.log.Warn("broadcast delivery failed",
				logx.String("broadcast", j.name),
				logx.Int64("chat_id", chatID),
				logx.Err(err))
			continue
		}
		sent++
	}
	s.log.Info("broadcast run finished",
		logx.String("broadcast", j.name),
		logx.Int("sent", sent),
		logx.Int("failed", failed),
		logx.Duration("took", time.Since(start)))
}

func (s *Service) sendOne(ctx context.Context, j job, chatID int64) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	vars := make(map[string]any, len(j.vars)+1)
	for k, v := range j.vars {
		vars[k] = v
	}
	vars["chat_id"] = fmt.Sprint(chatID)

	list, err := s.compiler.CompileFile(j.template, template.NewContext(vars))
	if err != nil {
		return fmt.Errorf("compile %q: %w", j.template, err)
	}
	refs, err := list.Send(ctx, s.adapter, transport.ChatTarget{ChatID: chatID})
	if err != nil {
		return err
	}
	// A recipient that blocked the bot yields nil refs, not an error.
	if allNil(refs) {
		s.log.Debug("broadcast recipient unreachable", logx.Int64("chat_id", chatID))
	}
	return nil
}

func allNil(refs []*transport.MessageRef) bool {
	for _, r := range refs {
		if r != nil {
			return false
		}
	}
	return true
}
