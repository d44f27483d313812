package template

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"renderbot/internal/markup"
	"renderbot/pkg/logx"
)

// Loader resolves template names to parsed documents from a directory,
// caching parse results. Watch invalidates cached entries when the files
// change on disk, so long-running bots pick up template edits without a
// restart.
type Loader struct {
	dir string
	log logx.Logger

	mu    sync.RWMutex
	cache map[string]*markup.Element
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string, log logx.Logger) (*Loader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("template dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template dir: %s is not a directory", dir)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loader{dir: dir, log: log, cache: make(map[string]*markup.Element)}, nil
}

// Load returns the parsed document for name (a path relative to the loader
// root). Results are cached until the underlying file changes.
func (l *Loader) Load(name string) (*markup.Element, error) {
	key, err := l.key(name)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	el, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return el, nil
	}

	el, err = markup.ParseFile(filepath.Join(l.dir, key))
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cache[key] = el
	l.mu.Unlock()
	return el, nil
}

// key normalizes a template name and rejects paths escaping the root.
func (l *Loader) key(name string) (string, error) {
	name = filepath.ToSlash(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("template name is empty")
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("template name %q escapes the template directory", name)
	}
	return clean, nil
}

func (l *Loader) invalidate(rel string) {
	l.mu.Lock()
	_, had := l.cache[rel]
	delete(l.cache, rel)
	l.mu.Unlock()
	if had {
		l.log.Debug("template cache invalidated", logx.String("template", rel))
	}
}

func (l *Loader) invalidateAll() {
	l.mu.Lock()
	l.cache = make(map[string]*markup.Element)
	l.mu.Unlock()
}

// Watch invalidates cache entries as template files change. The watcher can
// get into a bad state on some platforms; it is recreated with a small
// backoff when its channels close. Watch returns when ctx is done.
func (l *Loader) Watch(ctx context.Context) error {
	const (
		backoffBase = 250 * time.Millisecond
		backoffMax  = 5 * time.Second
	)
	backoff := backoffBase

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(l.dir)
			if err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			l.log.Warn("template watch init failed", logx.Err(err), logx.String("dir", l.dir))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < backoffMax {
				backoff *= 2
			}
			continue
		}

		backoff = backoffBase
		l.log.Debug("template watcher started", logx.String("dir", l.dir))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					rel, err := filepath.Rel(l.dir, ev.Name)
					if err != nil || strings.HasPrefix(rel, "..") {
						rel = filepath.Base(ev.Name)
					}
					l.invalidate(rel)
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				// Overflow means events were missed; drop the whole cache.
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					l.log.Warn("template watch overflow; flushing cache", logx.Err(err))
					l.invalidateAll()
					continue
				}
				l.log.Warn("template watch error", logx.Err(err))
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("template watcher stopped; restarting", logx.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < backoffMax {
			backoff *= 2
		}
	}
}
