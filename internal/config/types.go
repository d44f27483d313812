package config

import (
	"fmt"
	"strings"
	"time"

	"renderbot/pkg/logx"
)

type Config struct {
	Telegram   TelegramConfig    `json:"telegram"`
	Logging    logx.Config       `json:"logging"`
	Templates  TemplatesConfig   `json:"templates"`
	Store      StoreConfig       `json:"store,omitempty"`
	Commands   []CommandBinding  `json:"commands,omitempty"`
	Broadcasts []BroadcastConfig `json:"broadcasts,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type TemplatesConfig struct {
	Dir string `json:"dir"`

	// Watch enables fsnotify-based cache invalidation for template edits.
	Watch bool `json:"watch,omitempty"`
}

type StoreConfig struct {
	Path string `json:"path,omitempty"`
}

// CommandBinding maps a chat command to a template.
type CommandBinding struct {
	Command  string `json:"command"`
	Template string `json:"template"`

	// Edit makes the binding a "panel": the bot edits its previous message
	// for this (chat, command) instead of sending a new one. Requires store.path.
	Edit bool `json:"edit,omitempty"`

	Vars map[string]string `json:"vars,omitempty"`
}

// BroadcastConfig schedules a template send to a fixed set of chats.
type BroadcastConfig struct {
	Name     string            `json:"name"`
	Schedule string            `json:"schedule"` // standard 5-field cron spec
	Template string            `json:"template"`
	Chats    []int64           `json:"chats"`
	Vars     map[string]string `json:"vars,omitempty"`

	// RatePerSec caps sends per second for this broadcast (default 20).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// Validate checks the parts that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(c.Templates.Dir) == "" {
		return fmt.Errorf("templates.dir is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Commands))
	for i, cmd := range c.Commands {
		if !strings.HasPrefix(cmd.Command, "/") {
			return fmt.Errorf("commands[%d].command %q must start with '/'", i, cmd.Command)
		}
		if seen[cmd.Command] {
			return fmt.Errorf("commands[%d]: duplicate command %q", i, cmd.Command)
		}
		seen[cmd.Command] = true
		if strings.TrimSpace(cmd.Template) == "" {
			return fmt.Errorf("commands[%d].template is required", i)
		}
		if cmd.Edit && strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("commands[%d]: edit bindings require store.path", i)
		}
	}
	for i, b := range c.Broadcasts {
		if strings.TrimSpace(b.Schedule) == "" {
			return fmt.Errorf("broadcasts[%d].schedule is required", i)
		}
		if strings.TrimSpace(b.Template) == "" {
			return fmt.Errorf("broadcasts[%d].template is required", i)
		}
		if len(b.Chats) == 0 {
			return fmt.Errorf("broadcasts[%d].chats is empty", i)
		}
	}
	return nil
}

// PollTimeoutDuration returns the parsed poll timeout, defaulting to 10s.
func (c *TelegramConfig) PollTimeoutDuration() time.Duration {
	d, err := ParseDurationOrDefault("telegram.poll_timeout", c.PollTimeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
