package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
telegram:
  token: "123:abc"
  poll_timeout: "15s"
logging:
  level: debug
  console: true
templates:
  dir: ./templates
store:
  path: ./data/bot.db
commands:
  - command: /status
    template: status.xml
    edit: true
    vars:
      service: api
broadcasts:
  - name: daily
    schedule: "0 9 * * *"
    template: daily.xml
    chats: [100, 200]
    rate_per_sec: 5
`

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if got := cfg.Telegram.PollTimeoutDuration(); got != 15*time.Second {
		t.Errorf("poll timeout = %v", got)
	}
	if len(cfg.Commands) != 1 || cfg.Commands[0].Command != "/status" || !cfg.Commands[0].Edit {
		t.Errorf("commands = %+v", cfg.Commands)
	}
	if cfg.Commands[0].Vars["service"] != "api" {
		t.Errorf("vars = %v", cfg.Commands[0].Vars)
	}
	if len(cfg.Broadcasts) != 1 || len(cfg.Broadcasts[0].Chats) != 2 {
		t.Errorf("broadcasts = %+v", cfg.Broadcasts)
	}
}

func TestLoadJSON(t *testing.T) {
	body := `{
  "telegram": {"token": "123:abc"},
  "logging": {"level": "info"},
  "templates": {"dir": "./templates"}
}`
	cfg, err := Load(writeConfig(t, "config.json", body))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Templates.Dir != "./templates" {
		t.Errorf("dir = %q", cfg.Templates.Dir)
	}
	// Default when the field is absent.
	if got := cfg.Telegram.PollTimeoutDuration(); got != 10*time.Second {
		t.Errorf("poll timeout = %v", got)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	body := `
telegram:
  token: "123:abc"
  tokne: "typo"
templates:
  dir: ./templates
`
	_, err := Load(writeConfig(t, "config.yaml", body))
	if err == nil || !strings.Contains(err.Error(), "tokne") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Telegram:  TelegramConfig{Token: "123:abc"},
			Templates: TemplatesConfig{Dir: "./templates"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantSub string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing token",
			mutate:  func(c *Config) { c.Telegram.Token = " " },
			wantSub: "telegram.token",
		},
		{
			name:    "missing template dir",
			mutate:  func(c *Config) { c.Templates.Dir = "" },
			wantSub: "templates.dir",
		},
		{
			name:    "bad poll timeout",
			mutate:  func(c *Config) { c.Telegram.PollTimeout = "soon" },
			wantSub: "poll_timeout",
		},
		{
			name: "command without slash",
			mutate: func(c *Config) {
				c.Commands = []CommandBinding{{Command: "status", Template: "s.xml"}}
			},
			wantSub: "must start with '/'",
		},
		{
			name: "duplicate command",
			mutate: func(c *Config) {
				c.Commands = []CommandBinding{
					{Command: "/s", Template: "a.xml"},
					{Command: "/s", Template: "b.xml"},
				}
			},
			wantSub: "duplicate",
		},
		{
			name: "edit binding without store",
			mutate: func(c *Config) {
				c.Commands = []CommandBinding{{Command: "/s", Template: "a.xml", Edit: true}}
			},
			wantSub: "store.path",
		},
		{
			name: "broadcast without chats",
			mutate: func(c *Config) {
				c.Broadcasts = []BroadcastConfig{{Name: "d", Schedule: "@daily", Template: "d.xml"}}
			},
			wantSub: "chats",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantSub == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("err = %v, want substring %q", err, tt.wantSub)
			}
		})
	}
}
