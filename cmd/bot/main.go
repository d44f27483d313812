package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"renderbot/internal/app"
	"renderbot/internal/config"
	"renderbot/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Console logger for the window before the configured one exists.
	boot := logx.NewConsole("info")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot.Error("config load failed", logx.Err(err))
		os.Exit(1)
	}

	log, err := logx.New(cfg.Logging)
	if err != nil {
		boot.Error("logger init failed", logx.Err(err))
		os.Exit(1)
	}
	defer log.Close()

	bot, err := app.New(cfg, log)
	if err != nil {
		log.Error("startup failed", logx.Err(err))
		os.Exit(1)
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	err = bot.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		log.Error("bot stopped with error", logx.Err(err))
		os.Exit(1)
	}
}
