package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ohmynofan/qlyuker-tapper-bot/internal/app"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/config"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/platform/logger"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/platform/ui"
)

func main() {
	_ = logger.Init("logs/app.log")
	defer logger.Close()

	ui.StartUISystem()
	defer ui.StopUISystem()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		print(err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg).Run(ctx); err != nil {
		print(err.Error())
		os.Exit(1)
	}

	time.Sleep(1 * time.Second)
}
