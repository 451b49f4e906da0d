package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	. "github.com/jimiolaniyan/identity"
	"github.com/jimiolaniyan/identity/config"
)

const startupTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	app, err := NewApp(startCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}

	return app.Run(ctx)
}
