package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/broadcaster/app/broadcaster"
	"github.com/dmitrymomot/broadcaster/core/config"
	"github.com/dmitrymomot/broadcaster/core/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg broadcaster.Config
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.AppName),
		logger.WithLevelName(cfg.LogLevel),
	)
	logger.SetAsDefault(log)

	app, err := broadcaster.NewApp(cfg, broadcaster.WithLogger(log))
	if err != nil {
		log.Error("failed to initialize broadcaster", logger.Error(err))
		os.Exit(1)
	}

	log.Info("broadcaster starting", logger.Key("addr", cfg.Server.Addr))
	if err := app.Run(ctx); err != nil {
		log.Error("broadcaster stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("broadcaster stopped")
}
