package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vendalink/salechat-server/internal/app"
	"github.com/vendalink/salechat-server/internal/config"
	"github.com/vendalink/salechat-server/internal/log"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	bootLogger := log.New("info")
	cfg, usedPath, err := config.Load(bootLogger, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.LogLevel)
	logger.Info().Str("config", usedPath).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting salechat server")
	if err := application.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}
