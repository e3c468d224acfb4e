package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/basel-ax/promptpix/internal/config"
	"github.com/basel-ax/promptpix/internal/inject"
	"github.com/basel-ax/promptpix/internal/log"
	"github.com/basel-ax/promptpix/internal/transport/http/api"
	"github.com/gin-gonic/gin"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse command line flags
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	envFile := flag.String("env", ".env", "Path to a .env file (optional)")
	configFile := flag.String("config", "", "Path to a TOML config file (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*envFile, *configFile)
	if err != nil {
		log.New(os.Stderr, slog.LevelInfo).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Configure logging
	level := log.ParseLevel(cfg.LogLevel)
	if *verbose {
		level = slog.LevelDebug
	}
	logger := log.New(os.Stderr, level)
	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger.Info("configuration loaded",
		"addr", cfg.GetAddr(),
		"inference_url", cfg.Upstream.URL,
		"api_key", cfg.Upstream.APIKey,
		"max_retries", cfg.Retry.MaxRetries,
	)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.NewContext(ctx, logger)

	injector := inject.Setup(ctx, cfg)
	server := do.MustInvoke[*api.Server](injector)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Start(ctx)
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down gracefully")
		return nil
	})

	err = group.Wait()
	if shutdownErr := injector.Shutdown(); shutdownErr != nil {
		logger.Warn("error during shutdown", "error", shutdownErr)
	}
	if err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
