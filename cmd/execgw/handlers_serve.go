package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coderunner/execgw/internal/config"
	"github.com/coderunner/execgw/internal/engine"
	"github.com/coderunner/execgw/internal/httpapi"
	"github.com/coderunner/execgw/internal/observability"
)

// runServe implements the serve command: load configuration, start the
// engine and HTTP API, and block until a shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Logging.Debug = true
	}

	logger := observability.NewLogger(cfg.Logging.Debug)
	slog.SetDefault(logger)

	logger.Info("starting execution gateway",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", cfg.Logging.Debug,
	)

	metrics := observability.NewMetrics()

	eng, err := engine.New(engine.Config{
		MaxConcurrent: cfg.Engine.MaxConcurrent,
		Deadline:      time.Duration(cfg.Engine.RunTimeoutMs) * time.Millisecond,
		MaxOutput:     cfg.Engine.MaxOutputBytes,
		CacheTTL:      cfg.Engine.CacheTTL,
		CacheMaxSize:  cfg.Engine.CacheMaxSize,
		BreakerConfig: cfg.Engine.Breaker.ToBreaker(),
	}, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	eng.SetMetrics(metrics)

	startCtx, cancelStart := context.WithTimeout(ctx, 30*time.Second)
	eng.Start(startCtx)
	cancelStart()

	server := httpapi.New(eng, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := server.Start(addr); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	logger.Info("execution gateway started", "addr", addr)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Warn("engine shutdown error", "error", err)
	}

	logger.Info("execution gateway stopped gracefully")
	return nil
}
