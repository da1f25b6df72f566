// Package main is the entry point for the squad-bridge binary.
// squad-bridge exposes the claude-squad command over an HTTP API and
// publishes session lifecycle events.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kandev/squad-bridge/internal/common/config"
	"github.com/kandev/squad-bridge/internal/common/constants"
	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/events"
	"github.com/kandev/squad-bridge/internal/squad"
	"github.com/kandev/squad-bridge/internal/squad/history"
	"github.com/kandev/squad-bridge/internal/tracing"
)

var configDirFlag = flag.String("config", "", "Directory containing config.yaml")

func main() {
	flag.Parse()

	cfg, err := config.LoadWithPath(*configDirFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("squad-bridge failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	eventBus, closeBus, err := events.Provide(cfg.Events, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeBus() }()

	if _, err := subscribeEventLog(eventBus, log); err != nil {
		log.Warn("failed to subscribe event log", zap.Error(err))
	}

	store, err := history.Open(cfg.History)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}

	bridge := squad.New(cfg.Squad, log, squad.Options{EventBus: eventBus, History: store})
	defer func() {
		if err := bridge.Close(); err != nil {
			log.Warn("error closing history store", zap.Error(err))
		}
	}()

	report := bridge.CheckInstallation(context.Background())
	log.Info("starting squad-bridge",
		zap.String("address", cfg.Server.Addr()),
		zap.Bool("squad_installed", report.Installed),
		zap.String("squad_command", report.CommandPath),
		zap.Bool("history", bridge.HistoryEnabled()),
		zap.Bool("nats", cfg.Events.NATSURL != ""))

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      newRouter(bridge, log, cfg.Logging.Level == "debug"),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	log.Info("shutting down squad-bridge...")
	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("error shutting down HTTP server", zap.Error(err))
	}
	if err := tracing.Shutdown(ctx); err != nil {
		log.Warn("error flushing traces", zap.Error(err))
	}
	log.Info("squad-bridge stopped")
	return nil
}
