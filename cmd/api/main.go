package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/messenger-relay/cmd/mainconfig"
	appconfig "github.com/wolfman30/messenger-relay/internal/config"
	"github.com/wolfman30/messenger-relay/internal/relay"
	"github.com/wolfman30/messenger-relay/pkg/logging"
)

func main() {
	// Optional .env for local runs
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("starting messenger relay API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"dispatch_mode", cfg.DispatchMode,
		"settings_source", cfg.SettingsSource,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := mainconfig.BuildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build relay", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if w := app.Dispatch.Worker; w != nil {
		w.Start(ctx)
		logger.Info("in-process relay worker started", "workers", cfg.WorkerCount)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	cancel()
	waitForWorker(app.Dispatch.Worker, logger, 30*time.Second)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// writeTimeout keeps the connection open for a whole inline turn.
func writeTimeout(cfg *appconfig.Config) time.Duration {
	const base = 15 * time.Second
	if cfg.DispatchMode != appconfig.DispatchInline && cfg.DispatchMode != "" {
		return base
	}
	if cfg.TurnTimeout > 0 {
		return cfg.TurnTimeout + base
	}
	return base
}

func waitForWorker(w *relay.Worker, logger *logging.Logger, timeout time.Duration) {
	if w == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("relay worker stopped")
	case <-time.After(timeout):
		logger.Warn("relay worker shutdown timed out")
	}
}
