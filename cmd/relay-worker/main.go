package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/messenger-relay/cmd/mainconfig"
	"github.com/wolfman30/messenger-relay/internal/app/bootstrap"
	appconfig "github.com/wolfman30/messenger-relay/internal/config"
	"github.com/wolfman30/messenger-relay/internal/relay"
	"github.com/wolfman30/messenger-relay/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	// The worker always consumes from SQS regardless of the API's mode.
	cfg.DispatchMode = appconfig.DispatchSQS
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	if strings.TrimSpace(cfg.RelayQueueURL) == "" {
		logger.Error("RELAY_QUEUE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := mainconfig.BuildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build relay", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	queue := relay.NewSQSQueue(app.AWS.SQS, cfg.RelayQueueURL, relay.WithVisibilityTimeout(bootstrap.JobVisibilityTimeout(cfg)))
	worker := relay.NewWorker(
		app.Relay,
		queue,
		app.Settings,
		logger,
		relay.WithWorkerCount(cfg.WorkerCount),
		relay.WithReceiveWaitSeconds(20),
		relay.WithReceiveBatchSize(1),
	)
	worker.Start(ctx)
	logger.Info("relay worker started", "workers", cfg.WorkerCount, "queue_url", cfg.RelayQueueURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down relay worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("relay worker stopped")
	case <-doneCtx.Done():
		logger.Error("relay worker shutdown timed out", "error", doneCtx.Err())
	}
}
