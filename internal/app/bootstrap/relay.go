package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/messenger-relay/internal/channels/messenger"
	appconfig "github.com/wolfman30/messenger-relay/internal/config"
	"github.com/wolfman30/messenger-relay/internal/events"
	"github.com/wolfman30/messenger-relay/internal/mavenagi"
	"github.com/wolfman30/messenger-relay/internal/observability/metrics"
	"github.com/wolfman30/messenger-relay/internal/relay"
	"github.com/wolfman30/messenger-relay/internal/settings"
	"github.com/wolfman30/messenger-relay/pkg/logging"
)

// RelayDeps are the optional stores a Relay can use.
type RelayDeps struct {
	Processed *events.ProcessedStore
	Turns     *relay.TurnStore
	Metrics   *metrics.RelayMetrics
}

// BuildRelay wires a Relay from config. Absent stores are skipped.
func BuildRelay(cfg *appconfig.Config, maven *mavenagi.Client, deps RelayDeps, logger *logging.Logger) (*relay.Relay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if maven == nil {
		return nil, fmt.Errorf("bootstrap: maven client is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var graphOpts []messenger.ClientOption
	if base := strings.TrimSpace(cfg.GraphAPIBase); base != "" {
		graphOpts = append(graphOpts, messenger.WithGraphAPIBase(base))
	}

	opts := []relay.Option{
		relay.WithTypingInterval(cfg.TypingInterval),
		relay.WithTurnTimeout(cfg.TurnTimeout),
		relay.WithConcurrency(cfg.BatchConcurrency),
		relay.WithFallbackReply(cfg.FallbackReply),
		relay.WithMetrics(deps.Metrics),
	}
	if deps.Processed != nil {
		opts = append(opts, relay.WithProcessedStore(deps.Processed))
		logger.Info("message deduplication enabled")
	}
	if deps.Turns != nil {
		opts = append(opts, relay.WithTurnRecorder(deps.Turns))
		logger.Info("turn recording enabled", "table", cfg.TurnsTable)
	}

	return relay.New(relay.ClientEnv(maven, graphOpts...), logger, opts...), nil
}

// Dispatch is the webhook dispatcher for the configured mode. Worker is set
// in memory mode and must be started by the caller.
type Dispatch struct {
	Dispatcher messenger.Dispatcher
	Worker     *relay.Worker
}

// BuildDispatch selects how webhook batches reach the relay: inline, via an
// in-process queue, or via SQS.
func BuildDispatch(cfg *appconfig.Config, r *relay.Relay, provider settings.Provider, sqsClient *sqs.Client, logger *logging.Logger) (Dispatch, error) {
	if cfg == nil {
		return Dispatch{}, fmt.Errorf("bootstrap: config is required")
	}
	if r == nil {
		return Dispatch{}, fmt.Errorf("bootstrap: relay is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.DispatchMode {
	case "", appconfig.DispatchInline:
		logger.Info("dispatching turns inline")
		return Dispatch{Dispatcher: r}, nil
	case appconfig.DispatchMemory:
		if provider == nil {
			return Dispatch{}, fmt.Errorf("bootstrap: memory dispatch requires a settings provider")
		}
		queue := relay.NewMemoryQueue(0)
		worker := relay.NewWorker(r, queue, provider, logger, relay.WithWorkerCount(cfg.WorkerCount))
		logger.Info("dispatching turns to in-memory queue", "workers", cfg.WorkerCount)
		return Dispatch{Dispatcher: relay.NewPublisher(queue, logger), Worker: worker}, nil
	case appconfig.DispatchSQS:
		if sqsClient == nil || strings.TrimSpace(cfg.RelayQueueURL) == "" {
			return Dispatch{}, fmt.Errorf("bootstrap: sqs dispatch requires a client and RELAY_QUEUE_URL")
		}
		logger.Info("dispatching turns to sqs", "queue_url", cfg.RelayQueueURL)
		return Dispatch{Dispatcher: relay.NewPublisher(relay.NewSQSQueue(sqsClient, cfg.RelayQueueURL, relay.WithVisibilityTimeout(JobVisibilityTimeout(cfg))), logger)}, nil
	default:
		return Dispatch{}, fmt.Errorf("bootstrap: unknown dispatch mode %q", cfg.DispatchMode)
	}
}

// JobVisibilityTimeout is how long a received turn job stays hidden. Workers
// take one job per receive, so one turn budget plus a margin for settings
// lookup and the final delete is enough.
func JobVisibilityTimeout(cfg *appconfig.Config) time.Duration {
	if cfg == nil || cfg.TurnTimeout <= 0 {
		return 0
	}
	return cfg.TurnTimeout + time.Minute
}
